package dto

// SyncRequest body de POST /v1/{provider}/sync. Days 0 usa el default del
// proveedor.
type SyncRequest struct {
	Days int `json:"days"`
}

type UnlinkResponse struct {
	Deleted bool `json:"deleted"`
}

// HealthResponse: status "ok" o "unavailable", con el estado de cada
// dependencia.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}
