// Package dto define los bodies de request/response de la API v1.
package dto

// GarminConnectRequest body de POST /v1/garmin/connect y /test-credentials.
type GarminConnectRequest struct {
	Username      string `json:"username"`
	Password      string `json:"password"`
	RegionVariant bool   `json:"is_cn"`
}

// GarminMFARequest body de POST /v1/garmin/connect/mfa.
type GarminMFARequest struct {
	SessionID string `json:"session_id"`
	Code      string `json:"mfa_code"`
}

// GarminConnectResponse: status "connected" o "mfa_required".
type GarminConnectResponse struct {
	Status      string `json:"status"`
	SessionID   string `json:"session_id,omitempty"`
	Message     string `json:"message,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	ExternalID  string `json:"external_id,omitempty"`
}

// TestCredentialsResponse resultado de probar credenciales sin persistir.
type TestCredentialsResponse struct {
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message"`
	Region  string `json:"region"`
}
