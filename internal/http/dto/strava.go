package dto

// StravaConfigRequest body de POST /v1/strava/config.
type StravaConfigRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type StravaConfigResponse struct {
	HasConfig bool `json:"has_config"`
}

type StravaAuthorizeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
}

// StravaCallbackRequest: code y state tal como volvieron del redirect.
type StravaCallbackRequest struct {
	Code  string `json:"code"`
	State string `json:"state"`
}
