// Package types define los modelos de dominio compartidos entre paquetes.
package types

import "time"

// Provider identifica la plataforma vinculada.
type Provider string

const (
	// ProviderGarmin es el proveedor usuario/password con MFA.
	ProviderGarmin Provider = "garmin"
	// ProviderStrava es el proveedor OAuth2.
	ProviderStrava Provider = "strava"
)

// IsValid retorna true si el proveedor es conocido.
func (p Provider) IsValid() bool {
	switch p {
	case ProviderGarmin, ProviderStrava:
		return true
	}
	return false
}

// ConnectionStatus es el estado de la conexión.
type ConnectionStatus string

const (
	StatusNotConnected ConnectionStatus = "not_connected"
	StatusConnected    ConnectionStatus = "connected"
	StatusError        ConnectionStatus = "error"
	// StatusExpired: la sesión guardada ya no sirve y el re-login pide MFA.
	StatusExpired ConnectionStatus = "expired"
	// StatusConfigSet: app OAuth configurada, todavía sin autorizar.
	StatusConfigSet ConnectionStatus = "config_set"
)

// IsValid retorna true si el estado es uno de los conocidos.
func (s ConnectionStatus) IsValid() bool {
	switch s {
	case StatusNotConnected, StatusConnected, StatusError, StatusExpired, StatusConfigSet:
		return true
	}
	return false
}

// Syncable indica si se puede intentar un sync sin reconectar.
func (s ConnectionStatus) Syncable() bool {
	return s == StatusConnected || s == StatusError
}

// Connection es el vínculo de un usuario con un proveedor.
// Todos los campos de secreto guardan ciphertext del vault, nunca texto plano.
type Connection struct {
	UserID   int64
	Provider Provider

	// Garmin: username/password. Strava: client id/secret de la app del usuario.
	CredentialUser   string
	CredentialSecret string

	// Strava
	AccessToken    string
	RefreshToken   string
	TokenExpiresAt int64 // unix seconds

	// Garmin: sesión serializada que evita repetir login (y MFA).
	SessionBlob string

	Status        ConnectionStatus
	RegionVariant bool // Garmin China

	ExternalID  string
	DisplayName string
	ProfileURL  string

	LastSyncAt *time.Time
	LastError  *string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Clone devuelve una copia independiente (los punteros se copian por valor).
func (c *Connection) Clone() *Connection {
	if c == nil {
		return nil
	}
	cp := *c
	if c.LastSyncAt != nil {
		t := *c.LastSyncAt
		cp.LastSyncAt = &t
	}
	if c.LastError != nil {
		e := *c.LastError
		cp.LastError = &e
	}
	return &cp
}
