// Package providers define la frontera con los proveedores externos (Garmin,
// Strava): qué pide cada service y qué devuelve cada adapter. Los adapters
// viven en subpaquetes y no conocen el store ni el vault.
package providers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/dropDatabas3/fitlink/internal/linkerr"
)

// Payload es la respuesta JSON cruda de un proveedor.
type Payload = map[string]any

// Credentials para un login usuario/contraseña.
type Credentials struct {
	Username      string
	Password      string
	RegionVariant bool // Garmin China
}

// Outcome del intento de login.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeAuthenticated
	OutcomeMFARequired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAuthenticated:
		return "authenticated"
	case OutcomeMFARequired:
		return "mfa_required"
	default:
		return "failed"
	}
}

// MFAState es el estado opaco de continuación que devuelve el proveedor al
// pedir MFA. Se reenvía tal cual en ResumeMFA.
type MFAState struct {
	State         []byte
	RegionVariant bool
}

// Failure describe un login fallido.
type Failure struct {
	Reason linkerr.AuthReason
	Detail string
}

// LoginResult: exactamente uno de Session / MFA / Failure según Outcome.
type LoginResult struct {
	Outcome Outcome
	Session *Session
	MFA     *MFAState
	Failure *Failure
}

func Authenticated(s *Session) LoginResult {
	return LoginResult{Outcome: OutcomeAuthenticated, Session: s}
}

func NeedsMFA(state []byte, region bool) LoginResult {
	return LoginResult{Outcome: OutcomeMFARequired, MFA: &MFAState{State: state, RegionVariant: region}}
}

func Failed(reason linkerr.AuthReason, detail string) LoginResult {
	return LoginResult{Outcome: OutcomeFailed, Failure: &Failure{Reason: reason, Detail: detail}}
}

// Err convierte un resultado fallido en AuthError (nil si no falló).
func (r LoginResult) Err() error {
	if r.Outcome != OutcomeFailed {
		return nil
	}
	if r.Failure == nil {
		return linkerr.Auth(linkerr.ReasonUnknown, "login failed")
	}
	return linkerr.Auth(r.Failure.Reason, r.Failure.Detail)
}

// ─── Session ───

// OAuth2Token del proveedor.
type OAuth2Token struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
}

// Session es la sesión autenticada de un login usuario/contraseña.
// Serializada (base64 de JSON) se guarda cifrada en la conexión.
type Session struct {
	OAuth1Token   string      `json:"oauth1_token"`
	OAuth2Token   OAuth2Token `json:"oauth2_token"`
	DisplayName   string      `json:"display_name,omitempty"`
	RegionVariant bool        `json:"region_variant,omitempty"`
}

var ErrInvalidSession = errors.New("providers: invalid session blob")

// Serialize codifica la sesión para persistirla.
func (s *Session) Serialize() (string, error) {
	if s == nil {
		return "", ErrInvalidSession
	}
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

// Expired es true si el access token ya venció (o no hay token).
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.OAuth2Token.AccessToken == "" {
		return true
	}
	return s.OAuth2Token.ExpiresAt > 0 && now.Unix() >= s.OAuth2Token.ExpiresAt
}

// ParseSession es la inversa de Serialize.
func ParseSession(blob string) (*Session, error) {
	blob = strings.TrimSpace(blob)
	if blob == "" {
		return nil, ErrInvalidSession
	}
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return nil, ErrInvalidSession
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, ErrInvalidSession
	}
	if s.OAuth2Token.AccessToken == "" && s.OAuth1Token == "" {
		return nil, ErrInvalidSession
	}
	return &s, nil
}

// ─── Identidad ───

// Profile del usuario en el proveedor.
type Profile struct {
	ExternalID  string
	DisplayName string
	ProfileURL  string
}

// ─── Interfaces por proveedor ───

// PasswordAuthenticator: login usuario/contraseña con MFA opcional.
type PasswordAuthenticator interface {
	Login(ctx context.Context, creds Credentials) LoginResult
	ResumeMFA(ctx context.Context, state MFAState, code string) LoginResult
	Profile(ctx context.Context, s *Session) (Profile, error)
}

// DailySource trae los datos diarios de un proveedor de wellness.
// Cada método puede devolver (nil, nil) si el día no tiene datos.
type DailySource interface {
	DailySummary(ctx context.Context, s *Session, day time.Time) (Payload, error)
	Sleep(ctx context.Context, s *Session, day time.Time) (Payload, error)
	BodyBattery(ctx context.Context, s *Session, day time.Time) (Payload, error)
}

// TokenGrant es la respuesta de un intercambio o refresh OAuth2.
type TokenGrant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    int64 // unix seconds
	Athlete      *Profile
}

// OAuthClient cubre el flujo authorization-code de una app OAuth por usuario.
type OAuthClient interface {
	AuthCodeURL(clientID, redirectURI, state string) string
	Exchange(ctx context.Context, clientID, clientSecret, redirectURI, code string) (*TokenGrant, error)
	Refresh(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenGrant, error)
}

// ActivitySource lista actividades paginadas.
type ActivitySource interface {
	Athlete(ctx context.Context, accessToken string) (*Profile, error)
	ListActivities(ctx context.Context, accessToken string, after, before time.Time, page, perPage int) ([]Payload, error)
}
