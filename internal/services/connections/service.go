// Package connections es la capa que usan controllers y CLI sobre las
// conexiones: estado, desvinculación y el alta OAuth de Strava (app config,
// URL de autorización y callback).
package connections

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/fitlink/internal/domain/repository"
	"github.com/dropDatabas3/fitlink/internal/domain/types"
	"github.com/dropDatabas3/fitlink/internal/jwt"
	"github.com/dropDatabas3/fitlink/internal/linkerr"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
	"github.com/dropDatabas3/fitlink/internal/providers"
	"github.com/dropDatabas3/fitlink/internal/security/secretbox"
	"github.com/dropDatabas3/fitlink/internal/services/tokens"
)

// StateSigner firma y verifica el parámetro state del flujo OAuth.
type StateSigner interface {
	SignState(userID int64, provider string) (string, error)
	VerifyState(raw string, userID int64, provider string) (*jwt.StateClaims, error)
}

// Deps contiene las dependencias del servicio.
type Deps struct {
	Connections repository.ConnectionRepository
	Vault       *secretbox.Vault
	Tokens      tokens.Manager
	States      StateSigner
	Strava      providers.ActivitySource // identidad cuando el grant no trae atleta
	RedirectURI string
}

// Status es la vista pública de una conexión.
type Status struct {
	Provider      types.Provider         `json:"provider"`
	Connected     bool                   `json:"connected"`
	Status        types.ConnectionStatus `json:"status"`
	DisplayName   string                 `json:"display_name,omitempty"`
	ExternalID    string                 `json:"external_id,omitempty"`
	ProfileURL    string                 `json:"profile_url,omitempty"`
	RegionVariant bool                   `json:"region_variant,omitempty"`
	HasAppConfig  bool                   `json:"has_app_config,omitempty"`
	CreatedAt     *time.Time             `json:"created_at,omitempty"`
	LastSyncAt    *time.Time             `json:"last_sync_at,omitempty"`
	LastError     *string                `json:"last_error,omitempty"`
}

type Service interface {
	GarminStatus(ctx context.Context, userID int64) (*Status, error)
	StravaStatus(ctx context.Context, userID int64) (*Status, error)
	Unlink(ctx context.Context, userID int64, provider types.Provider) (bool, error)

	SaveStravaAppConfig(ctx context.Context, userID int64, clientID, clientSecret string) error
	HasStravaAppConfig(ctx context.Context, userID int64) (bool, error)
	StravaAuthorizationURL(ctx context.Context, userID int64) (string, error)
	CompleteStravaAuthorization(ctx context.Context, userID int64, code, state string) (*Status, error)
}

var errNoAppConfig = linkerr.Invalid("client_id", "Strava app credentials not configured")

type service struct {
	deps Deps
}

func NewService(deps Deps) Service {
	return &service{deps: deps}
}

func (s *service) log(ctx context.Context, op string) *zap.Logger {
	return logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("connections"),
		logger.Op(op),
	)
}

func (s *service) GarminStatus(ctx context.Context, userID int64) (*Status, error) {
	return s.status(ctx, userID, types.ProviderGarmin)
}

func (s *service) StravaStatus(ctx context.Context, userID int64) (*Status, error) {
	return s.status(ctx, userID, types.ProviderStrava)
}

func (s *service) status(ctx context.Context, userID int64, p types.Provider) (*Status, error) {
	conn, err := s.deps.Connections.Get(ctx, userID, p)
	if repository.IsNotFound(err) {
		return &Status{Provider: p, Status: types.StatusNotConnected}, nil
	}
	if err != nil {
		return nil, err
	}
	return s.toStatus(conn), nil
}

func (s *service) toStatus(c *types.Connection) *Status {
	st := &Status{
		Provider:      c.Provider,
		Connected:     c.Status == types.StatusConnected,
		Status:        c.Status,
		DisplayName:   c.DisplayName,
		ExternalID:    c.ExternalID,
		ProfileURL:    c.ProfileURL,
		RegionVariant: c.RegionVariant,
		LastSyncAt:    c.LastSyncAt,
		LastError:     c.LastError,
	}
	if !c.CreatedAt.IsZero() {
		t := c.CreatedAt
		st.CreatedAt = &t
	}
	if c.Provider == types.ProviderStrava {
		st.HasAppConfig = c.CredentialUser != "" && c.CredentialSecret != ""
	}
	return st
}

// Unlink borra la conexión. Las métricas y actividades ya sincronizadas quedan.
func (s *service) Unlink(ctx context.Context, userID int64, provider types.Provider) (bool, error) {
	if !provider.IsValid() {
		return false, linkerr.Invalid("provider", "unknown provider")
	}
	ok, err := s.deps.Connections.Delete(ctx, userID, provider)
	if err != nil {
		return false, err
	}
	if ok {
		s.log(ctx, "Unlink").Info("connection removed", logger.UserID(userID), logger.Provider(string(provider)))
	}
	return ok, nil
}

func (s *service) SaveStravaAppConfig(ctx context.Context, userID int64, clientID, clientSecret string) error {
	clientID = strings.TrimSpace(clientID)
	clientSecret = strings.TrimSpace(clientSecret)
	if clientID == "" {
		return linkerr.Invalid("client_id", "client_id is required")
	}
	if clientSecret == "" {
		return linkerr.Invalid("client_secret", "client_secret is required")
	}

	encID, err := s.deps.Vault.Encrypt(clientID)
	if err != nil {
		return err
	}
	encSecret, err := s.deps.Vault.Encrypt(clientSecret)
	if err != nil {
		return err
	}

	conn, err := s.deps.Connections.Get(ctx, userID, types.ProviderStrava)
	switch {
	case repository.IsNotFound(err):
		conn = &types.Connection{UserID: userID, Provider: types.ProviderStrava, Status: types.StatusConfigSet}
	case err != nil:
		return err
	}
	conn.CredentialUser = encID
	conn.CredentialSecret = encSecret

	if err := s.deps.Connections.Upsert(ctx, conn); err != nil {
		return err
	}
	s.log(ctx, "SaveStravaAppConfig").Info("strava app config saved", logger.UserID(userID))
	return nil
}

func (s *service) HasStravaAppConfig(ctx context.Context, userID int64) (bool, error) {
	conn, err := s.deps.Connections.Get(ctx, userID, types.ProviderStrava)
	if repository.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conn.CredentialUser != "" && conn.CredentialSecret != "", nil
}

// appCredentials descifra client id/secret; sin config → ValidationError.
func (s *service) appCredentials(ctx context.Context, userID int64) (*types.Connection, string, string, error) {
	conn, err := s.deps.Connections.Get(ctx, userID, types.ProviderStrava)
	if repository.IsNotFound(err) {
		return nil, "", "", errNoAppConfig
	}
	if err != nil {
		return nil, "", "", err
	}
	if conn.CredentialUser == "" || conn.CredentialSecret == "" {
		return nil, "", "", errNoAppConfig
	}
	id, okID := s.deps.Vault.Decrypt(conn.CredentialUser)
	secret, okSecret := s.deps.Vault.Decrypt(conn.CredentialSecret)
	if !okID || !okSecret {
		return nil, "", "", linkerr.Auth(linkerr.ReasonCredentialsUndecryptable, "stored Strava app credentials could not be decrypted, please save them again")
	}
	return conn, id, secret, nil
}

func (s *service) StravaAuthorizationURL(ctx context.Context, userID int64) (string, error) {
	_, clientID, _, err := s.appCredentials(ctx, userID)
	if err != nil {
		return "", err
	}
	state, err := s.deps.States.SignState(userID, string(types.ProviderStrava))
	if err != nil {
		return "", err
	}
	return s.deps.Tokens.BuildAuthorizationURL(clientID, s.deps.RedirectURI, state)
}

func (s *service) CompleteStravaAuthorization(ctx context.Context, userID int64, code, state string) (*Status, error) {
	log := s.log(ctx, "CompleteStravaAuthorization").With(logger.UserID(userID))

	if strings.TrimSpace(code) == "" {
		return nil, linkerr.Invalid("code", "authorization code is required")
	}
	if _, err := s.deps.States.VerifyState(state, userID, string(types.ProviderStrava)); err != nil {
		log.Info("oauth state rejected", logger.Err(err))
		msg := "invalid state parameter"
		if errors.Is(err, jwt.ErrTokenExpired) {
			msg = "authorization request expired, please start again"
		}
		return nil, linkerr.Invalid("state", msg)
	}

	conn, clientID, clientSecret, err := s.appCredentials(ctx, userID)
	if err != nil {
		return nil, err
	}

	grant, err := s.deps.Tokens.ExchangeCode(ctx, clientID, clientSecret, code)
	if err != nil {
		return nil, err
	}

	access, err := s.deps.Vault.Encrypt(grant.AccessToken)
	if err != nil {
		return nil, err
	}
	refresh, err := s.deps.Vault.Encrypt(grant.RefreshToken)
	if err != nil {
		return nil, err
	}
	conn.AccessToken = access
	conn.RefreshToken = refresh
	conn.TokenExpiresAt = grant.ExpiresAt
	conn.Status = types.StatusConnected
	conn.LastError = nil

	athlete := grant.Athlete
	if athlete == nil && s.deps.Strava != nil {
		if a, err := s.deps.Strava.Athlete(ctx, grant.AccessToken); err != nil {
			log.Warn("strava athlete fetch failed, continuing", logger.Err(err))
		} else {
			athlete = a
		}
	}
	if athlete != nil {
		if athlete.ExternalID != "" {
			conn.ExternalID = athlete.ExternalID
		}
		if athlete.DisplayName != "" {
			conn.DisplayName = athlete.DisplayName
		}
		if athlete.ProfileURL != "" {
			conn.ProfileURL = athlete.ProfileURL
		}
	}

	if err := s.deps.Connections.Upsert(ctx, conn); err != nil {
		return nil, err
	}
	log.Info("strava connected", logger.String("athlete_id", conn.ExternalID))
	return s.toStatus(conn), nil
}
