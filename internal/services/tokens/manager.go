// Package tokens mantiene válido el access token OAuth2 de una conexión de
// Strava a lo largo de syncs desatendidos: arma la URL de autorización, canjea
// el code y refresca cuando el token está por vencer.
package tokens

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/dropDatabas3/fitlink/internal/domain/repository"
	"github.com/dropDatabas3/fitlink/internal/domain/types"
	"github.com/dropDatabas3/fitlink/internal/linkerr"
	"github.com/dropDatabas3/fitlink/internal/metrics"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
	"github.com/dropDatabas3/fitlink/internal/providers"
	"github.com/dropDatabas3/fitlink/internal/security/secretbox"
)

// DefaultRefreshBuffer: se refresca si faltan menos de 5 minutos para el vencimiento.
const DefaultRefreshBuffer = 300 * time.Second

// Deps contiene las dependencias del manager.
type Deps struct {
	Client        providers.OAuthClient
	Connections   repository.ConnectionRepository
	Vault         *secretbox.Vault
	RedirectURI   string
	RefreshBuffer time.Duration
	Now           func() time.Time
}

// Manager es el ciclo de vida del token OAuth2 de Strava.
type Manager interface {
	BuildAuthorizationURL(clientID, redirectURI, state string) (string, error)
	ExchangeCode(ctx context.Context, clientID, clientSecret, code string) (*providers.TokenGrant, error)
	Refresh(ctx context.Context, clientID, clientSecret, refreshToken string) (*providers.TokenGrant, error)
	// EnsureValidToken devuelve un access token utilizable. El caller tiene
	// tomado el lease de la conexión.
	EnsureValidToken(ctx context.Context, conn *types.Connection) (string, error)
	NeedsRefresh(conn *types.Connection) bool
}

type manager struct {
	deps  Deps
	group singleflight.Group
}

func NewManager(deps Deps) Manager {
	if deps.RefreshBuffer <= 0 {
		deps.RefreshBuffer = DefaultRefreshBuffer
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &manager{deps: deps}
}

func (m *manager) log(ctx context.Context, op string) *zap.Logger {
	return logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("tokens"),
		logger.Op(op),
		logger.Provider(string(types.ProviderStrava)),
	)
}

func (m *manager) BuildAuthorizationURL(clientID, redirectURI, state string) (string, error) {
	if strings.TrimSpace(clientID) == "" {
		return "", linkerr.Invalid("client_id", "Strava client id is not configured")
	}
	return m.deps.Client.AuthCodeURL(clientID, redirectURI, state), nil
}

func (m *manager) ExchangeCode(ctx context.Context, clientID, clientSecret, code string) (*providers.TokenGrant, error) {
	if strings.TrimSpace(code) == "" {
		return nil, linkerr.Invalid("code", "authorization code is required")
	}
	if clientID == "" || clientSecret == "" {
		return nil, linkerr.Invalid("client_id", "Strava app credentials not configured")
	}
	g, err := m.deps.Client.Exchange(ctx, clientID, clientSecret, m.deps.RedirectURI, code)
	if err != nil {
		m.log(ctx, "ExchangeCode").Info("code exchange failed", logger.Err(err))
		return nil, err
	}
	return g, nil
}

func (m *manager) Refresh(ctx context.Context, clientID, clientSecret, refreshToken string) (*providers.TokenGrant, error) {
	if refreshToken == "" {
		return nil, linkerr.Auth(linkerr.ReasonTokenRefreshFailed, "no refresh token stored")
	}
	return m.deps.Client.Refresh(ctx, clientID, clientSecret, refreshToken)
}

// NeedsRefresh: now + buffer >= expires_at. Sin expiry conocido siempre refresca.
func (m *manager) NeedsRefresh(conn *types.Connection) bool {
	if conn.TokenExpiresAt <= 0 {
		return true
	}
	return !m.deps.Now().Add(m.deps.RefreshBuffer).Before(time.Unix(conn.TokenExpiresAt, 0))
}

// refreshed es el resultado compartido entre callers coalescidos.
type refreshed struct {
	access     string
	accessEnc  string
	refreshEnc string
	expiresAt  int64
}

func (m *manager) EnsureValidToken(ctx context.Context, conn *types.Connection) (string, error) {
	if conn == nil {
		return "", linkerr.Auth(linkerr.ReasonNotConnected, "Strava not connected")
	}
	if !m.NeedsRefresh(conn) {
		tok, ok := m.deps.Vault.Decrypt(conn.AccessToken)
		if !ok {
			return "", linkerr.Auth(linkerr.ReasonCredentialsUndecryptable, "stored Strava token could not be decrypted, please reconnect")
		}
		return tok, nil
	}

	key := repository.LeaseKey(conn.UserID, conn.Provider)
	v, err, shared := m.group.Do(key, func() (any, error) {
		return m.refresh(ctx, conn)
	})
	if err != nil {
		return "", err
	}
	r := v.(*refreshed)
	if shared {
		m.log(ctx, "EnsureValidToken").Debug("refresh coalesced", logger.UserID(conn.UserID))
	}
	conn.AccessToken = r.accessEnc
	conn.RefreshToken = r.refreshEnc
	conn.TokenExpiresAt = r.expiresAt
	conn.Status = types.StatusConnected
	conn.LastError = nil
	return r.access, nil
}

func (m *manager) refresh(ctx context.Context, conn *types.Connection) (*refreshed, error) {
	log := m.log(ctx, "refresh").With(logger.UserID(conn.UserID))

	clientID, okID := m.deps.Vault.Decrypt(conn.CredentialUser)
	clientSecret, okSecret := m.deps.Vault.Decrypt(conn.CredentialSecret)
	refreshToken, okRefresh := m.deps.Vault.Decrypt(conn.RefreshToken)
	if !okID || !okSecret || !okRefresh {
		err := linkerr.Auth(linkerr.ReasonCredentialsUndecryptable, "stored Strava credentials could not be decrypted, please reconnect")
		m.markError(ctx, conn, err)
		return nil, err
	}

	g, err := m.Refresh(ctx, clientID, clientSecret, refreshToken)
	if err != nil {
		metrics.ObserveRefresh(string(types.ProviderStrava), false)
		log.Warn("token refresh failed", logger.Err(err))
		authErr := linkerr.AuthWrap(linkerr.ReasonTokenRefreshFailed, "token refresh failed: "+err.Error(), err)
		m.markError(ctx, conn, authErr)
		return nil, authErr
	}
	metrics.ObserveRefresh(string(types.ProviderStrava), true)

	if g.RefreshToken == "" {
		g.RefreshToken = refreshToken
	}
	out := &refreshed{access: g.AccessToken, expiresAt: g.ExpiresAt}
	if out.accessEnc, err = m.deps.Vault.Encrypt(g.AccessToken); err != nil {
		return nil, err
	}
	if out.refreshEnc, err = m.deps.Vault.Encrypt(g.RefreshToken); err != nil {
		return nil, err
	}
	if err := m.deps.Connections.UpdateTokens(ctx, conn.UserID, conn.Provider, out.accessEnc, out.refreshEnc, out.expiresAt); err != nil {
		return nil, err
	}
	log.Info("strava token refreshed", logger.Int64("expires_at", out.expiresAt))
	return out, nil
}

func (m *manager) markError(ctx context.Context, conn *types.Connection, cause error) {
	msg := cause.Error()
	if ae, ok := linkerr.AsAuth(cause); ok {
		msg = ae.Message
	}
	if err := m.deps.Connections.MarkStatus(ctx, conn.UserID, conn.Provider, types.StatusError, &msg); err != nil && !repository.IsNotFound(err) {
		m.log(ctx, "markError").Warn("could not mark connection error", logger.Err(err))
	}
	conn.Status = types.StatusError
	conn.LastError = &msg
}
