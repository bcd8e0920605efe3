package tokens

import (
	"context"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fitlink/internal/domain/types"
	"github.com/dropDatabas3/fitlink/internal/linkerr"
	"github.com/dropDatabas3/fitlink/internal/providers"
	"github.com/dropDatabas3/fitlink/internal/providers/strava"
	"github.com/dropDatabas3/fitlink/internal/security/secretbox"
	"github.com/dropDatabas3/fitlink/internal/store/memory"
)

type fakeOAuth struct {
	refreshes atomic.Int32
	fail      error
	delay     time.Duration
	grant     providers.TokenGrant
	gotCode   string
}

func (f *fakeOAuth) AuthCodeURL(clientID, redirectURI, state string) string {
	return "https://example.test/authorize?client_id=" + clientID + "&state=" + state
}

func (f *fakeOAuth) Exchange(_ context.Context, _, _, _, code string) (*providers.TokenGrant, error) {
	f.gotCode = code
	if f.fail != nil {
		return nil, f.fail
	}
	g := f.grant
	return &g, nil
}

func (f *fakeOAuth) Refresh(_ context.Context, _, _, _ string) (*providers.TokenGrant, error) {
	f.refreshes.Add(1)
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail != nil {
		return nil, f.fail
	}
	g := f.grant
	return &g, nil
}

type fixture struct {
	mgr   Manager
	oauth *fakeOAuth
	store *memory.Store
	vault *secretbox.Vault
	now   time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vault, err := secretbox.NewFromSecret("tokens-test")
	require.NoError(t, err)
	f := &fixture{
		oauth: &fakeOAuth{grant: providers.TokenGrant{AccessToken: "new-access", RefreshToken: "new-refresh"}},
		store: memory.New(time.Second),
		vault: vault,
		now:   time.Unix(1_700_000_000, 0),
	}
	f.oauth.grant.ExpiresAt = f.now.Unix() + 21600
	f.mgr = NewManager(Deps{
		Client:      f.oauth,
		Connections: f.store.Connections(),
		Vault:       vault,
		Now:         func() time.Time { return f.now },
	})
	return f
}

// seed guarda una conexión de Strava cuyo token vence en expiresIn.
func (f *fixture) seed(t *testing.T, expiresIn time.Duration) *types.Connection {
	t.Helper()
	conn := &types.Connection{
		UserID:           7,
		Provider:         types.ProviderStrava,
		CredentialUser:   f.vault.MustEncrypt("cid"),
		CredentialSecret: f.vault.MustEncrypt("csecret"),
		AccessToken:      f.vault.MustEncrypt("old-access"),
		RefreshToken:     f.vault.MustEncrypt("old-refresh"),
		TokenExpiresAt:   f.now.Add(expiresIn).Unix(),
		Status:           types.StatusConnected,
	}
	require.NoError(t, f.store.Connections().Upsert(context.Background(), conn))
	stored, err := f.store.Connections().Get(context.Background(), 7, types.ProviderStrava)
	require.NoError(t, err)
	return stored
}

func TestEnsureValidToken_RefreshBoundary(t *testing.T) {
	cases := []struct {
		name      string
		expiresIn time.Duration
		refresh   bool
	}{
		{"301s no refresca", 301 * time.Second, false},
		{"300s refresca", 300 * time.Second, true},
		{"299s refresca", 299 * time.Second, true},
		{"vencido refresca", -time.Hour, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			conn := f.seed(t, tc.expiresIn)

			tok, err := f.mgr.EnsureValidToken(context.Background(), conn)
			require.NoError(t, err)
			if tc.refresh {
				assert.Equal(t, "new-access", tok)
				assert.EqualValues(t, 1, f.oauth.refreshes.Load())
			} else {
				assert.Equal(t, "old-access", tok)
				assert.Zero(t, f.oauth.refreshes.Load())
			}
		})
	}
}

func TestEnsureValidToken_PersistsRefreshedTokens(t *testing.T) {
	f := newFixture(t)
	conn := f.seed(t, time.Minute)

	_, err := f.mgr.EnsureValidToken(context.Background(), conn)
	require.NoError(t, err)

	stored, err := f.store.Connections().Get(context.Background(), 7, types.ProviderStrava)
	require.NoError(t, err)
	access, ok := f.vault.Decrypt(stored.AccessToken)
	require.True(t, ok)
	refresh, ok := f.vault.Decrypt(stored.RefreshToken)
	require.True(t, ok)
	assert.Equal(t, "new-access", access)
	assert.Equal(t, "new-refresh", refresh)
	assert.Equal(t, f.oauth.grant.ExpiresAt, stored.TokenExpiresAt)

	// la conexión en memoria también queda actualizada
	assert.Equal(t, stored.AccessToken, conn.AccessToken)
	assert.Equal(t, f.oauth.grant.ExpiresAt, conn.TokenExpiresAt)

	// segundo llamado ya no refresca
	tok, err := f.mgr.EnsureValidToken(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok)
	assert.EqualValues(t, 1, f.oauth.refreshes.Load())
}

func TestEnsureValidToken_KeepsRefreshTokenWhenNotRotated(t *testing.T) {
	f := newFixture(t)
	f.oauth.grant.RefreshToken = ""
	conn := f.seed(t, 0)

	_, err := f.mgr.EnsureValidToken(context.Background(), conn)
	require.NoError(t, err)
	refresh, ok := f.vault.Decrypt(conn.RefreshToken)
	require.True(t, ok)
	assert.Equal(t, "old-refresh", refresh)
}

func TestEnsureValidToken_FailureMarksErrorWithoutStaleFallback(t *testing.T) {
	f := newFixture(t)
	f.oauth.fail = linkerr.Auth(linkerr.ReasonTokenRefreshFailed, "strava token refresh failed (status 400)")
	conn := f.seed(t, 10*time.Second)

	tok, err := f.mgr.EnsureValidToken(context.Background(), conn)
	assert.Empty(t, tok)
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonTokenRefreshFailed))

	stored, _ := f.store.Connections().Get(context.Background(), 7, types.ProviderStrava)
	assert.Equal(t, types.StatusError, stored.Status)
	require.NotNil(t, stored.LastError)
	assert.Contains(t, *stored.LastError, "token refresh failed")
}

func TestEnsureValidToken_Undecryptable(t *testing.T) {
	f := newFixture(t)
	conn := f.seed(t, time.Hour)
	conn.AccessToken = "tampered"

	_, err := f.mgr.EnsureValidToken(context.Background(), conn)
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonCredentialsUndecryptable))

	conn = f.seed(t, 0)
	conn.RefreshToken = ""
	_, err = f.mgr.EnsureValidToken(context.Background(), conn)
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonCredentialsUndecryptable))
	assert.Zero(t, f.oauth.refreshes.Load())
}

func TestEnsureValidToken_ConcurrentRefreshCoalesced(t *testing.T) {
	f := newFixture(t)
	f.oauth.delay = 50 * time.Millisecond
	f.seed(t, 0)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := f.store.Connections().Get(context.Background(), 7, types.ProviderStrava)
			if !assert.NoError(t, err) {
				return
			}
			tok, err := f.mgr.EnsureValidToken(context.Background(), conn)
			assert.NoError(t, err)
			assert.Equal(t, "new-access", tok)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, f.oauth.refreshes.Load(), int32(2))
}

func TestBuildAuthorizationURL(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.BuildAuthorizationURL("", "http://cb", "s")
	assert.True(t, linkerr.IsValidation(err))

	// con el adapter real
	mgr := NewManager(Deps{Client: strava.New(strava.Config{})})
	raw, err := mgr.BuildAuthorizationURL("123", "http://localhost/cb", "st")
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "www.strava.com", u.Host)
	assert.Equal(t, "123", q.Get("client_id"))
	assert.Equal(t, "http://localhost/cb", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, "activity:read_all,activity:write,read_all", q.Get("scope"))
	assert.Equal(t, "auto", q.Get("approval_prompt"))
	assert.Equal(t, "st", q.Get("state"))
}

func TestExchangeCode(t *testing.T) {
	f := newFixture(t)
	_, err := f.mgr.ExchangeCode(context.Background(), "cid", "sec", "")
	assert.True(t, linkerr.IsValidation(err))

	g, err := f.mgr.ExchangeCode(context.Background(), "cid", "sec", "the-code")
	require.NoError(t, err)
	assert.Equal(t, "the-code", f.oauth.gotCode)
	assert.Equal(t, "new-access", g.AccessToken)

	f.oauth.fail = linkerr.Auth(linkerr.ReasonInvalidCredentials, "bad code")
	_, err = f.mgr.ExchangeCode(context.Background(), "cid", "sec", "x")
	assert.True(t, linkerr.IsAuth(err))
}
