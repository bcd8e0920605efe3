package login

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fitlink/internal/cache"
	"github.com/dropDatabas3/fitlink/internal/domain/types"
	"github.com/dropDatabas3/fitlink/internal/linkerr"
	"github.com/dropDatabas3/fitlink/internal/providers"
	"github.com/dropDatabas3/fitlink/internal/rate"
	"github.com/dropDatabas3/fitlink/internal/security/secretbox"
	"github.com/dropDatabas3/fitlink/internal/store/memory"
)

// fakeAuth simula el SSO: "mfa-user" pide código "123456".
type fakeAuth struct {
	mu          sync.Mutex
	logins      int
	resumes     int
	mfaOnLogin  bool
	failReason  linkerr.AuthReason
	profileErr  error
	lastResumed providers.MFAState
}

func (f *fakeAuth) Login(_ context.Context, c providers.Credentials) providers.LoginResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logins++
	if f.failReason != "" {
		return providers.Failed(f.failReason, "login failed: "+string(f.failReason))
	}
	if f.mfaOnLogin || c.Username == "mfa-user" {
		return providers.NeedsMFA([]byte("state-for-"+c.Username), c.RegionVariant)
	}
	return providers.Authenticated(&providers.Session{OAuth2Token: providers.OAuth2Token{AccessToken: "tok-" + c.Username}})
}

func (f *fakeAuth) ResumeMFA(_ context.Context, st providers.MFAState, code string) providers.LoginResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resumes++
	f.lastResumed = st
	switch code {
	case "123456":
		return providers.Authenticated(&providers.Session{OAuth2Token: providers.OAuth2Token{AccessToken: "tok-mfa"}})
	case "boom":
		return providers.Failed(linkerr.ReasonNetwork, "network down")
	default:
		return providers.Failed(linkerr.ReasonMFACodeInvalid, "bad code")
	}
}

func (f *fakeAuth) Profile(_ context.Context, s *providers.Session) (providers.Profile, error) {
	if f.profileErr != nil {
		return providers.Profile{}, f.profileErr
	}
	return providers.Profile{ExternalID: "555", DisplayName: "Ana", ProfileURL: "https://connect/ana"}, nil
}

type fixture struct {
	svc   Service
	auth  *fakeAuth
	store *memory.Store
	chs   *CacheChallengeStore
	vault *secretbox.Vault
	now   *time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	vault, err := secretbox.NewFromSecret("test-secret")
	require.NoError(t, err)
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	c := cache.NewMemory("test", time.Minute)
	t.Cleanup(func() { _ = c.Close() })

	f := &fixture{
		auth:  &fakeAuth{},
		store: memory.New(time.Second),
		chs:   NewChallengeStore(c, 10*time.Minute).WithClock(func() time.Time { return clock() }),
		vault: vault,
		now:   &now,
	}
	f.svc = NewService(Deps{
		Authenticator: f.auth,
		Connections:   f.store.Connections(),
		Challenges:    f.chs,
		Vault:         vault,
		Now:           func() time.Time { return clock() },
	})
	return f
}

func TestBeginLogin_DirectSuccess(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.BeginLogin(ctx, 1, " runner@example.com ", "pw", false)
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, res.Status)
	require.NotNil(t, res.Profile)

	conn, err := f.store.Connections().Get(ctx, 1, types.ProviderGarmin)
	require.NoError(t, err)
	assert.Equal(t, types.StatusConnected, conn.Status)
	assert.Equal(t, "555", conn.ExternalID)
	assert.NotEqual(t, "pw", conn.CredentialSecret, "password cifrada")

	user, ok := f.vault.Decrypt(conn.CredentialUser)
	require.True(t, ok)
	assert.Equal(t, "runner@example.com", user)

	blob, ok := f.vault.Decrypt(conn.SessionBlob)
	require.True(t, ok)
	sess, err := providers.ParseSession(blob)
	require.NoError(t, err)
	assert.Equal(t, "tok-runner@example.com", sess.OAuth2Token.AccessToken)
}

func TestBeginLogin_ProfileFailureIsIgnored(t *testing.T) {
	f := newFixture(t)
	f.auth.profileErr = assert.AnError

	res, err := f.svc.BeginLogin(context.Background(), 1, "u", "pw", false)
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, res.Status)
	assert.Nil(t, res.Profile)
}

func TestBeginLogin_Validation(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.BeginLogin(context.Background(), 1, " ", "pw", false)
	assert.True(t, linkerr.IsValidation(err))
	_, err = f.svc.BeginLogin(context.Background(), 1, "u", "", false)
	assert.True(t, linkerr.IsValidation(err))
	assert.Zero(t, f.auth.logins)
}

func TestBeginLogin_FailureMarksExistingConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.BeginLogin(ctx, 1, "u", "pw", false)
	require.NoError(t, err)

	f.auth.failReason = linkerr.ReasonInvalidCredentials
	_, err = f.svc.BeginLogin(ctx, 1, "u", "wrong", false)
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonInvalidCredentials))

	conn, err := f.store.Connections().Get(ctx, 1, types.ProviderGarmin)
	require.NoError(t, err)
	assert.Equal(t, types.StatusError, conn.Status)
	require.NotNil(t, conn.LastError)

	// sin conexión previa no se crea nada
	_, err = f.svc.BeginLogin(ctx, 2, "u", "wrong", false)
	require.Error(t, err)
	_, err = f.store.Connections().Get(ctx, 2, types.ProviderGarmin)
	assert.Error(t, err)
}

func TestBeginLogin_RateLimited(t *testing.T) {
	f := newFixture(t)
	vault := f.vault
	svc := NewService(Deps{
		Authenticator: f.auth,
		Connections:   f.store.Connections(),
		Challenges:    f.chs,
		Vault:         vault,
		Limiter:       rate.NewMemoryLimiter("t:", 1, time.Minute),
	})
	ctx := context.Background()
	_, err := svc.BeginLogin(ctx, 1, "u", "pw", false)
	require.NoError(t, err)
	_, err = svc.BeginLogin(ctx, 1, "u", "pw", false)
	assert.ErrorIs(t, err, ErrTooManyAttempts)
}

func TestMFA_FullFlow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginLogin(ctx, 1, "mfa-user", "pw", true)
	require.NoError(t, err)
	assert.Equal(t, StatusMFARequired, begin.Status)
	require.NotEmpty(t, begin.SessionID)

	// nada persistido todavía
	_, err = f.store.Connections().Get(ctx, 1, types.ProviderGarmin)
	require.Error(t, err)

	res, err := f.svc.ResumeLogin(ctx, 1, begin.SessionID, "123456")
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, res.Status)
	assert.Equal(t, []byte("state-for-mfa-user"), f.auth.lastResumed.State)
	assert.True(t, f.auth.lastResumed.RegionVariant)

	conn, err := f.store.Connections().Get(ctx, 1, types.ProviderGarmin)
	require.NoError(t, err)
	assert.True(t, conn.RegionVariant)
	pw, ok := f.vault.Decrypt(conn.CredentialSecret)
	require.True(t, ok)
	assert.Equal(t, "pw", pw)

	// el challenge se consumió
	_, err = f.svc.ResumeLogin(ctx, 1, begin.SessionID, "123456")
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonMFASessionNotFound))
}

func TestMFA_InvalidCodeKeepsChallengeUntilTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginLogin(ctx, 1, "mfa-user", "pw", false)
	require.NoError(t, err)

	*f.now = f.now.Add(4 * time.Minute)
	_, err = f.svc.ResumeLogin(ctx, 1, begin.SessionID, "000000")
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonMFACodeInvalid))

	// sigue disponible: el segundo intento funciona
	res, err := f.svc.ResumeLogin(ctx, 1, begin.SessionID, "123456")
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, res.Status)
}

func TestMFA_InvalidCodeDoesNotExtendTTL(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginLogin(ctx, 1, "mfa-user", "pw", false)
	require.NoError(t, err)

	*f.now = f.now.Add(9 * time.Minute)
	_, err = f.svc.ResumeLogin(ctx, 1, begin.SessionID, "000000")
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonMFACodeInvalid))

	*f.now = f.now.Add(2 * time.Minute) // 11 min desde el challenge
	_, err = f.svc.ResumeLogin(ctx, 1, begin.SessionID, "123456")
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonMFASessionNotFound))
}

func TestMFA_ExpiredChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginLogin(ctx, 1, "mfa-user", "pw", false)
	require.NoError(t, err)

	*f.now = f.now.Add(10*time.Minute + time.Second)
	_, err = f.svc.ResumeLogin(ctx, 1, begin.SessionID, "123456")
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonMFASessionNotFound))
	assert.Zero(t, f.auth.resumes, "no se reintenta contra el proveedor")
}

func TestMFA_OtherUserCannotResume(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginLogin(ctx, 1, "mfa-user", "pw", false)
	require.NoError(t, err)

	_, err = f.svc.ResumeLogin(ctx, 2, begin.SessionID, "123456")
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonMFASessionNotFound))

	_, err = f.svc.ResumeLogin(ctx, 1, begin.SessionID, "123456")
	require.NoError(t, err)
}

// countingChallenges cuenta los TakeOnce sobre el store real.
type countingChallenges struct {
	ChallengeStore
	mu    sync.Mutex
	takes int
}

func (c *countingChallenges) TakeOnce(ctx context.Context, sessionID string) (*Challenge, error) {
	c.mu.Lock()
	c.takes++
	c.mu.Unlock()
	return c.ChallengeStore.TakeOnce(ctx, sessionID)
}

func TestMFA_OtherUserNeverTakesChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	chs := &countingChallenges{ChallengeStore: f.chs}
	svc := NewService(Deps{
		Authenticator: f.auth,
		Connections:   f.store.Connections(),
		Challenges:    chs,
		Vault:         f.vault,
		Now:           func() time.Time { return *f.now },
	})

	begin, err := svc.BeginLogin(ctx, 1, "mfa-user", "pw", false)
	require.NoError(t, err)

	_, err = svc.ResumeLogin(ctx, 2, begin.SessionID, "123456")
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonMFASessionNotFound))
	assert.Zero(t, chs.takes)
	assert.Zero(t, f.auth.resumes, "no se llama al proveedor")

	ch, err := f.chs.Peek(ctx, begin.SessionID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, ch.UserID)
}

// Intentos ajenos en paralelo no pueden hacer que el dueño vea el challenge
// como inexistente.
func TestMFA_OwnerResumesWhileOtherUserRetries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginLogin(ctx, 1, "mfa-user", "pw", false)
	require.NoError(t, err)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					_, _ = f.svc.ResumeLogin(ctx, 2, begin.SessionID, "123456")
				}
			}
		}()
	}

	res, err := f.svc.ResumeLogin(ctx, 1, begin.SessionID, "123456")
	close(stop)
	wg.Wait()
	require.NoError(t, err)
	assert.Equal(t, StatusConnected, res.Status)
}

func TestMFA_OtherFailureConsumesChallenge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginLogin(ctx, 1, "mfa-user", "pw", false)
	require.NoError(t, err)

	_, err = f.svc.ResumeLogin(ctx, 1, begin.SessionID, "boom")
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonNetwork))

	_, err = f.svc.ResumeLogin(ctx, 1, begin.SessionID, "123456")
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonMFASessionNotFound))
}

func TestMFA_ConcurrentResumeSucceedsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	begin, err := f.svc.BeginLogin(ctx, 1, "mfa-user", "pw", false)
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, notFound := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.ResumeLogin(ctx, 1, begin.SessionID, "123456")
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if linkerr.HasReason(err, linkerr.ReasonMFASessionNotFound) {
				notFound++
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, ok)
	assert.Equal(t, 9, notFound)
}

func TestTestCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	r := f.svc.TestCredentials(ctx, "u", "pw", false)
	assert.True(t, r.Valid)
	assert.Equal(t, "Garmin International (garmin.com)", r.Region)

	r = f.svc.TestCredentials(ctx, "mfa-user", "pw", true)
	assert.False(t, r.Valid)
	assert.Equal(t, linkerr.ReasonMFARequired, r.Reason)
	assert.Equal(t, "Garmin China (garmin.cn)", r.Region)

	f.auth.failReason = linkerr.ReasonNetwork
	r = f.svc.TestCredentials(ctx, "u", "pw", false)
	assert.False(t, r.Valid)
	assert.Equal(t, linkerr.ReasonNetwork, r.Reason)

	// nunca persiste
	_, err := f.store.Connections().Get(ctx, 0, types.ProviderGarmin)
	assert.Error(t, err)
}

func TestReauthenticate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.BeginLogin(ctx, 1, "u", "pw", false)
	require.NoError(t, err)
	conn, err := f.store.Connections().Get(ctx, 1, types.ProviderGarmin)
	require.NoError(t, err)
	oldBlob := conn.SessionBlob

	sess, err := f.svc.Reauthenticate(ctx, conn)
	require.NoError(t, err)
	assert.Equal(t, "tok-u", sess.OAuth2Token.AccessToken)

	stored, _ := f.store.Connections().Get(ctx, 1, types.ProviderGarmin)
	assert.NotEqual(t, oldBlob, stored.SessionBlob, "la sesión nueva reemplaza la anterior")
}

func TestReauthenticate_MFAMarksExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.BeginLogin(ctx, 1, "u", "pw", false)
	require.NoError(t, err)
	conn, _ := f.store.Connections().Get(ctx, 1, types.ProviderGarmin)

	f.auth.mfaOnLogin = true
	_, err = f.svc.Reauthenticate(ctx, conn)
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonMFARequired))

	stored, _ := f.store.Connections().Get(ctx, 1, types.ProviderGarmin)
	assert.Equal(t, types.StatusExpired, stored.Status)
}

func TestReauthenticate_Undecryptable(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Reauthenticate(context.Background(), &types.Connection{
		UserID: 1, Provider: types.ProviderGarmin, CredentialUser: "garbage", CredentialSecret: "garbage",
	})
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonCredentialsUndecryptable))
}
