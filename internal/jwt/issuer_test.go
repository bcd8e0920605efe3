package jwt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newIssuer(t *testing.T, now *time.Time) *Issuer {
	t.Helper()
	iss, err := NewIssuer("fitlink", "test-secret")
	require.NoError(t, err)
	return iss.WithClock(func() time.Time { return *now })
}

func TestAccessToken_RoundTrip(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	iss := newIssuer(t, &now)

	tok, exp, err := iss.IssueAccess(42, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour).UTC(), exp)

	uid, err := iss.ParseAccess(tok)
	require.NoError(t, err)
	assert.EqualValues(t, 42, uid)

	now = now.Add(2 * time.Hour)
	_, err = iss.ParseAccess(tok)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestAccessToken_WrongSecret(t *testing.T) {
	now := time.Now()
	a := newIssuer(t, &now)
	b, err := NewIssuer("fitlink", "other-secret")
	require.NoError(t, err)

	tok, _, err := a.IssueAccess(1, 0)
	require.NoError(t, err)
	_, err = b.ParseAccess(tok)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	_, err = a.ParseAccess("not.a.jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestNewIssuer_RequiresSecret(t *testing.T) {
	_, err := NewIssuer("fitlink", "")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestState(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	iss := newIssuer(t, &now)

	st, err := iss.SignState(7, "strava")
	require.NoError(t, err)

	c, err := iss.VerifyState(st, 7, "strava")
	require.NoError(t, err)
	assert.NotEmpty(t, c.Nonce)

	_, err = iss.VerifyState(st, 8, "strava")
	assert.ErrorIs(t, err, ErrStateUser)

	_, err = iss.VerifyState(st, 7, "garmin")
	assert.ErrorIs(t, err, ErrStateProvider)

	// un access token no sirve como state
	access, _, err := iss.IssueAccess(7, 0)
	require.NoError(t, err)
	_, err = iss.VerifyState(access, 7, "strava")
	assert.ErrorIs(t, err, ErrStateInvalid)

	now = now.Add(11 * time.Minute)
	_, err = iss.VerifyState(st, 7, "strava")
	assert.ErrorIs(t, err, ErrTokenExpired)
}
