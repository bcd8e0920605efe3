package strava

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fitlink/internal/linkerr"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return New(Config{
		AuthURL:  srv.URL + "/oauth/authorize",
		TokenURL: srv.URL + "/oauth/token",
		APIBase:  srv.URL + "/api/v3",
		Now:      func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestAuthCodeURL(t *testing.T) {
	c := New(Config{})
	raw := c.AuthCodeURL("12345", "http://localhost/cb", "st")
	u, err := url.Parse(raw)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "www.strava.com", u.Host)
	assert.Equal(t, "12345", q.Get("client_id"))
	assert.Equal(t, "http://localhost/cb", q.Get("redirect_uri"))
	assert.Equal(t, "code", q.Get("response_type"))
	assert.Equal(t, Scope, q.Get("scope"))
	assert.Equal(t, "auto", q.Get("approval_prompt"))
	assert.Equal(t, "st", q.Get("state"))

	u, _ = url.Parse(c.AuthCodeURL("12345", "http://localhost/cb", ""))
	assert.False(t, u.Query().Has("state"))
}

func TestExchange(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.Form.Get("grant_type"))
		assert.Equal(t, "cid", r.Form.Get("client_id"))
		assert.Equal(t, "csecret", r.Form.Get("client_secret"))
		if r.Form.Get("code") != "good" {
			writeJSON(w, 400, map[string]any{"message": "Bad Request"})
			return
		}
		writeJSON(w, 200, map[string]any{
			"token_type": "Bearer", "access_token": "acc", "refresh_token": "ref",
			"expires_at": 1_700_021_600, "expires_in": 21600,
			"athlete": map[string]any{"id": 777, "firstname": "Ana", "lastname": " ", "profile": "https://img/x.jpg"},
		})
	}))

	g, err := c.Exchange(context.Background(), "cid", "csecret", "http://cb", "good")
	require.NoError(t, err)
	assert.Equal(t, "acc", g.AccessToken)
	assert.Equal(t, "ref", g.RefreshToken)
	assert.EqualValues(t, 1_700_021_600, g.ExpiresAt)
	require.NotNil(t, g.Athlete)
	assert.Equal(t, "777", g.Athlete.ExternalID)
	assert.Equal(t, "Ana", g.Athlete.DisplayName)
	assert.Equal(t, "https://img/x.jpg", g.Athlete.ProfileURL)

	_, err = c.Exchange(context.Background(), "cid", "csecret", "http://cb", "bad")
	require.Error(t, err)
	assert.True(t, linkerr.IsAuth(err))
}

func TestRefresh(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.Form.Get("grant_type"))
		if r.Form.Get("refresh_token") == "revoked" {
			writeJSON(w, 401, map[string]any{"message": "Authorization Error"})
			return
		}
		writeJSON(w, 200, map[string]any{"access_token": "new-acc", "refresh_token": "new-ref", "expires_at": 1_700_030_000})
	}))

	g, err := c.Refresh(context.Background(), "cid", "cs", "old-ref")
	require.NoError(t, err)
	assert.Equal(t, "new-acc", g.AccessToken)
	assert.Equal(t, "new-ref", g.RefreshToken)
	assert.EqualValues(t, 1_700_030_000, g.ExpiresAt)

	_, err = c.Refresh(context.Background(), "cid", "cs", "revoked")
	assert.True(t, linkerr.HasReason(err, linkerr.ReasonTokenRefreshFailed))
}

func TestListActivities(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/athlete/activities", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		q := r.URL.Query()
		assert.Equal(t, "2", q.Get("page"))
		assert.Equal(t, "200", q.Get("per_page"))
		assert.Equal(t, "1000", q.Get("after"))
		assert.Equal(t, "2000", q.Get("before"))
		writeJSON(w, 200, []any{map[string]any{"id": 1, "moving_time": 1800}})
	}))

	acts, err := c.ListActivities(context.Background(), "tok", time.Unix(1000, 0), time.Unix(2000, 0), 2, 200)
	require.NoError(t, err)
	require.Len(t, acts, 1)
	assert.Equal(t, json.Number("1800"), acts[0]["moving_time"])
}

func TestREST_ErrorMapping(t *testing.T) {
	status := http.StatusUnauthorized
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	ctx := context.Background()

	_, err := c.Athlete(ctx, "tok")
	assert.True(t, linkerr.IsAuth(err))

	status = http.StatusTooManyRequests
	_, err = c.ListActivities(ctx, "tok", time.Unix(0, 0), time.Unix(1, 0), 1, 10)
	require.True(t, linkerr.IsRateLimited(err))
	assert.Contains(t, err.Error(), "rate limit exceeded")

	status = http.StatusInternalServerError
	_, err = c.Athlete(ctx, "tok")
	ae, ok := linkerr.AsAPI(err)
	require.True(t, ok)
	assert.Equal(t, 500, ae.Status)
}

func TestAthleteProfile_EmptyName(t *testing.T) {
	p := athleteProfile(map[string]any{"id": json.Number("5")})
	assert.Equal(t, "", p.DisplayName)
	assert.Equal(t, "5", p.ExternalID)
}
