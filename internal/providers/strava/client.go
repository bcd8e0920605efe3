// Package strava es el adapter de Strava: OAuth2 (golang.org/x/oauth2) para
// autorización y refresh, y REST para atleta y actividades.
package strava

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/dropDatabas3/fitlink/internal/linkerr"
	"github.com/dropDatabas3/fitlink/internal/providers"
)

// Scope pedido en la autorización.
const Scope = "activity:read_all,activity:write,read_all"

const maxBody = 8 << 20

// Config de endpoints (sobreescribibles en tests).
type Config struct {
	AuthURL    string
	TokenURL   string
	APIBase    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client implementa providers.OAuthClient y providers.ActivitySource.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

var (
	_ providers.OAuthClient    = (*Client)(nil)
	_ providers.ActivitySource = (*Client)(nil)
)

func New(cfg Config) *Client {
	if cfg.AuthURL == "" {
		cfg.AuthURL = "https://www.strava.com/oauth/authorize"
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = "https://www.strava.com/oauth/token"
	}
	if cfg.APIBase == "" {
		cfg.APIBase = "https://www.strava.com/api/v3"
	}
	cfg.APIBase = strings.TrimRight(cfg.APIBase, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Client{cfg: cfg, http: hc, now: now}
}

func (c *Client) oauthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Scopes:       []string{Scope},
		Endpoint: oauth2.Endpoint{
			AuthURL:   c.cfg.AuthURL,
			TokenURL:  c.cfg.TokenURL,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (c *Client) oauthCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.http)
}

// AuthCodeURL arma la URL de autorización. state vacío no se envía.
func (c *Client) AuthCodeURL(clientID, redirectURI, state string) string {
	return c.oauthConfig(clientID, "", redirectURI).AuthCodeURL(state,
		oauth2.SetAuthURLParam("approval_prompt", "auto"))
}

// Exchange canjea el authorization code.
func (c *Client) Exchange(ctx context.Context, clientID, clientSecret, redirectURI, code string) (*providers.TokenGrant, error) {
	tok, err := c.oauthConfig(clientID, clientSecret, redirectURI).Exchange(c.oauthCtx(ctx), code)
	if err != nil {
		return nil, tokenError(err, linkerr.ReasonInvalidCredentials, "strava code exchange failed")
	}
	return c.grant(tok), nil
}

// Refresh pide un access token nuevo con el refresh token.
func (c *Client) Refresh(ctx context.Context, clientID, clientSecret, refreshToken string) (*providers.TokenGrant, error) {
	// Expiry en el pasado fuerza el refresh en el TokenSource.
	src := c.oauthConfig(clientID, clientSecret, "").TokenSource(c.oauthCtx(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return nil, tokenError(err, linkerr.ReasonTokenRefreshFailed, "strava token refresh failed")
	}
	g := c.grant(tok)
	if g.RefreshToken == "" {
		g.RefreshToken = refreshToken
	}
	return g, nil
}

func tokenError(err error, reason linkerr.AuthReason, msg string) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		if re.Response.StatusCode == http.StatusTooManyRequests {
			return linkerr.RateLimited("rate limit exceeded")
		}
		return linkerr.AuthWrap(reason, fmt.Sprintf("%s (status %d)", msg, re.Response.StatusCode), err)
	}
	return linkerr.AuthWrap(linkerr.ReasonNetwork, msg, err)
}

// grant toma expires_at de la respuesta y cae al expiry calculado.
func (c *Client) grant(tok *oauth2.Token) *providers.TokenGrant {
	g := &providers.TokenGrant{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if v, ok := toInt64(tok.Extra("expires_at")); ok && v > 0 {
		g.ExpiresAt = v
	} else if !tok.Expiry.IsZero() {
		g.ExpiresAt = tok.Expiry.Unix()
	} else if v, ok := toInt64(tok.Extra("expires_in")); ok {
		g.ExpiresAt = c.now().Unix() + v
	}
	if a, ok := tok.Extra("athlete").(map[string]any); ok {
		g.Athlete = athleteProfile(a)
	}
	return g
}

// ─── REST ───

func (c *Client) get(ctx context.Context, accessToken, path string, q url.Values, out any) error {
	u := c.cfg.APIBase + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return linkerr.APIWrap("strava request failed", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return linkerr.APIWrap("strava read body", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return linkerr.Auth(linkerr.ReasonTokenExpired, "strava rejected the access token")
	case resp.StatusCode == http.StatusTooManyRequests:
		return linkerr.RateLimited("rate limit exceeded")
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return linkerr.API(resp.StatusCode, "strava "+path+" request failed")
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return linkerr.APIWrap("strava returned invalid JSON", err)
	}
	return nil
}

// Athlete devuelve la identidad del atleta autenticado.
func (c *Client) Athlete(ctx context.Context, accessToken string) (*providers.Profile, error) {
	var p providers.Payload
	if err := c.get(ctx, accessToken, "/athlete", nil, &p); err != nil {
		return nil, err
	}
	return athleteProfile(p), nil
}

// ListActivities trae una página de actividades en [after, before].
func (c *Client) ListActivities(ctx context.Context, accessToken string, after, before time.Time, page, perPage int) ([]providers.Payload, error) {
	q := url.Values{
		"after":    {strconv.FormatInt(after.Unix(), 10)},
		"before":   {strconv.FormatInt(before.Unix(), 10)},
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
	}
	var out []providers.Payload
	if err := c.get(ctx, accessToken, "/athlete/activities", q, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// athleteProfile: nombre = firstname + " " + lastname recortado.
func athleteProfile(a map[string]any) *providers.Profile {
	if a == nil {
		return nil
	}
	first, _ := a["firstname"].(string)
	last, _ := a["lastname"].(string)
	p := &providers.Profile{DisplayName: strings.TrimSpace(first + " " + last)}
	if v, ok := toInt64(a["id"]); ok {
		p.ExternalID = strconv.FormatInt(v, 10)
	}
	if u, ok := a["profile"].(string); ok {
		p.ProfileURL = u
	}
	return p
}

func toInt64(v any) (int64, bool) {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, true
		}
		if f, err := t.Float64(); err == nil {
			return int64(f), true
		}
	case float64:
		return int64(t), true
	case int64:
		return t, true
	case int:
		return int64(t), true
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(t), 10, 64); err == nil {
			return i, true
		}
	}
	return 0, false
}
