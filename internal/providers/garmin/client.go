// Package garmin es el adapter HTTP de Garmin Connect: login SSO con MFA,
// sesión serializable y lectura de datos diarios.
package garmin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/fitlink/internal/linkerr"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
	"github.com/dropDatabas3/fitlink/internal/providers"
)

// BrowserUserAgent se usa contra Garmin China, que rechaza clientes no-browser.
const BrowserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"

const defaultUserAgent = "fitlink/1.0"

// maxBody limita lo que se lee de cada respuesta.
const maxBody = 4 << 20

// Config de URLs por región (sobreescribibles en tests).
type Config struct {
	SSOURL     string
	APIURL     string
	CNSSOURL   string
	CNAPIURL   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Now        func() time.Time
}

// Client implementa providers.PasswordAuthenticator y providers.DailySource.
type Client struct {
	cfg  Config
	http *http.Client
	now  func() time.Time
}

var (
	_ providers.PasswordAuthenticator = (*Client)(nil)
	_ providers.DailySource           = (*Client)(nil)
)

// New crea el cliente. Las URLs vacías toman los hosts públicos.
func New(cfg Config) *Client {
	if cfg.SSOURL == "" {
		cfg.SSOURL = "https://sso.garmin.com"
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://connectapi.garmin.com"
	}
	if cfg.CNSSOURL == "" {
		cfg.CNSSOURL = "https://sso.garmin.cn"
	}
	if cfg.CNAPIURL == "" {
		cfg.CNAPIURL = "https://connectapi.garmin.cn"
	}
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

func (c *Client) ssoURL(region bool) string {
	if region {
		return strings.TrimRight(c.cfg.CNSSOURL, "/")
	}
	return strings.TrimRight(c.cfg.SSOURL, "/")
}

func (c *Client) apiURL(region bool) string {
	if region {
		return strings.TrimRight(c.cfg.CNAPIURL, "/")
	}
	return strings.TrimRight(c.cfg.APIURL, "/")
}

func userAgent(region bool) string {
	if region {
		return BrowserUserAgent
	}
	return defaultUserAgent
}

func (c *Client) log(ctx context.Context, op string) *zap.Logger {
	return logger.From(ctx).With(logger.Layer("provider"), logger.Component("garmin"), logger.Op(op))
}

// rawResponse es una respuesta leída completa.
type rawResponse struct {
	status      int
	contentType string
	body        []byte
}

func (c *Client) do(ctx context.Context, method, url string, region bool, bearer string, body any) (*rawResponse, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent(region))
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, err
	}
	return &rawResponse{status: resp.StatusCode, contentType: resp.Header.Get("Content-Type"), body: b}, nil
}

// errorText arma "401 Unauthorized: <mensaje>" a partir de la respuesta,
// que es lo que después lee ClassifyLoginError.
func (r *rawResponse) errorText() string {
	msg := strings.TrimSpace(string(r.body))
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(r.body, &e) == nil {
		if e.Message != "" {
			msg = e.Message
		} else if e.Error != "" {
			msg = e.Error
		}
	}
	if len(msg) > 300 {
		msg = msg[:300]
	}
	return fmt.Sprintf("%d %s: %s", r.status, http.StatusText(r.status), msg)
}

func (r *rawResponse) isHTML() bool {
	return strings.Contains(strings.ToLower(r.contentType), "text/html")
}

// apiError mapea una respuesta no-2xx de la API de datos.
func apiError(r *rawResponse, what string) error {
	switch {
	case r.status == http.StatusUnauthorized:
		return linkerr.Auth(linkerr.ReasonTokenExpired, "garmin session rejected while fetching "+what)
	case r.status == http.StatusTooManyRequests:
		return linkerr.RateLimited("garmin rate limit exceeded")
	default:
		return linkerr.API(r.status, "garmin "+what+" request failed")
	}
}
