package garmin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"time"

	"github.com/dropDatabas3/fitlink/internal/linkerr"
	"github.com/dropDatabas3/fitlink/internal/providers"
)

const dateLayout = "2006-01-02"

// getJSON hace un GET autenticado. 204 o cuerpo "null" devuelven (nil, nil).
// Si la respuesta es una lista se devuelve el primer elemento.
func (c *Client) getJSON(ctx context.Context, s *providers.Session, path, what string) (providers.Payload, error) {
	if s == nil || s.OAuth2Token.AccessToken == "" {
		return nil, linkerr.Auth(linkerr.ReasonTokenExpired, "garmin session missing")
	}
	res, err := c.do(ctx, http.MethodGet, c.apiURL(s.RegionVariant)+path, s.RegionVariant, s.OAuth2Token.AccessToken, nil)
	if err != nil {
		return nil, linkerr.APIWrap("garmin "+what+" request failed", err)
	}
	if res.status < 200 || res.status >= 300 {
		return nil, apiError(res, what)
	}
	body := bytes.TrimSpace(res.body)
	if res.status == http.StatusNoContent || len(body) == 0 || bytes.Equal(body, []byte("null")) {
		return nil, nil
	}

	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, linkerr.APIWrap("garmin "+what+" returned invalid JSON", err)
	}
	switch t := v.(type) {
	case map[string]any:
		return t, nil
	case []any:
		if len(t) == 0 {
			return nil, nil
		}
		if m, ok := t[0].(map[string]any); ok {
			return m, nil
		}
	}
	return nil, linkerr.API(res.status, "garmin "+what+" returned unexpected shape")
}

// ensureDisplayName resuelve el nombre usado en los paths de wellness.
func (c *Client) ensureDisplayName(ctx context.Context, s *providers.Session) (string, error) {
	if s != nil && s.DisplayName != "" {
		return s.DisplayName, nil
	}
	if _, err := c.Profile(ctx, s); err != nil {
		return "", err
	}
	if s.DisplayName == "" {
		return "", linkerr.API(0, "garmin profile has no display name")
	}
	return s.DisplayName, nil
}

func (c *Client) DailySummary(ctx context.Context, s *providers.Session, day time.Time) (providers.Payload, error) {
	name, err := c.ensureDisplayName(ctx, s)
	if err != nil {
		return nil, err
	}
	q := url.Values{"calendarDate": {day.Format(dateLayout)}}
	return c.getJSON(ctx, s, "/usersummary-service/usersummary/daily/"+url.PathEscape(name)+"?"+q.Encode(), "daily summary")
}

func (c *Client) Sleep(ctx context.Context, s *providers.Session, day time.Time) (providers.Payload, error) {
	name, err := c.ensureDisplayName(ctx, s)
	if err != nil {
		return nil, err
	}
	q := url.Values{"date": {day.Format(dateLayout)}}
	return c.getJSON(ctx, s, "/wellness-service/wellness/dailySleepData/"+url.PathEscape(name)+"?"+q.Encode(), "sleep")
}

func (c *Client) BodyBattery(ctx context.Context, s *providers.Session, day time.Time) (providers.Payload, error) {
	d := day.Format(dateLayout)
	q := url.Values{"startDate": {d}, "endDate": {d}}
	return c.getJSON(ctx, s, "/wellness-service/wellness/bodyBattery/reports/daily?"+q.Encode(), "body battery")
}
