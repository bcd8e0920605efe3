package garmin

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/dropDatabas3/fitlink/internal/linkerr"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
	"github.com/dropDatabas3/fitlink/internal/providers"
)

const (
	statusSuccess     = "SUCCESS"
	statusMFARequired = "MFA_REQUIRED"
)

// ssoResponse es el cuerpo JSON de /sso/signin y /sso/verifyMFA.
type ssoResponse struct {
	Status      string `json:"status"`
	OAuth1Token string `json:"oauth1_token"`
	OAuth2Token struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
		ExpiresAt   int64  `json:"expires_at"`
	} `json:"oauth2_token"`
	MFAState string `json:"mfa_state"`
	Message  string `json:"message"`
}

var mfaStateInputRe = regexp.MustCompile(`(?i)name="mfa_state"\s+value="([^"]*)"`)

// Login intenta el login SSO. Nunca devuelve error: el resultado es tagged.
func (c *Client) Login(ctx context.Context, creds providers.Credentials) providers.LoginResult {
	log := c.log(ctx, "login").With(logger.Username(creds.Username), zap.String("region", regionName(creds.RegionVariant)))
	log.Info("garmin login attempt")

	res, err := c.do(ctx, http.MethodPost, c.ssoURL(creds.RegionVariant)+"/sso/signin", creds.RegionVariant, "",
		map[string]string{"username": creds.Username, "password": creds.Password})
	if err != nil {
		log.Warn("garmin login transport error", logger.Err(err))
		return transportFailure(err, creds.RegionVariant)
	}

	out := c.handleSSO(res, creds.RegionVariant, false)
	log.Info("garmin login finished", zap.String("outcome", out.Outcome.String()))
	return out
}

// ResumeMFA completa un login pendiente con el código MFA.
func (c *Client) ResumeMFA(ctx context.Context, state providers.MFAState, code string) providers.LoginResult {
	log := c.log(ctx, "resume_mfa").With(zap.String("region", regionName(state.RegionVariant)))

	res, err := c.do(ctx, http.MethodPost, c.ssoURL(state.RegionVariant)+"/sso/verifyMFA", state.RegionVariant, "",
		map[string]string{"mfa_state": string(state.State), "code": strings.TrimSpace(code)})
	if err != nil {
		log.Warn("garmin mfa transport error", logger.Err(err))
		return transportFailure(err, state.RegionVariant)
	}

	out := c.handleSSO(res, state.RegionVariant, true)
	log.Info("garmin mfa finished", zap.String("outcome", out.Outcome.String()))
	return out
}

func (c *Client) handleSSO(res *rawResponse, region, resuming bool) providers.LoginResult {
	if res.isHTML() {
		title := htmlTitle(string(res.body))
		if isMFAIndicator(title) && !resuming {
			var state []byte
			if m := mfaStateInputRe.FindSubmatch(res.body); m != nil {
				state = m[1]
			}
			return providers.NeedsMFA(state, region)
		}
		text := res.errorText()
		if title != "" {
			text = title + " (" + text + ")"
		}
		return c.failure(text, region, resuming, res.status)
	}

	var body ssoResponse
	_ = json.Unmarshal(res.body, &body)

	if res.status >= 200 && res.status < 300 {
		switch body.Status {
		case statusSuccess:
			if body.OAuth2Token.AccessToken == "" {
				return providers.Failed(linkerr.ReasonUnknown, "Login failed: empty token in SSO response")
			}
			return providers.Authenticated(c.newSession(body, region))
		case statusMFARequired:
			if resuming {
				return providers.Failed(linkerr.ReasonMFACodeInvalid, "MFA code rejected")
			}
			return providers.NeedsMFA([]byte(body.MFAState), region)
		}
		msg := body.Message
		if msg == "" {
			msg = "unexpected SSO status " + body.Status
		}
		return c.failure(msg, region, resuming, res.status)
	}

	if body.Status == statusMFARequired && body.MFAState != "" && !resuming {
		return providers.NeedsMFA([]byte(body.MFAState), region)
	}
	return c.failure(res.errorText(), region, resuming, res.status)
}

// failure clasifica un fallo. Durante un resume, un rechazo 4xx es código inválido.
func (c *Client) failure(text string, region, resuming bool, status int) providers.LoginResult {
	if resuming && (status == http.StatusBadRequest || status == http.StatusUnauthorized || status == http.StatusForbidden) {
		return providers.Failed(linkerr.ReasonMFACodeInvalid, "Invalid MFA code")
	}
	cl := ClassifyLoginError(text, region)
	return providers.Failed(cl.Reason, cl.Message)
}

// transportFailure: un error antes de tener respuesta HTTP siempre es de red.
// El texto puede traer host:puerto, por eso no se deja caer en la rama 401.
func transportFailure(err error, region bool) providers.LoginResult {
	cl := ClassifyLoginError(err.Error(), region)
	if cl.Reason != linkerr.ReasonNetwork {
		cl = Classification{Reason: linkerr.ReasonNetwork, Message: "Network error. Please check your internet connection."}
	}
	return providers.Failed(cl.Reason, cl.Message)
}

func (c *Client) newSession(body ssoResponse, region bool) *providers.Session {
	exp := body.OAuth2Token.ExpiresAt
	if exp == 0 && body.OAuth2Token.ExpiresIn > 0 {
		exp = c.now().Unix() + body.OAuth2Token.ExpiresIn
	}
	return &providers.Session{
		OAuth1Token:   body.OAuth1Token,
		OAuth2Token:   providers.OAuth2Token{AccessToken: body.OAuth2Token.AccessToken, ExpiresAt: exp},
		RegionVariant: region,
	}
}

// Profile lee el perfil social y completa s.DisplayName si falta.
func (c *Client) Profile(ctx context.Context, s *providers.Session) (providers.Profile, error) {
	p, err := c.getJSON(ctx, s, "/userprofile-service/socialProfile", "profile")
	if err != nil {
		return providers.Profile{}, err
	}
	if p == nil {
		return providers.Profile{}, linkerr.API(http.StatusNoContent, "garmin profile empty")
	}

	urlName := firstString(p, "displayName", "userName")
	if s.DisplayName == "" {
		s.DisplayName = urlName
	}

	prof := providers.Profile{
		ExternalID:  firstString(p, "userProfileId", "profileId", "id"),
		DisplayName: firstString(p, "fullName", "userDisplayName", "displayName"),
	}
	if urlName != "" {
		host := "https://connect.garmin.com"
		if s.RegionVariant {
			host = "https://connect.garmin.cn"
		}
		prof.ProfileURL = host + "/modern/profile/" + urlName
	}
	return prof, nil
}

// firstString devuelve el primer campo presente como string (números incluidos).
func firstString(p providers.Payload, keys ...string) string {
	for _, k := range keys {
		switch v := p[k].(type) {
		case string:
			if v = strings.TrimSpace(v); v != "" {
				return v
			}
		case json.Number:
			return v.String()
		}
	}
	return ""
}
