// Package login implementa el login usuario/contraseña de Garmin con MFA:
// intento inicial, challenge pendiente, resume con código y re-login
// desatendido para los syncs.
package login

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/fitlink/internal/domain/repository"
	"github.com/dropDatabas3/fitlink/internal/domain/types"
	"github.com/dropDatabas3/fitlink/internal/linkerr"
	"github.com/dropDatabas3/fitlink/internal/metrics"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
	"github.com/dropDatabas3/fitlink/internal/providers"
	"github.com/dropDatabas3/fitlink/internal/providers/garmin"
	"github.com/dropDatabas3/fitlink/internal/rate"
	"github.com/dropDatabas3/fitlink/internal/security/secretbox"
)

// Estados devueltos por BeginLogin / ResumeLogin.
const (
	StatusConnected   = "connected"
	StatusMFARequired = "mfa_required"
)

// ErrTooManyAttempts: el rate limit local de logins rechazó el intento.
var ErrTooManyAttempts = errors.New("too many login attempts")

// Deps contiene las dependencias del servicio de login.
type Deps struct {
	Authenticator providers.PasswordAuthenticator
	Connections   repository.ConnectionRepository
	Challenges    ChallengeStore
	Vault         *secretbox.Vault
	Limiter       rate.Limiter // nil = sin límite
	Now           func() time.Time
}

// BeginResult es la respuesta de BeginLogin y ResumeLogin.
type BeginResult struct {
	Status     string
	SessionID  string
	Profile    *providers.Profile
	Connection *types.Connection
}

// TestResult de TestCredentials.
type TestResult struct {
	Valid   bool
	Reason  linkerr.AuthReason
	Message string
	Region  string
}

// Service es el contrato que usan controllers, CLI y el orquestador de sync.
type Service interface {
	BeginLogin(ctx context.Context, userID int64, username, password string, regionVariant bool) (*BeginResult, error)
	ResumeLogin(ctx context.Context, userID int64, sessionID, code string) (*BeginResult, error)
	TestCredentials(ctx context.Context, username, password string, regionVariant bool) TestResult
	Reauthenticate(ctx context.Context, conn *types.Connection) (*providers.Session, error)
}

type service struct {
	deps Deps
}

func NewService(deps Deps) Service {
	if deps.Limiter == nil {
		deps.Limiter = rate.Noop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{deps: deps}
}

func (s *service) log(ctx context.Context, op string) *zap.Logger {
	return logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("login"),
		logger.Op(op),
		logger.Provider(string(types.ProviderGarmin)),
	)
}

func (s *service) BeginLogin(ctx context.Context, userID int64, username, password string, regionVariant bool) (*BeginResult, error) {
	username = strings.TrimSpace(username)
	log := s.log(ctx, "BeginLogin").With(logger.UserID(userID), logger.Username(username))

	if username == "" {
		return nil, linkerr.Invalid("username", "username is required")
	}
	if password == "" {
		return nil, linkerr.Invalid("password", "password is required")
	}

	rl, err := s.deps.Limiter.Allow(ctx, "garmin-login:"+strconv.FormatInt(userID, 10))
	if err != nil {
		log.Warn("login rate limiter unavailable", logger.Err(err))
	} else if !rl.Allowed {
		log.Info("login rate limited", zap.Duration("retry_after", rl.RetryAfter))
		return nil, ErrTooManyAttempts
	}

	res := s.deps.Authenticator.Login(ctx, providers.Credentials{
		Username: username, Password: password, RegionVariant: regionVariant,
	})

	metrics.ObserveLogin(string(types.ProviderGarmin), res.Outcome.String())

	switch res.Outcome {
	case providers.OutcomeAuthenticated:
		return s.complete(ctx, userID, username, password, regionVariant, res.Session)

	case providers.OutcomeMFARequired:
		encPw, err := s.deps.Vault.Encrypt(password)
		if err != nil {
			return nil, err
		}
		ch := Challenge{
			SessionID:     uuid.NewString(),
			UserID:        userID,
			Username:      username,
			Password:      encPw,
			RegionVariant: regionVariant,
			State:         res.MFA.State,
			CreatedAt:     s.deps.Now(),
		}
		if err := s.deps.Challenges.Put(ctx, ch); err != nil {
			return nil, err
		}
		log.Info("mfa challenge created", logger.SessionID(ch.SessionID))
		return &BeginResult{Status: StatusMFARequired, SessionID: ch.SessionID}, nil

	default:
		err := res.Err()
		log.Info("garmin login failed", logger.Err(err))
		s.markFailure(ctx, userID, err)
		return nil, err
	}
}

func (s *service) ResumeLogin(ctx context.Context, userID int64, sessionID, code string) (*BeginResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	code = strings.TrimSpace(code)
	log := s.log(ctx, "ResumeLogin").With(logger.UserID(userID), logger.SessionID(sessionID))

	if sessionID == "" {
		return nil, linkerr.Invalid("session_id", "session_id is required")
	}
	if code == "" {
		return nil, linkerr.Invalid("mfa_code", "mfa_code is required")
	}

	// La pertenencia se verifica sin consumir: un session_id ajeno no debe
	// sacar el challenge del store ni por un instante.
	peeked, err := s.deps.Challenges.Peek(ctx, sessionID)
	if err != nil && !errors.Is(err, ErrChallengeNotFound) {
		return nil, err
	}
	if err != nil || peeked.UserID != userID {
		return nil, errMFASessionNotFound()
	}

	ch, err := s.deps.Challenges.TakeOnce(ctx, sessionID)
	if errors.Is(err, ErrChallengeNotFound) {
		return nil, errMFASessionNotFound()
	}
	if err != nil {
		return nil, err
	}

	res := s.deps.Authenticator.ResumeMFA(ctx, providers.MFAState{State: ch.State, RegionVariant: ch.RegionVariant}, code)

	switch {
	case res.Outcome == providers.OutcomeAuthenticated:
		password, ok := s.deps.Vault.Decrypt(ch.Password)
		if !ok {
			return nil, linkerr.Auth(linkerr.ReasonCredentialsUndecryptable, "stored MFA challenge could not be decrypted")
		}
		return s.complete(ctx, userID, ch.Username, password, ch.RegionVariant, res.Session)

	case res.Outcome == providers.OutcomeMFARequired,
		res.Failure != nil && res.Failure.Reason == linkerr.ReasonMFACodeInvalid:
		s.putBack(ctx, *ch, log)
		log.Info("invalid mfa code")
		return nil, linkerr.Auth(linkerr.ReasonMFACodeInvalid, "Invalid MFA code")

	default:
		err := res.Err()
		log.Info("mfa resume failed", logger.Err(err))
		s.markFailure(ctx, userID, err)
		return nil, err
	}
}

func errMFASessionNotFound() error {
	return linkerr.Auth(linkerr.ReasonMFASessionNotFound, "MFA session expired or not found, please log in again")
}

// putBack re-guarda el challenge con su CreatedAt original: el TTL no se extiende.
func (s *service) putBack(ctx context.Context, ch Challenge, log *zap.Logger) {
	if err := s.deps.Challenges.Put(ctx, ch); err != nil && !errors.Is(err, ErrChallengeExpired) {
		log.Warn("could not restore mfa challenge", logger.Err(err))
	}
}

func (s *service) TestCredentials(ctx context.Context, username, password string, regionVariant bool) TestResult {
	out := TestResult{Region: garmin.RegionLabel(regionVariant)}
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		out.Reason = linkerr.ReasonInvalidCredentials
		out.Message = "username and password are required"
		return out
	}

	res := s.deps.Authenticator.Login(ctx, providers.Credentials{Username: username, Password: password, RegionVariant: regionVariant})
	switch res.Outcome {
	case providers.OutcomeAuthenticated:
		if _, err := s.deps.Authenticator.Profile(ctx, res.Session); err != nil {
			out.Reason = linkerr.ReasonUnknown
			out.Message = "Login succeeded but profile could not be read: " + err.Error()
			return out
		}
		out.Valid = true
	case providers.OutcomeMFARequired:
		out.Reason = linkerr.ReasonMFARequired
		out.Message = "Your account requires 2FA. Connect with an MFA code."
	default:
		out.Reason, out.Message = linkerr.ReasonUnknown, "login failed"
		if res.Failure != nil {
			out.Reason, out.Message = res.Failure.Reason, res.Failure.Detail
		}
	}
	return out
}

func (s *service) Reauthenticate(ctx context.Context, conn *types.Connection) (*providers.Session, error) {
	log := s.log(ctx, "Reauthenticate").With(logger.UserID(conn.UserID))

	username, okU := s.deps.Vault.Decrypt(conn.CredentialUser)
	password, okP := s.deps.Vault.Decrypt(conn.CredentialSecret)
	if !okU || !okP || username == "" || password == "" {
		return nil, linkerr.Auth(linkerr.ReasonCredentialsUndecryptable, "stored Garmin credentials could not be decrypted, please reconnect")
	}

	res := s.deps.Authenticator.Login(ctx, providers.Credentials{
		Username: username, Password: password, RegionVariant: conn.RegionVariant,
	})
	switch res.Outcome {
	case providers.OutcomeAuthenticated:
		blob, err := s.sealSession(res.Session)
		if err != nil {
			return nil, err
		}
		if err := s.deps.Connections.UpdateSession(ctx, conn.UserID, types.ProviderGarmin, blob); err != nil {
			return nil, err
		}
		conn.SessionBlob = blob
		log.Info("garmin session renewed")
		return res.Session, nil

	case providers.OutcomeMFARequired:
		msg := "Garmin requires MFA, please reconnect your account"
		if err := s.deps.Connections.MarkStatus(ctx, conn.UserID, types.ProviderGarmin, types.StatusExpired, &msg); err != nil {
			log.Warn("could not mark connection expired", logger.Err(err))
		}
		conn.Status = types.StatusExpired
		return nil, linkerr.Auth(linkerr.ReasonMFARequired, msg)

	default:
		return nil, res.Err()
	}
}

// complete persiste una autenticación exitosa y reemplaza la sesión guardada.
func (s *service) complete(ctx context.Context, userID int64, username, password string, region bool, sess *providers.Session) (*BeginResult, error) {
	log := s.log(ctx, "complete").With(logger.UserID(userID))

	var profile *providers.Profile
	if p, err := s.deps.Authenticator.Profile(ctx, sess); err != nil {
		log.Warn("garmin profile fetch failed, continuing", logger.Err(err))
	} else {
		profile = &p
	}

	blob, err := s.sealSession(sess)
	if err != nil {
		return nil, err
	}
	encUser, err := s.deps.Vault.Encrypt(username)
	if err != nil {
		return nil, err
	}
	encPw, err := s.deps.Vault.Encrypt(password)
	if err != nil {
		return nil, err
	}

	conn := &types.Connection{
		UserID:           userID,
		Provider:         types.ProviderGarmin,
		CredentialUser:   encUser,
		CredentialSecret: encPw,
		SessionBlob:      blob,
		Status:           types.StatusConnected,
		RegionVariant:    region,
	}
	if prev, err := s.deps.Connections.Get(ctx, userID, types.ProviderGarmin); err == nil {
		conn.ExternalID, conn.DisplayName, conn.ProfileURL = prev.ExternalID, prev.DisplayName, prev.ProfileURL
		conn.LastSyncAt = prev.LastSyncAt
	} else if !repository.IsNotFound(err) {
		return nil, err
	}
	if profile != nil {
		if profile.ExternalID != "" {
			conn.ExternalID = profile.ExternalID
		}
		if profile.DisplayName != "" {
			conn.DisplayName = profile.DisplayName
		}
		if profile.ProfileURL != "" {
			conn.ProfileURL = profile.ProfileURL
		}
	}

	if err := s.deps.Connections.Upsert(ctx, conn); err != nil {
		return nil, err
	}
	log.Info("garmin connection saved")
	return &BeginResult{Status: StatusConnected, Profile: profile, Connection: conn}, nil
}

func (s *service) sealSession(sess *providers.Session) (string, error) {
	raw, err := sess.Serialize()
	if err != nil {
		return "", err
	}
	return s.deps.Vault.Encrypt(raw)
}

// markFailure deja la conexión existente en error; sin conexión no hace nada.
func (s *service) markFailure(ctx context.Context, userID int64, cause error) {
	msg := cause.Error()
	err := s.deps.Connections.MarkStatus(ctx, userID, types.ProviderGarmin, types.StatusError, &msg)
	if err != nil && !repository.IsNotFound(err) {
		s.log(ctx, "markFailure").Warn("could not mark connection error", logger.Err(err))
	}
}
