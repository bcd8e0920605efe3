// Package syncsvc es el orquestador de sync: resuelve una credencial válida,
// recorre las unidades del proveedor (días en Garmin, actividades en Strava),
// mapea al esquema canónico y hace upsert aislando los errores por unidad.
package syncsvc

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dropDatabas3/fitlink/internal/domain/repository"
	"github.com/dropDatabas3/fitlink/internal/domain/types"
	"github.com/dropDatabas3/fitlink/internal/email"
	"github.com/dropDatabas3/fitlink/internal/events"
	"github.com/dropDatabas3/fitlink/internal/linkerr"
	"github.com/dropDatabas3/fitlink/internal/metrics"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
	"github.com/dropDatabas3/fitlink/internal/providers"
	"github.com/dropDatabas3/fitlink/internal/security/secretbox"
	"github.com/dropDatabas3/fitlink/internal/services/login"
	"github.com/dropDatabas3/fitlink/internal/services/tokens"
)

const (
	DefaultMaxDays     = 365
	DefaultCallTimeout = 30 * time.Second
	DefaultPageSize    = 100
	MaxPageSize        = 200
	DefaultMaxPages    = 10
)

// Options ajusta límites del sync.
type Options struct {
	MaxDays     int
	CallTimeout time.Duration
	PageSize    int
	MaxPages    int
}

// Deps contiene las dependencias del orquestador.
type Deps struct {
	Connections repository.ConnectionRepository
	Metrics     repository.DailyMetricRepository
	Activities  repository.ActivityRepository
	Vault       *secretbox.Vault

	Login  login.Service
	Garmin providers.DailySource

	Tokens tokens.Manager
	Strava providers.ActivitySource

	Events   events.Publisher // nil = Noop
	Notifier email.Notifier   // nil = Noop

	Options Options
	Now     func() time.Time
}

// Result es el resumen de un sync.
type Result struct {
	Success      bool       `json:"success"`
	UnitsSynced  int        `json:"units_synced"`
	Created      int        `json:"created"`
	Updated      int        `json:"updated"`
	DailyUpdated int        `json:"daily_updated"`
	Errors       []string   `json:"errors"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
}

func (r *Result) addError(key string, err error) {
	r.Errors = append(r.Errors, key+": "+errMessage(err))
}

// Service sincroniza un proveedor para un usuario.
type Service interface {
	SyncGarmin(ctx context.Context, userID int64, days int) (*Result, error)
	SyncStrava(ctx context.Context, userID int64, days int) (*Result, error)
}

type service struct {
	deps Deps
}

func NewService(deps Deps) Service {
	o := &deps.Options
	if o.MaxDays <= 0 {
		o.MaxDays = DefaultMaxDays
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = DefaultCallTimeout
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	if o.PageSize > MaxPageSize {
		o.PageSize = MaxPageSize
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if deps.Events == nil {
		deps.Events = events.Noop{}
	}
	if deps.Notifier == nil {
		deps.Notifier = email.Noop{}
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &service{deps: deps}
}

func (s *service) log(ctx context.Context, op string, provider types.Provider, userID int64) *zap.Logger {
	return logger.From(ctx).With(
		logger.Layer("service"),
		logger.Component("sync"),
		logger.Op(op),
		logger.Provider(string(provider)),
		logger.UserID(userID),
	)
}

// run es el esqueleto común: validar, cargar conexión, tomar el lease,
// ejecutar body y cerrar (MarkSynced + evento + métricas).
func (s *service) run(ctx context.Context, provider types.Provider, userID int64, days int,
	body func(ctx context.Context, conn *types.Connection, res *Result) error) (*Result, error) {

	op := "Sync" + strings.ToUpper(string(provider[:1])) + string(provider[1:])
	log := s.log(ctx, op, provider, userID)
	start := time.Now()

	if days < 1 || days > s.deps.Options.MaxDays {
		metrics.ObserveSync(string(provider), "rejected", 0, 0, 0, time.Since(start))
		return nil, linkerr.Invalid("days", fmt.Sprintf("days must be between 1 and %d", s.deps.Options.MaxDays))
	}

	// rechazo rápido sin esperar el lease
	if _, err := s.connected(ctx, provider, userID); err != nil {
		return nil, err
	}

	lease, err := s.deps.Connections.Acquire(ctx, userID, provider)
	if err != nil {
		metrics.ObserveSync(string(provider), "rejected", 0, 0, 0, time.Since(start))
		return nil, err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			log.Warn("lease release failed", logger.Err(err))
		}
	}()

	// Se relee bajo el lease: quien lo tenía antes pudo rotar tokens, guardar
	// una sesión nueva o dejar la conexión en error.
	conn, err := s.connected(ctx, provider, userID)
	if err != nil {
		return nil, err
	}

	res := &Result{Errors: []string{}}
	if err := body(ctx, conn, res); err != nil {
		s.fail(ctx, conn, err)
		metrics.ObserveSync(string(provider), "failed", res.Created, res.Updated, len(res.Errors), time.Since(start))
		log.Info("sync aborted", logger.Err(err), logger.Count(res.UnitsSynced))
		return nil, err
	}

	now := s.deps.Now().UTC()
	if err := s.deps.Connections.MarkSynced(ctx, userID, provider, now); err != nil {
		return nil, err
	}
	res.Success = true
	res.LastSyncAt = &now

	metrics.ObserveSync(string(provider), "ok", res.Created, res.Updated, len(res.Errors), time.Since(start))
	s.publish(ctx, events.Event{
		Type: events.TypeSyncCompleted, UserID: userID, Provider: string(provider), At: now,
		Data: map[string]any{
			"units_synced":  res.UnitsSynced,
			"created":       res.Created,
			"updated":       res.Updated,
			"daily_updated": res.DailyUpdated,
			"errors":        len(res.Errors),
		},
	})
	log.Info("sync completed",
		logger.Count(res.UnitsSynced),
		logger.Int("created", res.Created),
		logger.Int("updated", res.Updated),
		logger.Int("errors", len(res.Errors)),
		logger.Duration(time.Since(start)),
	)
	return res, nil
}

// connected carga la conexión y la rechaza si no está en un estado
// sincronizable.
func (s *service) connected(ctx context.Context, provider types.Provider, userID int64) (*types.Connection, error) {
	conn, err := s.deps.Connections.Get(ctx, userID, provider)
	if repository.IsNotFound(err) {
		return nil, notConnected(provider)
	}
	if err != nil {
		return nil, err
	}
	switch conn.Status {
	case types.StatusNotConnected, types.StatusConfigSet, types.StatusExpired:
		return nil, notConnected(provider)
	}
	return conn, nil
}

// fail marca la conexión y avisa. Un re-login que pide MFA ya dejó la
// conexión en expired; el resto queda en error.
func (s *service) fail(ctx context.Context, conn *types.Connection, cause error) {
	if ctx.Err() != nil {
		return
	}
	status := types.StatusError
	if linkerr.HasReason(cause, linkerr.ReasonMFARequired) {
		status = types.StatusExpired
	}
	msg := errMessage(cause)
	if conn.Status != status || conn.LastError == nil || *conn.LastError != msg {
		if err := s.deps.Connections.MarkStatus(ctx, conn.UserID, conn.Provider, status, &msg); err != nil {
			s.log(ctx, "fail", conn.Provider, conn.UserID).Warn("could not mark connection", logger.Err(err))
		}
	}

	now := s.deps.Now().UTC()
	s.publish(ctx, events.Event{
		Type: events.TypeConnectionError, UserID: conn.UserID, Provider: string(conn.Provider), At: now,
		Data: map[string]any{"status": string(status), "reason": msg},
	})
	if err := s.deps.Notifier.ConnectionProblem(ctx, email.Notice{
		UserID: conn.UserID, Provider: string(conn.Provider), Status: string(status), Reason: msg, At: now,
	}); err != nil {
		s.log(ctx, "fail", conn.Provider, conn.UserID).Warn("connection notice failed", logger.Err(err))
	}
}

func (s *service) publish(ctx context.Context, e events.Event) {
	if err := s.deps.Events.Publish(ctx, e); err != nil {
		logger.From(ctx).Warn("event publish failed", logger.Component("sync"), logger.String("type", e.Type), logger.Err(err))
	}
}

// call acota una llamada al proveedor con sync.call_timeout.
func call[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	cctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(cctx)
}

func notConnected(p types.Provider) error {
	return linkerr.Auth(linkerr.ReasonNotConnected, providerLabel(p)+" not connected")
}

func providerLabel(p types.Provider) string {
	switch p {
	case types.ProviderGarmin:
		return "Garmin"
	case types.ProviderStrava:
		return "Strava"
	}
	return string(p)
}

// errMessage prefiere el mensaje de dominio sobre la cadena de wrapping.
func errMessage(err error) string {
	if ae, ok := linkerr.AsAuth(err); ok {
		return ae.Message
	}
	if ae, ok := linkerr.AsAPI(err); ok {
		return ae.Message
	}
	return err.Error()
}
