package syncsvc

import (
	"context"
	"time"

	"github.com/dropDatabas3/fitlink/internal/domain/types"
	"github.com/dropDatabas3/fitlink/internal/linkerr"
	"github.com/dropDatabas3/fitlink/internal/mapper"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
	"github.com/dropDatabas3/fitlink/internal/providers"
)

const dayLayout = "2006-01-02"

// SyncGarmin trae las métricas diarias de los últimos days días (hoy incluido).
func (s *service) SyncGarmin(ctx context.Context, userID int64, days int) (*Result, error) {
	return s.run(ctx, types.ProviderGarmin, userID, days, func(ctx context.Context, conn *types.Connection, res *Result) error {
		sess, err := s.garminSession(ctx, conn)
		if err != nil {
			return err
		}

		today := types.Day(s.deps.Now().UTC())
		for i := days - 1; i >= 0; i-- {
			if err := ctx.Err(); err != nil {
				return err
			}
			day := today.AddDate(0, 0, -i)
			if err := s.syncGarminDay(ctx, userID, sess, day, res); err != nil {
				return err
			}
		}
		return nil
	})
}

// garminSession restaura la sesión guardada; si falta, no se descifra o venció,
// hace re-login con las credenciales guardadas.
func (s *service) garminSession(ctx context.Context, conn *types.Connection) (*providers.Session, error) {
	log := s.log(ctx, "garminSession", conn.Provider, conn.UserID)
	if blob, ok := s.deps.Vault.Decrypt(conn.SessionBlob); ok {
		sess, err := providers.ParseSession(blob)
		if err == nil && !sess.Expired(s.deps.Now()) {
			return sess, nil
		}
		log.Info("stored garmin session unusable, re-authenticating", logger.Err(err))
	}
	return s.deps.Login.Reauthenticate(ctx, conn)
}

// syncGarminDay procesa un día. Solo devuelve error cuando el sync debe abortar.
func (s *service) syncGarminDay(ctx context.Context, userID int64, sess *providers.Session, day time.Time, res *Result) error {
	key := day.Format(dayLayout)
	log := s.log(ctx, "syncGarminDay", types.ProviderGarmin, userID).With(logger.Date(day))
	timeout := s.deps.Options.CallTimeout

	summary, err := call(ctx, timeout, func(c context.Context) (providers.Payload, error) {
		return s.deps.Garmin.DailySummary(c, sess, day)
	})
	if err != nil {
		if linkerr.IsFatalForSync(err) {
			return err
		}
		res.addError(key, err)
		return nil
	}
	if len(summary) == 0 {
		res.Errors = append(res.Errors, key+": no daily summary returned")
		return nil
	}

	sleep, err := s.optional(ctx, "sleep", func(c context.Context) (providers.Payload, error) {
		return s.deps.Garmin.Sleep(c, sess, day)
	})
	if err != nil {
		return err
	}
	battery, err := s.optional(ctx, "body_battery", func(c context.Context) (providers.Payload, error) {
		return s.deps.Garmin.BodyBattery(c, sess, day)
	})
	if err != nil {
		return err
	}

	m, ok := mapper.MapGarminDaily(userID, day, summary, sleep, battery)
	if !ok {
		log.Debug("no data for day")
		return nil
	}
	created, err := s.deps.Metrics.Upsert(ctx, m)
	if err != nil {
		res.addError(key, err)
		return nil
	}
	if created {
		res.Created++
	} else {
		res.Updated++
	}
	res.UnitsSynced++
	return nil
}

// optional: un fallo no fatal se loguea y el payload queda ausente.
func (s *service) optional(ctx context.Context, what string, fn func(context.Context) (providers.Payload, error)) (providers.Payload, error) {
	p, err := call(ctx, s.deps.Options.CallTimeout, fn)
	if err == nil {
		return p, nil
	}
	if linkerr.IsFatalForSync(err) {
		return nil, err
	}
	logger.From(ctx).Debug("optional garmin fetch failed",
		logger.Component("sync"), logger.String("payload", what), logger.Err(err))
	return nil, nil
}
