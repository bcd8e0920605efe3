package syncsvc

import (
	"context"
	"strconv"
	"time"

	"github.com/dropDatabas3/fitlink/internal/domain/types"
	"github.com/dropDatabas3/fitlink/internal/linkerr"
	"github.com/dropDatabas3/fitlink/internal/mapper"
	"github.com/dropDatabas3/fitlink/internal/observability/logger"
	"github.com/dropDatabas3/fitlink/internal/providers"
)

// SyncStrava trae las actividades de la ventana [now-days, now].
func (s *service) SyncStrava(ctx context.Context, userID int64, days int) (*Result, error) {
	return s.run(ctx, types.ProviderStrava, userID, days, func(ctx context.Context, conn *types.Connection, res *Result) error {
		token, err := s.deps.Tokens.EnsureValidToken(ctx, conn)
		if err != nil {
			return err
		}

		now := s.deps.Now().UTC()
		after := now.Add(-time.Duration(days) * 24 * time.Hour)
		perPage := s.deps.Options.PageSize

		for page := 1; page <= s.deps.Options.MaxPages; page++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			list, err := call(ctx, s.deps.Options.CallTimeout, func(c context.Context) ([]providers.Payload, error) {
				return s.deps.Strava.ListActivities(c, token, after, now, page, perPage)
			})
			if err != nil {
				if linkerr.IsFatalForSync(err) {
					return err
				}
				res.addError("page "+strconv.Itoa(page), err)
				return nil
			}
			for _, p := range list {
				s.syncActivity(ctx, userID, p, now, res)
			}
			if len(list) < perPage {
				return nil
			}
		}
		s.log(ctx, "SyncStrava", types.ProviderStrava, userID).Warn("activity listing hit the page cap",
			logger.Int("max_pages", s.deps.Options.MaxPages))
		return nil
	})
}

// syncActivity hace upsert de una actividad y ajusta exercise_minutes del día
// por la diferencia con lo que ya estaba contado.
func (s *service) syncActivity(ctx context.Context, userID int64, p providers.Payload, now time.Time, res *Result) {
	a, ok := mapper.MapStravaActivity(userID, p, now)
	if !ok {
		return
	}
	key := "Activity " + strconv.FormatInt(a.ExternalID, 10)

	prev, err := s.deps.Activities.Upsert(ctx, a)
	if err != nil {
		res.addError(key, err)
		return
	}
	if prev == nil {
		res.Created++
	} else {
		res.Updated++
	}
	res.UnitsSynced++

	merged := a
	if prev != nil {
		merged = *prev
		merged.Merge(a)
	}
	merged.Date = types.Day(merged.Date)

	updated, err := s.applyMinutes(ctx, userID, prev, &merged)
	if err != nil {
		res.addError(key, err)
		return
	}
	if updated {
		res.DailyUpdated++
	}
}

// applyMinutes: delta floor(new/60)-floor(prev/60) sobre el día; si la fecha
// cambió, se descuenta del día anterior y se suma entero al nuevo.
func (s *service) applyMinutes(ctx context.Context, userID int64, prev, cur *types.Activity) (bool, error) {
	newMin := cur.ExerciseMinutes()
	prevMin := prev.ExerciseMinutes()

	if prev != nil && !types.Day(prev.Date).Equal(cur.Date) {
		changed := false
		if prevMin != 0 {
			if err := s.deps.Metrics.AddExerciseMinutes(ctx, userID, types.Day(prev.Date), -prevMin); err != nil {
				return false, err
			}
			changed = true
		}
		if newMin != 0 {
			if err := s.deps.Metrics.AddExerciseMinutes(ctx, userID, cur.Date, newMin); err != nil {
				return changed, err
			}
			changed = true
		}
		return changed, nil
	}

	delta := newMin - prevMin
	if delta == 0 {
		return false, nil
	}
	if err := s.deps.Metrics.AddExerciseMinutes(ctx, userID, cur.Date, delta); err != nil {
		return false, err
	}
	return true, nil
}
