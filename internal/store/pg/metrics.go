package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/fitlink/internal/domain/repository"
	"github.com/dropDatabas3/fitlink/internal/domain/types"
)

type metricRepo struct{ pool *pgxpool.Pool }

const metricColumns = `user_id, date, sleep_hours, light_sleep_hours, deep_sleep_hours, rem_sleep_hours,
	sleep_score, resting_heart_rate, resting_hr, stress_level, exercise_minutes, steps, calories,
	distance_km, body_battery, spo2, respiration_rate, updated_at`

// Upsert: COALESCE(EXCLUDED.x, actual.x) deja intacto lo que m no trae.
// xmax = 0 solo en filas recién insertadas.
func (r *metricRepo) Upsert(ctx context.Context, m types.DailyMetric) (bool, error) {
	var created bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO daily_metric (
			user_id, date, sleep_hours, light_sleep_hours, deep_sleep_hours, rem_sleep_hours,
			sleep_score, resting_heart_rate, resting_hr, stress_level, exercise_minutes, steps, calories,
			distance_km, body_battery, spo2, respiration_rate
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		ON CONFLICT (user_id, date) DO UPDATE SET
			sleep_hours        = COALESCE(EXCLUDED.sleep_hours, daily_metric.sleep_hours),
			light_sleep_hours  = COALESCE(EXCLUDED.light_sleep_hours, daily_metric.light_sleep_hours),
			deep_sleep_hours   = COALESCE(EXCLUDED.deep_sleep_hours, daily_metric.deep_sleep_hours),
			rem_sleep_hours    = COALESCE(EXCLUDED.rem_sleep_hours, daily_metric.rem_sleep_hours),
			sleep_score        = COALESCE(EXCLUDED.sleep_score, daily_metric.sleep_score),
			resting_heart_rate = COALESCE(EXCLUDED.resting_heart_rate, daily_metric.resting_heart_rate),
			resting_hr         = COALESCE(EXCLUDED.resting_hr, daily_metric.resting_hr),
			stress_level       = COALESCE(EXCLUDED.stress_level, daily_metric.stress_level),
			exercise_minutes   = COALESCE(EXCLUDED.exercise_minutes, daily_metric.exercise_minutes),
			steps              = COALESCE(EXCLUDED.steps, daily_metric.steps),
			calories           = COALESCE(EXCLUDED.calories, daily_metric.calories),
			distance_km        = COALESCE(EXCLUDED.distance_km, daily_metric.distance_km),
			body_battery       = COALESCE(EXCLUDED.body_battery, daily_metric.body_battery),
			spo2               = COALESCE(EXCLUDED.spo2, daily_metric.spo2),
			respiration_rate   = COALESCE(EXCLUDED.respiration_rate, daily_metric.respiration_rate),
			updated_at         = NOW()
		RETURNING (xmax = 0)`,
		m.UserID, types.Day(m.Date), m.SleepHours, m.LightSleepHours, m.DeepSleepHours, m.RemSleepHours,
		m.SleepScore, m.RestingHeartRate, m.RestingHR, m.StressLevel, m.ExerciseMinutes, m.Steps, m.Calories,
		m.DistanceKm, m.BodyBattery, m.SpO2, m.RespirationRate,
	).Scan(&created)
	if err != nil {
		return false, fmt.Errorf("pg: upsert daily metric: %w", err)
	}
	return created, nil
}

func (r *metricRepo) AddExerciseMinutes(ctx context.Context, userID int64, date time.Time, minutes int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO daily_metric (user_id, date, exercise_minutes)
		VALUES ($1, $2, GREATEST($3::int, 0))
		ON CONFLICT (user_id, date) DO UPDATE SET
			exercise_minutes = GREATEST(COALESCE(daily_metric.exercise_minutes, 0) + $3::int, 0),
			updated_at = NOW()`,
		userID, types.Day(date), minutes,
	)
	if err != nil {
		return fmt.Errorf("pg: add exercise minutes: %w", err)
	}
	return nil
}

func (r *metricRepo) Get(ctx context.Context, userID int64, date time.Time) (*types.DailyMetric, error) {
	var m types.DailyMetric
	err := r.pool.QueryRow(ctx,
		`SELECT `+metricColumns+` FROM daily_metric WHERE user_id = $1 AND date = $2`,
		userID, types.Day(date),
	).Scan(
		&m.UserID, &m.Date, &m.SleepHours, &m.LightSleepHours, &m.DeepSleepHours, &m.RemSleepHours,
		&m.SleepScore, &m.RestingHeartRate, &m.RestingHR, &m.StressLevel, &m.ExerciseMinutes, &m.Steps, &m.Calories,
		&m.DistanceKm, &m.BodyBattery, &m.SpO2, &m.RespirationRate, &m.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get daily metric: %w", err)
	}
	m.Date = types.Day(m.Date)
	return &m, nil
}
