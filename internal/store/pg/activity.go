package pg

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/fitlink/internal/domain/repository"
	"github.com/dropDatabas3/fitlink/internal/domain/types"
)

type activityRepo struct{ pool *pgxpool.Pool }

const activityColumns = `external_id, user_id, date, activity_type, name, distance_meters,
	moving_time_seconds, elapsed_time_seconds, average_speed_mps, max_speed_mps,
	average_heartrate, max_heartrate, elevation_gain_meters, calories,
	start_date, start_date_local, updated_at`

func scanActivity(row pgx.Row) (*types.Activity, error) {
	var a types.Activity
	err := row.Scan(
		&a.ExternalID, &a.UserID, &a.Date, &a.ActivityType, &a.Name, &a.DistanceMeters,
		&a.MovingTimeSeconds, &a.ElapsedTimeSeconds, &a.AverageSpeedMps, &a.MaxSpeedMps,
		&a.AverageHeartrate, &a.MaxHeartrate, &a.ElevationGainMeters, &a.Calories,
		&a.StartDate, &a.StartDateLocal, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	a.Date = types.Day(a.Date)
	return &a, nil
}

// Upsert lee la fila previa con FOR UPDATE dentro de la misma tx, así el
// llamador puede calcular el delta de minutos sobre un valor consistente.
func (r *activityRepo) Upsert(ctx context.Context, a types.Activity) (*types.Activity, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("pg: begin activity upsert: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	prev, err := scanActivity(tx.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM activity WHERE external_id = $1 FOR UPDATE`, a.ExternalID))
	if errors.Is(err, pgx.ErrNoRows) {
		prev = nil
	} else if err != nil {
		return nil, fmt.Errorf("pg: read previous activity: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO activity (
			external_id, user_id, date, activity_type, name, distance_meters,
			moving_time_seconds, elapsed_time_seconds, average_speed_mps, max_speed_mps,
			average_heartrate, max_heartrate, elevation_gain_meters, calories,
			start_date, start_date_local
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (external_id) DO UPDATE SET
			user_id               = EXCLUDED.user_id,
			date                  = EXCLUDED.date,
			activity_type         = COALESCE(EXCLUDED.activity_type, activity.activity_type),
			name                  = COALESCE(EXCLUDED.name, activity.name),
			distance_meters       = COALESCE(EXCLUDED.distance_meters, activity.distance_meters),
			moving_time_seconds   = COALESCE(EXCLUDED.moving_time_seconds, activity.moving_time_seconds),
			elapsed_time_seconds  = COALESCE(EXCLUDED.elapsed_time_seconds, activity.elapsed_time_seconds),
			average_speed_mps     = COALESCE(EXCLUDED.average_speed_mps, activity.average_speed_mps),
			max_speed_mps         = COALESCE(EXCLUDED.max_speed_mps, activity.max_speed_mps),
			average_heartrate     = COALESCE(EXCLUDED.average_heartrate, activity.average_heartrate),
			max_heartrate         = COALESCE(EXCLUDED.max_heartrate, activity.max_heartrate),
			elevation_gain_meters = COALESCE(EXCLUDED.elevation_gain_meters, activity.elevation_gain_meters),
			calories              = COALESCE(EXCLUDED.calories, activity.calories),
			start_date            = COALESCE(EXCLUDED.start_date, activity.start_date),
			start_date_local      = COALESCE(EXCLUDED.start_date_local, activity.start_date_local),
			updated_at            = NOW()`,
		a.ExternalID, a.UserID, types.Day(a.Date), a.ActivityType, a.Name, a.DistanceMeters,
		a.MovingTimeSeconds, a.ElapsedTimeSeconds, a.AverageSpeedMps, a.MaxSpeedMps,
		a.AverageHeartrate, a.MaxHeartrate, a.ElevationGainMeters, a.Calories,
		a.StartDate, a.StartDateLocal,
	)
	if err != nil {
		return nil, fmt.Errorf("pg: upsert activity: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("pg: commit activity upsert: %w", err)
	}
	return prev, nil
}

func (r *activityRepo) Get(ctx context.Context, externalID int64) (*types.Activity, error) {
	a, err := scanActivity(r.pool.QueryRow(ctx,
		`SELECT `+activityColumns+` FROM activity WHERE external_id = $1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get activity: %w", err)
	}
	return a, nil
}
