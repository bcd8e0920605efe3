package repository

import (
	"context"
	"time"

	"github.com/dropDatabas3/fitlink/internal/domain/types"
)

// DailyMetricRepository persiste métricas canónicas por (user, día).
type DailyMetricRepository interface {
	// Upsert hace merge no destructivo: solo pisa los campos no-nil de m.
	// created es true si la fila no existía.
	Upsert(ctx context.Context, m types.DailyMetric) (created bool, err error)

	// AddExerciseMinutes suma minutes (puede ser negativo) a exercise_minutes,
	// tratando NULL como 0 y creando la fila si no existe.
	AddExerciseMinutes(ctx context.Context, userID int64, date time.Time, minutes int) error

	// Get retorna ErrNotFound si no hay fila para el día.
	Get(ctx context.Context, userID int64, date time.Time) (*types.DailyMetric, error)
}

// ActivityRepository persiste actividades únicas por ExternalID.
type ActivityRepository interface {
	// Upsert hace merge no destructivo por ExternalID. prev es la fila anterior
	// (nil si se insertó).
	Upsert(ctx context.Context, a types.Activity) (prev *types.Activity, err error)

	// Get retorna ErrNotFound si no existe.
	Get(ctx context.Context, externalID int64) (*types.Activity, error)
}
