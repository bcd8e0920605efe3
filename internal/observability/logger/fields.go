package logger

import (
	"strings"
	"time"

	"go.uber.org/zap"
)

// ---- HTTP ----

func RequestID(v string) zap.Field { return zap.String("request_id", v) }

func Method(v string) zap.Field { return zap.String("method", v) }

func Path(v string) zap.Field { return zap.String("path", v) }

func Status(v int) zap.Field { return zap.Int("status", v) }

func Duration(v time.Duration) zap.Field { return zap.Duration("duration", v) }

func ClientIP(v string) zap.Field { return zap.String("client_ip", v) }

func UserAgent(v string) zap.Field { return zap.String("user_agent", v) }

func Bytes(v int) zap.Field { return zap.Int("bytes", v) }

func DurationMs(v int64) zap.Field { return zap.Int64("duration_ms", v) }

// ---- Dominio ----

// UserID identifica al usuario local dueño de la conexión.
func UserID(v int64) zap.Field { return zap.Int64("user_id", v) }

// Provider es "garmin" o "strava".
func Provider(v string) zap.Field { return zap.String("provider", v) }

// Date formatea un día de calendario como YYYY-MM-DD.
func Date(v time.Time) zap.Field { return zap.String("date", v.Format("2006-01-02")) }

// ActivityID es el id externo de una actividad.
func ActivityID(v int64) zap.Field { return zap.Int64("activity_id", v) }

// SessionID loguea solo el prefijo de un challenge id.
func SessionID(v string) zap.Field {
	if len(v) > 8 {
		v = v[:8] + "…"
	}
	return zap.String("session_id", v)
}

// Username enmascara el usuario del proveedor (abc***).
func Username(v string) zap.Field {
	return zap.String("username", Mask(v))
}

// Mask deja los primeros 3 caracteres visibles.
func Mask(v string) string {
	if len(v) <= 3 {
		return strings.Repeat("*", len(v))
	}
	return v[:3] + "***"
}

// ---- Sistema ----

func Component(v string) zap.Field { return zap.String("component", v) }

func Op(v string) zap.Field { return zap.String("op", v) }

// Layer: controller, service, repository, provider.
func Layer(v string) zap.Field { return zap.String("layer", v) }

func Err(err error) zap.Field { return zap.Error(err) }

// ---- Genéricos ----

func Count(v int) zap.Field { return zap.Int("count", v) }

func Key(v string) zap.Field { return zap.String("key", v) }

func Any(key string, v any) zap.Field { return zap.Any(key, v) }

func String(key, v string) zap.Field { return zap.String(key, v) }

func Int(key string, v int) zap.Field { return zap.Int(key, v) }

func Int64(key string, v int64) zap.Field { return zap.Int64(key, v) }

func Bool(key string, v bool) zap.Field { return zap.Bool(key, v) }
