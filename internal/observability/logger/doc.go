// Package logger wraps a process-wide zap logger with context scoping.
//
// Inicialización (main):
//
//	logger.Init(logger.Config{Env: cfg.Log.Env, Level: cfg.Log.Level, ServiceName: "fitlink"})
//	defer logger.Sync()
//
// En services, con contexto:
//
//	log := logger.From(ctx).With(logger.Layer("service"), logger.Component("sync"), logger.Op("SyncGarmin"))
//	log.Info("sync finished", logger.UserID(userID), logger.Count(n))
package logger
