// Package store arma el backend de persistencia según config
// (postgres o memory) y expone las migraciones.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/fitlink/internal/domain/repository"
	"github.com/dropDatabas3/fitlink/internal/store/memory"
	"github.com/dropDatabas3/fitlink/internal/store/pg"
	migrations "github.com/dropDatabas3/fitlink/migrations/postgres"
)

// Backend es lo que implementan pg.Store y memory.Store.
type Backend interface {
	Connections() repository.ConnectionRepository
	Metrics() repository.DailyMetricRepository
	Activities() repository.ActivityRepository
	Ping(ctx context.Context) error
	Close() error
}

// Config de Open.
type Config struct {
	Driver    string // postgres | memory
	DSN       string
	MaxConns  int32
	MinConns  int32
	LeaseWait time.Duration
	// Migrate aplica migraciones pendientes al abrir (solo postgres).
	Migrate bool
}

// Open conecta el backend configurado.
func Open(ctx context.Context, cfg Config) (Backend, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.New(cfg.LeaseWait), nil
	case "postgres":
		s, err := pg.Connect(ctx, pg.Config{
			DSN:       cfg.DSN,
			MaxConns:  cfg.MaxConns,
			MinConns:  cfg.MinConns,
			LeaseWait: cfg.LeaseWait,
		})
		if err != nil {
			return nil, err
		}
		if cfg.Migrate {
			if _, err := SchemaMigrator().Run(ctx, s.Pool()); err != nil {
				s.Close()
				return nil, err
			}
		}
		return s, nil
	default:
		return nil, fmt.Errorf("store: driver %q no soportado", cfg.Driver)
	}
}

// SchemaMigrator devuelve el migrator de las migraciones embebidas.
func SchemaMigrator() *Migrator {
	return NewMigrator(migrations.SchemaFS, migrations.SchemaDir)
}
