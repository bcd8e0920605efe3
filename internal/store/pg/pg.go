// Package pg implementa los repositorios sobre PostgreSQL con pgxpool.
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/fitlink/internal/domain/repository"
)

// Config del pool.
type Config struct {
	DSN       string
	MaxConns  int32
	MinConns  int32
	LeaseWait time.Duration
}

// Store agrupa los repositorios que comparten el pool.
type Store struct {
	pool      *pgxpool.Pool
	leaseWait time.Duration
}

// Connect abre el pool y verifica la conexión.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("pg: parse DSN: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	} else {
		poolCfg.MaxConns = 10
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("pg: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg: ping failed: %w", err)
	}
	return New(pool, cfg.LeaseWait), nil
}

// New envuelve un pool existente.
func New(pool *pgxpool.Pool, leaseWait time.Duration) *Store {
	if leaseWait <= 0 {
		leaseWait = 5 * time.Second
	}
	return &Store{pool: pool, leaseWait: leaseWait}
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Connections() repository.ConnectionRepository {
	return &connectionRepo{pool: s.pool, leaseWait: s.leaseWait}
}

func (s *Store) Metrics() repository.DailyMetricRepository { return &metricRepo{pool: s.pool} }

func (s *Store) Activities() repository.ActivityRepository { return &activityRepo{pool: s.pool} }
