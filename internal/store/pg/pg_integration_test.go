//go:build integration

package pg

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	postgrescontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/dropDatabas3/fitlink/internal/domain/repository"
	"github.com/dropDatabas3/fitlink/internal/domain/types"
	migrations "github.com/dropDatabas3/fitlink/migrations/postgres"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	container, err := postgrescontainer.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgrescontainer.WithDatabase("fitlink"),
		postgrescontainer.WithUsername("fitlink"),
		postgrescontainer.WithPassword("fitlink"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	s, err := Connect(ctx, Config{DSN: dsn, MaxConns: 5, LeaseWait: 200 * time.Millisecond})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	applySchema(t, s.Pool())
	return s
}

// applySchema evita importar store (ciclo) y ejecuta el SQL embebido.
func applySchema(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	b, err := migrations.SchemaFS.ReadFile(migrations.SchemaDir + "/0001_init.sql")
	require.NoError(t, err)
	_, err = pool.Exec(context.Background(), string(b))
	require.NoError(t, err)
}

func TestPG_Connections(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	repo := s.Connections()

	require.NoError(t, repo.Upsert(ctx, &types.Connection{
		UserID: 1, Provider: types.ProviderStrava, Status: types.StatusConfigSet,
		CredentialUser: "cid", CredentialSecret: "csecret",
	}))
	require.NoError(t, repo.UpdateTokens(ctx, 1, types.ProviderStrava, "a", "r", 12345))

	c, err := repo.Get(ctx, 1, types.ProviderStrava)
	require.NoError(t, err)
	assert.Equal(t, types.StatusConnected, c.Status)
	assert.Equal(t, "a", c.AccessToken)
	assert.EqualValues(t, 12345, c.TokenExpiresAt)

	l, err := repo.Acquire(ctx, 1, types.ProviderStrava)
	require.NoError(t, err)
	_, err = repo.Acquire(ctx, 1, types.ProviderStrava)
	assert.ErrorIs(t, err, repository.ErrLeaseHeld)
	require.NoError(t, l.Release(ctx))

	l, err = repo.Acquire(ctx, 1, types.ProviderStrava)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))

	ok, err := repo.Delete(ctx, 1, types.ProviderStrava)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPG_LeaseWhenPoolExhausted(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	repo := s.Connections()

	// cada lease retiene una conexión: con MaxConns=5 el sexto espera el pool
	var held []repository.Lease
	for u := int64(1); u <= 5; u++ {
		l, err := repo.Acquire(ctx, u, types.ProviderGarmin)
		require.NoError(t, err)
		held = append(held, l)
	}

	_, err := repo.Acquire(ctx, 6, types.ProviderGarmin)
	assert.ErrorIs(t, err, repository.ErrLeaseHeld)

	for _, l := range held {
		require.NoError(t, l.Release(ctx))
	}
	l, err := repo.Acquire(ctx, 6, types.ProviderGarmin)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx))
}

func TestPG_MetricsAndActivities(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	sleep, steps, steps2 := 7.25, 9000, 11000

	created, err := s.Metrics().Upsert(ctx, types.DailyMetric{UserID: 1, Date: day, SleepHours: &sleep, Steps: &steps})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.Metrics().Upsert(ctx, types.DailyMetric{UserID: 1, Date: day, Steps: &steps2})
	require.NoError(t, err)
	assert.False(t, created)

	require.NoError(t, s.Metrics().AddExerciseMinutes(ctx, 1, day, 30))
	require.NoError(t, s.Metrics().AddExerciseMinutes(ctx, 1, day, 40))

	m, err := s.Metrics().Get(ctx, 1, day)
	require.NoError(t, err)
	assert.InDelta(t, 7.25, *m.SleepHours, 1e-9)
	assert.Equal(t, 11000, *m.Steps)
	assert.Equal(t, 70, *m.ExerciseMinutes)
	assert.Nil(t, m.BodyBattery)

	mt := 1800
	prev, err := s.Activities().Upsert(ctx, types.Activity{ExternalID: 99, UserID: 1, Date: day, MovingTimeSeconds: &mt})
	require.NoError(t, err)
	assert.Nil(t, prev)
	name := "Run"
	prev, err = s.Activities().Upsert(ctx, types.Activity{ExternalID: 99, UserID: 1, Date: day, Name: &name})
	require.NoError(t, err)
	require.NotNil(t, prev)
	assert.Equal(t, 1800, *prev.MovingTimeSeconds)

	a, err := s.Activities().Get(ctx, 99)
	require.NoError(t, err)
	assert.Equal(t, 1800, *a.MovingTimeSeconds)
	assert.Equal(t, "Run", *a.Name)
}
