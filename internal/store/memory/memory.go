// Package memory implementa los repositorios en memoria. Sirve para
// desarrollo local (storage.driver=memory) y para los tests de servicios.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dropDatabas3/fitlink/internal/domain/repository"
	"github.com/dropDatabas3/fitlink/internal/domain/types"
)

type connKey struct {
	userID   int64
	provider types.Provider
}

type dayKey struct {
	userID int64
	date   time.Time
}

// Store guarda todo bajo un único mutex; los leases usan un semáforo por clave.
type Store struct {
	mu          sync.Mutex
	connections map[connKey]*types.Connection
	metrics     map[dayKey]*types.DailyMetric
	activities  map[int64]*types.Activity

	leaseMu   sync.Mutex
	leases    map[string]chan struct{}
	leaseWait time.Duration

	now func() time.Time
}

// New crea un store vacío. leaseWait <= 0 usa 5s.
func New(leaseWait time.Duration) *Store {
	if leaseWait <= 0 {
		leaseWait = 5 * time.Second
	}
	return &Store{
		connections: make(map[connKey]*types.Connection),
		metrics:     make(map[dayKey]*types.DailyMetric),
		activities:  make(map[int64]*types.Activity),
		leases:      make(map[string]chan struct{}),
		leaseWait:   leaseWait,
		now:         time.Now,
	}
}

func (s *Store) Ping(context.Context) error { return nil }
func (s *Store) Close() error               { return nil }

func (s *Store) Connections() repository.ConnectionRepository { return (*connectionRepo)(s) }
func (s *Store) Metrics() repository.DailyMetricRepository    { return (*metricRepo)(s) }
func (s *Store) Activities() repository.ActivityRepository    { return (*activityRepo)(s) }

// ─── Connections ───

type connectionRepo Store

func (r *connectionRepo) Get(_ context.Context, userID int64, provider types.Provider) (*types.Connection, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connections[connKey{userID, provider}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return c.Clone(), nil
}

func (r *connectionRepo) Upsert(_ context.Context, c *types.Connection) error {
	if c == nil || !c.Provider.IsValid() || !c.Status.IsValid() {
		return repository.ErrInvalidInput
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	cp := c.Clone()
	k := connKey{c.UserID, c.Provider}
	if prev, ok := r.connections[k]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.connections[k] = cp
	return nil
}

func (r *connectionRepo) update(userID int64, provider types.Provider, fn func(c *types.Connection)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.connections[connKey{userID, provider}]
	if !ok {
		return repository.ErrNotFound
	}
	fn(c)
	c.UpdatedAt = r.now()
	return nil
}

func (r *connectionRepo) UpdateTokens(_ context.Context, userID int64, provider types.Provider, access, refresh string, expiresAt int64) error {
	return r.update(userID, provider, func(c *types.Connection) {
		c.AccessToken = access
		c.RefreshToken = refresh
		c.TokenExpiresAt = expiresAt
		c.Status = types.StatusConnected
		c.LastError = nil
	})
}

func (r *connectionRepo) UpdateSession(_ context.Context, userID int64, provider types.Provider, blob string) error {
	return r.update(userID, provider, func(c *types.Connection) {
		c.SessionBlob = blob
	})
}

func (r *connectionRepo) MarkStatus(_ context.Context, userID int64, provider types.Provider, status types.ConnectionStatus, lastErr *string) error {
	if !status.IsValid() {
		return repository.ErrInvalidInput
	}
	return r.update(userID, provider, func(c *types.Connection) {
		c.Status = status
		if lastErr != nil {
			e := *lastErr
			c.LastError = &e
		} else {
			c.LastError = nil
		}
	})
}

func (r *connectionRepo) MarkSynced(_ context.Context, userID int64, provider types.Provider, at time.Time) error {
	return r.update(userID, provider, func(c *types.Connection) {
		t := at
		c.LastSyncAt = &t
		c.Status = types.StatusConnected
		c.LastError = nil
	})
}

func (r *connectionRepo) Delete(_ context.Context, userID int64, provider types.Provider) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := connKey{userID, provider}
	if _, ok := r.connections[k]; !ok {
		return false, nil
	}
	delete(r.connections, k)
	return true, nil
}

func (r *connectionRepo) Acquire(ctx context.Context, userID int64, provider types.Provider) (repository.Lease, error) {
	key := repository.LeaseKey(userID, provider)

	r.leaseMu.Lock()
	sem, ok := r.leases[key]
	if !ok {
		sem = make(chan struct{}, 1)
		r.leases[key] = sem
	}
	r.leaseMu.Unlock()

	timer := time.NewTimer(r.leaseWait)
	defer timer.Stop()

	select {
	case sem <- struct{}{}:
		return &chanLease{sem: sem}, nil
	case <-ctx.Done():
		return nil, repository.ErrLeaseHeld
	case <-timer.C:
		return nil, repository.ErrLeaseHeld
	}
}

type chanLease struct {
	once sync.Once
	sem  chan struct{}
}

func (l *chanLease) Release(context.Context) error {
	l.once.Do(func() { <-l.sem })
	return nil
}

// ─── Daily metrics ───

type metricRepo Store

func (r *metricRepo) Upsert(_ context.Context, m types.DailyMetric) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := dayKey{m.UserID, types.Day(m.Date)}
	cur, ok := r.metrics[k]
	if !ok {
		cur = &types.DailyMetric{UserID: m.UserID, Date: k.date}
		r.metrics[k] = cur
	}
	cur.Merge(m)
	cur.UpdatedAt = r.now()
	return !ok, nil
}

func (r *metricRepo) AddExerciseMinutes(_ context.Context, userID int64, date time.Time, minutes int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := dayKey{userID, types.Day(date)}
	cur, ok := r.metrics[k]
	if !ok {
		cur = &types.DailyMetric{UserID: userID, Date: k.date}
		r.metrics[k] = cur
	}
	total := minutes
	if cur.ExerciseMinutes != nil {
		total += *cur.ExerciseMinutes
	}
	if total < 0 {
		total = 0
	}
	cur.ExerciseMinutes = &total
	cur.UpdatedAt = r.now()
	return nil
}

func (r *metricRepo) Get(_ context.Context, userID int64, date time.Time) (*types.DailyMetric, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.metrics[dayKey{userID, types.Day(date)}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := types.DailyMetric{UserID: cur.UserID, Date: cur.Date, UpdatedAt: cur.UpdatedAt}
	cp.Merge(*cur)
	return &cp, nil
}

// ─── Activities ───

type activityRepo Store

func (r *activityRepo) Upsert(_ context.Context, a types.Activity) (*types.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.activities[a.ExternalID]
	var prev *types.Activity
	if ok {
		prev = copyActivity(cur)
	} else {
		cur = &types.Activity{ExternalID: a.ExternalID}
		r.activities[a.ExternalID] = cur
	}
	a.Date = types.Day(a.Date)
	cur.Merge(a)
	cur.UpdatedAt = r.now()
	return prev, nil
}

func (r *activityRepo) Get(_ context.Context, externalID int64) (*types.Activity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.activities[externalID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copyActivity(cur), nil
}

func copyActivity(a *types.Activity) *types.Activity {
	cp := types.Activity{ExternalID: a.ExternalID, UpdatedAt: a.UpdatedAt}
	cp.Merge(*a)
	return &cp
}
