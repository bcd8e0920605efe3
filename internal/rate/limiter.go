// Package rate limita intentos por clave (usuario, IP) con ventana fija.
package rate

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
	rdb "github.com/redis/go-redis/v9"
)

type Result struct {
	Allowed     bool
	Remaining   int64
	RetryAfter  time.Duration
	CurrentHits int64
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Result, error)
}

// Noop permite todo (rate limit deshabilitado).
type Noop struct{}

func (Noop) Allow(context.Context, string) (Result, error) { return Result{Allowed: true}, nil }

func windowKey(prefix, key string, window time.Duration, now time.Time) (string, time.Duration) {
	winStart := now.Truncate(window)
	k := fmt.Sprintf("%s%s:%d", prefix, strings.ReplaceAll(key, " ", "_"), winStart.Unix())
	return k, winStart.Add(window).Sub(now)
}

func result(hits, max int64, rest time.Duration) Result {
	res := Result{Allowed: hits <= max, CurrentHits: hits, Remaining: max - hits}
	if res.Remaining < 0 {
		res.Remaining = 0
	}
	if !res.Allowed {
		res.RetryAfter = rest
	}
	return res
}

// RedisLimiter: fixed window (INCR + EXPIRE), compartido entre instancias.
type RedisLimiter struct {
	Client *rdb.Client
	Prefix string
	Max    int64
	Window time.Duration
}

func NewRedisLimiter(client *rdb.Client, prefix string, max int, window time.Duration) *RedisLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &RedisLimiter{Client: client, Prefix: prefix, Max: int64(max), Window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	redisKey, rest := windowKey(l.Prefix, key, l.Window, time.Now().UTC())

	pipe := l.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.ExpireNX(ctx, redisKey, l.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}
	return result(incr.Val(), l.Max, rest), nil
}

// MemoryLimiter: misma ventana fija sobre go-cache, para una sola instancia.
type MemoryLimiter struct {
	c      *gocache.Cache
	mu     sync.Mutex
	Prefix string
	Max    int64
	Window time.Duration
	now    func() time.Time
}

func NewMemoryLimiter(prefix string, max int, window time.Duration) *MemoryLimiter {
	if prefix == "" {
		prefix = "rl:"
	}
	return &MemoryLimiter{
		c:      gocache.New(window, 2*window),
		Prefix: prefix,
		Max:    int64(max),
		Window: window,
		now:    time.Now,
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Result, error) {
	k, rest := windowKey(l.Prefix, key, l.Window, l.now().UTC())

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.c.Add(k, int64(1), l.Window); err == nil {
		return result(1, l.Max, rest), nil
	}
	hits, err := l.c.IncrementInt64(k, 1)
	if err != nil {
		// la entrada venció entre Add e Increment
		l.c.Set(k, int64(1), l.Window)
		hits = 1
	}
	return result(hits, l.Max, rest), nil
}
