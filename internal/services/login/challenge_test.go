package login

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/fitlink/internal/cache"
)

func TestChallengeStore_PutTakeOnce(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := cache.NewMemory("t", time.Minute)
	defer c.Close()
	s := NewChallengeStore(c, 10*time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Challenge{SessionID: "abc", UserID: 1, State: []byte("st")}))

	ch, err := s.TakeOnce(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, []byte("st"), ch.State)
	assert.Equal(t, now, ch.CreatedAt)

	_, err = s.TakeOnce(ctx, "abc")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
	_, err = s.TakeOnce(ctx, "")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestChallengeStore_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := cache.NewMemory("t", time.Minute)
	defer c.Close()
	s := NewChallengeStore(c, 10*time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Challenge{SessionID: "a", CreatedAt: now}))
	now = now.Add(10 * time.Minute)
	_, err := s.TakeOnce(ctx, "a")
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	err = s.Put(ctx, Challenge{SessionID: "b", CreatedAt: now.Add(-11 * time.Minute)})
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestRunSweeper_StopsWithContext(t *testing.T) {
	c := cache.NewMemory("t", time.Minute)
	defer c.Close()
	s := NewChallengeStore(c, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunSweeper(ctx, s, 5*time.Millisecond)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper no terminó")
	}
}

func TestChallengeStore_PeekDoesNotConsume(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := cache.NewMemory("t", time.Minute)
	defer c.Close()
	s := NewChallengeStore(c, 10*time.Minute).WithClock(func() time.Time { return now })
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, Challenge{SessionID: "abc", UserID: 7}))

	for i := 0; i < 2; i++ {
		ch, err := s.Peek(ctx, "abc")
		require.NoError(t, err)
		assert.EqualValues(t, 7, ch.UserID)
	}
	ch, err := s.TakeOnce(ctx, "abc")
	require.NoError(t, err)
	assert.EqualValues(t, 7, ch.UserID)

	_, err = s.Peek(ctx, "abc")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
	_, err = s.Peek(ctx, "")
	assert.ErrorIs(t, err, ErrChallengeNotFound)

	// vencido por el reloj propio aunque el cache lo conserve
	require.NoError(t, s.Put(ctx, Challenge{SessionID: "old", CreatedAt: now}))
	now = now.Add(10 * time.Minute)
	_, err = s.Peek(ctx, "old")
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}
