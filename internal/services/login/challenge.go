package login

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/fitlink/internal/cache"
)

// DefaultChallengeTTL es la vida de un challenge MFA pendiente.
const DefaultChallengeTTL = 10 * time.Minute

var (
	ErrChallengeNotFound = errors.New("mfa challenge not found or expired")
	ErrChallengeExpired  = errors.New("mfa challenge already expired")
)

// Challenge es un login que quedó esperando el código MFA.
type Challenge struct {
	SessionID     string    `json:"session_id"`
	UserID        int64     `json:"user_id"`
	Username      string    `json:"username"`
	Password      string    `json:"password"` // ciphertext del vault
	RegionVariant bool      `json:"region_variant"`
	State         []byte    `json:"state"`
	CreatedAt     time.Time `json:"created_at"`
}

// ChallengeStore guarda challenges con TTL y los entrega una sola vez.
type ChallengeStore interface {
	Put(ctx context.Context, ch Challenge) error
	// Peek lee el challenge sin consumirlo.
	Peek(ctx context.Context, sessionID string) (*Challenge, error)
	// TakeOnce devuelve y elimina el challenge. ErrChallengeNotFound si no
	// existe o venció; dos takes concurrentes del mismo id: solo uno gana.
	TakeOnce(ctx context.Context, sessionID string) (*Challenge, error)
	SweepExpired(ctx context.Context) (int, error)
}

// CacheChallengeStore implementa ChallengeStore sobre cache.Client.
type CacheChallengeStore struct {
	c   cache.Client
	ttl time.Duration
	now func() time.Time
}

func NewChallengeStore(c cache.Client, ttl time.Duration) *CacheChallengeStore {
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	return &CacheChallengeStore{c: c, ttl: ttl, now: time.Now}
}

// WithClock reemplaza el reloj (tests).
func (s *CacheChallengeStore) WithClock(now func() time.Time) *CacheChallengeStore {
	s.now = now
	return s
}

func (s *CacheChallengeStore) TTL() time.Duration { return s.ttl }

func challengeKey(id string) string { return "mfa:challenge:" + id }

// Put guarda el challenge por lo que le queda de vida según CreatedAt.
func (s *CacheChallengeStore) Put(ctx context.Context, ch Challenge) error {
	if ch.SessionID == "" {
		return fmt.Errorf("challenge: session id vacío")
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = s.now()
	}
	remaining := ch.CreatedAt.Add(s.ttl).Sub(s.now())
	if remaining <= 0 {
		return ErrChallengeExpired
	}
	b, err := json.Marshal(ch)
	if err != nil {
		return err
	}
	return s.c.Set(ctx, challengeKey(ch.SessionID), string(b), remaining)
}

func (s *CacheChallengeStore) Peek(ctx context.Context, sessionID string) (*Challenge, error) {
	if sessionID == "" {
		return nil, ErrChallengeNotFound
	}
	raw, err := s.c.Get(ctx, challengeKey(sessionID))
	return s.decode(raw, err)
}

func (s *CacheChallengeStore) TakeOnce(ctx context.Context, sessionID string) (*Challenge, error) {
	if sessionID == "" {
		return nil, ErrChallengeNotFound
	}
	raw, err := s.c.GetAndDelete(ctx, challengeKey(sessionID))
	return s.decode(raw, err)
}

func (s *CacheChallengeStore) decode(raw string, err error) (*Challenge, error) {
	if cache.IsNotFound(err) {
		return nil, ErrChallengeNotFound
	}
	if err != nil {
		return nil, err
	}
	var ch Challenge
	if err := json.Unmarshal([]byte(raw), &ch); err != nil {
		return nil, ErrChallengeNotFound
	}
	// el TTL del cache es aproximado; el reloj propio decide
	if !s.now().Before(ch.CreatedAt.Add(s.ttl)) {
		return nil, ErrChallengeNotFound
	}
	return &ch, nil
}

func (s *CacheChallengeStore) SweepExpired(ctx context.Context) (int, error) {
	return s.c.DeleteExpired(ctx)
}
