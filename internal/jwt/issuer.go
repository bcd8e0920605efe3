// Package jwt firma y valida los JWT HS256 de fitlink: bearer tokens de
// usuario y el parámetro state del flujo OAuth.
package jwt

import (
	"errors"
	"strconv"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

var (
	ErrTokenInvalid = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrNoSecret     = errors.New("jwt: secret vacío")
)

const accessAudience = "fitlink-api"

// Issuer firma con un secreto compartido.
type Issuer struct {
	Iss       string
	AccessTTL time.Duration
	StateTTL  time.Duration

	secret []byte
	now    func() time.Time
}

func NewIssuer(iss, secret string) (*Issuer, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	return &Issuer{
		Iss:       iss,
		AccessTTL: 24 * time.Hour,
		StateTTL:  10 * time.Minute,
		secret:    []byte(secret),
		now:       time.Now,
	}, nil
}

// WithClock reemplaza el reloj (tests).
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	i.now = now
	return i
}

func (i *Issuer) keyfunc(t *jwtv5.Token) (any, error) { return i.secret, nil }

func (i *Issuer) sign(claims jwtv5.Claims) (string, error) {
	tk := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, claims)
	tk.Header["typ"] = "JWT"
	return tk.SignedString(i.secret)
}

func (i *Issuer) parse(raw string, claims jwtv5.Claims, aud string) error {
	_, err := jwtv5.ParseWithClaims(raw, claims, i.keyfunc,
		jwtv5.WithValidMethods([]string{"HS256"}),
		jwtv5.WithIssuer(i.Iss),
		jwtv5.WithAudience(aud),
		jwtv5.WithTimeFunc(i.now),
		jwtv5.WithExpirationRequired(),
	)
	if errors.Is(err, jwtv5.ErrTokenExpired) {
		return ErrTokenExpired
	}
	if err != nil {
		return ErrTokenInvalid
	}
	return nil
}

// IssueAccess firma un bearer token con sub = userID.
func (i *Issuer) IssueAccess(userID int64, ttl time.Duration) (string, time.Time, error) {
	if ttl <= 0 {
		ttl = i.AccessTTL
	}
	now := i.now().UTC()
	exp := now.Add(ttl)
	tok, err := i.sign(jwtv5.RegisteredClaims{
		Issuer:    i.Iss,
		Subject:   strconv.FormatInt(userID, 10),
		Audience:  jwtv5.ClaimStrings{accessAudience},
		IssuedAt:  jwtv5.NewNumericDate(now),
		NotBefore: jwtv5.NewNumericDate(now),
		ExpiresAt: jwtv5.NewNumericDate(exp),
	})
	return tok, exp, err
}

// ParseAccess valida el bearer y devuelve el user id.
func (i *Issuer) ParseAccess(raw string) (int64, error) {
	var c jwtv5.RegisteredClaims
	if err := i.parse(raw, &c, accessAudience); err != nil {
		return 0, err
	}
	id, err := strconv.ParseInt(c.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrTokenInvalid
	}
	return id, nil
}
