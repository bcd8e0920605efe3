package jwt

import (
	"errors"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// StateAudience es la audiencia esperada de los state tokens.
const StateAudience = "oauth-state"

var (
	ErrStateInvalid  = errors.New("invalid state token")
	ErrStateUser     = errors.New("state issued for another user")
	ErrStateProvider = errors.New("state provider mismatch")
)

// StateClaims viajan en el parámetro state de la autorización OAuth.
type StateClaims struct {
	UserID   int64  `json:"uid"`
	Provider string `json:"provider"`
	Nonce    string `json:"nonce"`
	jwtv5.RegisteredClaims
}

// SignState firma un state de vida corta para userID.
func (i *Issuer) SignState(userID int64, provider string) (string, error) {
	now := i.now().UTC()
	return i.sign(StateClaims{
		UserID:   userID,
		Provider: provider,
		Nonce:    uuid.NewString(),
		RegisteredClaims: jwtv5.RegisteredClaims{
			Issuer:    i.Iss,
			Audience:  jwtv5.ClaimStrings{StateAudience},
			IssuedAt:  jwtv5.NewNumericDate(now),
			ExpiresAt: jwtv5.NewNumericDate(now.Add(i.stateTTL())),
		},
	})
}

// VerifyState valida firma, expiración, usuario y proveedor.
func (i *Issuer) VerifyState(raw string, userID int64, provider string) (*StateClaims, error) {
	var c StateClaims
	if err := i.parse(raw, &c, StateAudience); err != nil {
		if errors.Is(err, ErrTokenExpired) {
			return nil, err
		}
		return nil, ErrStateInvalid
	}
	if c.UserID != userID {
		return nil, ErrStateUser
	}
	if c.Provider != provider {
		return nil, ErrStateProvider
	}
	return &c, nil
}

// stateTTL por defecto si el issuer no lo tiene configurado.
func (i *Issuer) stateTTL() time.Duration {
	if i.StateTTL <= 0 {
		return 10 * time.Minute
	}
	return i.StateTTL
}
