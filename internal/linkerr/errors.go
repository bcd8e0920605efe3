// Package linkerr define la taxonomía de errores del vínculo con proveedores:
// AuthError, APIError y ValidationError.
//
// Los services devuelven estos tipos para que el caller pueda decidir si pedir
// un código MFA, volver a pedir credenciales o reconfigurar la app OAuth.
package linkerr

import (
	"errors"
	"fmt"
)

// AuthReason clasifica un AuthError.
type AuthReason string

const (
	ReasonInvalidCredentials       AuthReason = "invalid_credentials"
	ReasonMFARequired              AuthReason = "mfa_required"
	ReasonMFASessionNotFound       AuthReason = "mfa_session_not_found"
	ReasonMFACodeInvalid           AuthReason = "mfa_code_invalid"
	ReasonUnsupportedRegion        AuthReason = "unsupported_region"
	ReasonUnsupportedConfiguration AuthReason = "unsupported_configuration"
	ReasonTokenExpired             AuthReason = "token_expired"
	ReasonTokenRefreshFailed       AuthReason = "token_refresh_failed"
	ReasonCredentialsUndecryptable AuthReason = "credentials_undecryptable"
	ReasonNotConnected             AuthReason = "not_connected"
	ReasonNetwork                  AuthReason = "network"
	ReasonUnknown                  AuthReason = "unknown"
)

// AuthError: credenciales, MFA, tokens o configuración de la conexión.
type AuthError struct {
	Reason  AuthReason
	Message string
	Err     error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("auth %s: %s: %v", e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("auth %s: %s", e.Reason, e.Message)
}

func (e *AuthError) Unwrap() error { return e.Err }

// APIError: fallo del upstream (rate limit, HTTP no-2xx, transporte).
type APIError struct {
	Status      int
	RateLimited bool
	Message     string
	Err         error
}

func (e *APIError) Error() string {
	msg := e.Message
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		return fmt.Sprintf("api: %s: %v", msg, e.Err)
	}
	return "api: " + msg
}

func (e *APIError) Unwrap() error { return e.Err }

// ValidationError: input del caller mal formado o app OAuth sin configurar.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation: " + e.Message
	}
	return fmt.Sprintf("validation: %s: %s", e.Field, e.Message)
}

// ─── Constructores ───

func Auth(reason AuthReason, msg string) *AuthError {
	return &AuthError{Reason: reason, Message: msg}
}

func AuthWrap(reason AuthReason, msg string, err error) *AuthError {
	return &AuthError{Reason: reason, Message: msg, Err: err}
}

func API(status int, msg string) *APIError {
	return &APIError{Status: status, Message: msg}
}

func APIWrap(msg string, err error) *APIError {
	return &APIError{Message: msg, Err: err}
}

func RateLimited(msg string) *APIError {
	return &APIError{Status: 429, RateLimited: true, Message: msg}
}

func Invalid(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

// ─── Inspección ───

func AsAuth(err error) (*AuthError, bool) {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func AsAPI(err error) (*APIError, bool) {
	var ae *APIError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}

func IsAPI(err error) bool {
	_, ok := AsAPI(err)
	return ok
}

func IsAuth(err error) bool {
	_, ok := AsAuth(err)
	return ok
}

// HasReason es true si err es un AuthError con esa razón.
func HasReason(err error, reason AuthReason) bool {
	ae, ok := AsAuth(err)
	return ok && ae.Reason == reason
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsRateLimited reporta un APIError de rate limit del upstream.
func IsRateLimited(err error) bool {
	ae, ok := AsAPI(err)
	return ok && ae.RateLimited
}

// IsFatalForSync: errores que abortan un batch completo de sync en vez de
// quedar registrados como error de una unidad.
func IsFatalForSync(err error) bool {
	return IsAuth(err) || IsRateLimited(err)
}
