// Package errors traduce los errores de los services a respuestas JSON.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/dropDatabas3/fitlink/internal/domain/repository"
	"github.com/dropDatabas3/fitlink/internal/linkerr"
	"github.com/dropDatabas3/fitlink/internal/services/login"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// WriteError escribe err como JSON. Cualquier error se normaliza con FromError.
func WriteError(w http.ResponseWriter, err error) {
	appErr := FromError(err)

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	if appErr.HTTPStatus == http.StatusUnauthorized && w.Header().Get("WWW-Authenticate") == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="fitlink"`)
	}
	w.WriteHeader(appErr.HTTPStatus)

	_ = json.NewEncoder(w).Encode(errorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Detail:  appErr.Detail,
	})
}

// FromError convierte errores de services (linkerr, repository, login) en
// AppError. Lo desconocido termina en 500 conservando la causa.
func FromError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var ve *linkerr.ValidationError
	if stderrors.As(err, &ve) {
		return ErrValidation.WithCause(err).withMessage(ve.Message).WithDetail(ve.Field)
	}

	if ae, ok := linkerr.AsAuth(err); ok {
		status := http.StatusUnauthorized
		// el cliente tiene que pedir el código, no re-loguear
		if ae.Reason == linkerr.ReasonMFARequired {
			status = http.StatusBadRequest
		}
		return &AppError{
			Code:       string(ae.Reason),
			Message:    ae.Message,
			HTTPStatus: status,
			Err:        err,
		}
	}

	if api, ok := linkerr.AsAPI(err); ok {
		if api.RateLimited {
			return ErrRateLimitExceeded.WithCause(err).withMessage(api.Message)
		}
		return ErrServiceUnavailable.WithCause(err).withMessage(api.Message)
	}

	switch {
	case stderrors.Is(err, login.ErrTooManyAttempts):
		return ErrRateLimitExceeded.WithCause(err)
	case repository.IsLeaseHeld(err):
		return ErrConflict.WithCause(err)
	case repository.IsNotFound(err):
		return ErrNotFound.WithCause(err)
	}

	return ErrInternalServerError.WithCause(err)
}

func (e *AppError) withMessage(msg string) *AppError {
	if msg == "" {
		return e
	}
	newErr := *e
	newErr.Message = msg
	return &newErr
}
