package repository

import "errors"

var (
	// ErrNotFound indica que el recurso solicitado no existe.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indica que los datos de entrada son inválidos.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLeaseHeld indica que otra operación tiene tomada la conexión.
	ErrLeaseHeld = errors.New("connection lease held by another operation")

	// ErrNoDatabase indica que no hay base de datos configurada.
	ErrNoDatabase = errors.New("no database configured")
)

// IsNotFound verifica si el error es ErrNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsLeaseHeld verifica si el error es ErrLeaseHeld.
func IsLeaseHeld(err error) bool {
	return errors.Is(err, ErrLeaseHeld)
}
