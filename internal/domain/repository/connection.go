package repository

import (
	"context"
	"strconv"
	"time"

	"github.com/dropDatabas3/fitlink/internal/domain/types"
)

// Lease es la exclusión sobre una conexión mientras dura un refresh o un sync.
type Lease interface {
	Release(ctx context.Context) error
}

// ConnectionRepository persiste el vínculo (user, provider).
type ConnectionRepository interface {
	// Get retorna ErrNotFound si no existe.
	Get(ctx context.Context, userID int64, provider types.Provider) (*types.Connection, error)

	// Upsert inserta o reemplaza la fila de (UserID, Provider).
	Upsert(ctx context.Context, c *types.Connection) error

	// UpdateTokens reemplaza access/refresh/expiry de forma atómica,
	// deja status=connected y limpia last_error.
	UpdateTokens(ctx context.Context, userID int64, provider types.Provider, access, refresh string, expiresAt int64) error

	// UpdateSession reemplaza la sesión serializada del proveedor.
	UpdateSession(ctx context.Context, userID int64, provider types.Provider, sessionBlob string) error

	// MarkStatus cambia el estado; lastErr nil limpia el error anterior.
	MarkStatus(ctx context.Context, userID int64, provider types.Provider, status types.ConnectionStatus, lastErr *string) error

	// MarkSynced setea last_sync_at, status=connected y limpia last_error.
	MarkSynced(ctx context.Context, userID int64, provider types.Provider, at time.Time) error

	// Delete retorna false si no existía.
	Delete(ctx context.Context, userID int64, provider types.Provider) (bool, error)

	// Acquire toma el lease de la conexión. Retorna ErrLeaseHeld si no lo
	// consigue antes de que venza ctx o la espera configurada.
	Acquire(ctx context.Context, userID int64, provider types.Provider) (Lease, error)
}

// LeaseKey arma la clave de exclusión de una conexión.
func LeaseKey(userID int64, provider types.Provider) string {
	return "conn:" + string(provider) + ":" + strconv.FormatInt(userID, 10)
}
