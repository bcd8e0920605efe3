package pg

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dropDatabas3/fitlink/internal/domain/repository"
	"github.com/dropDatabas3/fitlink/internal/domain/types"
)

type connectionRepo struct {
	pool      *pgxpool.Pool
	leaseWait time.Duration
}

const connectionColumns = `user_id, provider, credential_user, credential_secret,
	access_token, refresh_token, token_expires_at, session_blob, status, region_variant,
	external_id, display_name, profile_url, last_sync_at, last_error, created_at, updated_at`

func (r *connectionRepo) Get(ctx context.Context, userID int64, provider types.Provider) (*types.Connection, error) {
	var c types.Connection
	var prov, status string
	err := r.pool.QueryRow(ctx,
		`SELECT `+connectionColumns+` FROM provconnection WHERE user_id = $1 AND provider = $2`,
		userID, string(provider),
	).Scan(
		&c.UserID, &prov, &c.CredentialUser, &c.CredentialSecret,
		&c.AccessToken, &c.RefreshToken, &c.TokenExpiresAt, &c.SessionBlob, &status, &c.RegionVariant,
		&c.ExternalID, &c.DisplayName, &c.ProfileURL, &c.LastSyncAt, &c.LastError, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("pg: get connection: %w", err)
	}
	c.Provider = types.Provider(prov)
	c.Status = types.ConnectionStatus(status)
	return &c, nil
}

func (r *connectionRepo) Upsert(ctx context.Context, c *types.Connection) error {
	if c == nil || !c.Provider.IsValid() || !c.Status.IsValid() {
		return repository.ErrInvalidInput
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO provconnection (
			user_id, provider, credential_user, credential_secret,
			access_token, refresh_token, token_expires_at, session_blob, status, region_variant,
			external_id, display_name, profile_url, last_sync_at, last_error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (user_id, provider) DO UPDATE SET
			credential_user   = EXCLUDED.credential_user,
			credential_secret = EXCLUDED.credential_secret,
			access_token      = EXCLUDED.access_token,
			refresh_token     = EXCLUDED.refresh_token,
			token_expires_at  = EXCLUDED.token_expires_at,
			session_blob      = EXCLUDED.session_blob,
			status            = EXCLUDED.status,
			region_variant    = EXCLUDED.region_variant,
			external_id       = EXCLUDED.external_id,
			display_name      = EXCLUDED.display_name,
			profile_url       = EXCLUDED.profile_url,
			last_sync_at      = EXCLUDED.last_sync_at,
			last_error        = EXCLUDED.last_error,
			updated_at        = NOW()`,
		c.UserID, string(c.Provider), c.CredentialUser, c.CredentialSecret,
		c.AccessToken, c.RefreshToken, c.TokenExpiresAt, c.SessionBlob, string(c.Status), c.RegionVariant,
		c.ExternalID, c.DisplayName, c.ProfileURL, c.LastSyncAt, c.LastError,
	)
	if err != nil {
		return fmt.Errorf("pg: upsert connection: %w", err)
	}
	return nil
}

// execOne ejecuta un UPDATE que debe afectar exactamente una fila.
func (r *connectionRepo) execOne(ctx context.Context, op, sql string, args ...any) error {
	tag, err := r.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("pg: %s: %w", op, err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (r *connectionRepo) UpdateTokens(ctx context.Context, userID int64, provider types.Provider, access, refresh string, expiresAt int64) error {
	return r.execOne(ctx, "update tokens", `
		UPDATE provconnection
		SET access_token = $3, refresh_token = $4, token_expires_at = $5,
		    status = 'connected', last_error = NULL, updated_at = NOW()
		WHERE user_id = $1 AND provider = $2`,
		userID, string(provider), access, refresh, expiresAt,
	)
}

func (r *connectionRepo) UpdateSession(ctx context.Context, userID int64, provider types.Provider, blob string) error {
	return r.execOne(ctx, "update session", `
		UPDATE provconnection SET session_blob = $3, updated_at = NOW()
		WHERE user_id = $1 AND provider = $2`,
		userID, string(provider), blob,
	)
}

func (r *connectionRepo) MarkStatus(ctx context.Context, userID int64, provider types.Provider, status types.ConnectionStatus, lastErr *string) error {
	if !status.IsValid() {
		return repository.ErrInvalidInput
	}
	return r.execOne(ctx, "mark status", `
		UPDATE provconnection SET status = $3, last_error = $4, updated_at = NOW()
		WHERE user_id = $1 AND provider = $2`,
		userID, string(provider), string(status), lastErr,
	)
}

func (r *connectionRepo) MarkSynced(ctx context.Context, userID int64, provider types.Provider, at time.Time) error {
	return r.execOne(ctx, "mark synced", `
		UPDATE provconnection
		SET last_sync_at = $3, status = 'connected', last_error = NULL, updated_at = NOW()
		WHERE user_id = $1 AND provider = $2`,
		userID, string(provider), at,
	)
}

func (r *connectionRepo) Delete(ctx context.Context, userID int64, provider types.Provider) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM provconnection WHERE user_id = $1 AND provider = $2`,
		userID, string(provider),
	)
	if err != nil {
		return false, fmt.Errorf("pg: delete connection: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// Lock keyed por el hash de 64 bits de LeaseKey.
const (
	tryLockSQL = `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`
	unlockSQL  = `SELECT pg_advisory_unlock(hashtextextended($1, 0))`
)

// Acquire toma un advisory lock de sesión sobre una conexión dedicada del
// pool. El lock vive lo que viva esa conexión, por eso se retiene hasta Release.
func (r *connectionRepo) Acquire(ctx context.Context, userID int64, provider types.Provider) (repository.Lease, error) {
	key := repository.LeaseKey(userID, provider)

	ctx, cancel := context.WithTimeout(ctx, r.leaseWait)
	defer cancel()

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		// pool agotado por otros leases: se trata igual que un lock ocupado
		if ctx.Err() != nil {
			return nil, repository.ErrLeaseHeld
		}
		return nil, fmt.Errorf("pg: acquire conn for lease: %w", err)
	}

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		var ok bool
		if err := conn.QueryRow(ctx, tryLockSQL, key).Scan(&ok); err != nil {
			conn.Release()
			if ctx.Err() != nil {
				return nil, repository.ErrLeaseHeld
			}
			return nil, fmt.Errorf("pg: try advisory lock: %w", err)
		}
		if ok {
			return &advisoryLease{conn: conn, key: key}, nil
		}
		select {
		case <-ctx.Done():
			conn.Release()
			return nil, repository.ErrLeaseHeld
		case <-ticker.C:
		}
	}
}

type advisoryLease struct {
	conn *pgxpool.Conn
	key  string
}

func (l *advisoryLease) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	conn := l.conn
	l.conn = nil
	defer conn.Release()
	if _, err := conn.Exec(ctx, unlockSQL, l.key); err != nil {
		// Sin unlock la conexión no puede volver al pool con el lock tomado.
		conn.Conn().Close(context.Background())
		return fmt.Errorf("pg: advisory unlock: %w", err)
	}
	return nil
}
