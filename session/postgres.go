package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore implements Store on a single table keyed by principal id, so
// the one-session-per-principal rule is enforced by the primary key.
type PostgresStore struct {
	pool  *pgxpool.Pool
	table string
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a Postgres-backed session store. Call
// [EnsureSchema] once before first use.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, table: DefaultTable}
}

const selectColumns = `
	principal_id, access_token_id, refresh_token, refresh_binding_id,
	name, role, store_name, store_category,
	expires_at, created_at, last_used_at`

func (s *PostgresStore) UpsertSingleSession(ctx context.Context, rec *Record) error {
	if err := validateRecord(rec); err != nil {
		return err
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO `+s.table+` (
			principal_id, access_token_id, refresh_token, refresh_digest,
			name, role, store_name, store_category,
			expires_at, created_at, last_used_at, refresh_binding_id
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8,
			$9, $10, $11, $12
		)
		ON CONFLICT (principal_id) DO UPDATE SET
			access_token_id    = EXCLUDED.access_token_id,
			refresh_token      = EXCLUDED.refresh_token,
			refresh_digest     = EXCLUDED.refresh_digest,
			refresh_binding_id = EXCLUDED.refresh_binding_id,
			name            = EXCLUDED.name,
			role            = EXCLUDED.role,
			store_name      = EXCLUDED.store_name,
			store_category  = EXCLUDED.store_category,
			expires_at      = EXCLUDED.expires_at,
			created_at      = EXCLUDED.created_at,
			last_used_at    = EXCLUDED.last_used_at
	`,
		rec.PrincipalID, rec.AccessTokenID, rec.RefreshToken, refreshDigest(rec.RefreshToken),
		rec.Name, rec.Role, rec.StoreName, rec.StoreCategory,
		rec.ExpiresAt.UTC().Truncate(time.Microsecond),
		rec.CreatedAt.UTC().Truncate(time.Microsecond),
		rec.LastUsedAt.UTC().Truncate(time.Microsecond),
		rec.RefreshBindingID,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) FindByRefreshToken(ctx context.Context, token string) (*Record, error) {
	rec, err := s.scanOne(ctx, `
		SELECT`+selectColumns+`
		FROM `+s.table+`
		WHERE refresh_digest = $1
	`, refreshDigest(token))
	if err != nil {
		return nil, err
	}
	if rec.RefreshToken != token {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *PostgresStore) FindByPrincipalID(ctx context.Context, principalID string) (*Record, error) {
	return s.scanOne(ctx, `
		SELECT`+selectColumns+`
		FROM `+s.table+`
		WHERE principal_id = $1
	`, principalID)
}

func (s *PostgresStore) RotateAccessTokenID(ctx context.Context, rot Rotation) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET access_token_id = $2,
		    last_used_at = $3
		WHERE principal_id = $1
		  AND refresh_digest = $4
		  AND refresh_token = $5
		  AND ($6::text = '' OR access_token_id = $6::text)
	`, rot.PrincipalID, rot.AccessTokenID, rot.LastUsedAt.UTC().Truncate(time.Microsecond),
		refreshDigest(rot.RefreshToken), rot.RefreshToken, rot.PreviousAccessTokenID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) TouchSession(ctx context.Context, principalID, accessTokenID string, lastUsedAt time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE `+s.table+`
		SET last_used_at = $3
		WHERE principal_id = $1 AND access_token_id = $2
	`, principalID, accessTokenID, lastUsedAt.UTC().Truncate(time.Microsecond))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteByPrincipalID(ctx context.Context, principalID string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.table+`
		WHERE principal_id = $1
	`, principalID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *PostgresStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM `+s.table+`
		WHERE expires_at <= $1
	`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) scanOne(ctx context.Context, query string, arg any) (*Record, error) {
	var rec Record
	err := s.pool.QueryRow(ctx, query, arg).Scan(
		&rec.PrincipalID,
		&rec.AccessTokenID,
		&rec.RefreshToken,
		&rec.RefreshBindingID,
		&rec.Name,
		&rec.Role,
		&rec.StoreName,
		&rec.StoreCategory,
		&rec.ExpiresAt,
		&rec.CreatedAt,
		&rec.LastUsedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	rec.ExpiresAt = rec.ExpiresAt.UTC()
	rec.CreatedAt = rec.CreatedAt.UTC()
	rec.LastUsedAt = rec.LastUsedAt.UTC()
	return &rec, nil
}
