package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/nkiryanov/blogauth/internal/apperrors"
	"github.com/nkiryanov/blogauth/internal/models"
)

type RefreshTokenRepo struct {
	DB DBTX
}

const refreshColumns = `subject, token, created_at, updated_at, expires_at`

const saveToken = `-- name: Save refresh token, overwrite previous one
INSERT INTO refresh_tokens (subject, token, expires_at)
VALUES ($1, $2, $3)
ON CONFLICT (subject) DO UPDATE
SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at, updated_at = now()
RETURNING ` + refreshColumns

func (r *RefreshTokenRepo) Save(ctx context.Context, record models.RefreshTokenRecord) (models.RefreshTokenRecord, error) {
	rows, _ := r.DB.Query(ctx, saveToken, record.Subject, record.Token, record.ExpiresAt)
	saved, err := pgx.CollectOneRow(rows, rowToRefreshToken)
	if err != nil {
		return saved, fmt.Errorf("db error: %w", err)
	}

	return saved, nil
}

const getToken = `-- name: Get subject refresh token
SELECT ` + refreshColumns + `
FROM refresh_tokens
WHERE subject = $1
`

// Get subject record
// It returns the record even if it expired already
func (r *RefreshTokenRepo) Get(ctx context.Context, subject string) (models.RefreshTokenRecord, error) {
	rows, _ := r.DB.Query(ctx, getToken, subject)
	return collectRefreshToken(rows)
}

const rotateToken = `-- name: Rotate refresh token if it still the latest one
UPDATE refresh_tokens
SET token = $3, expires_at = $4, updated_at = now()
WHERE subject = $1 AND token = $2
RETURNING ` + refreshColumns

// Compare and swap: concurrent rotations with the same presented token
// are serialized by the row lock, only the first one matches
func (r *RefreshTokenRepo) Rotate(ctx context.Context, presented string, next models.RefreshTokenRecord) (models.RefreshTokenRecord, error) {
	rows, _ := r.DB.Query(ctx, rotateToken, next.Subject, presented, next.Token, next.ExpiresAt)
	return collectRefreshToken(rows)
}

const deleteToken = `-- name: Delete subject refresh token
DELETE FROM refresh_tokens
WHERE subject = $1
`

func (r *RefreshTokenRepo) Delete(ctx context.Context, subject string) error {
	_, err := r.DB.Exec(ctx, deleteToken, subject)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func collectRefreshToken(rows pgx.Rows) (models.RefreshTokenRecord, error) {
	record, err := pgx.CollectOneRow(rows, rowToRefreshToken)

	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, pgx.ErrNoRows):
		return record, fmt.Errorf("repo error: %w", apperrors.ErrStaleSession)
	default:
		return record, fmt.Errorf("db error: %w", err)
	}
}

func rowToRefreshToken(row pgx.CollectableRow) (models.RefreshTokenRecord, error) {
	var t models.RefreshTokenRecord
	err := row.Scan(&t.Subject, &t.Token, &t.CreatedAt, &t.UpdatedAt, &t.ExpiresAt)
	return t, err
}
