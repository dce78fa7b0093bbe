package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/nkiryanov/blogauth/internal/apperrors"
	"github.com/nkiryanov/blogauth/internal/models"
)

// Unique constraints names, see migrations
const (
	linkIdentityConstraint     = "oauth_links_provider_identity_key"
	linkUserProviderConstraint = "oauth_links_user_provider_key"
)

type OAuthLinkRepo struct {
	DB DBTX
}

const linkColumns = `id, user_id, provider, provider_id, created_at, updated_at`

const createLink = `-- name: CreateLink
INSERT INTO oauth_links (id, user_id, provider, provider_id)
VALUES ($1, $2, $3, $4)
RETURNING ` + linkColumns

func (r *OAuthLinkRepo) Create(ctx context.Context, link models.OAuthLink) (models.OAuthLink, error) {
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}

	var created models.OAuthLink
	err := r.DB.QueryRow(ctx, createLink, link.ID, link.UserID, link.Provider, link.ProviderID).Scan(
		&created.ID, &created.UserID, &created.Provider, &created.ProviderID, &created.CreatedAt, &created.UpdatedAt,
	)

	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return created, nil
	case errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation:
		return created, uniqueViolationToErr(pgErr)
	default:
		return created, fmt.Errorf("db error: %w", err)
	}
}

// Any unknown unique violation is treated as the identity taken
func uniqueViolationToErr(pgErr *pgconn.PgError) error {
	switch pgErr.ConstraintName {
	case linkUserProviderConstraint:
		return apperrors.ErrAlreadyLinkedSameProvider
	default:
		return apperrors.ErrAlreadyLinkedElsewhere
	}
}

const getLinkByIdentity = `-- name: GetLinkByIdentity
SELECT ` + linkColumns + ` FROM oauth_links
WHERE provider = $1 AND provider_id = $2
`

func (r *OAuthLinkRepo) GetByIdentity(ctx context.Context, provider string, providerID string) (models.OAuthLink, error) {
	rows, err := r.DB.Query(ctx, getLinkByIdentity, provider, providerID)
	if err != nil {
		return models.OAuthLink{}, fmt.Errorf("db error: %w", err)
	}
	return collectLink(rows)
}

const getLinkByUserProvider = `-- name: GetLinkByUserProvider
SELECT ` + linkColumns + ` FROM oauth_links
WHERE user_id = $1 AND provider = $2
`

func (r *OAuthLinkRepo) GetByUserProvider(ctx context.Context, userID uuid.UUID, provider string) (models.OAuthLink, error) {
	rows, err := r.DB.Query(ctx, getLinkByUserProvider, userID, provider)
	if err != nil {
		return models.OAuthLink{}, fmt.Errorf("db error: %w", err)
	}
	return collectLink(rows)
}

const listLinksByUser = `-- name: ListLinksByUser
SELECT ` + linkColumns + ` FROM oauth_links
WHERE user_id = $1
ORDER BY created_at, provider
`

func (r *OAuthLinkRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.OAuthLink, error) {
	rows, err := r.DB.Query(ctx, listLinksByUser, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	links, err := pgx.CollectRows(rows, rowToLink)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return links, nil
}

const deleteLink = `-- name: DeleteLink
DELETE FROM oauth_links
WHERE user_id = $1 AND provider = $2
`

func (r *OAuthLinkRepo) Delete(ctx context.Context, userID uuid.UUID, provider string) error {
	tag, err := r.DB.Exec(ctx, deleteLink, userID, provider)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return apperrors.ErrLinkNotFound
	}

	return nil
}

func collectLink(rows pgx.Rows) (models.OAuthLink, error) {
	link, err := pgx.CollectOneRow(rows, rowToLink)

	switch {
	case err == nil:
		return link, nil
	case errors.Is(err, pgx.ErrNoRows):
		return link, apperrors.ErrLinkNotFound
	default:
		return link, fmt.Errorf("db error: %w", err)
	}
}

func rowToLink(row pgx.CollectableRow) (models.OAuthLink, error) {
	var l models.OAuthLink
	err := row.Scan(&l.ID, &l.UserID, &l.Provider, &l.ProviderID, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}
