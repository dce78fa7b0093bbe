package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/nkiryanov/blogauth/internal/models"
)

type CreateUserParams struct {
	Username       string
	Email          string
	HashedPassword string
	Role           string
}

// Nil fields are left unchanged
type UpdateUserParams struct {
	Email          *string
	HashedPassword *string
}

// User repository interface
type UserRepo interface {
	// Create user
	// If user with username or email exists already has to return error apperrors.ErrUserAlreadyExists
	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)

	// Get user by it's id or email
	// If user not found must return apperrors.ErrUserNotFound
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)

	// List users ordered by creation time
	ListUsers(ctx context.Context) ([]models.User, error)

	// Update user, apperrors.ErrUserNotFound if there is no such user
	// Email taken by another user: apperrors.ErrUserAlreadyExists
	UpdateUser(ctx context.Context, userID uuid.UUID, params UpdateUserParams) (models.User, error)

	// Delete user with its oauth links
	// If user not found must return apperrors.ErrUserNotFound
	DeleteUser(ctx context.Context, userID uuid.UUID) error
}

// Refresh token ledger: the latest refresh token issued per subject
type RefreshTokenRepo interface {
	// Create or overwrite the subject record
	Save(ctx context.Context, record models.RefreshTokenRecord) (models.RefreshTokenRecord, error)

	// Return the subject record
	// If there is no record must return apperrors.ErrStaleSession
	Get(ctx context.Context, subject string) (models.RefreshTokenRecord, error)

	// Replace the record only if it still holds 'presented' token
	// If there is no record or it holds another token must return apperrors.ErrStaleSession
	Rotate(ctx context.Context, presented string, next models.RefreshTokenRecord) (models.RefreshTokenRecord, error)

	// Forget subject record, so none of its refresh tokens can be rotated
	// Noop if there is no record
	Delete(ctx context.Context, subject string) error
}

// OAuth links repository interface
type OAuthLinkRepo interface {
	// Create link
	// (provider, providerID) taken by any user: apperrors.ErrAlreadyLinkedElsewhere
	// (userID, provider) taken: apperrors.ErrAlreadyLinkedSameProvider
	Create(ctx context.Context, link models.OAuthLink) (models.OAuthLink, error)

	// If link not found must return apperrors.ErrLinkNotFound
	GetByIdentity(ctx context.Context, provider string, providerID string) (models.OAuthLink, error)
	GetByUserProvider(ctx context.Context, userID uuid.UUID, provider string) (models.OAuthLink, error)

	// List user links ordered by creation time
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.OAuthLink, error)

	// If link not found must return apperrors.ErrLinkNotFound
	Delete(ctx context.Context, userID uuid.UUID, provider string) error
}

type Storage interface {
	User() UserRepo
	Refresh() RefreshTokenRepo
	Link() OAuthLinkRepo

	// Run fn in transaction. Commit if fn returns nil, rollback otherwise
	InTx(ctx context.Context, fn func(Storage) error) error
}
