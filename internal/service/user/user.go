package user

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/nkiryanov/blogauth/internal/apperrors"
	"github.com/nkiryanov/blogauth/internal/models"
	"github.com/nkiryanov/blogauth/internal/repository"
)

type CreateParams struct {
	Username string
	Email    string
	Password string
	Role     string
}

// Nil fields are left unchanged
type UpdateParams struct {
	Email    *string
	Password *string
}

// User directory: accounts and their password credentials
type UserService struct {
	hasher   PasswordHasher
	storage  repository.Storage
	userRepo repository.UserRepo

	// Compared against when user is unknown, so response time does not reveal it
	dummyOnce sync.Once
	dummyHash string
}

func NewService(hasher PasswordHasher, storage repository.Storage) *UserService {
	if hasher == nil {
		hasher = DefaultHasher
	}

	s := &UserService{
		hasher:  hasher,
		storage: storage,
	}
	if storage != nil {
		s.userRepo = storage.User()
	}

	return s
}

func (s *UserService) CreateUser(ctx context.Context, params CreateParams) (models.User, error) {
	var user models.User
	if params.Password == "" {
		return user, errors.New("password must not be empty")
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return user, fmt.Errorf("can't use this as password, Err: %w", err)
	}

	user, err = s.userRepo.CreateUser(ctx, repository.CreateUserParams{
		Username:       params.Username,
		Email:          params.Email,
		HashedPassword: hash,
		Role:           params.Role,
	})
	if err != nil {
		return user, fmt.Errorf("can't create user. Err: %w", err)
	}

	return user, nil
}

// Verify email and password
// Unknown email and wrong password are both apperrors.ErrAuthenticationFailed
func (s *UserService) Verify(ctx context.Context, email string, password string) (models.User, error) {
	user, err := s.userRepo.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
	case errors.Is(err, apperrors.ErrUserNotFound):
		_ = s.hasher.Compare(s.dummy(), password)
		return models.User{}, apperrors.ErrAuthenticationFailed
	default:
		return models.User{}, fmt.Errorf("can't get user. Err: %w", err)
	}

	if err := s.hasher.Compare(user.HashedPassword, password); err != nil {
		return models.User{}, apperrors.ErrAuthenticationFailed
	}

	return user, nil
}

func (s *UserService) GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return s.userRepo.GetUserByID(ctx, userID)
}

func (s *UserService) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.userRepo.ListUsers(ctx)
}

// Update email and password
// Changed password logs the user out: the refresh ledger record is dropped
func (s *UserService) UpdateUser(ctx context.Context, userID uuid.UUID, params UpdateParams) (models.User, error) {
	var update repository.UpdateUserParams
	update.Email = params.Email

	if params.Password != nil {
		if *params.Password == "" {
			return models.User{}, errors.New("password must not be empty")
		}
		hash, err := s.hasher.Hash(*params.Password)
		if err != nil {
			return models.User{}, fmt.Errorf("can't use this as password, Err: %w", err)
		}
		update.HashedPassword = &hash
	}

	var user models.User
	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		var err error
		user, err = storage.User().UpdateUser(ctx, userID, update)
		if err != nil {
			return err
		}

		if update.HashedPassword != nil {
			return storage.Refresh().Delete(ctx, userID.String())
		}
		return nil
	})
	if err != nil {
		return models.User{}, fmt.Errorf("can't update user. Err: %w", err)
	}

	return user, nil
}

// Delete user with its oauth links and session
func (s *UserService) DeleteUser(ctx context.Context, userID uuid.UUID) error {
	err := s.storage.InTx(ctx, func(storage repository.Storage) error {
		if err := storage.User().DeleteUser(ctx, userID); err != nil {
			return err
		}
		return storage.Refresh().Delete(ctx, userID.String())
	})
	if err != nil {
		return fmt.Errorf("can't delete user. Err: %w", err)
	}

	return nil
}

// Latest session of the user, false if user never logged in or was logged out
func (s *UserService) Session(ctx context.Context, userID uuid.UUID) (models.RefreshTokenRecord, bool, error) {
	record, err := s.storage.Refresh().Get(ctx, userID.String())
	switch {
	case err == nil:
		return record, true, nil
	case errors.Is(err, apperrors.ErrStaleSession):
		return models.RefreshTokenRecord{}, false, nil
	default:
		return models.RefreshTokenRecord{}, false, err
	}
}

// Create admin account unless user with such username or email exists already
// Returns true if admin was created
func (s *UserService) EnsureAdmin(ctx context.Context, username string, email string, password string) (bool, error) {
	_, err := s.CreateUser(ctx, CreateParams{
		Username: username,
		Email:    email,
		Password: password,
		Role:     models.RoleAdmin,
	})

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperrors.ErrUserAlreadyExists):
		return false, nil
	default:
		return false, err
	}
}

func (s *UserService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("dummy-password")
	})
	return s.dummyHash
}
