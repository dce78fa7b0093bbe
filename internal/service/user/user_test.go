package user

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/nkiryanov/blogauth/internal/apperrors"
	"github.com/nkiryanov/blogauth/internal/models"
	"github.com/nkiryanov/blogauth/internal/repository/postgres"
	"github.com/nkiryanov/blogauth/internal/testutil"
)

// Hasher that counts compares, to check unknown users are compared too
type countingHasher struct {
	BcryptHasher
	compares int
}

func (h *countingHasher) Compare(hashedPassword string, password string) error {
	h.compares++
	return h.BcryptHasher.Compare(hashedPassword, password)
}

func testParams() CreateParams {
	return CreateParams{Username: "test-user", Email: "a@x.com", Password: "Pw1!aaaa"}
}

func TestUser(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	hasher := BcryptHasher{Cost: bcrypt.MinCost}

	// Helper function to create UserService within transaction
	inTx := func(t *testing.T, fn func(s *UserService)) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			fn(NewService(hasher, postgres.NewStorage(tx)))
		})
	}

	t.Run("new defaults", func(t *testing.T) {
		s := NewService(nil, nil)

		require.Equal(t, DefaultHasher, s.hasher)
	})

	t.Run("CreateUser", func(t *testing.T) {
		t.Run("create ok", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				user, err := s.CreateUser(t.Context(), testParams())

				require.NoError(t, err, "creating new user should be ok")
				require.NotEmpty(t, user.ID, "user ID should not be empty")
				require.Equal(t, "test-user", user.Username, "username should match")
				require.Equal(t, "a@x.com", user.Email)
				require.Equal(t, models.RoleUser, user.Role)
				require.NotEmpty(t, user.HashedPassword, "password hash should not be empty")
				require.NotEqual(t, "Pw1!aaaa", user.HashedPassword, "password should be hashed")
				require.NotZero(t, user.CreatedAt, "created at should be set")
			})
		})

		t.Run("empty password fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				params := testParams()
				params.Password = ""

				_, err := s.CreateUser(t.Context(), params)

				require.Error(t, err, "creating user with empty password should fail")
			})
		})

		t.Run("create duplicate user fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), testParams())
				require.NoError(t, err, "first user creation should succeed")

				params := testParams()
				params.Password = "different_password"
				_, err = s.CreateUser(t.Context(), params)

				require.Error(t, err, "creating duplicate user should fail")
				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
			})
		})
	})

	t.Run("Verify", func(t *testing.T) {
		t.Run("verify ok", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				createdUser, err := s.CreateUser(t.Context(), testParams())
				require.NoError(t, err)

				user, err := s.Verify(t.Context(), "a@x.com", "Pw1!aaaa")

				require.NoError(t, err, "verify with correct credentials should succeed")
				require.Equal(t, createdUser, user)
			})
		})

		t.Run("invalid password fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), testParams())
				require.NoError(t, err)

				_, err = s.Verify(t.Context(), "a@x.com", "wrong")

				require.ErrorIs(t, err, apperrors.ErrAuthenticationFailed)
			})
		})

		t.Run("not existed user fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.Verify(t.Context(), "nobody@x.com", "Pw1!aaaa")

				require.ErrorIs(t, err, apperrors.ErrAuthenticationFailed)
				require.NotErrorIs(t, err, apperrors.ErrUserNotFound, "must not reveal user absence")
			})
		})

		t.Run("unknown user still compares password", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				h := &countingHasher{BcryptHasher: hasher}
				s := NewService(h, postgres.NewStorage(tx))

				_, err := s.Verify(t.Context(), "nobody@x.com", "Pw1!aaaa")

				require.Error(t, err)
				require.Equal(t, 1, h.compares)
			})
		})
	})

	t.Run("GetUserByID", func(t *testing.T) {
		t.Run("existed ok", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				createdUser, err := s.CreateUser(t.Context(), testParams())
				require.NoError(t, err)

				user, err := s.GetUserByID(t.Context(), createdUser.ID)

				require.NoError(t, err, "getting existing user by ID should succeed")
				require.Equal(t, createdUser, user)
			})
		})

		t.Run("not existed fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.GetUserByID(t.Context(), uuid.New()) // Non-existent ID

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})

	t.Run("EnsureAdmin", func(t *testing.T) {
		t.Run("created once", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				created, err := s.EnsureAdmin(t.Context(), "admin", "admin@x.com", "admin1234")
				require.NoError(t, err)
				require.True(t, created)

				admin, err := s.Verify(t.Context(), "admin@x.com", "admin1234")
				require.NoError(t, err)
				require.Equal(t, models.RoleAdmin, admin.Role)

				// Unique violation aborts the transaction, so it goes last
				created, err = s.EnsureAdmin(t.Context(), "admin", "admin@x.com", "admin1234")
				require.NoError(t, err)
				require.False(t, created, "second call has to be noop")
			})
		})
	})

	t.Run("ListUsers", func(t *testing.T) {
		inTx(t, func(s *UserService) {
			created, err := s.CreateUser(t.Context(), testParams())
			require.NoError(t, err)

			users, err := s.ListUsers(t.Context())

			require.NoError(t, err)
			require.Equal(t, []models.User{created}, users)
		})
	})

	t.Run("UpdateUser", func(t *testing.T) {
		t.Run("email", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				created, err := s.CreateUser(t.Context(), testParams())
				require.NoError(t, err)
				email := "b@x.com"

				updated, err := s.UpdateUser(t.Context(), created.ID, UpdateParams{Email: &email})

				require.NoError(t, err)
				require.Equal(t, "b@x.com", updated.Email)
				_, err = s.Verify(t.Context(), "b@x.com", "Pw1!aaaa")
				require.NoError(t, err, "password stays the same")
			})
		})

		t.Run("password rehashed and session dropped", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				storage := postgres.NewStorage(tx)
				s := NewService(hasher, storage)
				created, err := s.CreateUser(t.Context(), testParams())
				require.NoError(t, err)
				_, err = storage.Refresh().Save(t.Context(), models.RefreshTokenRecord{
					Subject:   created.ID.String(),
					Token:     "refresh",
					ExpiresAt: time.Now().Add(time.Hour),
				})
				require.NoError(t, err)
				password := "New1!pass"

				updated, err := s.UpdateUser(t.Context(), created.ID, UpdateParams{Password: &password})

				require.NoError(t, err)
				require.NotEqual(t, created.HashedPassword, updated.HashedPassword)
				require.NotEqual(t, password, updated.HashedPassword, "password should be hashed")
				_, err = s.Verify(t.Context(), "a@x.com", "Pw1!aaaa")
				require.ErrorIs(t, err, apperrors.ErrAuthenticationFailed, "old password has to stop working")
				_, err = s.Verify(t.Context(), "a@x.com", password)
				require.NoError(t, err)

				_, ok, err := s.Session(t.Context(), created.ID)
				require.NoError(t, err)
				require.False(t, ok, "password change has to log user out")
			})
		})

		t.Run("empty password fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				created, err := s.CreateUser(t.Context(), testParams())
				require.NoError(t, err)
				empty := ""

				_, err = s.UpdateUser(t.Context(), created.ID, UpdateParams{Password: &empty})

				require.Error(t, err)
			})
		})

		t.Run("not existed fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				email := "b@x.com"

				_, err := s.UpdateUser(t.Context(), uuid.New(), UpdateParams{Email: &email})

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})

		t.Run("email taken fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				_, err := s.CreateUser(t.Context(), testParams())
				require.NoError(t, err)
				other, err := s.CreateUser(t.Context(), CreateParams{Username: "other", Email: "b@x.com", Password: "Pw1!aaaa"})
				require.NoError(t, err)
				email := "a@x.com"

				_, err = s.UpdateUser(t.Context(), other.ID, UpdateParams{Email: &email})
				require.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)

				// Update runs in savepoint, transaction is still usable
				got, err := s.GetUserByID(t.Context(), other.ID)
				require.NoError(t, err)
				require.Equal(t, "b@x.com", got.Email)
			})
		})
	})

	t.Run("DeleteUser", func(t *testing.T) {
		t.Run("delete ok", func(t *testing.T) {
			testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
				storage := postgres.NewStorage(tx)
				s := NewService(hasher, storage)
				created, err := s.CreateUser(t.Context(), testParams())
				require.NoError(t, err)
				_, err = storage.Refresh().Save(t.Context(), models.RefreshTokenRecord{
					Subject:   created.ID.String(),
					Token:     "refresh",
					ExpiresAt: time.Now().Add(time.Hour),
				})
				require.NoError(t, err)
				_, err = storage.Link().Create(t.Context(), models.OAuthLink{UserID: created.ID, Provider: "github", ProviderID: "1"})
				require.NoError(t, err)

				err = s.DeleteUser(t.Context(), created.ID)

				require.NoError(t, err)
				_, err = s.GetUserByID(t.Context(), created.ID)
				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
				_, ok, err := s.Session(t.Context(), created.ID)
				require.NoError(t, err)
				require.False(t, ok, "session has to be deleted with user")
				_, err = storage.Link().GetByIdentity(t.Context(), "github", "1")
				require.ErrorIs(t, err, apperrors.ErrLinkNotFound, "links have to be deleted with user")
			})
		})

		t.Run("not existed fail", func(t *testing.T) {
			inTx(t, func(s *UserService) {
				err := s.DeleteUser(t.Context(), uuid.New())

				require.ErrorIs(t, err, apperrors.ErrUserNotFound)
			})
		})
	})

	t.Run("Session", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			s := NewService(hasher, storage)
			created, err := s.CreateUser(t.Context(), testParams())
			require.NoError(t, err)

			_, ok, err := s.Session(t.Context(), created.ID)
			require.NoError(t, err)
			require.False(t, ok, "never logged in")

			expiresAt := time.Now().Add(time.Hour)
			_, err = storage.Refresh().Save(t.Context(), models.RefreshTokenRecord{Subject: created.ID.String(), Token: "refresh", ExpiresAt: expiresAt})
			require.NoError(t, err)

			record, ok, err := s.Session(t.Context(), created.ID)
			require.NoError(t, err)
			require.True(t, ok)
			require.WithinDuration(t, expiresAt, record.ExpiresAt, time.Millisecond)
		})
	})
}
