package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/blogauth/internal/apperrors"
	"github.com/nkiryanov/blogauth/internal/models"
	"github.com/nkiryanov/blogauth/internal/repository"
	"github.com/nkiryanov/blogauth/internal/testutil"
)

func testUserParams(name string) repository.CreateUserParams {
	return repository.CreateUserParams{
		Username:       name,
		Email:          name + "@x.com",
		HashedPassword: "hashedpassword123",
	}
}

func Test_UserRepo(t *testing.T) {
	t.Parallel() // It's ok to run in parallel with other tests, but not with subtests

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	t.Run("create user ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			user, err := r.CreateUser(t.Context(), testUserParams("testuser"))

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, user.ID, "ID should be generated")
			assert.Equal(t, "testuser", user.Username)
			assert.Equal(t, "testuser@x.com", user.Email)
			assert.Equal(t, "hashedpassword123", user.HashedPassword)
			assert.Equal(t, models.RoleUser, user.Role, "role should be USER by default")
			assert.WithinDuration(t, time.Now(), user.CreatedAt, time.Second, "CreatedAt should be recent")
		})
	})

	t.Run("create admin ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			params := testUserParams("admin")
			params.Role = models.RoleAdmin

			user, err := r.CreateUser(t.Context(), params)

			require.NoError(t, err)
			assert.Equal(t, models.RoleAdmin, user.Role)
		})
	})

	t.Run("create duplicate fail", func(t *testing.T) {
		tests := []struct {
			name   string
			modify func(p *repository.CreateUserParams)
		}{
			{
				name:   "same username",
				modify: func(p *repository.CreateUserParams) { p.Email = "other@x.com" },
			},
			{
				name:   "same email",
				modify: func(p *repository.CreateUserParams) { p.Username = "other" },
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
					r := UserRepo{DB: tx}
					params := testUserParams("duplicate")
					_, err := r.CreateUser(t.Context(), params)
					require.NoError(t, err)

					tt.modify(&params)
					_, err = r.CreateUser(t.Context(), params)

					require.Error(t, err)
					assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
				})
			})
		}
	})

	t.Run("get user by id ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), testUserParams("findbyid"))
			require.NoError(t, err)

			got, err := r.GetUserByID(t.Context(), created.ID)

			require.NoError(t, err)
			assert.Equal(t, created, got)
		})
	})

	t.Run("get user by id not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.GetUserByID(t.Context(), uuid.New())

			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "should return well known error")
		})
	})

	t.Run("get user by email ok", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), testUserParams("findbyemail"))
			require.NoError(t, err)

			got, err := r.GetUserByEmail(t.Context(), "findbyemail@x.com")

			require.NoError(t, err)
			assert.Equal(t, created, got)
		})
	})

	t.Run("get user by email not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.GetUserByEmail(t.Context(), "nobody@x.com")

			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("list users ordered", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			first, err := r.CreateUser(t.Context(), testUserParams("first"))
			require.NoError(t, err)
			second, err := r.CreateUser(t.Context(), testUserParams("second"))
			require.NoError(t, err)

			users, err := r.ListUsers(t.Context())

			require.NoError(t, err)
			require.Len(t, users, 2)
			ids := []uuid.UUID{users[0].ID, users[1].ID}
			assert.ElementsMatch(t, []uuid.UUID{first.ID, second.ID}, ids, "same transaction, same created_at")
		})
	})

	t.Run("list users empty", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			users, err := r.ListUsers(t.Context())

			require.NoError(t, err)
			assert.Empty(t, users)
		})
	})

	t.Run("update user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), testUserParams("update"))
			require.NoError(t, err)
			email := "new@x.com"
			hash := "newhash"

			onlyEmail, err := r.UpdateUser(t.Context(), created.ID, repository.UpdateUserParams{Email: &email})
			require.NoError(t, err)
			assert.Equal(t, "new@x.com", onlyEmail.Email)
			assert.Equal(t, created.HashedPassword, onlyEmail.HashedPassword, "nil field has to stay unchanged")

			both, err := r.UpdateUser(t.Context(), created.ID, repository.UpdateUserParams{HashedPassword: &hash})
			require.NoError(t, err)
			assert.Equal(t, "new@x.com", both.Email)
			assert.Equal(t, "newhash", both.HashedPassword)
			assert.Equal(t, created.Username, both.Username)
		})
	})

	t.Run("update user not found", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}

			_, err := r.UpdateUser(t.Context(), uuid.New(), repository.UpdateUserParams{})

			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
		})
	})

	t.Run("update email taken", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			_, err := r.CreateUser(t.Context(), testUserParams("taken"))
			require.NoError(t, err)
			other, err := r.CreateUser(t.Context(), testUserParams("other"))
			require.NoError(t, err)
			email := "taken@x.com"

			_, err = r.UpdateUser(t.Context(), other.ID, repository.UpdateUserParams{Email: &email})

			assert.ErrorIs(t, err, apperrors.ErrUserAlreadyExists)
		})
	})

	t.Run("delete user", func(t *testing.T) {
		testutil.WithTx(pg.Pool, t, func(tx pgx.Tx) {
			r := UserRepo{DB: tx}
			links := OAuthLinkRepo{DB: tx}
			created, err := r.CreateUser(t.Context(), testUserParams("delete"))
			require.NoError(t, err)
			_, err = links.Create(t.Context(), models.OAuthLink{UserID: created.ID, Provider: "github", ProviderID: "1"})
			require.NoError(t, err)

			err = r.DeleteUser(t.Context(), created.ID)

			require.NoError(t, err)
			_, err = r.GetUserByID(t.Context(), created.ID)
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound)
			_, err = links.GetByIdentity(t.Context(), "github", "1")
			assert.ErrorIs(t, err, apperrors.ErrLinkNotFound, "links have to be deleted with user")

			err = r.DeleteUser(t.Context(), created.ID)
			assert.ErrorIs(t, err, apperrors.ErrUserNotFound, "second delete has nothing to delete")
		})
	})
}
