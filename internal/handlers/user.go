package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nkiryanov/blogauth/internal/apperrors"
	"github.com/nkiryanov/blogauth/internal/handlers/render"
	"github.com/nkiryanov/blogauth/internal/handlers/userctx"
	"github.com/nkiryanov/blogauth/internal/logger"
	"github.com/nkiryanov/blogauth/internal/models"
	"github.com/nkiryanov/blogauth/internal/service/user"
)

type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Set only if the user has a session that is not expired yet
	SessionExpiresAt *time.Time `json:"sessionExpiresAt,omitempty"`
}

func newUserResponse(u models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func handleUserMe() http.Handler {
	type response struct {
		Subject string   `json:"subject"`
		Roles   []string `json:"roles"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, _ := userctx.FromContext(r.Context())
		render.JSON(w, response{Subject: p.Subject, Roles: p.Roles})
	})
}

func handleListUsers(users userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		list, err := users.ListUsers(r.Context())
		if err != nil {
			l.Error("List users failed", "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := make([]UserResponse, 0, len(list))
		for _, u := range list {
			res = append(res, newUserResponse(u))
		}
		render.JSON(w, res)
	})
}

func handleGetUser(users userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := targetUserID(w, r)
		if !ok {
			return
		}

		u, err := users.GetUserByID(r.Context(), userID)
		if err != nil {
			renderUserError(w, l, "Get user failed", userID, err)
			return
		}

		session, found, err := users.Session(r.Context(), userID)
		if err != nil {
			l.Error("Get user session failed", "user", userID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := newUserResponse(u)
		if found && session.ExpiresAt.After(time.Now()) {
			res.SessionExpiresAt = &session.ExpiresAt
		}
		render.JSON(w, res)
	})
}

func handleUpdateUser(users userService, l logger.Logger) http.Handler {
	type UpdateRequest struct {
		Email    *string `json:"email" validate:"omitempty,email,max=255"`
		Password *string `json:"password" validate:"omitempty,password"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := targetUserID(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[UpdateRequest](w, r)
		if err != nil {
			return
		}

		u, err := users.UpdateUser(r.Context(), userID, user.UpdateParams{Email: data.Email, Password: data.Password})
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "Email is taken", http.StatusConflict)
			default:
				renderUserError(w, l, "Update user failed", userID, err)
			}
			return
		}

		render.JSON(w, newUserResponse(u))
	})
}

func handleDeleteUser(users userService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := targetUserID(w, r)
		if !ok {
			return
		}

		if err := users.DeleteUser(r.Context(), userID); err != nil {
			renderUserError(w, l, "Delete user failed", userID, err)
			return
		}

		render.JSON(w, MessageResponse{Message: "User deleted successfully"})
	})
}

// Id of the user from path if principal may manage it: the user itself or admin
// Writes error response otherwise
func targetUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	p, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		render.ServiceError(w, "User not found", http.StatusNotFound)
		return uuid.Nil, false
	}

	if p.Subject != userID.String() && !p.HasRole(models.RoleAdmin) {
		render.ServiceError(w, "Forbidden", http.StatusForbidden)
		return uuid.Nil, false
	}

	return userID, true
}

func renderUserError(w http.ResponseWriter, l logger.Logger, msg string, userID uuid.UUID, err error) {
	if errors.Is(err, apperrors.ErrUserNotFound) {
		render.ServiceError(w, "User not found", http.StatusNotFound)
		return
	}

	l.Error(msg, "user", userID, "error", err)
	render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
}
