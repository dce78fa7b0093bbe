package handlers

import (
	"errors"
	"net/http"

	"github.com/nkiryanov/blogauth/internal/apperrors"
	"github.com/nkiryanov/blogauth/internal/handlers/render"
	"github.com/nkiryanov/blogauth/internal/logger"
	"github.com/nkiryanov/blogauth/internal/service/user"
)

type MessageResponse struct {
	Message string `json:"message"`
}

func handleRegister(authService authService, l logger.Logger) http.Handler {
	type RegisterRequest struct {
		Username string `json:"username" validate:"required,min=3,max=50"`
		Email    string `json:"email" validate:"required,email,max=255"`
		Password string `json:"password" validate:"required,password"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[RegisterRequest](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Register(r.Context(), user.CreateParams{
			Username: data.Username,
			Email:    data.Email,
			Password: data.Password,
		})
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrUserAlreadyExists):
				render.ServiceError(w, "User already exists", http.StatusConflict)
			default:
				l.Error("Register failed", "username", data.Username, "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		authService.SetTokens(w, pair)
		render.JSON(w, MessageResponse{Message: "User registered successfully"})
	})
}

func handleLogin(authService authService, l logger.Logger) http.Handler {
	type LoginRequest struct {
		Email    string `json:"email" validate:"required,email"`
		Password string `json:"password" validate:"required"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[LoginRequest](w, r)
		if err != nil {
			return
		}

		pair, err := authService.Login(r.Context(), data.Email, data.Password)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrAuthenticationFailed):
				l.Info("Login failed", "email", data.Email)
				render.ServiceError(w, "Invalid email or password", http.StatusUnauthorized)
			default:
				l.Error("Login failed", "email", data.Email, "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		authService.SetTokens(w, pair)
		render.JSON(w, MessageResponse{Message: "User logged in successfully"})
	})
}

func handleTokenRefresh(authService authService, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refresh, err := authService.GetRefresh(r)
		if err != nil {
			render.ServiceError(w, "Refresh token not found", http.StatusUnauthorized)
			return
		}

		pair, err := authService.Refresh(r.Context(), refresh)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidRefreshToken):
				render.ServiceError(w, "Refresh token is invalid or expired", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrStaleSession):
				l.Info("Stale refresh token presented", "token", logger.Redact(refresh))
				render.ServiceError(w, "Session is expired, please login again", http.StatusUnauthorized)
			default:
				l.Error("Refresh failed", "token", logger.Redact(refresh), "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		authService.SetTokens(w, pair)
		render.JSON(w, MessageResponse{Message: "Tokens refreshed successfully"})
	})
}

func handleLogout(authService authService) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authService.Logout(w)
		render.JSON(w, MessageResponse{Message: "Logged out successfully"})
	})
}
