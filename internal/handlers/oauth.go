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
)

type IdentityRequest struct {
	Provider   string `json:"provider" validate:"required,max=32"`
	ProviderID string `json:"providerId" validate:"required,max=255"`
}

type LinkResponse struct {
	Provider  string    `json:"provider"`
	CreatedAt time.Time `json:"createdAt"`
}

// Called by the upstream server that did the provider handshake
func handleOAuthLogin(oauthService oauthService, l logger.Logger) http.Handler {
	type response struct {
		Code string `json:"code"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[IdentityRequest](w, r)
		if err != nil {
			return
		}

		code, err := oauthService.Login(r.Context(), models.Identity{Provider: data.Provider, ProviderID: data.ProviderID})
		if err != nil {
			l.Error("Exchange code issue failed", "provider", data.Provider, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		render.JSON(w, response{Code: code})
	})
}

func handleOAuthExchange(oauthService oauthService, authService authService, l logger.Logger) http.Handler {
	type ExchangeRequest struct {
		Code string `json:"code" validate:"required,max=128"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := render.BindAndValidate[ExchangeRequest](w, r)
		if err != nil {
			return
		}

		pair, err := oauthService.Exchange(r.Context(), data.Code)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrInvalidCode):
				render.ServiceError(w, "Invalid code", http.StatusBadRequest)
			case errors.Is(err, apperrors.ErrCodeExpired):
				render.ServiceError(w, "Code expired", http.StatusUnauthorized)
			case errors.Is(err, apperrors.ErrAccountNotLinked):
				render.ServiceError(w, "Account is not linked, login and link it first", http.StatusBadRequest)
			default:
				l.Error("Exchange failed", "code", logger.Redact(data.Code), "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		authService.SetTokens(w, pair)
		render.JSON(w, MessageResponse{Message: "User logged in successfully"})
	})
}

func handleLink(links linkRegistry, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[IdentityRequest](w, r)
		if err != nil {
			return
		}

		link, err := links.Link(r.Context(), userID, data.Provider, data.ProviderID)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrAlreadyLinkedElsewhere):
				render.ServiceError(w, "Account is linked to another user", http.StatusConflict)
			case errors.Is(err, apperrors.ErrAlreadyLinkedSameProvider):
				render.ServiceError(w, "Account of this provider is linked already", http.StatusConflict)
			default:
				l.Error("Link failed", "user", userID, "provider", data.Provider, "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSONWithStatus(w, LinkResponse{Provider: link.Provider, CreatedAt: link.CreatedAt}, http.StatusCreated)
	})
}

func handleUnlink(links linkRegistry, l logger.Logger) http.Handler {
	type UnlinkRequest struct {
		Provider string `json:"provider" validate:"required,max=32"`
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		data, err := render.BindAndValidate[UnlinkRequest](w, r)
		if err != nil {
			return
		}

		err = links.Unlink(r.Context(), userID, data.Provider)
		if err != nil {
			switch {
			case errors.Is(err, apperrors.ErrLinkNotFound):
				render.ServiceError(w, "Link not found", http.StatusNotFound)
			default:
				l.Error("Unlink failed", "user", userID, "provider", data.Provider, "error", err)
				render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			}
			return
		}

		render.JSON(w, MessageResponse{Message: "Account unlinked successfully"})
	})
}

func handleListLinked(links linkRegistry, l logger.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := currentUserID(w, r)
		if !ok {
			return
		}

		list, err := links.ListByUser(r.Context(), userID)
		if err != nil {
			l.Error("List links failed", "user", userID, "error", err)
			render.ServiceError(w, "Internal server error", http.StatusInternalServerError)
			return
		}

		res := make([]LinkResponse, 0, len(list))
		for _, link := range list {
			res = append(res, LinkResponse{Provider: link.Provider, CreatedAt: link.CreatedAt})
		}
		render.JSON(w, res)
	})
}

// User id of authenticated principal
// Writes error response if there is none
func currentUserID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	p, ok := userctx.FromContext(r.Context())
	if !ok {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(p.Subject)
	if err != nil {
		render.ServiceError(w, "Unauthorized", http.StatusUnauthorized)
		return uuid.Nil, false
	}

	return userID, true
}
