package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/nkiryanov/blogauth/internal/handlers/middleware"
	"github.com/nkiryanov/blogauth/internal/logger"
	"github.com/nkiryanov/blogauth/internal/metrics"
	"github.com/nkiryanov/blogauth/internal/models"
	"github.com/nkiryanov/blogauth/internal/service/user"
)

const apiPrefix = "/api/v1"

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

type RouterConfig struct {
	// Key expected in X-API-KEY header of internal endpoints, guard is off if empty
	InternalAPIKey string

	// Login and exchange requests per minute per client IP, no limit if zero
	LoginRateLimit int
}

func NewRouter(
	cfg RouterConfig,
	authService authService,
	oauthService oauthService,
	links linkRegistry,
	users userService,
	logger logger.Logger,
	m *metrics.Metrics,
) http.Handler {
	withAuth := middleware.AuthMiddleware(authService)
	withAPIKey := middleware.APIKeyMiddleware(cfg.InternalAPIKey)
	withAdmin := func(h http.Handler) http.Handler {
		return withAuth(middleware.RoleMiddleware(models.RoleAdmin)(h))
	}
	limiter := middleware.NewRateLimiter(cfg.LoginRateLimit)

	mux := http.NewServeMux()

	mux.Handle("POST "+apiPrefix+"/auth/register", handleRegister(authService, logger))
	mux.Handle("POST "+apiPrefix+"/auth/login", limiter.Middleware(handleLogin(authService, logger)))
	mux.Handle("POST "+apiPrefix+"/auth/refresh", handleTokenRefresh(authService, logger))
	mux.Handle("POST "+apiPrefix+"/auth/logout", handleLogout(authService))
	mux.Handle("GET "+apiPrefix+"/auth/me", withAuth(handleUserMe()))

	mux.Handle("POST "+apiPrefix+"/oauth/login", withAPIKey(handleOAuthLogin(oauthService, logger)))
	mux.Handle("POST "+apiPrefix+"/oauth/exchange", limiter.Middleware(handleOAuthExchange(oauthService, authService, logger)))
	mux.Handle("POST "+apiPrefix+"/oauth/link", withAuth(handleLink(links, logger)))
	mux.Handle("DELETE "+apiPrefix+"/oauth/unlink", withAuth(handleUnlink(links, logger)))
	mux.Handle("GET "+apiPrefix+"/oauth/linked", withAuth(handleListLinked(links, logger)))

	mux.Handle("GET "+apiPrefix+"/users", withAdmin(handleListUsers(users, logger)))
	mux.Handle("GET "+apiPrefix+"/users/{id}", withAuth(handleGetUser(users, logger)))
	mux.Handle("PATCH "+apiPrefix+"/users/{id}", withAuth(handleUpdateUser(users, logger)))
	mux.Handle("DELETE "+apiPrefix+"/users/{id}", withAuth(handleDeleteUser(users, logger)))

	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}

	handler := chain(mux,
		middleware.LoggerMiddleware(logger),
		middleware.MetricsMiddleware(m),
	)

	return handler
}

type authService interface {
	// Register user, has to return apperrors.ErrUserAlreadyExists if username or email is taken
	Register(ctx context.Context, params user.CreateParams) (models.TokenPair, error)

	// Login user with email and password
	// Has to return apperrors.ErrAuthenticationFailed if credentials are wrong
	Login(ctx context.Context, email string, password string) (models.TokenPair, error)

	// Refresh tokens using refresh token
	// If token invalid or expired: has to return apperrors.ErrInvalidRefreshToken
	// If token superseded or session unknown: has to return apperrors.ErrStaleSession
	Refresh(ctx context.Context, refresh string) (models.TokenPair, error)

	// Set auth tokens (access, refresh) to response
	SetTokens(w http.ResponseWriter, pair models.TokenPair)

	// Get refresh token from request
	GetRefresh(r *http.Request) (string, error)

	// Expire refresh token on the client
	Logout(w http.ResponseWriter)

	// Get principal from request access token
	Authenticate(r *http.Request) (models.Principal, error)
}

type oauthService interface {
	// Issue exchange code for external identity
	Login(ctx context.Context, identity models.Identity) (string, error)

	// Redeem code to the linked user session
	// apperrors.ErrInvalidCode, apperrors.ErrCodeExpired, apperrors.ErrAccountNotLinked
	Exchange(ctx context.Context, code string) (models.TokenPair, error)
}

type linkRegistry interface {
	Link(ctx context.Context, userID uuid.UUID, provider string, providerID string) (models.OAuthLink, error)
	Unlink(ctx context.Context, userID uuid.UUID, provider string) error
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.OAuthLink, error)
}

// Account management, admins manage everyone and users themselves
type userService interface {
	// Has to return apperrors.ErrUserNotFound if there is no such user
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)

	ListUsers(ctx context.Context) ([]models.User, error)

	// Email taken: apperrors.ErrUserAlreadyExists
	UpdateUser(ctx context.Context, userID uuid.UUID, params user.UpdateParams) (models.User, error)

	DeleteUser(ctx context.Context, userID uuid.UUID) error

	// Latest refresh ledger record of the user
	Session(ctx context.Context, userID uuid.UUID) (models.RefreshTokenRecord, bool, error)
}
