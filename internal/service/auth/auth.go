package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/nkiryanov/blogauth/internal/apperrors"
	"github.com/nkiryanov/blogauth/internal/metrics"
	"github.com/nkiryanov/blogauth/internal/models"
	"github.com/nkiryanov/blogauth/internal/repository"
	"github.com/nkiryanov/blogauth/internal/service/user"
)

const (
	defaultAccessTTL         = 30 * time.Minute
	defaultRefreshTTL        = 7 * 24 * time.Hour
	defaultAccessHeaderName  = "Authorization"
	defaultAccessAuthScheme  = "Bearer"
	defaultRefreshCookieName = "refreshToken"
)

// Signs and checks tokens
type TokenCodec interface {
	Issue(p models.Principal, kind models.TokenKind, ttl time.Duration) (models.IssuedToken, error)

	// Whether token is well formed, correctly signed, not expired and of the kind
	Validate(token string, kind models.TokenKind) bool

	Parse(token string) (models.Principal, error)
}

// Users and their credentials
type UserDirectory interface {
	// Has to return apperrors.ErrAuthenticationFailed on unknown email or wrong password
	Verify(ctx context.Context, email string, password string) (models.User, error)

	// Has to return apperrors.ErrUserAlreadyExists if username or email is taken
	CreateUser(ctx context.Context, params user.CreateParams) (models.User, error)
}

type Config struct {
	// Access and refresh token lifetimes
	// If not set than default is used
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Where tokens are put into response and looked for in requests
	// If not set than default is used
	AccessHeaderName  string
	AccessAuthScheme  string
	RefreshCookieName string

	// Optional
	Metrics *metrics.Metrics
}

// Session issuer: logs users in, rotates and revokes their tokens
type AuthService struct {
	accessTTL  time.Duration
	refreshTTL time.Duration

	accessHeaderName  string
	accessAuthScheme  string
	refreshCookieName string

	codec   TokenCodec
	users   UserDirectory
	ledger  repository.RefreshTokenRepo
	metrics *metrics.Metrics
}

func NewService(cfg Config, codec TokenCodec, users UserDirectory, ledger repository.RefreshTokenRepo) (*AuthService, error) {
	setDefault := func(field *string, def string) {
		if *field == "" {
			*field = def
		}
	}
	setDefault(&cfg.AccessHeaderName, defaultAccessHeaderName)
	setDefault(&cfg.AccessAuthScheme, defaultAccessAuthScheme)
	setDefault(&cfg.RefreshCookieName, defaultRefreshCookieName)

	setDefaultDuration := func(field *time.Duration, def time.Duration) {
		if *field == 0 {
			*field = def
		}
	}
	setDefaultDuration(&cfg.AccessTTL, defaultAccessTTL)
	setDefaultDuration(&cfg.RefreshTTL, defaultRefreshTTL)

	if cfg.AccessTTL < 0 || cfg.RefreshTTL < 0 {
		return nil, errors.New("token lifetimes must be positive")
	}

	return &AuthService{
		accessTTL:         cfg.AccessTTL,
		refreshTTL:        cfg.RefreshTTL,
		accessHeaderName:  cfg.AccessHeaderName,
		accessAuthScheme:  cfg.AccessAuthScheme,
		refreshCookieName: cfg.RefreshCookieName,
		codec:             codec,
		users:             users,
		ledger:            ledger,
		metrics:           cfg.Metrics,
	}, nil
}

func (s *AuthService) Register(ctx context.Context, params user.CreateParams) (pair models.TokenPair, err error) {
	defer func() { s.metrics.Event(metrics.EventRegister, err) }()

	params.Role = models.RoleUser
	u, err := s.users.CreateUser(ctx, params)
	if err != nil {
		return pair, err
	}

	return s.IssueForUser(ctx, u)
}

// Login with email and password
// Has to return apperrors.ErrAuthenticationFailed if credentials are wrong
func (s *AuthService) Login(ctx context.Context, email string, password string) (pair models.TokenPair, err error) {
	defer func() { s.metrics.Event(metrics.EventLogin, err) }()

	u, err := s.users.Verify(ctx, email, password)
	if err != nil {
		return pair, err
	}

	return s.IssueForUser(ctx, u)
}

// Issue token pair and remember the refresh one as the latest for the user
func (s *AuthService) IssueForUser(ctx context.Context, u models.User) (models.TokenPair, error) {
	pair, err := s.issuePair(u.Principal())
	if err != nil {
		return pair, err
	}

	_, err = s.ledger.Save(ctx, models.RefreshTokenRecord{
		Subject:   u.Principal().Subject,
		Token:     pair.Refresh.Value,
		ExpiresAt: pair.Refresh.ExpiresAt,
	})
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while saving refresh token. Err: %w", err)
	}

	return pair, nil
}

// Exchange refresh token to a new pair
// Invalid, expired or forged token: apperrors.ErrInvalidRefreshToken
// Token is not the latest one issued for the subject: apperrors.ErrStaleSession
func (s *AuthService) Refresh(ctx context.Context, refresh string) (pair models.TokenPair, err error) {
	defer func() { s.metrics.Event(metrics.EventRefresh, err) }()

	if !s.codec.Validate(refresh, models.RefreshToken) {
		return pair, apperrors.ErrInvalidRefreshToken
	}

	principal, err := s.codec.Parse(refresh)
	if err != nil {
		return pair, fmt.Errorf("%w: %w", apperrors.ErrInvalidRefreshToken, err)
	}

	pair, err = s.issuePair(principal)
	if err != nil {
		return models.TokenPair{}, err
	}

	_, err = s.ledger.Rotate(ctx, refresh, models.RefreshTokenRecord{
		Subject:   principal.Subject,
		Token:     pair.Refresh.Value,
		ExpiresAt: pair.Refresh.ExpiresAt,
	})
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while rotating refresh token. Err: %w", err)
	}

	return pair, nil
}

func (s *AuthService) issuePair(p models.Principal) (models.TokenPair, error) {
	access, err := s.codec.Issue(p, models.AccessToken, s.accessTTL)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while issuing access token. Err: %w", err)
	}

	refresh, err := s.codec.Issue(p, models.RefreshToken, s.refreshTTL)
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("error while issuing refresh token. Err: %w", err)
	}

	return models.TokenPair{Access: access, Refresh: refresh}, nil
}

// Put access token to the header and refresh token to the cookie
func (s *AuthService) SetTokens(w http.ResponseWriter, pair models.TokenPair) {
	w.Header().Set(s.accessHeaderName, s.accessAuthScheme+" "+pair.Access.Value)
	http.SetCookie(w, s.refreshCookie(pair.Refresh.Value, int(s.refreshTTL.Seconds())))
}

// Expire refresh cookie on the client
// Ledger is left untouched: the refresh token stays valid till it expires or is rotated
func (s *AuthService) Logout(w http.ResponseWriter) {
	s.metrics.Event(metrics.EventLogout, nil)
	http.SetCookie(w, s.refreshCookie("", -1))
}

func (s *AuthService) refreshCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     s.refreshCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (s *AuthService) GetRefresh(r *http.Request) (string, error) {
	cookie, err := r.Cookie(s.refreshCookieName)
	if err != nil || cookie.Value == "" {
		return "", fmt.Errorf("refresh cookie not found: %w", apperrors.ErrInvalidRefreshToken)
	}
	return cookie.Value, nil
}

// Authenticate request by its access token
// Has to return apperrors.ErrAuthenticationFailed if token absent or invalid
func (s *AuthService) Authenticate(r *http.Request) (models.Principal, error) {
	header := r.Header.Get(s.accessHeaderName)
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, s.accessAuthScheme) || token == "" {
		return models.Principal{}, apperrors.ErrAuthenticationFailed
	}

	if !s.codec.Validate(token, models.AccessToken) {
		return models.Principal{}, apperrors.ErrAuthenticationFailed
	}

	principal, err := s.codec.Parse(token)
	if err != nil {
		return models.Principal{}, fmt.Errorf("%w: %w", apperrors.ErrAuthenticationFailed, err)
	}

	return principal, nil
}
