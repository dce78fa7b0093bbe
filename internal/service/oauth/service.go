package oauth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/nkiryanov/blogauth/internal/apperrors"
	"github.com/nkiryanov/blogauth/internal/logger"
	"github.com/nkiryanov/blogauth/internal/metrics"
	"github.com/nkiryanov/blogauth/internal/models"
)

type userGetter interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (models.User, error)
}

type sessionIssuer interface {
	IssueForUser(ctx context.Context, u models.User) (models.TokenPair, error)
}

// OAuth login: the upstream server gets a code for the identity,
// the browser exchanges it for a session
type Service struct {
	broker   *Broker
	registry *Registry
	users    userGetter
	sessions sessionIssuer
	logger   logger.Logger
	metrics  *metrics.Metrics
}

func NewService(broker *Broker, registry *Registry, users userGetter, sessions sessionIssuer, l logger.Logger, m *metrics.Metrics) *Service {
	return &Service{
		broker:   broker,
		registry: registry,
		users:    users,
		sessions: sessions,
		logger:   l,
		metrics:  m,
	}
}

func (s *Service) Login(ctx context.Context, identity models.Identity) (code string, err error) {
	defer func() { s.metrics.Event(metrics.EventIssue, err) }()

	identity.Provider = normalizeProvider(identity.Provider)
	return s.broker.Issue(ctx, identity)
}

// Exchange code to the session of the user the identity is linked to
// Users are never created here: unlinked identity is apperrors.ErrAccountNotLinked
func (s *Service) Exchange(ctx context.Context, code string) (pair models.TokenPair, err error) {
	defer func() { s.metrics.Event(metrics.EventExchange, err) }()

	identity, err := s.broker.Redeem(ctx, code)
	if err != nil {
		s.logger.Info("Exchange code rejected", "code", logger.Redact(code), "error", err)
		return pair, err
	}

	userID, ok, err := s.registry.Resolve(ctx, identity.Provider, identity.ProviderID)
	if err != nil {
		return pair, err
	}
	if !ok {
		s.logger.Info("Exchange for not linked identity", "provider", identity.Provider)
		return pair, apperrors.ErrAccountNotLinked
	}

	u, err := s.users.GetUserByID(ctx, userID)
	if err != nil {
		// Links cascade on user delete, so it is a race at worst
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return pair, apperrors.ErrAccountNotLinked
		}
		return pair, fmt.Errorf("error while getting linked user. Err: %w", err)
	}

	return s.sessions.IssueForUser(ctx, u)
}
