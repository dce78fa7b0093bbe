package oauth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/nkiryanov/blogauth/internal/apperrors"
	"github.com/nkiryanov/blogauth/internal/metrics"
	"github.com/nkiryanov/blogauth/internal/models"
	"github.com/nkiryanov/blogauth/internal/repository"
)

// Registry of explicit links between external identities and users
type Registry struct {
	links   repository.OAuthLinkRepo
	metrics *metrics.Metrics
}

func NewRegistry(links repository.OAuthLinkRepo, m *metrics.Metrics) *Registry {
	return &Registry{links: links, metrics: m}
}

func normalizeProvider(provider string) string {
	return strings.ToLower(strings.TrimSpace(provider))
}

// Link identity to the user
// Identity linked to another user: apperrors.ErrAlreadyLinkedElsewhere
// User has a link for the provider already: apperrors.ErrAlreadyLinkedSameProvider
func (r *Registry) Link(ctx context.Context, userID uuid.UUID, provider string, providerID string) (link models.OAuthLink, err error) {
	defer func() { r.metrics.Event(metrics.EventLink, err) }()

	provider = normalizeProvider(provider)

	// Checked upfront to report the precise reason
	// Concurrent links are still caught by the unique constraints on insert
	existing, err := r.links.GetByIdentity(ctx, provider, providerID)
	switch {
	case err == nil && existing.UserID != userID:
		return link, apperrors.ErrAlreadyLinkedElsewhere
	case err == nil:
		return link, apperrors.ErrAlreadyLinkedSameProvider
	case !errors.Is(err, apperrors.ErrLinkNotFound):
		return link, fmt.Errorf("error while checking identity. Err: %w", err)
	}

	_, err = r.links.GetByUserProvider(ctx, userID, provider)
	switch {
	case err == nil:
		return link, apperrors.ErrAlreadyLinkedSameProvider
	case !errors.Is(err, apperrors.ErrLinkNotFound):
		return link, fmt.Errorf("error while checking user links. Err: %w", err)
	}

	return r.links.Create(ctx, models.OAuthLink{
		UserID:     userID,
		Provider:   provider,
		ProviderID: providerID,
	})
}

// Remove the user link for the provider
// Has to return apperrors.ErrLinkNotFound if there is no such link
func (r *Registry) Unlink(ctx context.Context, userID uuid.UUID, provider string) (err error) {
	defer func() { r.metrics.Event(metrics.EventUnlink, err) }()

	return r.links.Delete(ctx, userID, normalizeProvider(provider))
}

// Resolve identity to the user it is linked to
// ok is false if identity is not linked
func (r *Registry) Resolve(ctx context.Context, provider string, providerID string) (userID uuid.UUID, ok bool, err error) {
	link, err := r.links.GetByIdentity(ctx, normalizeProvider(provider), providerID)
	switch {
	case err == nil:
		return link.UserID, true, nil
	case errors.Is(err, apperrors.ErrLinkNotFound):
		return uuid.Nil, false, nil
	default:
		return uuid.Nil, false, fmt.Errorf("error while resolving identity. Err: %w", err)
	}
}

func (r *Registry) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.OAuthLink, error) {
	return r.links.ListByUser(ctx, userID)
}
