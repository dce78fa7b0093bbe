package oauth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/nkiryanov/blogauth/internal/apperrors"
	"github.com/nkiryanov/blogauth/internal/logger"
	"github.com/nkiryanov/blogauth/internal/metrics"
	"github.com/nkiryanov/blogauth/internal/models"
)

const (
	defaultCodeTTL = 5 * time.Minute

	// 256 bits, collisions are negligible
	codeLen = 32
)

type BrokerConfig struct {
	// Code lifetime, 5 minutes if not set
	TTL time.Duration

	// Clock, time.Now if not set
	Now func() time.Time

	// Optional
	Metrics *metrics.Metrics
}

// Exchange code broker: binds external identity to a single use short lived code
type Broker struct {
	ttl     time.Duration
	now     func() time.Time
	store   CodeStore
	logger  logger.Logger
	metrics *metrics.Metrics
}

func NewBroker(cfg BrokerConfig, store CodeStore, l logger.Logger) *Broker {
	if cfg.TTL == 0 {
		cfg.TTL = defaultCodeTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Broker{
		ttl:     cfg.TTL,
		now:     cfg.Now,
		store:   store,
		logger:  l,
		metrics: cfg.Metrics,
	}
}

// Issue code for the identity
// Codes expired by now are swept from the store first
func (b *Broker) Issue(ctx context.Context, identity models.Identity) (string, error) {
	now := b.now()

	swept, err := b.store.Sweep(ctx, now)
	if err != nil {
		// Sweep is best effort, issuing still works
		b.logger.Warn("Exchange codes sweep failed", "error", err)
	}
	b.metrics.CodesExpired(swept)

	raw := make([]byte, codeLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("error while generating code. Err: %w", err)
	}
	code := hex.EncodeToString(raw)

	err = b.store.Put(ctx, models.ExchangeCode{
		Code:      code,
		Identity:  identity,
		IssuedAt:  now,
		ExpiresAt: now.Add(b.ttl),
	})
	if err != nil {
		return "", fmt.Errorf("error while storing code. Err: %w", err)
	}

	b.metrics.CodeIssued()
	b.logger.Debug("Exchange code issued", "provider", identity.Provider, "code", logger.Redact(code), "swept", swept)

	return code, nil
}

// Redeem code: it is removed whatever the outcome
// Unknown or already redeemed code: apperrors.ErrInvalidCode
// Code past its expiry: apperrors.ErrCodeExpired
func (b *Broker) Redeem(ctx context.Context, code string) (models.Identity, error) {
	c, ok, err := b.store.Take(ctx, code)
	if err != nil {
		return models.Identity{}, fmt.Errorf("error while taking code. Err: %w", err)
	}
	if !ok {
		return models.Identity{}, apperrors.ErrInvalidCode
	}

	if c.ExpiredAt(b.now()) {
		return models.Identity{}, apperrors.ErrCodeExpired
	}

	return c.Identity, nil
}
