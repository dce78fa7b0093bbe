package models

import (
	"time"

	"github.com/google/uuid"
)

// External identity as reported by the OAuth provider
type Identity struct {
	Provider   string `json:"provider"`
	ProviderID string `json:"providerId"`
}

// One-time code bound to an external identity
type ExchangeCode struct {
	Code      string    `json:"code"`
	Identity  Identity  `json:"identity"`
	IssuedAt  time.Time `json:"issuedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (c ExchangeCode) ExpiredAt(t time.Time) bool {
	return t.After(c.ExpiresAt)
}

// Explicit association between an external identity and a user
type OAuthLink struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	Provider   string
	ProviderID string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}
