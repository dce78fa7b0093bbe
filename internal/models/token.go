package models

import (
	"time"
)

// Latest refresh token issued for the subject
// Ledger keeps only one record per subject, every issue overwrites it
type RefreshTokenRecord struct {
	Subject   string
	Token     string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// What the token may be used for, carried in the 'typ' claim
type TokenKind string

const (
	AccessToken  TokenKind = "access"
	RefreshToken TokenKind = "refresh"
)

type IssuedToken struct {
	Value     string
	ExpiresAt time.Time
}

// Token pair issues by AuthService
type TokenPair struct {
	Access  IssuedToken
	Refresh IssuedToken
}
