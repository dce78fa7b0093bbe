package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
)

type User struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Username       string
	Email          string
	HashedPassword string
	Role           string
}

// Principal derived from the user: what tokens carry as claims
func (u User) Principal() Principal {
	return Principal{
		Subject: u.ID.String(),
		Roles:   []string{u.Role},
	}
}
