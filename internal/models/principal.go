package models

import (
	"slices"
	"strings"
)

// Authenticated subject with its roles.
// Never persisted, tokens carry it as claims.
type Principal struct {
	Subject string
	Roles   []string
}

func (p Principal) HasRole(role string) bool {
	return slices.Contains(p.Roles, role)
}

// Roles joined to be put in a single claim
func (p Principal) JoinedRoles() string {
	return strings.Join(p.Roles, ",")
}

func SplitRoles(joined string) []string {
	if joined == "" {
		return nil
	}
	return strings.Split(joined, ",")
}
