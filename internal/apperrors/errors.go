package apperrors

import (
	"errors"
)

var (
	ErrUserAlreadyExists = errors.New("user already exists")
	ErrUserNotFound      = errors.New("user not found")

	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrInvalidSecretKey     = errors.New("secret key is invalid")

	ErrInvalidRefreshToken = errors.New("refresh token is invalid")
	ErrStaleSession        = errors.New("refresh token is stale or session is logged out")

	ErrInvalidCode = errors.New("exchange code is invalid")
	ErrCodeExpired = errors.New("exchange code is expired")

	ErrAccountNotLinked          = errors.New("external account is not linked to any user")
	ErrAlreadyLinkedElsewhere    = errors.New("external account is linked to another user")
	ErrAlreadyLinkedSameProvider = errors.New("user already has a link for this provider")
	ErrLinkNotFound              = errors.New("link not found")
)
