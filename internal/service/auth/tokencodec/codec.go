package tokencodec

import (
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nkiryanov/blogauth/internal/apperrors"
	"github.com/nkiryanov/blogauth/internal/logger"
	"github.com/nkiryanov/blogauth/internal/models"
)

const (
	defaultSigningMethod = "HS256"

	// HMAC key has to be at least as long as the hash output
	minKeyLen = 32
)

// Claims carried by every token
// Access and refresh tokens differ by 'typ' only
type Claims struct {
	jwt.RegisteredClaims
	Auth string           `json:"auth"`
	Type models.TokenKind `json:"typ"`
}

type Config struct {
	// Hex encoded secret key, at least 32 bytes after decoding
	// Required to be set
	SecretKey string

	// JWT MAC (Message Authentication Code) algorithm: HS256 or HS512
	// If not set than default is used
	Alg string

	// Clock, time.Now if not set
	Now func() time.Time
}

// Codec issues and checks signed tokens
// Stateless: it knows nothing about sessions or the refresh ledger
type Codec struct {
	key    []byte
	alg    jwt.SigningMethod
	now    func() time.Time
	logger logger.Logger
}

func New(cfg Config, l logger.Logger) (*Codec, error) {
	key, err := hex.DecodeString(cfg.SecretKey)
	if err != nil || len(key) < minKeyLen {
		return nil, fmt.Errorf("secret key has to be hex encoded and at least %d bytes long: %w", minKeyLen, apperrors.ErrInvalidSecretKey)
	}

	if cfg.Alg == "" {
		cfg.Alg = defaultSigningMethod
	}

	var alg jwt.SigningMethod
	switch cfg.Alg {
	case jwt.SigningMethodHS256.Alg():
		alg = jwt.SigningMethodHS256
	case jwt.SigningMethodHS512.Alg():
		alg = jwt.SigningMethodHS512
	default:
		return nil, fmt.Errorf("signing method %q not supported", cfg.Alg)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Codec{
		key:    key,
		alg:    alg,
		now:    cfg.Now,
		logger: l,
	}, nil
}

// Issue signed token of the kind for principal that lives ttl
func (c *Codec) Issue(p models.Principal, kind models.TokenKind, ttl time.Duration) (models.IssuedToken, error) {
	now := c.now()

	// Claims have second precision: iat is rounded down, exp up, so token lives ttl at least
	expiresAt := now.Add(ttl)
	if rounded := expiresAt.Truncate(time.Second); !rounded.Equal(expiresAt) {
		expiresAt = rounded.Add(time.Second)
	}

	token := jwt.NewWithClaims(c.alg, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   p.Subject,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now.Truncate(time.Second)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Auth: p.JoinedRoles(),
		Type: kind,
	})

	signed, err := token.SignedString(c.key)
	if err != nil {
		return models.IssuedToken{}, fmt.Errorf("error while signing token. Err: %w", err)
	}

	return models.IssuedToken{Value: signed, ExpiresAt: expiresAt}, nil
}

// Validate reports whether token is well formed, signed with our key, not expired and of the kind
// Failures are logged at debug level only
func (c *Codec) Validate(token string, kind models.TokenKind) bool {
	claims, err := c.parse(token)
	if err == nil && claims.Type != kind {
		err = fmt.Errorf("%w: token is %q, %q expected", jwt.ErrTokenInvalidClaims, claims.Type, kind)
	}
	if err == nil {
		return true
	}

	reason := "invalid"
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		reason = "malformed"
	case errors.Is(err, jwt.ErrTokenExpired):
		reason = "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		reason = "bad signature"
	case errors.Is(err, jwt.ErrTokenInvalidClaims):
		reason = "invalid claims"
	}
	c.logger.Debug("Token rejected", "reason", reason, "token", logger.Redact(token), "error", err)

	return false
}

// Parse returns principal the token was issued for
// Expected to be called on tokens that passed Validate
func (c *Codec) Parse(token string) (models.Principal, error) {
	claims, err := c.parse(token)
	if err != nil {
		return models.Principal{}, fmt.Errorf("error while parsing token. Err: %w", err)
	}

	return models.Principal{
		Subject: claims.Subject,
		Roles:   models.SplitRoles(claims.Auth),
	}, nil
}

func (c *Codec) parse(token string) (*Claims, error) {
	claims := &Claims{}

	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (any, error) {
			return c.key, nil
		},
		jwt.WithValidMethods([]string{c.alg.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)
	if err != nil {
		return nil, err
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: subject is empty", jwt.ErrTokenInvalidClaims)
	}

	return claims, nil
}
