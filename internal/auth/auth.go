package auth

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/c-pro/geche"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	DefaultTokenExpiry = 12 * time.Hour
	issuer             = "parley"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrRevoked      = errors.New("token revoked")
)

type Config struct {
	Secret      string        `json:"secret"`
	secretBytes []byte        `json:"-"`
	TokenExpiry time.Duration `json:"tokenExpiry"`
}

type Claims struct {
	jwt.RegisteredClaims
}

// AuthService issues and resolves session tokens. Tokens are HS256 JWTs whose
// subject is the user id.
type AuthService struct {
	Config
	// liveTokens caches tokens that were already verified.
	liveTokens geche.Geche[string, string]
	// revoked holds logged off tokens until they would have expired anyway.
	revoked geche.Geche[string, struct{}]
	now     func() time.Time
}

func (c *Config) Validate() error {
	if c.Secret == "" {
		return errors.New("secret is required")
	}

	var err error
	c.secretBytes, err = base64.StdEncoding.DecodeString(c.Secret)
	if err != nil {
		return fmt.Errorf("auth secret is not a valid base64: %w", err)
	}

	if c.TokenExpiry == 0 {
		c.TokenExpiry = DefaultTokenExpiry
	}

	return nil
}

func NewAuthService(ctx context.Context, config Config) (*AuthService, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &AuthService{
		Config:     config,
		liveTokens: geche.NewMapTTLCache[string, string](ctx, config.TokenExpiry, time.Minute),
		revoked:    geche.NewMapTTLCache[string, struct{}](ctx, config.TokenExpiry, time.Minute),
		now:        time.Now,
	}, nil
}

// IssueToken returns a signed token for userID and its expiry in Unix seconds.
func (as *AuthService) IssueToken(userID string) (string, int64, error) {
	if userID == "" {
		return "", 0, errors.New("user id is required")
	}
	now := as.now()
	expiry := now.Add(as.TokenExpiry)

	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   userID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiry),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(as.secretBytes)
	if err != nil {
		return "", 0, fmt.Errorf("failed to sign token: %w", err)
	}

	as.liveTokens.Set(token, userID)
	return token, expiry.Unix(), nil
}

// GetUserID resolves a token to the user it was issued for.
func (as *AuthService) GetUserID(token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	if _, err := as.revoked.Get(token); err == nil {
		return "", ErrRevoked
	}

	claims, err := as.parse(token)
	if err != nil {
		_ = as.liveTokens.Del(token)
		return "", err
	}

	if userID, err := as.liveTokens.Get(token); err == nil {
		return userID, nil
	}
	as.liveTokens.Set(token, claims.Subject)
	return claims.Subject, nil
}

// Logoff revokes the token.
func (as *AuthService) Logoff(token string) error {
	if token == "" {
		return nil
	}
	as.revoked.Set(token, struct{}{})
	return as.liveTokens.Del(token)
}

func (as *AuthService) parse(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(*jwt.Token) (any, error) {
		return as.secretBytes, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(as.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
