package auth

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestAuthService(t *testing.T) {
	const t0Unix = 1700000000

	createService := func(t *testing.T) (*AuthService, *time.Time) {
		cfg := Config{
			Secret:      base64.StdEncoding.EncodeToString([]byte("server-secret")),
			TokenExpiry: time.Hour,
		}

		svc, err := NewAuthService(context.Background(), cfg)
		require.NoError(t, err)

		currentTime := time.Unix(t0Unix, 0)
		svc.now = func() time.Time {
			return currentTime
		}

		return svc, &currentTime
	}

	t.Run("IssueAndResolve", func(t *testing.T) {
		req := require.New(t)
		svc, _ := createService(t)

		token, expiry, err := svc.IssueToken("user1")
		req.NoError(err)
		req.NotEmpty(token)
		req.Equal(int64(t0Unix+3600), expiry)

		userID, err := svc.GetUserID(token)
		req.NoError(err)
		req.Equal("user1", userID)

		cached, err := svc.liveTokens.Get(token)
		req.NoError(err)
		req.Equal("user1", cached)
	})

	t.Run("ResolveAfterRestart", func(t *testing.T) {
		req := require.New(t)
		svc, _ := createService(t)
		token, _, err := svc.IssueToken("user1")
		req.NoError(err)

		restarted, _ := createService(t)
		userID, err := restarted.GetUserID(token)
		req.NoError(err)
		req.Equal("user1", userID)
	})

	t.Run("Expired", func(t *testing.T) {
		req := require.New(t)
		svc, now := createService(t)
		token, _, err := svc.IssueToken("user1")
		req.NoError(err)

		*now = now.Add(2 * time.Hour)
		_, err = svc.GetUserID(token)
		req.ErrorIs(err, ErrInvalidToken)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		req := require.New(t)
		svc, _ := createService(t)

		other, err := NewAuthService(context.Background(), Config{
			Secret: base64.StdEncoding.EncodeToString([]byte("another-secret")),
		})
		req.NoError(err)
		other.now = svc.now

		token, _, err := other.IssueToken("user1")
		req.NoError(err)

		_, err = svc.GetUserID(token)
		req.ErrorIs(err, ErrInvalidToken)
	})

	t.Run("UnexpectedAlgorithm", func(t *testing.T) {
		req := require.New(t)
		svc, _ := createService(t)

		claims := Claims{RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user1",
			Issuer:    issuer,
			ExpiresAt: jwt.NewNumericDate(svc.now().Add(time.Hour)),
		}}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		req.NoError(err)

		_, err = svc.GetUserID(token)
		req.ErrorIs(err, ErrInvalidToken)
	})

	t.Run("Garbage", func(t *testing.T) {
		svc, _ := createService(t)

		_, err := svc.GetUserID("")
		require.ErrorIs(t, err, ErrInvalidToken)
		_, err = svc.GetUserID("not-a-token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("Logoff", func(t *testing.T) {
		req := require.New(t)
		svc, _ := createService(t)
		token, _, err := svc.IssueToken("user1")
		req.NoError(err)

		req.NoError(svc.Logoff(token))

		_, err = svc.GetUserID(token)
		req.ErrorIs(err, ErrRevoked)
		_, err = svc.liveTokens.Get(token)
		req.Error(err)
	})

	t.Run("EmptyUser", func(t *testing.T) {
		svc, _ := createService(t)
		_, _, err := svc.IssueToken("")
		require.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	req := require.New(t)

	cfg := Config{}
	req.Error(cfg.Validate())

	cfg = Config{Secret: "%%%"}
	req.Error(cfg.Validate())

	cfg = Config{Secret: base64.StdEncoding.EncodeToString([]byte("s"))}
	req.NoError(cfg.Validate())
	req.Equal(DefaultTokenExpiry, cfg.TokenExpiry)
	req.Equal([]byte("s"), cfg.secretBytes)
}
