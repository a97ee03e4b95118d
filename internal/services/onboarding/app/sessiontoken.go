package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/louisbranch/onboarding.space/internal/platform/errors"
)

// CookieName is the browser cookie holding the signed session token.
const CookieName = "onboarding_session"

const tokenIssuer = "onboarding.space"

// tokenCodec signs and verifies session tokens. The token only carries the
// session id; everything else stays server-side.
type tokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func newTokenCodec(secret []byte, ttl time.Duration, now func() time.Time) (*tokenCodec, error) {
	if len(secret) < 16 {
		return nil, errors.New("session secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		return nil, errors.New("session token ttl must be positive")
	}
	if now == nil {
		now = time.Now
	}
	return &tokenCodec{secret: secret, ttl: ttl, now: now}, nil
}

// Issue signs a token for sessionID.
func (c *tokenCodec) Issue(sessionID string) (string, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "", errors.New("session id is required")
	}
	now := c.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   sessionID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Parse verifies token and returns its session id.
func (c *tokenCodec) Parse(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", apperrors.E(apperrors.KindInvalidInput, "session token is required")
	}
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", mapTokenError(err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return "", apperrors.E(apperrors.KindInvalidInput, "session token has no subject")
	}
	return claims.Subject, nil
}

func mapTokenError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return apperrors.Wrap(apperrors.KindInvalidInput, "", "session token expired", err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return apperrors.Wrap(apperrors.KindInvalidInput, "", "session token signature is invalid", err)
	default:
		return apperrors.Wrap(apperrors.KindInvalidInput, "", "session token is malformed", err)
	}
}
