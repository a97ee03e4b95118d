package app

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/louisbranch/onboarding.space/internal/platform/errors"
)

var tokenSecret = []byte("0123456789abcdef0123456789abcdef")

func TestTokenRoundTrip(t *testing.T) {
	t.Parallel()

	codec, err := newTokenCodec(tokenSecret, time.Hour, nil)
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	token, err := codec.Issue("sess-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	id, err := codec.Parse(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if id != "sess-1" {
		t.Fatalf("session id = %q, want %q", id, "sess-1")
	}
}

func TestTokenRejections(t *testing.T) {
	t.Parallel()

	issuedAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := newTokenCodec(tokenSecret, time.Hour, func() time.Time { return issuedAt })
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	token, err := issuer.Issue("sess-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	otherAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS384, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   "sess-1",
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
	}).SignedString(tokenSecret)
	if err != nil {
		t.Fatalf("sign hs384: %v", err)
	}
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(time.Hour)),
	}).SignedString(tokenSecret)
	if err != nil {
		t.Fatalf("sign without subject: %v", err)
	}

	tests := []struct {
		name   string
		secret []byte
		now    time.Time
		token  string
	}{
		{name: "empty", secret: tokenSecret, now: issuedAt, token: ""},
		{name: "garbage", secret: tokenSecret, now: issuedAt, token: "not-a-token"},
		{name: "expired", secret: tokenSecret, now: issuedAt.Add(2 * time.Hour), token: token},
		{name: "other secret", secret: []byte("fedcba9876543210fedcba9876543210"), now: issuedAt, token: token},
		{name: "other algorithm", secret: tokenSecret, now: issuedAt, token: otherAlg},
		{name: "no subject", secret: tokenSecret, now: issuedAt, token: noSubject},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			now := tc.now
			codec, err := newTokenCodec(tc.secret, time.Hour, func() time.Time { return now })
			if err != nil {
				t.Fatalf("new codec: %v", err)
			}
			_, err = codec.Parse(tc.token)
			if apperrors.KindOf(err) != apperrors.KindInvalidInput {
				t.Fatalf("kind = %q, want %q (err %v)", apperrors.KindOf(err), apperrors.KindInvalidInput, err)
			}
		})
	}
}

func TestNewTokenCodecRequiresStrongSecret(t *testing.T) {
	t.Parallel()

	if _, err := newTokenCodec([]byte("short"), time.Hour, nil); err == nil {
		t.Fatal("expected error for short secret")
	}
	if _, err := newTokenCodec(tokenSecret, 0, nil); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
