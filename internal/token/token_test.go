package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func TestIssueValidateRoundtrip(t *testing.T) {
	req := require.New(t)
	svc := NewService("test-secret", time.Hour)

	tok, err := svc.Issue("user-42")
	req.NoError(err)
	req.NotEmpty(tok)

	userID, err := svc.Validate(tok)
	req.NoError(err)
	req.Equal("user-42", userID)
}

func TestValidateExpired(t *testing.T) {
	req := require.New(t)
	svc := NewService("test-secret", -time.Minute)

	tok, err := svc.Issue("user-42")
	req.NoError(err)

	_, err = svc.Validate(tok)
	req.ErrorIs(err, ErrExpired)
}

func TestValidateBadSignature(t *testing.T) {
	req := require.New(t)
	issuer := NewService("secret-a", time.Hour)
	verifier := NewService("secret-b", time.Hour)

	tok, err := issuer.Issue("user-42")
	req.NoError(err)

	_, err = verifier.Validate(tok)
	req.ErrorIs(err, ErrBadSignature)
}

func TestValidateMalformed(t *testing.T) {
	req := require.New(t)
	svc := NewService("test-secret", time.Hour)

	for _, raw := range []string{"", "garbage", "a.b", "a.b.c.d"} {
		_, err := svc.Validate(raw)
		req.ErrorIs(err, ErrMalformed, "input %q", raw)
	}
}

func TestValidateUnsupportedAlgorithm(t *testing.T) {
	req := require.New(t)
	svc := NewService("test-secret", time.Hour)

	claims := jwt.RegisteredClaims{
		Subject:   "user-42",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	tok, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	req.NoError(err)

	_, err = svc.Validate(tok)
	req.ErrorIs(err, ErrUnsupported)
}

func TestValidateMissingSubject(t *testing.T) {
	req := require.New(t)
	svc := NewService("test-secret", time.Hour)

	claims := jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	signed := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tok, err := signed.SignedString([]byte("test-secret"))
	req.NoError(err)

	_, err = svc.Validate(tok)
	req.ErrorIs(err, ErrMalformed)
}
