package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

func TestGenerateAndParse_Success(t *testing.T) {
	t.Parallel()

	secret := []byte("super-secret")

	tok, err := GenerateUploadToken("study", "0012345", secret, time.Hour)
	if err != nil {
		t.Fatalf("GenerateUploadToken error: %v", err)
	}

	relay, key, err := ParseUploadToken(tok, secret)
	if err != nil {
		t.Fatalf("ParseUploadToken error: %v", err)
	}
	if relay != "study" || key != "0012345" {
		t.Fatalf("claims mismatch: got %q/%q", relay, key)
	}
}

func TestParseUploadToken_Expired(t *testing.T) {
	t.Parallel()

	secret := []byte("secret")

	tok, err := GenerateUploadToken("r", "1111111", secret, -1*time.Second)
	if err != nil {
		t.Fatalf("GenerateUploadToken error: %v", err)
	}

	_, _, err = ParseUploadToken(tok, secret)
	if !errors.Is(err, common.ErrTokenExpired) {
		t.Fatalf("expected common.ErrTokenExpired, got %v", err)
	}
}

func TestParseUploadToken_WrongSecret(t *testing.T) {
	t.Parallel()

	tok, err := GenerateUploadToken("r", "2222222", []byte("right-secret"), time.Hour)
	if err != nil {
		t.Fatalf("GenerateUploadToken error: %v", err)
	}

	_, _, err = ParseUploadToken(tok, []byte("wrong-secret"))
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestParseUploadToken_MalformedString(t *testing.T) {
	t.Parallel()

	_, _, err := ParseUploadToken("not.a.jwt", []byte("k"))
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestParseUploadToken_MissingClaims(t *testing.T) {
	t.Parallel()

	secret := []byte("k")
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
		RelayName:        "only-relay",
	}).SignedString(secret)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, _, err = ParseUploadToken(tok, secret)
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}

func TestParseUploadToken_RejectsOtherAlgorithms(t *testing.T) {
	t.Parallel()

	tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RelayName:  "r",
		SubjectKey: "3333333",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, _, err = ParseUploadToken(tok, []byte("k"))
	if !errors.Is(err, common.ErrInvalidToken) {
		t.Fatalf("expected common.ErrInvalidToken, got %v", err)
	}
}
