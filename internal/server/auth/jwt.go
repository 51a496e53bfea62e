// Package auth issues and verifies upload tokens. An upload token is a
// signed stand-in for the relayName/subjectKey pair of one subject key.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/exius/internal/common"
	"github.com/golang-jwt/jwt/v5"
)

// Claims carries the credential an upload token stands for.
type Claims struct {
	jwt.RegisteredClaims
	RelayName  string `json:"relayName"`
	SubjectKey string `json:"subjectKey"`
}

func GenerateUploadToken(relayName, subjectKey string, secretKey []byte, validityDuration time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   relayName + "/" + subjectKey,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(validityDuration)),
		},
		RelayName:  relayName,
		SubjectKey: subjectKey,
	})

	tokenString, err := token.SignedString(secretKey)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ParseUploadToken verifies tokenString and returns the relay name and
// subject key it was issued for.
func ParseUploadToken(tokenString string, secretKey []byte) (string, string, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", common.ErrTokenExpired
		}
		return "", "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if !token.Valid || claims.RelayName == "" || claims.SubjectKey == "" {
		return "", "", common.ErrInvalidToken
	}

	return claims.RelayName, claims.SubjectKey, nil
}
