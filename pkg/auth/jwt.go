// Package auth signs and verifies receipt share links.
package auth

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const linkAudience = "pillatuvisa-receipts"

var ErrInvalidLink = errors.New("invalid receipt link")

type LinkClaims struct {
	jwt.RegisteredClaims
}

// NewReceiptLink returns a signed token granting read access to one receipt.
func NewReceiptLink(receiptID int64, secret string, ttl time.Duration, now time.Time) (string, error) {
	claims := LinkClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "recibo:" + strconv.FormatInt(receiptID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Audience:  []string{linkAudience},
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

// ParseReceiptLink verifies the token and returns the receipt it grants.
func ParseReceiptLink(tokenString, secret string) (int64, error) {
	var claims LinkClaims
	tok, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(linkAudience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidLink, err)
	}
	if !tok.Valid {
		return 0, ErrInvalidLink
	}
	raw, ok := strings.CutPrefix(claims.Subject, "recibo:")
	if !ok {
		return 0, ErrInvalidLink
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidLink
	}
	return id, nil
}
