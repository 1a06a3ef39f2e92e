package websession

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidSyncToken = errors.New("invalid sync token")

// ParseSyncToken validates an externally issued session sync token and
// returns the account ID it is bound to. The token must be an HS256 JWT
// signed with the shared sync secret, carrying the account ID as its
// subject. Anything else is rejected; the marker identity always comes from
// the verified subject, never from the request body.
func ParseSyncToken(token string, secret []byte) (string, error) {
	parsed, err := jwt.Parse(token,
		func(t *jwt.Token) (any, error) { return secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidSyncToken, err)
	}
	sub, err := parsed.Claims.GetSubject()
	if err != nil || sub == "" {
		return "", fmt.Errorf("%w: missing subject", ErrInvalidSyncToken)
	}
	return sub, nil
}

// NewSyncToken mints a sync token for the account, used by tests and the
// development tooling that stands in for the external session source.
func NewSyncToken(accountID string, secret []byte, validFor time.Duration) (string, error) {
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   accountID,
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(validFor)),
	})
	return t.SignedString(secret)
}
