// Package identity turns bearer tokens into author names.
package identity

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"chat-sync/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrEmptyName    = errors.New("name is required")
)

// Verifier checks HS256 tokens signed with a shared secret.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Issue mints a token naming the author, valid for ttl.
func (v *Verifier) Issue(name string, ttl time.Duration) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", ErrEmptyName
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub":  name,
		"name": name,
		"iat":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.secret)
}

// AuthorName returns the author carried by tokenStr. An empty token is the
// anonymous author; a token that fails verification is ErrInvalidToken.
func (v *Verifier) AuthorName(tokenStr string) (string, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return models.Anonymous, nil
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !token.Valid {
		return "", errors.Join(ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidToken
	}
	if name, ok := claims["name"].(string); ok && strings.TrimSpace(name) != "" {
		return name, nil
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return "", errors.Join(ErrInvalidToken, err)
	}
	return models.AuthorOrAnonymous(sub), nil
}
