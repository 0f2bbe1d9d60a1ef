// Package identity decodes host-signed identity snapshot tokens. The core
// performs no authentication itself: the host application signs a snapshot
// of the participant with a shared secret and this package only verifies
// and unpacks it.
package identity

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/pixelgrid/chatcore/internal/core"
)

// Claims carries the identity snapshot inside the token.
type Claims struct {
	Name     string `json:"name"`
	Avatar   string `json:"avatar,omitempty"`
	Level    int    `json:"level,omitempty"`
	Premium  bool   `json:"premium,omitempty"`
	Verified bool   `json:"verified,omitempty"`
	jwt.RegisteredClaims
}

// Codec signs and verifies identity tokens with an HMAC secret shared with
// the host application.
type Codec struct {
	Secret []byte
	Issuer string
	TTL    time.Duration
}

// Encode signs a snapshot token. Hosts normally issue tokens themselves;
// this exists for tooling and tests.
func (c *Codec) Encode(id core.Identity) (string, error) {
	now := time.Now()
	ttl := c.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	claims := Claims{
		Name:     id.Name,
		Avatar:   id.Avatar,
		Level:    id.Level,
		Premium:  id.Premium,
		Verified: id.Verified,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			Issuer:    c.Issuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.Secret)
}

// Decode verifies the token and returns the snapshot.
func (c *Codec) Decode(tokenString string) (core.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.Secret, nil
	})
	if err != nil {
		return core.Identity{}, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return core.Identity{}, fmt.Errorf("invalid token claims")
	}
	if c.Issuer != "" && claims.Issuer != c.Issuer {
		return core.Identity{}, fmt.Errorf("invalid issuer")
	}
	if claims.Subject == "" {
		return core.Identity{}, fmt.Errorf("token has no subject")
	}

	return core.Identity{
		ID:       claims.Subject,
		Name:     claims.Name,
		Avatar:   claims.Avatar,
		Level:    claims.Level,
		Premium:  claims.Premium,
		Verified: claims.Verified,
	}, nil
}
