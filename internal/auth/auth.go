// server/internal/auth/auth.go
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"upcycle-api-server/internal/models"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// JWTClaims is the token payload. The subject is the actor id.
type JWTClaims struct {
	Kind    models.ActorKind `json:"kind"`
	Blocked bool             `json:"blocked,omitempty"`
	jwt.RegisteredClaims
}

type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}
}

// GenerateJWT signs an HS256 token for the actor.
func (s *Service) GenerateJWT(actor models.Actor) (string, error) {
	if actor.ID == "" || !actor.Kind.Valid() {
		return "", fmt.Errorf("cannot issue token for actor %q of kind %q", actor.ID, actor.Kind)
	}
	now := s.now()
	claims := &JWTClaims{
		Kind:    actor.Kind,
		Blocked: actor.Blocked,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseJWT validates the token and returns the actor it was issued for.
func (s *Service) ParseJWT(tokenString string) (models.Actor, error) {
	claims := &JWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !token.Valid {
		return models.Actor{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || !claims.Kind.Valid() {
		return models.Actor{}, fmt.Errorf("%w: missing subject or kind", ErrInvalidToken)
	}
	return models.Actor{ID: claims.Subject, Kind: claims.Kind, Blocked: claims.Blocked}, nil
}
