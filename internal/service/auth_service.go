package service

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/kaushikasemwal/vintage-photobooth/internal/model"
)

// ErrInvalidToken rejects an invalid or expired participant token.
var ErrInvalidToken = errors.New("invalid or expired token")

// AuthService issues and validates participant connection tokens. Identity
// is ephemeral and anonymous; the token only binds a connection to the
// session code and user id the client claims.
type AuthService struct {
	jwtSecret []byte
}

// NewAuthService creates an auth service signing with the given secret.
func NewAuthService(secret string) *AuthService {
	return &AuthService{jwtSecret: []byte(secret)}
}

// GenerateParticipantToken creates a session-scoped token for a participant.
func (s *AuthService) GenerateParticipantToken(sessionCode, userID string) (string, error) {
	claims := &model.ParticipantClaims{
		SessionCode: sessionCode,
		UserID:      userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(24 * time.Hour)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateParticipantToken validates a participant JWT and returns claims.
func (s *AuthService) ValidateParticipantToken(tokenString string) (*model.ParticipantClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &model.ParticipantClaims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*model.ParticipantClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
