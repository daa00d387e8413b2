package model

import "github.com/golang-jwt/jwt/v5"

// ParticipantClaims are JWT claims for session-scoped relay connections.
type ParticipantClaims struct {
	SessionCode string `json:"sessionCode"`
	UserID      string `json:"userId"`
	jwt.RegisteredClaims
}
