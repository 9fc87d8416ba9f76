// Package auth issues and verifies resume tokens. A token binds a player id
// to a room id so a reconnecting client can prove the identity it claims
// after a full page reload.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrInvalidToken = errors.New("auth: invalid resume token")

type resumeClaims struct {
	PlayerID string `json:"player_id"`
	RoomID   string `json:"room_id"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{
		secret: []byte(secret),
		ttl:    24 * time.Hour,
	}
}

func (i *TokenIssuer) Issue(playerID, roomID string) (string, error) {
	now := time.Now()
	claims := resumeClaims{
		PlayerID: playerID,
		RoomID:   roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Verify checks the token signature and that it was issued for the claimed
// player and room.
func (i *TokenIssuer) Verify(tokenString, playerID, roomID string) error {
	claims := &resumeClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method %v", ErrInvalidToken, t.Header["alg"])
		}
		return i.secret, nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.PlayerID != playerID || claims.RoomID != roomID {
		return ErrInvalidToken
	}
	return nil
}
