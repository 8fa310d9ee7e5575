// Package auth issues and verifies player session tokens.
package auth

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid session token")

// Session is the identity carried by a token.
type Session struct {
	PlayerID  string
	LobbyID   string
	ExpiresAt time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
	LobbyID string `json:"lobby"`
}

// Issuer signs session tokens with HS256.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewIssuer creates an issuer. An empty secret gets a random one, which
// invalidates tokens on restart.
func NewIssuer(secret string, ttl time.Duration) (*Issuer, error) {
	key := []byte(secret)
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	if ttl <= 0 {
		return nil, errors.New("session ttl must be positive")
	}
	return &Issuer{secret: key, ttl: ttl, now: time.Now}, nil
}

// Issue returns a signed token for the player in the lobby.
func (i *Issuer) Issue(playerID, lobbyID string) (string, error) {
	now := i.now()
	claims := sessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
		LobbyID: lobbyID,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign session: %w", err)
	}
	return signed, nil
}

// Parse verifies the token and returns its session.
func (i *Issuer) Parse(token string) (Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Session{}, ErrInvalidToken
	}

	var claims sessionClaims
	_, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Session{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Subject == "" || claims.LobbyID == "" {
		return Session{}, ErrInvalidToken
	}
	return Session{
		PlayerID:  claims.Subject,
		LobbyID:   claims.LobbyID,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
