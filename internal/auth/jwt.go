// Package auth turns a Discord login into a signed session token and reads
// that token back into a model.Identity.
//
// AUTHENTICATION FLOW OVERVIEW:
//  1. Browser visits /auth/discord/login → redirected to Discord
//  2. Discord calls back /auth/discord/callback with a code
//  3. Server exchanges the code for the Discord profile and upserts user_details
//  4. Server issues a JWT carrying the identity and stores it in an HttpOnly cookie
//  5. The websocket upgrade reads the cookie (or ?token=) and attaches the
//     identity to the socket for its whole lifetime
//
// The token is the identity: the server never looks the user up again while
// a socket is open. A socket without a valid token is an anonymous observer.
//
// JWT PAYLOAD:
//
//	{"sub":"<discord id>","name":"<display name>","avatar":"<url>","iss":"pixelboard","exp":...}
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/sakif/pixelboard/internal/model"
)

const issuer = "pixelboard"

// DefaultTokenTTL is how long a login lasts.
const DefaultTokenTTL = 7 * 24 * time.Hour

// TokenService signs and verifies session tokens.
type TokenService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenService creates a TokenService with the given HMAC secret.
// Example: JWT_SECRET=$(openssl rand -hex 32)
func NewTokenService(secret string) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	return &TokenService{secret: []byte(secret), ttl: DefaultTokenTTL, now: time.Now}, nil
}

// TTL is the lifetime of tokens issued by Generate.
func (s *TokenService) TTL() time.Duration { return s.ttl }

// claims is the JWT payload. "sub" holds the Discord id; name and avatar are
// the cosmetic half of the identity.
type claims struct {
	Name   string  `json:"name"`
	Avatar *string `json:"avatar,omitempty"`
	jwt.RegisteredClaims
}

// Generate signs a token for id that expires after the service TTL.
func (s *TokenService) Generate(id *model.Identity) (string, error) {
	return s.GenerateWithDuration(id, s.ttl)
}

// GenerateWithDuration signs a token with a custom lifetime. Tests use it to
// mint already-expired tokens.
func (s *TokenService) GenerateWithDuration(id *model.Identity, d time.Duration) (string, error) {
	if !id.Complete() {
		return "", errors.New("auth: identity needs a subject and a display name")
	}
	now := s.now()

	c := claims{
		Name:   id.DisplayName,
		Avatar: id.AvatarURL,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.SubjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(d)),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("auth: signing token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies a token and returns the identity it carries.
//
// VALIDATION CHECKS (performed by the jwt library):
//   - Signature is valid and the algorithm is HS256
//   - Token is not expired
//   - Issuer is "pixelboard"
//
// A token without a subject or a name is rejected: such an identity could
// watch but never paint, and nothing we issue looks like that.
func (s *TokenService) Validate(tokenStr string) (*model.Identity, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("auth: token expired")
		}
		return nil, fmt.Errorf("auth: invalid token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("auth: invalid token claims")
	}

	id := &model.Identity{SubjectID: c.Subject, DisplayName: c.Name, AvatarURL: c.Avatar}
	if !id.Complete() {
		return nil, fmt.Errorf("auth: token has no subject or name")
	}
	return id, nil
}
