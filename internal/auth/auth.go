package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidSecret = errors.New("invalid secret")
	ErrInvalidToken  = errors.New("invalid or expired token")
)

// Claims identifies a player to the API
type Claims struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name,omitempty"`
	IsAdmin  bool   `json:"is_admin"`
	jwt.RegisteredClaims
}

// Service issues and validates player tokens
type Service struct {
	jwtSecret     []byte
	tokenDuration time.Duration
	adminIDs      []string
}

// NewService creates a new auth service. Players listed in adminIDs are
// admins regardless of what their token says.
func NewService(jwtSecret string, tokenDuration time.Duration, adminIDs []string) *Service {
	if tokenDuration == 0 {
		tokenDuration = 24 * time.Hour
	}
	return &Service{
		jwtSecret:     []byte(jwtSecret),
		tokenDuration: tokenDuration,
		adminIDs:      adminIDs,
	}
}

// HashSecret creates a bcrypt hash of a shared secret
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	return string(hash), err
}

// CheckSecret compares a secret against a hash
func CheckSecret(secret, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret)) == nil
}

// IsAdminID reports whether a player is a configured admin
func (s *Service) IsAdminID(playerID string) bool {
	return slices.Contains(s.adminIDs, playerID)
}

// GenerateToken creates a JWT for a player
func (s *Service) GenerateToken(playerID, name string, isAdmin bool) (string, error) {
	claims := Claims{
		PlayerID: playerID,
		Name:     name,
		IsAdmin:  isAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   playerID,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken validates a JWT and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))

	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.PlayerID == "" {
		return nil, ErrInvalidToken
	}
	if s.IsAdminID(claims.PlayerID) {
		claims.IsAdmin = true
	}

	return claims, nil
}
