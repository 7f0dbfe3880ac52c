package services

import (
	"context"
	"errors"
	"fmt"

	"meetsignal/internal/core/domain"
	"meetsignal/internal/core/ports"
	"meetsignal/pkg/config"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken = errors.New("token required")
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// Claims carried by identity tokens issued by the external auth service.
type Claims struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// IdentityService resolves connect-time tokens according to auth.mode. In none and opaque mode
// tokens are never verified and yield an empty identity.
type IdentityService struct {
	mode      string
	jwtSecret []byte
}

var _ ports.IdentityResolver = (*IdentityService)(nil)

func NewIdentityService(mode, jwtSecret string) *IdentityService {
	return &IdentityService{mode: mode, jwtSecret: []byte(jwtSecret)}
}

func (s *IdentityService) Mode() string {
	return s.mode
}

func (s *IdentityService) Resolve(ctx context.Context, token string) (domain.Identity, error) {
	if s.mode != config.AuthModeJWT {
		return domain.Identity{}, nil
	}
	if token == "" {
		return domain.Identity{}, ErrMissingToken
	}
	claims, err := s.ValidateToken(token)
	if err != nil {
		return domain.Identity{}, err
	}
	return domain.Identity{UserID: claims.UserID, Username: claims.Username}, nil
}

func (s *IdentityService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.jwtSecret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" {
		return nil, fmt.Errorf("%w: missing user_id claim", ErrInvalidToken)
	}
	return claims, nil
}
