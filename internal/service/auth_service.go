package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = fmt.Errorf("%w: invalid or expired token", domain.ErrUnauthenticated)
	ErrInactiveUser = fmt.Errorf("%w: account is not active", domain.ErrUnauthenticated)
)

// AuthService verifies bearer tokens issued by the account service. The same
// rules apply to REST requests and websocket handshakes.
type AuthService struct {
	userRepo  repository.UserRepository
	jwtSecret []byte
}

func NewAuthService(userRepo repository.UserRepository, jwtSecret string) *AuthService {
	return &AuthService{
		userRepo:  userRepo,
		jwtSecret: []byte(jwtSecret),
	}
}

// Authenticate checks signature and expiry of tokenStr and loads the user it
// names. Only active, non-deactivated users pass.
func (s *AuthService) Authenticate(ctx context.Context, tokenStr string) (*domain.User, error) {
	tokenStr = strings.TrimSpace(strings.TrimPrefix(tokenStr, "Bearer "))
	if tokenStr == "" {
		return nil, ErrInvalidToken
	}

	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return s.jwtSecret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := uuid.Parse(sub)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: loading user: %w", domain.ErrStorage, err)
	}
	if user == nil || !user.CanConnect() {
		return nil, ErrInactiveUser
	}
	return user, nil
}

// IssueToken signs a token for userID. Session issuance lives in the account
// service; this exists for tooling and tests.
func (s *AuthService) IssueToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	if ttl <= 0 {
		return "", errors.New("token ttl must be positive")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": userID.String(),
		"exp": now.Add(ttl).Unix(),
		"iat": now.Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}
