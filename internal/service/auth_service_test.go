package service

import (
	"context"
	"testing"
	"time"

	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/domain"
	"github.com/Siddharthgautam09/SERVEPE-sub000/internal/repository/memory"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func newAuthFixture() (*AuthService, *memory.Store) {
	db := memory.NewStore()
	return NewAuthService(db.Users(), testSecret), db
}

func signed(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestAuthenticateValidToken(t *testing.T) {
	auth, db := newAuthFixture()
	user := &domain.User{ID: uuid.New(), Name: "Asha", IsActive: true}
	db.PutUser(user)

	token, err := auth.IssueToken(user.ID, time.Hour)
	require.NoError(t, err)

	got, err := auth.Authenticate(context.Background(), "Bearer "+token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestAuthenticateRejects(t *testing.T) {
	auth, db := newAuthFixture()
	active := &domain.User{ID: uuid.New(), IsActive: true}
	deactivated := &domain.User{ID: uuid.New(), IsActive: true, IsDeactivated: true}
	inactive := &domain.User{ID: uuid.New()}
	db.PutUser(active)
	db.PutUser(deactivated)
	db.PutUser(inactive)

	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.token"},
		{"wrong secret", signed(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": active.ID.String(), "exp": exp})},
		{"wrong algorithm", signed(t, jwt.SigningMethodHS512, []byte(testSecret), jwt.MapClaims{"sub": active.ID.String(), "exp": exp})},
		{"expired", signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": active.ID.String(), "exp": time.Now().Add(-time.Minute).Unix()})},
		{"no expiry", signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": active.ID.String()})},
		{"bad subject", signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": "admin", "exp": exp})},
		{"unknown user", signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": uuid.NewString(), "exp": exp})},
		{"deactivated", signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": deactivated.ID.String(), "exp": exp})},
		{"inactive", signed(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.MapClaims{"sub": inactive.ID.String(), "exp": exp})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Authenticate(context.Background(), tt.token)
			assert.ErrorIs(t, err, domain.ErrUnauthenticated)
		})
	}
}

func TestIssueTokenRequiresTTL(t *testing.T) {
	auth, _ := newAuthFixture()
	_, err := auth.IssueToken(uuid.New(), 0)
	assert.Error(t, err)
}
