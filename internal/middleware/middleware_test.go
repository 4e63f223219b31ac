package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/oddmeter/camhub/internal/middleware"
	"github.com/oddmeter/camhub/internal/tokens"
)

// MockTokenValidator for JWTAuth tests
type MockTokenValidator struct{}

func (m MockTokenValidator) ValidateToken(token string) (*tokens.Claims, error) {
	if token == "valid-access" {
		return &tokens.Claims{
			UserID:    42,
			IsAdmin:   true,
			TokenType: tokens.Access,
		}, nil
	}
	return nil, tokens.ErrInvalidToken
}

// MockBlacklist
type MockBlacklist struct{}

func (m MockBlacklist) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	return jti == "revoked-jti", nil
}

func (m MockBlacklist) AddToBlacklist(ctx context.Context, jti string, ttl time.Duration) error {
	return nil
}

func TestJWTAuthMiddleware_Success(t *testing.T) {
	mw := middleware.NewJWTAuth(MockTokenValidator{}, MockBlacklist{})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer valid-access")
	w := httptest.NewRecorder()

	mw.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ac, ok := middleware.GetAuthContext(r.Context())
		if !ok || ac.UserID != 42 || !ac.IsAdmin {
			t.Errorf("AuthContext missing or invalid")
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestJWTAuthMiddleware_MissingHeader(t *testing.T) {
	mw := middleware.NewJWTAuth(MockTokenValidator{}, MockBlacklist{})
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	mw.Middleware(nil).ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401, got %d", w.Code)
	}
}

func TestJWTAuthMiddleware_Blacklisted(t *testing.T) {
	mw := middleware.NewJWTAuth(blacklistedValidator{}, MockBlacklist{})

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer revoked")
	w := httptest.NewRecorder()

	mw.Middleware(nil).ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for blacklisted token, got %d", w.Code)
	}
}

type blacklistedValidator struct{}

func (blacklistedValidator) ValidateToken(token string) (*tokens.Claims, error) {
	claims := &tokens.Claims{UserID: 1, TokenType: tokens.Access}
	claims.ID = "revoked-jti"
	return claims, nil
}

func TestRequireAdmin_Allowed(t *testing.T) {
	ctx := middleware.WithAuthContext(context.Background(), &middleware.AuthContext{UserID: 1, IsAdmin: true})
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	middleware.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for admin, got %d", w.Code)
	}
}

func TestRequireAdmin_Denied(t *testing.T) {
	ctx := middleware.WithAuthContext(context.Background(), &middleware.AuthContext{UserID: 2, IsAdmin: false})
	req := httptest.NewRequest("GET", "/", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	middleware.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for non-admin, got %d", w.Code)
	}
}

func TestRequireAdmin_NoAuthContext(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()

	middleware.RequireAdmin(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 with no AuthContext, got %d", w.Code)
	}
}
