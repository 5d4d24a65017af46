package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"leadpool-crm/internal/config"

	"github.com/gin-gonic/gin"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := newTestManager(t)

	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "user-1", "team")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		t.Fatalf("expected token strings")
	}
	if !pair.ExpiresAt.Equal(now.Add(15 * time.Minute)) {
		t.Fatalf("unexpected expiry %s", pair.ExpiresAt)
	}

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(1*time.Minute))
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != "team" {
		t.Fatalf("unexpected claims: %+v", claims)
	}

	if _, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(time.Hour)); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, err := m.IssuePair(time.Now(), "u", "admin")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := m.Verify(p.RefreshToken, TokenTypeAccess, time.Now()); err == nil {
		t.Fatalf("expected token_type mismatch")
	}
	claims, err := m.Verify(p.RefreshToken, TokenTypeRefresh, time.Now())
	if err != nil {
		t.Fatalf("verify refresh: %v", err)
	}
	if claims.Role != "" {
		t.Fatalf("refresh token must not carry role, got %q", claims.Role)
	}
}

func TestVerifyRejectsForeignSecret(t *testing.T) {
	m := newTestManager(t)
	other, _ := NewManager(config.AuthConfig{JWTSecret: "other", JWTIssuer: "issuer", JWTAudience: "aud", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, _ := other.IssuePair(time.Now(), "u", "admin")
	if _, err := m.Verify(p.AccessToken, TokenTypeAccess, time.Now()); err == nil {
		t.Fatalf("expected signature failure")
	}
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := newTestManager(t)
	p, err := m.IssuePair(time.Now(), "user-9", "team")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	r := gin.New()
	r.Use(RequireAccessToken(m))
	handler := func(c *gin.Context) {
		uid, _ := UserID(c.Request.Context())
		role, _ := Role(c.Request.Context())
		c.String(http.StatusOK, uid+"/"+role)
	}
	r.GET("/me", handler)
	r.POST("/me", handler)

	cases := []struct {
		name   string
		method string
		target string
		header string
		want   int
	}{
		{"header", http.MethodGet, "/me", "Bearer " + p.AccessToken, http.StatusOK},
		{"query on GET", http.MethodGet, "/me?access_token=" + p.AccessToken, "", http.StatusOK},
		{"query on POST", http.MethodPost, "/me?access_token=" + p.AccessToken, "", http.StatusUnauthorized},
		{"missing", http.MethodGet, "/me", "", http.StatusUnauthorized},
		{"refresh token", http.MethodGet, "/me", "Bearer " + p.RefreshToken, http.StatusUnauthorized},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(tc.method, tc.target, nil)
		if tc.header != "" {
			req.Header.Set("Authorization", tc.header)
		}
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
		if tc.want == http.StatusOK && w.Body.String() != "user-9/team" {
			t.Fatalf("%s: unexpected identity %q", tc.name, w.Body.String())
		}
	}
}
