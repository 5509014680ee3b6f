package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func newAuthTestRouter(issuer *TokenIssuer, users UserRepository) *gin.Engine {
	r := gin.New()
	r.GET("/private", Authenticate(issuer, users), func(c *gin.Context) {
		user, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"id": user.ID})
	})
	r.GET("/admin", Authenticate(issuer, users), RequireRole(RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func errorMessage(t *testing.T, body string) string {
	t.Helper()
	var payload struct {
		Success bool   `json:"success"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("unmarshal error body %q: %v", body, err)
	}
	if payload.Success {
		t.Fatalf("error payload claims success: %q", body)
	}
	return payload.Message
}

func TestAuthenticateNoToken(t *testing.T) {
	issuer := NewTokenIssuer(testAuthConfig())
	r := newAuthTestRouter(issuer, newStubUserRepo())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/private", nil))
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want 401", w.Code)
	}
	if msg := errorMessage(t, w.Body.String()); msg != "Authentication required" {
		t.Fatalf("message: %q", msg)
	}
}

func TestAuthenticateInvalidToken(t *testing.T) {
	issuer := NewTokenIssuer(testAuthConfig())
	r := newAuthTestRouter(issuer, newStubUserRepo())

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want 401", w.Code)
	}
	if msg := errorMessage(t, w.Body.String()); msg != "Invalid token" {
		t.Fatalf("message: %q", msg)
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	expired := testAuthConfig()
	expired.AccessTokenTTL = -time.Minute
	pair, err := NewTokenIssuer(expired).IssuePair(1)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	issuer := NewTokenIssuer(testAuthConfig())
	r := newAuthTestRouter(issuer, newStubUserRepo())

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: pair.AccessToken})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want 401", w.Code)
	}
	if msg := errorMessage(t, w.Body.String()); msg != "Token expired" {
		t.Fatalf("message: %q", msg)
	}
}

func TestAuthenticateUserGone(t *testing.T) {
	issuer := NewTokenIssuer(testAuthConfig())
	pair, err := issuer.IssuePair(99)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	r := newAuthTestRouter(issuer, newStubUserRepo()) // empty repo

	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: pair.AccessToken})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("status: got %d want 401", w.Code)
	}
	if msg := errorMessage(t, w.Body.String()); msg != "User no longer exists" {
		t.Fatalf("message: %q", msg)
	}
}

func TestAuthenticateCookieBeatsHeader(t *testing.T) {
	issuer := NewTokenIssuer(testAuthConfig())
	users := newStubUserRepo(&User{ID: 1, Username: "ann", Email: "ann@example.com", Role: RoleUser})
	pair, err := issuer.IssuePair(1)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	r := newAuthTestRouter(issuer, users)

	// Invalid cookie with a valid header: the cookie takes precedence, so the
	// request must fail.
	req := httptest.NewRequest(http.MethodGet, "/private", nil)
	req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: "garbage"})
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("cookie precedence violated: got %d", w.Code)
	}

	// Header alone works as a fallback.
	req = httptest.NewRequest(http.MethodGet, "/private", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("header fallback failed: got %d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"id":1`) {
		t.Fatalf("principal not attached: %s", w.Body.String())
	}
}

func TestRequireRoleHierarchy(t *testing.T) {
	issuer := NewTokenIssuer(testAuthConfig())
	users := newStubUserRepo(
		&User{ID: 1, Username: "plain", Email: "plain@example.com", Role: RoleUser},
		&User{ID: 2, Username: "boss", Email: "boss@example.com", Role: RoleAdmin},
		&User{ID: 3, Username: "root", Email: "root@example.com", Role: RoleRoot},
	)
	r := newAuthTestRouter(issuer, users)

	cases := []struct {
		userID int64
		want   int
	}{
		{1, http.StatusForbidden},
		{2, http.StatusOK},
		{3, http.StatusOK},
	}
	for _, tc := range cases {
		pair, err := issuer.IssuePair(tc.userID)
		if err != nil {
			t.Fatalf("IssuePair(%d): %v", tc.userID, err)
		}
		req := httptest.NewRequest(http.MethodGet, "/admin", nil)
		req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: pair.AccessToken})
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != tc.want {
			t.Fatalf("user %d: got %d want %d", tc.userID, w.Code, tc.want)
		}
	}
}
