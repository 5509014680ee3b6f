package core

import (
	"errors"
	"testing"
	"time"
)

func testAuthConfig() Config {
	return Config{
		AccessTokenSecret:  "access-secret-for-tests",
		RefreshTokenSecret: "refresh-secret-for-tests",
		AccessTokenTTL:     15 * time.Minute,
		RefreshTokenTTL:    14 * 24 * time.Hour,
		CookieSameSite:     "Strict",
	}
}

func TestRoleRankOrdering(t *testing.T) {
	if !(RoleRank(RoleUser) < RoleRank(RoleAdmin) && RoleRank(RoleAdmin) < RoleRank(RoleRoot)) {
		t.Fatal("role ranks are not totally ordered USER < ADMIN < ROOT")
	}
	if RoleRank("banana") != 0 {
		t.Fatalf("unknown role must rank below USER, got %d", RoleRank("banana"))
	}
	if IsValidRole("banana") || !IsValidRole(RoleUser) {
		t.Fatal("IsValidRole misclassifies")
	}
}

func TestIssuePairRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testAuthConfig())
	pair, err := issuer.IssuePair(42)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	id, err := issuer.VerifyAccess(pair.AccessToken)
	if err != nil || id != 42 {
		t.Fatalf("VerifyAccess: id=%d err=%v", id, err)
	}
	id, err = issuer.VerifyRefresh(pair.RefreshToken)
	if err != nil || id != 42 {
		t.Fatalf("VerifyRefresh: id=%d err=%v", id, err)
	}
}

func TestTokenPurposesDoNotCross(t *testing.T) {
	issuer := NewTokenIssuer(testAuthConfig())
	pair, err := issuer.IssuePair(7)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}

	if _, err := issuer.VerifyAccess(pair.RefreshToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("refresh token accepted as access token: %v", err)
	}
	if _, err := issuer.VerifyRefresh(pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token accepted as refresh token: %v", err)
	}
}

func TestVerifyAccessRejectsGarbageAndWrongKey(t *testing.T) {
	issuer := NewTokenIssuer(testAuthConfig())

	if _, err := issuer.VerifyAccess("not-a-jwt"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("garbage token: %v", err)
	}
	if _, err := issuer.VerifyAccess(""); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("empty token: %v", err)
	}

	other := testAuthConfig()
	other.AccessTokenSecret = "a-different-secret"
	foreign, err := NewTokenIssuer(other).IssuePair(3)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := issuer.VerifyAccess(foreign.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("token signed with wrong secret accepted: %v", err)
	}
}

func TestVerifyAccessExpired(t *testing.T) {
	cfg := testAuthConfig()
	cfg.AccessTokenTTL = -time.Minute
	pair, err := NewTokenIssuer(cfg).IssuePair(5)
	if err != nil {
		t.Fatalf("IssuePair: %v", err)
	}
	if _, err := NewTokenIssuer(testAuthConfig()).VerifyAccess(pair.AccessToken); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestResetTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer(testAuthConfig())
	token, err := issuer.IssueResetToken("user@example.com", 15*time.Minute)
	if err != nil {
		t.Fatalf("IssueResetToken: %v", err)
	}
	email, err := issuer.VerifyReset(token)
	if err != nil || email != "user@example.com" {
		t.Fatalf("VerifyReset: email=%q err=%v", email, err)
	}

	// A reset token must not work as an access token and vice versa.
	if _, err := issuer.VerifyAccess(token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("reset token accepted as access token: %v", err)
	}
	pair, _ := issuer.IssuePair(1)
	if _, err := issuer.VerifyReset(pair.AccessToken); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("access token accepted as reset token: %v", err)
	}
}

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("hunter22-but-longer")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "hunter22-but-longer") {
		t.Fatal("correct password rejected")
	}
	if CheckPassword(hash, "wrong-password") {
		t.Fatal("wrong password accepted")
	}
	if _, err := HashPassword(""); err == nil {
		t.Fatal("empty password must not hash")
	}
}
