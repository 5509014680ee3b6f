package core

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
)

// Auth cookie names. Both are HttpOnly; the access token may also arrive via
// the Authorization header for non-browser clients.
const (
	AccessTokenCookie  = "access_token"
	RefreshTokenCookie = "refresh_token"
)

const principalKey = "principal"

// OriginRefererMiddleware validates Origin/Referer against allowed list and sets CORS headers.
func OriginRefererMiddleware(cfg Config) gin.HandlerFunc {
	allowed := map[string]struct{}{}
	for _, o := range cfg.AllowedOrigins {
		allowed[strings.ToLower(o)] = struct{}{}
	}

	isAllowed := func(origin string) bool {
		if origin == "" {
			// Same-origin navigation (no Origin header) is allowed.
			return true
		}
		if len(allowed) == 0 {
			return false
		}
		origin = strings.ToLower(origin)
		_, ok := allowed[origin]
		return ok
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		referer := c.GetHeader("Referer")
		if origin == "" && referer != "" {
			if u, err := url.Parse(referer); err == nil {
				origin = u.Scheme + "://" + u.Host
			}
		}

		// Preflight handling
		if c.Request.Method == http.MethodOptions && origin != "" {
			if !isAllowed(origin) {
				respondError(c, http.StatusForbidden, "origin not allowed")
				c.Abort()
				return
			}
			setCORSHeaders(c, origin)
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}

		if !isAllowed(origin) {
			respondError(c, http.StatusForbidden, "origin not allowed")
			c.Abort()
			return
		}
		if origin != "" {
			setCORSHeaders(c, origin)
		}
		c.Next()
	}
}

func setCORSHeaders(c *gin.Context, origin string) {
	c.Header("Access-Control-Allow-Origin", origin)
	c.Header("Vary", "Origin")
	c.Header("Access-Control-Allow-Credentials", "true")
	c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")
	c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
}

// extractAccessToken pulls the bearer credential off the request. The cookie
// wins over the Authorization header.
func extractAccessToken(c *gin.Context) string {
	if cookie, err := c.Cookie(AccessTokenCookie); err == nil && strings.TrimSpace(cookie) != "" {
		return cookie
	}
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return ""
}

// Authenticate verifies the access token and attaches the principal to the
// request context. No token at all fails before any database access.
func Authenticate(issuer *TokenIssuer, users UserRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractAccessToken(c)
		if token == "" {
			respondError(c, http.StatusUnauthorized, "Authentication required")
			c.Abort()
			return
		}

		userID, err := issuer.VerifyAccess(token)
		if err != nil {
			if errors.Is(err, ErrTokenExpired) {
				respondError(c, http.StatusUnauthorized, "Token expired")
			} else {
				respondError(c, http.StatusUnauthorized, "Invalid token")
			}
			c.Abort()
			return
		}

		user, err := users.FindByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				respondError(c, http.StatusUnauthorized, "User no longer exists")
			} else {
				respondError(c, http.StatusInternalServerError, "authentication error")
			}
			c.Abort()
			return
		}

		c.Set(principalKey, user)
		c.Next()
	}
}

// RequireRole gates the route to principals ranked at or above minRole.
// Must run after Authenticate.
func RequireRole(minRole string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := CurrentUser(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "Authentication required")
			c.Abort()
			return
		}
		if RoleRank(user.Role) < RoleRank(minRole) {
			respondError(c, http.StatusForbidden, "Insufficient permissions")
			c.Abort()
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated principal attached by Authenticate.
func CurrentUser(c *gin.Context) (*User, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	user, ok := v.(*User)
	return user, ok
}

// setAuthCookies overwrites both auth cookies with a freshly issued pair.
func setAuthCookies(c *gin.Context, cfg Config, pair TokenPair) {
	c.SetSameSite(sameSiteFromString(cfg.CookieSameSite))
	c.SetCookie(AccessTokenCookie, pair.AccessToken, int(cfg.AccessTokenTTL.Seconds()), "/", cfg.CookieDomain, cfg.CookieSecure, true)
	c.SetCookie(RefreshTokenCookie, pair.RefreshToken, int(cfg.RefreshTokenTTL.Seconds()), "/", cfg.CookieDomain, cfg.CookieSecure, true)
}

// clearAuthCookies expires both auth cookies (empty value, past expiry).
func clearAuthCookies(c *gin.Context, cfg Config) {
	c.SetSameSite(sameSiteFromString(cfg.CookieSameSite))
	c.SetCookie(AccessTokenCookie, "", -1, "/", cfg.CookieDomain, cfg.CookieSecure, true)
	c.SetCookie(RefreshTokenCookie, "", -1, "/", cfg.CookieDomain, cfg.CookieSecure, true)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}
