package core

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "portfolio-hub"

// Role names, totally ordered USER < ADMIN < ROOT.
const (
	RoleUser  = "USER"
	RoleAdmin = "ADMIN"
	RoleRoot  = "ROOT"
)

// RoleRank maps a role name onto the hierarchy. Unknown roles rank below
// USER so a corrupt value can never grant access.
func RoleRank(role string) int {
	switch role {
	case RoleRoot:
		return 3
	case RoleAdmin:
		return 2
	case RoleUser:
		return 1
	default:
		return 0
	}
}

// IsValidRole reports whether role is one of the known role names.
func IsValidRole(role string) bool {
	return RoleRank(role) > 0
}

var (
	// ErrTokenInvalid indicates a malformed token or bad signature.
	ErrTokenInvalid = errors.New("invalid token")
	// ErrTokenExpired indicates a well-formed token past its expiry.
	ErrTokenExpired = errors.New("token expired")
)

// token purposes; a refresh token must never pass as an access token even
// though both are HS256 JWTs.
const (
	purposeAccess  = "access"
	purposeRefresh = "refresh"
	purposeReset   = "password_reset"
)

// AuthClaims is the claim set carried by every token this service signs.
type AuthClaims struct {
	Purpose string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenPair is one issued access+refresh pair.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// TokenIssuer signs and verifies the service's JWTs. Access and refresh
// tokens use distinct secrets so a leaked access secret cannot mint refresh
// tokens.
type TokenIssuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
}

func NewTokenIssuer(cfg Config) *TokenIssuer {
	return &TokenIssuer{
		accessSecret:  []byte(cfg.AccessTokenSecret),
		refreshSecret: []byte(cfg.RefreshTokenSecret),
		accessTTL:     cfg.AccessTokenTTL,
		refreshTTL:    cfg.RefreshTokenTTL,
	}
}

// IssuePair signs a fresh access+refresh pair for the user.
func (t *TokenIssuer) IssuePair(userID int64) (TokenPair, error) {
	access, err := t.sign(strconv.FormatInt(userID, 10), purposeAccess, t.accessSecret, t.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := t.sign(strconv.FormatInt(userID, 10), purposeRefresh, t.refreshSecret, t.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// IssueResetToken signs a short-lived token proving a completed OTP check.
// Subject is the account email rather than an id.
func (t *TokenIssuer) IssueResetToken(email string, ttl time.Duration) (string, error) {
	return t.sign(email, purposeReset, t.accessSecret, ttl)
}

// VerifyAccess validates an access token and returns the subject user id.
func (t *TokenIssuer) VerifyAccess(token string) (int64, error) {
	claims, err := t.verify(token, purposeAccess, t.accessSecret)
	if err != nil {
		return 0, err
	}
	return subjectID(claims)
}

// VerifyRefresh validates a refresh token and returns the subject user id.
func (t *TokenIssuer) VerifyRefresh(token string) (int64, error) {
	claims, err := t.verify(token, purposeRefresh, t.refreshSecret)
	if err != nil {
		return 0, err
	}
	return subjectID(claims)
}

// VerifyReset validates a password-reset token and returns the subject email.
func (t *TokenIssuer) VerifyReset(token string) (string, error) {
	claims, err := t.verify(token, purposeReset, t.accessSecret)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (t *TokenIssuer) sign(subject, purpose string, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now().UTC()
	claims := AuthClaims{
		Purpose: purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func (t *TokenIssuer) verify(token, purpose string, secret []byte) (*AuthClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parsed, err := jwt.ParseWithClaims(token, &AuthClaims{}, func(tok *jwt.Token) (any, error) {
		if tok.Method != jwt.SigningMethodHS256 {
			return nil, ErrTokenInvalid
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*AuthClaims)
	if !ok || !parsed.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.Issuer != tokenIssuer || claims.Purpose != purpose {
		return nil, ErrTokenInvalid
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

func subjectID(claims *AuthClaims) (int64, error) {
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrTokenInvalid
	}
	return id, nil
}

// HashPassword hashes a plaintext password using bcrypt.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPassword reports whether password matches the stored bcrypt hash.
func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
