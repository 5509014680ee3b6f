package core

import (
	"context"
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"
)

const (
	otpTTL         = 10 * time.Minute
	otpMaxAttempts = 5
)

// OTPStore keeps short-lived password-reset codes in Redis. Only the bcrypt
// hash of a code is stored; the plaintext goes out by mail and is never
// persisted.
type OTPStore struct {
	client *redis.Client
}

func NewOTPStore(client *redis.Client) *OTPStore {
	return &OTPStore{client: client}
}

func otpKey(email string) string {
	return "otp:" + strings.ToLower(email)
}

func otpAttemptsKey(email string) string {
	return "otp:attempts:" + strings.ToLower(email)
}

// Issue generates a 6-digit code for the address, stores its hash with a
// fresh TTL, and resets the attempt counter. Reissuing replaces any prior code.
func (s *OTPStore) Issue(ctx context.Context, email string) (string, error) {
	code, err := generateOTP()
	if err != nil {
		return "", err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, otpKey(email), string(hash), otpTTL)
	pipe.Set(ctx, otpAttemptsKey(email), 0, otpTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", err
	}
	return code, nil
}

// Verify checks the code against the stored hash. A correct code is consumed
// on the spot, so it cannot mint a second reset token. Each failure counts;
// after otpMaxAttempts the code is invalidated outright.
func (s *OTPStore) Verify(ctx context.Context, email, code string) (bool, error) {
	hash, err := s.client.Get(ctx, otpKey(email)).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(code)) != nil {
		attempts, err := s.client.Incr(ctx, otpAttemptsKey(email)).Result()
		if err == nil && attempts >= otpMaxAttempts {
			s.Clear(ctx, email)
		}
		return false, nil
	}
	s.Clear(ctx, email)
	return true, nil
}

// Clear drops the code and attempt counter (after a successful reset or an
// attempt-limit breach).
func (s *OTPStore) Clear(ctx context.Context, email string) {
	if err := s.client.Del(ctx, otpKey(email), otpAttemptsKey(email)).Err(); err != nil {
		log.Printf("warn: failed to clear otp state for %s: %v", email, err)
	}
}

func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
