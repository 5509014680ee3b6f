package core

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"log"
	"os"
	"path/filepath"
)

// BootstrapRoot creates the initial ROOT account when none exists.
// It is idempotent: if a ROOT account already exists, it does nothing.
// At most one ROOT account ever exists; role assignment refuses to mint more.
func BootstrapRoot(ctx context.Context, repo UserRepository, cfg Config) error {
	if !cfg.BootstrapRootEnabled {
		return nil
	}

	has, err := repo.HasRoot(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	password, err := generatePassword(32)
	if err != nil {
		return err
	}
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}

	if _, err := repo.Create(ctx, "root", cfg.InitialRootEmail, hash, RoleRoot); err != nil {
		return err
	}

	if cfg.InitialRootPasswordPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.InitialRootPasswordPath), 0o700); err != nil {
			return err
		}
		if err := os.WriteFile(cfg.InitialRootPasswordPath, []byte(password+"\n"), 0o600); err != nil {
			return err
		}
		log.Printf("initial root account created; credentials written to %s", cfg.InitialRootPasswordPath)
	} else {
		log.Printf("initial root account created email=%s password=%s", cfg.InitialRootEmail, password)
	}

	return nil
}

func generatePassword(length int) (string, error) {
	if length <= 0 {
		return "", errors.New("password length must be positive")
	}
	// base64 encoding: need 3/4 overhead; ensure enough bytes
	raw := make([]byte, length)
	if _, err := rand.Read(raw); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw)[:length], nil
}
