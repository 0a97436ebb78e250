// Package auth manages the admin password and the API key that protect the
// management API.
package auth

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"github.com/mescon/Tickarr/internal/crypto"
	"github.com/mescon/Tickarr/internal/db"
)

// Settings keys.
const (
	KeyPasswordHash = "password_hash"
	KeyAPIKey       = "api_key"
)

// MinPasswordLength is the shortest accepted admin password.
const MinPasswordLength = 8

var (
	ErrAlreadySetup    = errors.New("setup already completed")
	ErrNotSetup        = errors.New("setup required")
	ErrInvalidPassword = errors.New("invalid password")
	ErrWeakPassword    = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
)

// GenerateAPIKey returns 32 random bytes, base64url encoded.
func GenerateAPIKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// HashPassword returns the bcrypt hash of password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// CheckPasswordHash reports whether password matches hash.
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// SettingsStore is the key/value table credentials live in. *db.Repository implements it.
type SettingsStore interface {
	GetSetting(key string) (string, error)
	SetSetting(key, value string) error
}

// Credentials reads and writes the admin password hash and the encrypted API key.
type Credentials struct {
	settings SettingsStore
	keys     *crypto.KeyManager
}

func NewCredentials(settings SettingsStore, keys *crypto.KeyManager) *Credentials {
	return &Credentials{settings: settings, keys: keys}
}

// IsSetup reports whether an admin password has been stored.
func (c *Credentials) IsSetup() (bool, error) {
	_, err := c.settings.GetSetting(KeyPasswordHash)
	if errors.Is(err, db.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Setup stores the admin password and a fresh API key, which it returns.
func (c *Credentials) Setup(password string) (string, error) {
	done, err := c.IsSetup()
	if err != nil {
		return "", err
	}
	if done {
		return "", ErrAlreadySetup
	}
	if len(password) < MinPasswordLength {
		return "", ErrWeakPassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	apiKey, err := c.storeNewKey()
	if err != nil {
		return "", err
	}
	if err := c.settings.SetSetting(KeyPasswordHash, hash); err != nil {
		return "", err
	}
	return apiKey, nil
}

// Login checks password and returns the API key to use as session token.
func (c *Credentials) Login(password string) (string, error) {
	hash, err := c.settings.GetSetting(KeyPasswordHash)
	if errors.Is(err, db.ErrNotFound) {
		return "", ErrNotSetup
	}
	if err != nil {
		return "", err
	}
	if !CheckPasswordHash(password, hash) {
		return "", ErrInvalidPassword
	}
	return c.APIKey()
}

// APIKey returns the decrypted API key.
func (c *Credentials) APIKey() (string, error) {
	stored, err := c.settings.GetSetting(KeyAPIKey)
	if errors.Is(err, db.ErrNotFound) {
		return "", ErrNotSetup
	}
	if err != nil {
		return "", err
	}
	return c.keys.Decrypt(stored)
}

// Verify compares token against the API key in constant time.
func (c *Credentials) Verify(token string) (bool, error) {
	key, err := c.APIKey()
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(key)) == 1, nil
}

// RegenerateAPIKey replaces the API key and returns the new one.
func (c *Credentials) RegenerateAPIKey() (string, error) {
	if done, err := c.IsSetup(); err != nil {
		return "", err
	} else if !done {
		return "", ErrNotSetup
	}
	return c.storeNewKey()
}

// ChangePassword replaces the admin password after checking the current one.
func (c *Credentials) ChangePassword(current, next string) error {
	if _, err := c.Login(current); err != nil {
		return err
	}
	if len(next) < MinPasswordLength {
		return ErrWeakPassword
	}
	hash, err := HashPassword(next)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	return c.settings.SetSetting(KeyPasswordHash, hash)
}

func (c *Credentials) storeNewKey() (string, error) {
	apiKey, err := GenerateAPIKey()
	if err != nil {
		return "", fmt.Errorf("failed to generate API key: %w", err)
	}
	encrypted, err := c.keys.Encrypt(apiKey)
	if err != nil {
		return "", fmt.Errorf("failed to encrypt API key: %w", err)
	}
	if err := c.settings.SetSetting(KeyAPIKey, encrypted); err != nil {
		return "", err
	}
	return apiKey, nil
}
