package sqlite

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"github.com/kmathis/glucopanel/internal/domain/model"
	"github.com/kmathis/glucopanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// The three credential slots. They are written together in one transaction
// and cleared together, never partially. Username and password are encrypted
// at rest; the remember flag is a plain marker.
const (
	keyUsername = "username"
	keyPassword = "password"
	keyRemember = "remember"
)

// CredentialRepo is the SQLite implementation of the CredentialStore port.
// Credential values are encrypted with AES-256-GCM before write and decrypted
// after read.
type CredentialRepo struct {
	db  *DB
	key []byte // 32-byte AES-256 key; nil when encryption is disabled.
}

// NewCredentialRepo creates a new CredentialRepo. key must be 32 bytes for
// AES-256-GCM, or nil to disable credential persistence (Save and Load will
// return driven.ErrEncryptionKeyNotSet).
func NewCredentialRepo(db *DB, key []byte) *CredentialRepo {
	return &CredentialRepo{db: db, key: key}
}

// Save persists the username/password pair and sets the remember flag. All
// three slots are written in a single transaction.
func (r *CredentialRepo) Save(ctx context.Context, username, password string) error {
	encUsername, err := r.encrypt(username)
	if err != nil {
		return err
	}
	encPassword, err := r.encrypt(password)
	if err != nil {
		return err
	}

	tx, err := r.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // Rollback after commit is a no-op.

	const query = `INSERT OR REPLACE INTO credentials (key, value, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)`
	for _, slot := range []struct{ key, value string }{
		{keyUsername, encUsername},
		{keyPassword, encPassword},
		{keyRemember, "true"},
	} {
		if _, err := tx.ExecContext(ctx, query, slot.key, slot.value); err != nil {
			return fmt.Errorf("save credential slot %q: %w", slot.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit credentials: %w", err)
	}
	return nil
}

// Load returns the persisted credentials, or nil when the remember flag is
// unset or either value is missing.
func (r *CredentialRepo) Load(ctx context.Context) (*model.StoredCredentials, error) {
	remember, err := r.get(ctx, keyRemember)
	if err != nil {
		return nil, err
	}
	if remember != "true" {
		return nil, nil
	}
	if r.key == nil {
		return nil, driven.ErrEncryptionKeyNotSet
	}

	encUsername, err := r.get(ctx, keyUsername)
	if err != nil {
		return nil, err
	}
	encPassword, err := r.get(ctx, keyPassword)
	if err != nil {
		return nil, err
	}
	if encUsername == "" || encPassword == "" {
		return nil, nil
	}

	username, err := r.decrypt(encUsername)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential slot %q: %w", keyUsername, err)
	}
	password, err := r.decrypt(encPassword)
	if err != nil {
		return nil, fmt.Errorf("decrypt credential slot %q: %w", keyPassword, err)
	}

	return &model.StoredCredentials{
		Username: username,
		Password: password,
		Remember: true,
	}, nil
}

// Clear removes all three credential slots unconditionally. Clearing works
// without an encryption key so stale secrets can always be dropped.
func (r *CredentialRepo) Clear(ctx context.Context) error {
	const query = `DELETE FROM credentials WHERE key IN (?, ?, ?)`
	if _, err := r.db.Writer.ExecContext(ctx, query, keyUsername, keyPassword, keyRemember); err != nil {
		return fmt.Errorf("clear credentials: %w", err)
	}
	return nil
}

// get reads a single slot, returning "" when absent.
func (r *CredentialRepo) get(ctx context.Context, key string) (string, error) {
	const query = `SELECT value FROM credentials WHERE key = ?`
	var value string
	err := r.db.Reader.QueryRowContext(ctx, query, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get credential slot %q: %w", key, err)
	}
	return value, nil
}

// encrypt encrypts plaintext using AES-256-GCM and returns a base64-encoded
// string containing the nonce (12 bytes) prepended to the ciphertext.
func (r *CredentialRepo) encrypt(plaintext string) (string, error) {
	if r.key == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("rand nonce: %w", err)
	}

	// Seal appends the ciphertext to nonce, producing: nonce || ciphertext || tag.
	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decrypt decrypts a base64-encoded AES-256-GCM ciphertext.
func (r *CredentialRepo) decrypt(encoded string) (string, error) {
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("base64 decode: %w", err)
	}

	block, err := aes.NewCipher(r.key)
	if err != nil {
		return "", fmt.Errorf("aes.NewCipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("cipher.NewGCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("gcm.Open: %w", err)
	}

	return string(plaintext), nil
}
