package sqlite

import (
	"bytes"
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kmathis/glucopanel/internal/domain/port/driven"
)

// testKey returns a deterministic 32-byte AES-256 key for tests.
func testKey() []byte {
	return bytes.Repeat([]byte{0x42}, 32)
}

func TestCredentialRepo_SaveAndLoad(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey())
	ctx := context.Background()

	err := repo.Save(ctx, "follower@example.com", "hunter2")
	require.NoError(t, err)

	creds, err := repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "follower@example.com", creds.Username)
	assert.Equal(t, "hunter2", creds.Password)
	assert.True(t, creds.Remember)
}

func TestCredentialRepo_ValuesEncryptedAtRest(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey())
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "follower@example.com", "hunter2"))

	for slot, plaintext := range map[string]string{
		keyUsername: "follower@example.com",
		keyPassword: "hunter2",
	} {
		raw, err := repo.get(ctx, slot)
		require.NoError(t, err)
		assert.NotEqual(t, plaintext, raw, "slot %q stored in plaintext", slot)
		assert.NotContains(t, raw, plaintext)

		// Base64 of nonce || ciphertext || tag: longer than the plaintext alone.
		decoded, err := base64.StdEncoding.DecodeString(raw)
		require.NoError(t, err)
		assert.Greater(t, len(decoded), len(plaintext))
	}
}

func TestCredentialRepo_SaveWithoutKeyReturnsSentinel(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, nil)
	ctx := context.Background()

	err := repo.Save(ctx, "follower@example.com", "hunter2")
	require.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)

	// Nothing may hit the table on a failed save.
	for _, key := range []string{keyUsername, keyPassword, keyRemember} {
		value, err := repo.get(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, value)
	}
}

func TestCredentialRepo_LoadWithoutKey(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	// Nothing stored: absence, not an error.
	repo := NewCredentialRepo(db, nil)
	creds, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, creds)

	// Stored under a key, then reopened without one: the sentinel.
	require.NoError(t, NewCredentialRepo(db, testKey()).Save(ctx, "follower@example.com", "hunter2"))
	_, err = repo.Load(ctx)
	require.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
}

func TestCredentialRepo_LoadWithWrongKeyFails(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, NewCredentialRepo(db, testKey()).Save(ctx, "follower@example.com", "hunter2"))

	wrongKey := bytes.Repeat([]byte{0x24}, 32)
	_, err := NewCredentialRepo(db, wrongKey).Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decrypt")
}

func TestCredentialRepo_LoadEmpty(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey())

	creds, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestCredentialRepo_SaveOverwrites(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey())
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "old@example.com", "old-pass"))
	require.NoError(t, repo.Save(ctx, "new@example.com", "new-pass"))

	creds, err := repo.Load(ctx)
	require.NoError(t, err)
	require.NotNil(t, creds)
	assert.Equal(t, "new@example.com", creds.Username)
	assert.Equal(t, "new-pass", creds.Password)
}

func TestCredentialRepo_ClearRemovesAllSlots(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey())
	ctx := context.Background()

	require.NoError(t, repo.Save(ctx, "follower@example.com", "hunter2"))
	require.NoError(t, repo.Clear(ctx))

	creds, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, creds)

	// No slot should survive a clear individually either.
	for _, key := range []string{keyUsername, keyPassword, keyRemember} {
		value, err := repo.get(ctx, key)
		require.NoError(t, err)
		assert.Empty(t, value, "slot %q should be cleared", key)
	}
}

func TestCredentialRepo_ClearWorksWithoutKey(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, NewCredentialRepo(db, testKey()).Save(ctx, "follower@example.com", "hunter2"))

	repo := NewCredentialRepo(db, nil)
	require.NoError(t, repo.Clear(ctx))

	creds, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, creds)
}

func TestCredentialRepo_ClearIsIdempotent(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey())
	ctx := context.Background()

	require.NoError(t, repo.Clear(ctx))
	require.NoError(t, repo.Clear(ctx))
}

func TestCredentialRepo_LoadWithoutRememberFlag(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, testKey())
	ctx := context.Background()

	// Simulate a partial state where values exist but remember was never set.
	const query = `INSERT INTO credentials (key, value) VALUES (?, ?)`
	_, err := db.Writer.ExecContext(ctx, query, keyUsername, "follower@example.com")
	require.NoError(t, err)
	_, err = db.Writer.ExecContext(ctx, query, keyPassword, "hunter2")
	require.NoError(t, err)

	creds, err := repo.Load(ctx)
	require.NoError(t, err)
	assert.Nil(t, creds)
}
