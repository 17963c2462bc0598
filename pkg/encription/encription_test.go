package encription

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wurt83ow/tablekeeper/pkg/models"
	"github.com/wurt83ow/tablekeeper/pkg/storage"
)

func TestEncryptDecrypt(t *testing.T) {
	enc, err := NewEnc("supersecretkey")
	require.NoError(t, err)

	encrypted, err := enc.Encrypt("hello world")
	require.NoError(t, err)
	assert.NotContains(t, encrypted, "hello")

	decrypted, err := enc.Decrypt(encrypted)
	require.NoError(t, err)
	assert.Equal(t, "hello world", decrypted)

	other, err := NewEnc("another key")
	require.NoError(t, err)
	_, err = other.Decrypt(encrypted)
	assert.Error(t, err)

	_, err = enc.Decrypt("AAAA")
	assert.ErrorIs(t, err, ErrCiphertextTooShort)
}

func TestSealedKV_StoresNoPlaintext(t *testing.T) {
	ctx := context.Background()
	enc, err := NewEnc("pass")
	require.NoError(t, err)
	inner := storage.NewMemoryKV()
	sealed := NewSealedKV(inner, enc)

	s := storage.New(sealed, nil)
	require.NoError(t, s.Update(ctx, func(snap *storage.Snapshot) error {
		snap.Upsert(models.NewEntry(1, map[string]string{"email": "ann@example.com"}))
		return nil
	}))

	raw, ok, err := inner.Get(ctx, storage.CacheKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, strings.Contains(raw, "ann@example.com"))

	snap, err := s.Load(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 1)
	assert.Equal(t, "ann@example.com", snap.Entries[0].Get("email"))
}

func TestSealedKV_WrongKeyDegradesToEmpty(t *testing.T) {
	ctx := context.Background()
	inner := storage.NewMemoryKV()
	first, _ := NewEnc("one")
	second, _ := NewEnc("two")

	require.NoError(t, storage.New(NewSealedKV(inner, first), nil).Update(ctx, func(snap *storage.Snapshot) error {
		snap.Upsert(models.NewEntry(1, nil))
		return nil
	}))

	snap, err := storage.New(NewSealedKV(inner, second), nil).Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Entries)
}
