// Package encription seals cached table data at rest.
package encription

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"github.com/wurt83ow/tablekeeper/pkg/storage"
)

var ErrCiphertextTooShort = errors.New("ciphertext too short")

type Enc struct {
	key []byte
}

// NewEnc derives a 256-bit key from a passphrase.
func NewEnc(passphrase string) (*Enc, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	r := hkdf.New(sha256.New, []byte(passphrase), nil, []byte("tablekeeper cache v1"))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	return &Enc{key: key}, nil
}

func (e *Enc) Encrypt(plainText string) (string, error) {
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plainText)+aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to create nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plainText), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

func (e *Enc) Decrypt(encryptedText string) (string, error) {
	data, err := base64.URLEncoding.DecodeString(encryptedText)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}
	aead, err := chacha20poly1305.NewX(e.key)
	if err != nil {
		return "", err
	}
	if len(data) < aead.NonceSize() {
		return "", ErrCiphertextTooShort
	}
	nonce, sealed := data[:aead.NonceSize()], data[aead.NonceSize():]
	plain, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plain), nil
}

// SealedKV encrypts values before handing them to the wrapped KV.
type SealedKV struct {
	kv  storage.KV
	enc *Enc
}

func NewSealedKV(kv storage.KV, enc *Enc) *SealedKV {
	return &SealedKV{kv: kv, enc: enc}
}

// Get returns the decrypted value. Values that fail to open surface as malformed cache data.
func (s *SealedKV) Get(ctx context.Context, key string) (string, bool, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil || !ok {
		return "", ok, err
	}
	plain, err := s.enc.Decrypt(raw)
	if err != nil {
		// Returning the raw text lets the store treat it as unreadable JSON and start over.
		return raw, true, nil
	}
	return plain, true, nil
}

func (s *SealedKV) Put(ctx context.Context, key, value string) error {
	sealed, err := s.enc.Encrypt(value)
	if err != nil {
		return err
	}
	return s.kv.Put(ctx, key, sealed)
}

func (s *SealedKV) Delete(ctx context.Context, key string) error {
	return s.kv.Delete(ctx, key)
}
