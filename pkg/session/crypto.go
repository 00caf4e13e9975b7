package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

const keyFileName = ".session_key"

// blobCipher seals and opens session blobs with AES-256-GCM. The key
// lives in a separate owner-only file next to the blobs; nothing
// outside this package ever sees it.
type blobCipher struct {
	aead cipher.AEAD
}

// loadOrCreateCipher reads the store's key file, generating a fresh
// key when the file is missing or unusable. Regenerating the key
// silently orphans any blobs sealed under the old one, which the
// store treats as absent sessions.
func loadOrCreateCipher(dir string) (*blobCipher, error) {
	keyPath := filepath.Join(dir, keyFileName)

	key, err := os.ReadFile(keyPath)
	if err != nil || len(key) != 32 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("failed to generate session key: %w", err)
		}
		// A stale or corrupt key file may be read-only; remove before rewriting.
		_ = os.Remove(keyPath)
		if err := os.WriteFile(keyPath, key, 0400); err != nil {
			return nil, fmt.Errorf("failed to write session key: %w", err)
		}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize GCM: %w", err)
	}
	return &blobCipher{aead: aead}, nil
}

// encrypt seals plaintext with a random nonce prepended to the output.
func (c *blobCipher) encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// decrypt opens a blob produced by encrypt.
func (c *blobCipher) decrypt(blob []byte) ([]byte, error) {
	if len(blob) < c.aead.NonceSize() {
		return nil, fmt.Errorf("blob shorter than nonce")
	}
	nonce, sealed := blob[:c.aead.NonceSize()], blob[c.aead.NonceSize():]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt blob: %w", err)
	}
	return plaintext, nil
}
