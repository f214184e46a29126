// Package crypto encrypts institution access credentials before they are stored.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

const (
	keySize      = 32 // AES-256
	segmentCount = 3  // nonce:tag:ciphertext
	separator    = ":"
)

var (
	ErrInvalidKey       = errors.New("encryption key must be exactly 32 bytes")
	ErrInvalidFormat    = errors.New("invalid ciphertext format")
	ErrDecryptionFailed = errors.New("failed to decrypt ciphertext")
)

// Encryptor seals secrets with AES-256-GCM. Output is
// hex(nonce):hex(tag):hex(ciphertext), so Decrypt needs no other state.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor builds an Encryptor from a 32-byte key.
func NewEncryptor(key string) (*Encryptor, error) {
	if len(key) != keySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher([]byte(key))
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nil, nonce, []byte(plaintext), nil)

	// GCM appends the tag to the ciphertext
	tagStart := len(sealed) - e.aead.Overhead()
	ciphertext, tag := sealed[:tagStart], sealed[tagStart:]

	return strings.Join([]string{
		hex.EncodeToString(nonce),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, separator), nil
}

// Decrypt opens a value produced by Encrypt.
func (e *Encryptor) Decrypt(value string) (string, error) {
	parts := strings.Split(value, separator)
	if len(parts) != segmentCount {
		return "", fmt.Errorf("%w: expected %d segments, got %d", ErrInvalidFormat, segmentCount, len(parts))
	}

	nonce, err := hex.DecodeString(parts[0])
	if err != nil || len(nonce) != e.aead.NonceSize() {
		return "", fmt.Errorf("%w: bad nonce", ErrInvalidFormat)
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil || len(tag) != e.aead.Overhead() {
		return "", fmt.Errorf("%w: bad tag", ErrInvalidFormat)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: bad ciphertext", ErrInvalidFormat)
	}

	plaintext, err := e.aead.Open(nil, nonce, append(ciphertext, tag...), nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}
