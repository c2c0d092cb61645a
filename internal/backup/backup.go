// Package backup implements the password-based encryption envelope for
// local note backups. The archive content is opaque to this package; it
// seals and opens bytes.
//
// Envelope layout: magic "NDBK1" | salt(16) | nonce(12) | AES-256-GCM
// ciphertext. The key is derived with PBKDF2-SHA256.
package backup

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	magic      = "NDBK1"
	saltSize   = 16
	nonceSize  = 12
	keySize    = 32
	kdfRounds  = 100_000
	headerSize = len(magic) + saltSize + nonceSize
)

var (
	// ErrAuthentication means the password is wrong or the backup was
	// tampered with; the two cases are indistinguishable by design of GCM.
	ErrAuthentication = errors.New("backup: authentication failed")

	// ErrMalformed means the input is not a backup envelope at all.
	ErrMalformed = errors.New("backup: malformed envelope")
)

// Encrypt seals data under a password-derived key.
func Encrypt(data []byte, password string) ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("backup: generate salt: %w", err)
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("backup: generate nonce: %w", err)
	}

	aead, err := newAEAD(password, salt)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, headerSize+len(data)+aead.Overhead())
	out = append(out, magic...)
	out = append(out, salt...)
	out = append(out, nonce...)
	out = aead.Seal(out, nonce, data, []byte(magic))
	return out, nil
}

// Decrypt opens an envelope produced by Encrypt. A wrong password yields
// ErrAuthentication.
func Decrypt(data []byte, password string) ([]byte, error) {
	if len(data) < headerSize || string(data[:len(magic)]) != magic {
		return nil, ErrMalformed
	}

	salt := data[len(magic) : len(magic)+saltSize]
	nonce := data[len(magic)+saltSize : headerSize]
	ciphertext := data[headerSize:]

	aead, err := newAEAD(password, salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, []byte(magic))
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func newAEAD(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, kdfRounds, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("backup: cipher init: %w", err)
	}
	return cipher.NewGCM(block)
}
