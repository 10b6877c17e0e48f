package store

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
)

// Encrypted backup format:
//   magic (5 bytes): "WGUM\x01"
//   salt  (32 bytes): random, for Argon2id
//   nonce (12 bytes): random, for AES-256-GCM
//   ciphertext (rest): AES-256-GCM encrypted database file (includes 16-byte auth tag)

var encryptedMagic = []byte("WGUM\x01")

const (
	saltSize  = 32
	nonceSize = 12
)

// deriveKey derives a 32-byte AES key from password and salt using Argon2id.
func deriveKey(password string, salt []byte) []byte {
	return argon2.IDKey([]byte(password), salt, 3, 64*1024, 4, 32)
}

// EncryptBackup reads the plaintext database from r, encrypts it with
// password, and writes the container to w.
func EncryptBackup(w io.Writer, r io.Reader, password string) error {
	plaintext, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("store: read for encrypt: %w", err)
	}

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("store: generate salt: %w", err)
	}

	key := deriveKey(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("store: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("store: gcm: %w", err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("store: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, plaintext, nil)

	for _, part := range [][]byte{encryptedMagic, salt, nonce, ciphertext} {
		if _, err := w.Write(part); err != nil {
			return fmt.Errorf("store: write encrypted backup: %w", err)
		}
	}
	return nil
}

// DecryptBackup decrypts an encrypted backup container and writes the
// plaintext database to w.
func DecryptBackup(w io.Writer, data []byte, password string) error {
	header := len(encryptedMagic) + saltSize + nonceSize
	if len(data) < header {
		return fmt.Errorf("store: encrypted backup too short")
	}
	if !IsEncryptedBackup(data) {
		return fmt.Errorf("store: not an encrypted backup (bad magic)")
	}

	salt := data[len(encryptedMagic) : len(encryptedMagic)+saltSize]
	nonce := data[len(encryptedMagic)+saltSize : header]
	ciphertext := data[header:]

	key := deriveKey(password, salt)
	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("store: aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("store: gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return fmt.Errorf("store: decryption failed (wrong password?): %w", err)
	}

	if _, err := w.Write(plaintext); err != nil {
		return fmt.Errorf("store: write decrypted: %w", err)
	}
	return nil
}

// IsEncryptedBackup checks whether data starts with the backup magic header.
func IsEncryptedBackup(data []byte) bool {
	if len(data) < len(encryptedMagic) {
		return false
	}
	for i, b := range encryptedMagic {
		if data[i] != b {
			return false
		}
	}
	return true
}
