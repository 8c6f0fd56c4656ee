// Package fieldcrypt encrypts and decrypts the sensitive-data payload of an
// audit event independently of the rest of the record. A compromised row
// without the key leaks nothing sensitive while metadata stays queryable.
package fieldcrypt

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"

	"custodia/pkg/audit"
)

// KeySize is the required symmetric key length in bytes.
const KeySize = chacha20poly1305.KeySize

// ErrKeySize is returned by NewCodec for keys of the wrong length.
var ErrKeySize = fmt.Errorf("fieldcrypt: key must be %d bytes", KeySize)

// Codec performs authenticated encryption with XChaCha20-Poly1305. A fresh
// random 24-byte nonce is generated per record and prefixed to the output.
// One active key per instance; rotation is a future extension.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a codec from a raw symmetric key.
func NewCodec(key []byte) (*Codec, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: init cipher: %w", err)
	}
	return &Codec{aead: aead}, nil
}

// GenerateKey produces a cryptographically secure key of the cipher's
// required length.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("fieldcrypt: generate key: %w", err)
	}
	return key, nil
}

// Encrypt seals plaintext under a random nonce. Output layout is
// nonce || ciphertext || tag.
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("fieldcrypt: generate nonce: %w", err)
	}
	return c.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens nonce-prefixed ciphertext. An authentication-tag mismatch
// (tamper or wrong key) or malformed input yields *audit.DecryptionError.
func (c *Codec) Decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < chacha20poly1305.NonceSizeX {
		return nil, &audit.DecryptionError{Err: errors.New("ciphertext shorter than nonce")}
	}
	nonce, sealed := ciphertext[:chacha20poly1305.NonceSizeX], ciphertext[chacha20poly1305.NonceSizeX:]
	plaintext, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, &audit.DecryptionError{Err: err}
	}
	return plaintext, nil
}

// EncryptMap seals a sensitive-data map through the canonical encoder shared
// with the digest computation. An empty map yields nil: encryption is skipped
// when there is nothing to protect.
func (c *Codec) EncryptMap(data map[string]any) ([]byte, error) {
	if len(data) == 0 {
		return nil, nil
	}
	plaintext, err := audit.EncodeMap(data)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: encode sensitive data: %w", err)
	}
	return c.Encrypt(plaintext)
}

// DecryptMap reverses EncryptMap. Nil input yields a nil map.
func (c *Codec) DecryptMap(ciphertext []byte) (map[string]any, error) {
	if len(ciphertext) == 0 {
		return nil, nil
	}
	plaintext, err := c.Decrypt(ciphertext)
	if err != nil {
		return nil, err
	}
	data, err := audit.DecodeMap(plaintext)
	if err != nil {
		return nil, &audit.DecryptionError{Err: err}
	}
	return data, nil
}
