// Package envelope implements the optional payload protection layer:
// symmetric encryption of request and response bodies plus keyed request
// signing. Key material is held behind an opaque handle and never leaves
// the package.
package envelope

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	saltSize = 16
	keySize  = 32

	// Iterations for password based key derivation.
	pbkdf2Iterations = 100000
)

var (
	// ErrDecryptFailed is returned when a ciphertext fails authentication,
	// typically due to corruption or a wrong key.
	ErrDecryptFailed = errors.New("envelope: decryption failed")

	// ErrInvalidCiphertext is returned when the encoded payload is malformed.
	ErrInvalidCiphertext = errors.New("envelope: ciphertext is invalid")
)

// Key is an opaque handle to symmetric key material. It must not be copied
// after first use and is never serialized.
type Key struct {
	material []byte
}

// NewRandomKey generates a fresh random 256-bit key.
func NewRandomKey() (*Key, error) {
	material := make([]byte, keySize)
	if _, err := rand.Read(material); err != nil {
		return nil, err
	}
	return &Key{material: material}, nil
}

// DeriveKey derives a key from a password using PBKDF2-SHA256 with a random
// salt. The salt is returned so a peer can derive the same key.
func DeriveKey(password string) (*Key, []byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, nil, err
	}
	return DeriveKeyWithSalt(password, salt), salt, nil
}

// DeriveKeyWithSalt derives a key from a password and a known salt.
func DeriveKeyWithSalt(password string, salt []byte) *Key {
	material := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, keySize, sha256.New)
	return &Key{material: material}
}

// Encrypt seals plaintext with AES-GCM under a fresh random nonce. The nonce
// is prepended to the ciphertext and the whole payload is base64 encoded.
// Nonce reuse under the same key would break confidentiality, so the nonce
// is drawn from crypto/rand on every call.
func (k *Key) Encrypt(plaintext []byte) (string, error) {
	aead, err := k.aead()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}

	sealed := aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. It fails closed: a payload that does not
// authenticate is never returned as plaintext.
func (k *Key) Decrypt(encoded string) ([]byte, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrInvalidCiphertext
	}

	aead, err := k.aead()
	if err != nil {
		return nil, err
	}

	if len(sealed) < aead.NonceSize() {
		return nil, ErrInvalidCiphertext
	}

	nonce := sealed[:aead.NonceSize()]
	ciphertext := sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// Zero wipes the key material. The key is unusable afterwards.
func (k *Key) Zero() {
	for i := range k.material {
		k.material[i] = 0
	}
}

func (k *Key) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(k.material)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Sign computes an HMAC-SHA256 over the canonical request string
// METHOD:PATH:TIMESTAMP:BODY keyed with the caller's credential. It detects
// tampering in transit independent of transport encryption.
func Sign(secret, method, path string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%s:%s:%d:", method, path, timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify reports whether signature matches the canonical request string in
// constant time.
func Verify(secret, method, path string, timestamp int64, body []byte, signature string) bool {
	expected := Sign(secret, method, path, timestamp, body)
	return hmac.Equal([]byte(expected), []byte(signature))
}
