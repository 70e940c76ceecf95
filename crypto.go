package tandang

import (
	"time"

	"github.com/ambiyansyah-risyal/tandang/internal/envelope"
)

// Header names for the payload protection layer.
const (
	// HeaderEncrypted marks a request or response body as an encrypted
	// envelope rather than plaintext.
	HeaderEncrypted = "X-Encrypted-Request"

	// HeaderSignature carries the HMAC request signature.
	HeaderSignature = "X-Request-Signature"

	// HeaderTimestamp carries the signing timestamp (unix seconds).
	HeaderTimestamp = "X-Request-Timestamp"

	// HeaderRequestID propagates the client request ID.
	HeaderRequestID = "X-Request-ID"
)

// CryptoContext is an immutable snapshot of the payload protection state.
// Enable and disable swap the whole value atomically so in-flight requests
// never observe a torn key/flag pair.
type CryptoContext struct {
	key     *envelope.Key
	salt    []byte
	enabled bool
}

// Enabled reports whether payload encryption is active.
func (cc *CryptoContext) Enabled() bool {
	return cc != nil && cc.enabled
}

// Salt returns the key derivation salt, nil for random keys. Needed by a
// peer deriving the same key from the shared password.
func (cc *CryptoContext) Salt() []byte {
	if cc == nil {
		return nil
	}
	return cc.salt
}

// EnableEncryption turns on body encryption for subsequent requests. With a
// password the key is derived via PBKDF2 with a fresh random salt; with an
// empty password a fresh random key is generated. Enable and disable are
// rare administrative operations serialized by an internal mutex.
func (c *Client) EnableEncryption(password string) error {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()

	var (
		key  *envelope.Key
		salt []byte
		err  error
	)
	if password != "" {
		key, salt, err = envelope.DeriveKey(password)
	} else {
		key, err = envelope.NewRandomKey()
	}
	if err != nil {
		return &ClientError{
			Type:      ErrorTypeCrypto,
			Message:   "key setup failed",
			Cause:     err,
			Timestamp: time.Now(),
		}
	}

	c.crypto.Store(&CryptoContext{key: key, salt: salt, enabled: true})

	if c.debugEnabled() && c.debug.LogCrypto && c.logger != nil {
		c.logger.Info("Encryption enabled", "derived", password != "")
	}
	return nil
}

// DisableEncryption turns body encryption off. The old context is dropped
// whole; requests already holding it finish with the old key.
func (c *Client) DisableEncryption() {
	c.cryptoMu.Lock()
	defer c.cryptoMu.Unlock()

	c.crypto.Store(&CryptoContext{})

	if c.debugEnabled() && c.debug.LogCrypto && c.logger != nil {
		c.logger.Info("Encryption disabled")
	}
}

// EncryptionEnabled reports whether payload encryption is currently on.
func (c *Client) EncryptionEnabled() bool {
	return c.crypto.Load().Enabled()
}
