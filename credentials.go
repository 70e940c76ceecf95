package tandang

import "sync"

// CredentialStore supplies auth material for outbound requests. The backing
// storage (keychain, browser storage, env) is outside this layer.
//
// Both an API key and a bearer token may be present during a login
// transition; the client deterministically prefers the bearer token.
type CredentialStore interface {
	// APIKey returns the static API key, or "" when absent.
	APIKey() string

	// BearerToken returns the session bearer token, or "" when absent.
	BearerToken() string

	// AuthError is invoked when the backend rejects the credentials (401)
	// so the store can invalidate them.
	AuthError(err error)
}

// StaticCredentials is an in-memory CredentialStore. Safe for concurrent use.
type StaticCredentials struct {
	mu       sync.RWMutex
	apiKey   string
	bearer   string
	onAuthFn func(error)
}

// NewStaticCredentials returns a store holding the given API key.
func NewStaticCredentials(apiKey string) *StaticCredentials {
	return &StaticCredentials{apiKey: apiKey}
}

// SetBearerToken installs or clears the session bearer token.
func (s *StaticCredentials) SetBearerToken(token string) {
	s.mu.Lock()
	s.bearer = token
	s.mu.Unlock()
}

// SetAPIKey installs or clears the static API key.
func (s *StaticCredentials) SetAPIKey(key string) {
	s.mu.Lock()
	s.apiKey = key
	s.mu.Unlock()
}

// OnAuthError registers a callback fired when the backend rejects the
// credentials. The default behavior clears the bearer token.
func (s *StaticCredentials) OnAuthError(fn func(error)) {
	s.mu.Lock()
	s.onAuthFn = fn
	s.mu.Unlock()
}

func (s *StaticCredentials) APIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.apiKey
}

func (s *StaticCredentials) BearerToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bearer
}

func (s *StaticCredentials) AuthError(err error) {
	s.mu.Lock()
	fn := s.onAuthFn
	s.bearer = ""
	s.mu.Unlock()

	if fn != nil {
		fn(err)
	}
}
