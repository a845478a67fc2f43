// Package session issues and verifies stateless admin session tokens.
//
// A token has the wire form "<expiry>.<hex signature>", where expiry is a
// Unix timestamp in seconds and the signature is HMAC-SHA256 of the decimal
// expiry string under a server-held secret. Tokens carry no identity and
// there is no server-side session table: validity is recomputed from the
// secret on every request. Rotating the secret is the only way to invalidate
// outstanding tokens before they expire.
package session

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/awnumar/memguard"
)

// DefaultLifetime is how long an issued token remains valid.
const DefaultLifetime = 7 * 24 * time.Hour

// DefaultSecretEnv is the environment variable holding the signing secret.
const DefaultSecretEnv = "LEADDESK_SESSION_SECRET"

// ErrMissingSecret is returned when no signing secret is configured. It is a
// configuration error, distinct from a token failing verification.
var ErrMissingSecret = errors.New("session signing secret not configured")

// SecretSource returns the signing secret.
type SecretSource func() (string, error)

// EnvSecret reads the secret from the named environment variable.
func EnvSecret(name string) SecretSource {
	return func() (string, error) {
		secret := strings.TrimSpace(os.Getenv(name))
		if secret == "" {
			return "", fmt.Errorf("%w: %s is empty", ErrMissingSecret, name)
		}
		return secret, nil
	}
}

// StaticSecret returns a fixed secret. Intended for tests and embedding.
func StaticSecret(secret string) SecretSource {
	return func() (string, error) {
		if secret == "" {
			return "", ErrMissingSecret
		}
		return secret, nil
	}
}

// Option configures a Signer.
type Option func(*Signer)

// WithLifetime overrides DefaultLifetime.
func WithLifetime(d time.Duration) Option {
	return func(s *Signer) {
		if d > 0 {
			s.lifetime = d
		}
	}
}

// WithClock replaces time.Now as the Signer's time source.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) {
		s.now = now
	}
}

// Signer issues and verifies session tokens. The signing key is read from
// the SecretSource on first use and cached for the life of the Signer; it is
// read-only afterwards, so a Signer is safe for concurrent use.
type Signer struct {
	source   SecretSource
	lifetime time.Duration
	now      func() time.Time

	once   sync.Once
	key    *memguard.Enclave
	keyErr error
}

// NewSigner returns a Signer. The secret is not read until first use.
func NewSigner(source SecretSource, opts ...Option) *Signer {
	s := &Signer{
		source:   source,
		lifetime: DefaultLifetime,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Lifetime returns the validity period of issued tokens.
func (s *Signer) Lifetime() time.Duration {
	return s.lifetime
}

// Ready loads the signing key if needed and reports a configuration error.
func (s *Signer) Ready() error {
	s.once.Do(func() {
		if s.source == nil {
			s.keyErr = ErrMissingSecret
			return
		}
		secret, err := s.source()
		if err != nil {
			if !errors.Is(err, ErrMissingSecret) {
				err = fmt.Errorf("%w: %v", ErrMissingSecret, err)
			}
			s.keyErr = err
			return
		}
		if secret == "" {
			s.keyErr = ErrMissingSecret
			return
		}
		s.key = memguard.NewEnclave([]byte(secret))
	})
	return s.keyErr
}

// Issue returns a token valid for the Signer's lifetime.
func (s *Signer) Issue() (string, error) {
	token, _, err := s.IssueWithExpiry()
	return token, err
}

// IssueWithExpiry is Issue but also returns the token's expiry time.
func (s *Signer) IssueWithExpiry() (string, time.Time, error) {
	if err := s.Ready(); err != nil {
		return "", time.Time{}, err
	}
	expiry := s.now().Add(s.lifetime).Unix()
	sig, err := s.sign(strconv.FormatInt(expiry, 10))
	if err != nil {
		return "", time.Time{}, err
	}
	return strconv.FormatInt(expiry, 10) + "." + hex.EncodeToString(sig), time.Unix(expiry, 0), nil
}

// Verify reports whether token is well formed, unexpired and correctly
// signed. It never returns an error: any failure, including a missing
// secret, yields false.
func (s *Signer) Verify(token string) (ok bool) {
	_, ok = s.Expiry(token)
	return ok
}

// Expiry verifies token and returns its expiry time.
func (s *Signer) Expiry(token string) (expiresAt time.Time, ok bool) {
	defer func() {
		if recover() != nil {
			expiresAt, ok = time.Time{}, false
		}
	}()

	expiryStr, sigHex, found := strings.Cut(token, ".")
	if !found || expiryStr == "" {
		return time.Time{}, false
	}
	expiry, err := strconv.ParseInt(expiryStr, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	if expiry <= s.now().Unix() {
		return time.Time{}, false
	}
	// Issue only emits lowercase hex, so any other spelling is rejected.
	if sigHex != strings.ToLower(sigHex) {
		return time.Time{}, false
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil || len(got) != sha256.Size {
		return time.Time{}, false
	}
	if s.Ready() != nil {
		return time.Time{}, false
	}
	want, err := s.sign(expiryStr)
	if err != nil {
		return time.Time{}, false
	}
	if !hmac.Equal(got, want) {
		return time.Time{}, false
	}
	return time.Unix(expiry, 0), true
}

// sign computes HMAC-SHA256 of msg under the cached key.
func (s *Signer) sign(msg string) ([]byte, error) {
	buf, err := s.key.Open()
	if err != nil {
		return nil, fmt.Errorf("opening signing key: %w", err)
	}
	defer buf.Destroy()
	mac := hmac.New(sha256.New, buf.Bytes())
	mac.Write([]byte(msg))
	return mac.Sum(nil), nil
}
