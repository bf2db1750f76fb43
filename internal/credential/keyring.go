// Package credential resolves "keyring:<name>" secret references against the
// OS keyring, so WebDAV passwords and bot tokens need not sit in plain files.
package credential

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/99designs/keyring"
)

// RefPrefix marks a configuration value as a keyring reference.
const RefPrefix = "keyring:"

const defaultService = "anypush"

var ErrEmptyRef = errors.New("empty keyring reference")

type Config struct {
	Service string
	// Backends restricts the keyring backends tried, by name
	// ("keychain", "secret-service", "wincred", "pass", "file", ...).
	// Empty means the platform defaults plus the encrypted file backend.
	Backends     []string
	FileDir      string
	FilePassword string
}

// Store is a lazily opened keyring.
type Store struct {
	open func() (keyring.Keyring, error)

	once sync.Once
	ring keyring.Keyring
	err  error
}

// New returns a Store that opens the keyring on first use.
func New(cfg Config) *Store {
	return &Store{open: func() (keyring.Keyring, error) { return openKeyring(cfg) }}
}

// NewWith wraps an already opened keyring.
func NewWith(ring keyring.Keyring) *Store {
	return &Store{open: func() (keyring.Keyring, error) { return ring, nil }}
}

func openKeyring(cfg Config) (keyring.Keyring, error) {
	service := cfg.Service
	if service == "" {
		service = defaultService
	}
	backends := []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
		keyring.FileBackend,
	}
	if len(cfg.Backends) > 0 {
		backends = backends[:0]
		for _, b := range cfg.Backends {
			backends = append(backends, keyring.BackendType(strings.TrimSpace(b)))
		}
	}
	fileDir := cfg.FileDir
	if fileDir == "" {
		fileDir = "~/.config/anypush/credentials"
	}
	filePass := cfg.FilePassword
	if filePass == "" {
		filePass = "anypush-file-key"
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              service,
		AllowedBackends:          backends,
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(filePass),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

func (s *Store) openOnce() (keyring.Keyring, error) {
	s.once.Do(func() { s.ring, s.err = s.open() })
	return s.ring, s.err
}

func (s *Store) Get(name string) (string, error) {
	ring, err := s.openOnce()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(name)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", name, err)
	}
	return string(item.Data), nil
}

func (s *Store) Set(name, value string) error {
	ring, err := s.openOnce()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: name, Data: []byte(value), Label: "anypush " + name}); err != nil {
		return fmt.Errorf("setting credential %q: %w", name, err)
	}
	return nil
}

func (s *Store) Delete(name string) error {
	ring, err := s.openOnce()
	if err != nil {
		return err
	}
	if err := ring.Remove(name); err != nil {
		return fmt.Errorf("deleting credential %q: %w", name, err)
	}
	return nil
}

// IsRef reports whether v is a keyring reference.
func IsRef(v string) bool {
	return strings.HasPrefix(strings.TrimSpace(v), RefPrefix)
}

// Resolve returns v unchanged unless it is a keyring reference, in which case
// the referenced secret is looked up. A nil Store resolves literals only.
func (s *Store) Resolve(v string) (string, error) {
	if !IsRef(v) {
		return v, nil
	}
	name := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(v), RefPrefix))
	if name == "" {
		return "", ErrEmptyRef
	}
	if s == nil {
		return "", fmt.Errorf("credential %q: keyring not configured", name)
	}
	return s.Get(name)
}
