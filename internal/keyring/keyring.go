package keyring

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/rs/zerolog"

	"perpgate/pkg/core"
)

var ErrNoActiveKey = errors.New("no active api key")

// APIKey is one credential set. The secret and passphrase are sealed in
// memguard enclaves and only opened while a request is signed.
type APIKey struct {
	ID         string
	Key        string
	AccountID  string
	Disabled   bool
	LastUsed   time.Time
	ErrorCount int

	secret     *memguard.Enclave
	passphrase *memguard.Enclave
}

// NewAPIKey seals creds into a new key.
func NewAPIKey(id string, creds core.Credentials) *APIKey {
	return &APIKey{
		ID:         id,
		Key:        creds.APIKey,
		AccountID:  creds.AccountID,
		secret:     seal(creds.SecretKey),
		passphrase: seal(creds.Passphrase),
	}
}

func seal(s string) *memguard.Enclave {
	if s == "" {
		return nil
	}
	return memguard.NewEnclave([]byte(s))
}

func open(e *memguard.Enclave) (string, error) {
	if e == nil {
		return "", nil
	}
	buf, err := e.Open()
	if err != nil {
		return "", fmt.Errorf("open enclave: %w", err)
	}
	defer buf.Destroy()
	// The buffer's memory is wiped on Destroy, so copy out before returning.
	return string(buf.Bytes()), nil
}

// Credentials opens the enclaves and returns the plain credentials.
func (k *APIKey) Credentials() (core.Credentials, error) {
	secret, err := open(k.secret)
	if err != nil {
		return core.Credentials{}, err
	}
	passphrase, err := open(k.passphrase)
	if err != nil {
		return core.Credentials{}, err
	}
	return core.Credentials{
		APIKey:     k.Key,
		SecretKey:  secret,
		Passphrase: passphrase,
		AccountID:  k.AccountID,
	}, nil
}

func (k *APIKey) String() string {
	return fmt.Sprintf("APIKey{ID:%s, Key:%s}", k.ID, maskKey(k.Key))
}

type RotationStrategy int

const (
	// RotationNone keeps the current key until it is disabled.
	RotationNone RotationStrategy = iota
	RotationOnError
	RotationOnRateLimit
)

// KeyRing holds the credential sets of one venue account.
type KeyRing struct {
	mu       sync.RWMutex
	keys     []*APIKey
	current  int
	strategy RotationStrategy
	logger   zerolog.Logger
	now      func() time.Time
}

func NewKeyRing(keys []*APIKey, strategy RotationStrategy) *KeyRing {
	kr := &KeyRing{
		keys:     make([]*APIKey, 0, len(keys)),
		strategy: strategy,
		logger:   zerolog.Nop(),
		now:      time.Now,
	}
	kr.keys = append(kr.keys, keys...)
	return kr
}

// FromCredentials builds a single-key ring. Empty credentials give an
// empty ring.
func FromCredentials(creds core.Credentials) *KeyRing {
	if creds.APIKey == "" && creds.SecretKey == "" {
		return NewKeyRing(nil, RotationNone)
	}
	return NewKeyRing([]*APIKey{NewAPIKey("default", creds)}, RotationNone)
}

func (k *KeyRing) SetLogger(logger zerolog.Logger) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.logger = logger.With().Str("component", "keyring").Logger()
}

func (k *KeyRing) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// Current returns the first enabled key starting at the cursor.
func (k *KeyRing) Current() *APIKey {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.currentLocked()
}

func (k *KeyRing) currentLocked() *APIKey {
	if idx := k.currentIndexLocked(); idx >= 0 {
		return k.keys[idx]
	}
	return nil
}

func (k *KeyRing) currentIndexLocked() int {
	for i := 0; i < len(k.keys); i++ {
		idx := (k.current + i) % len(k.keys)
		if !k.keys[idx].Disabled {
			return idx
		}
	}
	return -1
}

// Credentials opens the current key and marks it used.
func (k *KeyRing) Credentials() (core.Credentials, error) {
	k.mu.Lock()
	key := k.currentLocked()
	if key != nil {
		key.LastUsed = k.now()
	}
	k.mu.Unlock()

	if key == nil {
		return core.Credentials{}, ErrNoActiveKey
	}
	return key.Credentials()
}

func (k *KeyRing) Rotate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.rotateLocked()
}

func (k *KeyRing) rotateLocked() {
	if len(k.keys) == 0 {
		return
	}
	start := k.current
	for {
		k.current = (k.current + 1) % len(k.keys)
		if !k.keys[k.current].Disabled || k.current == start {
			return
		}
	}
}

// OnError counts a failed call against the key in use and rotates when
// the strategy asks for it. Disabled keys are never charged.
func (k *KeyRing) OnError(err error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	idx := k.currentIndexLocked()
	if idx < 0 {
		return
	}
	k.current = idx
	key := k.keys[idx]
	key.ErrorCount++

	switch {
	case k.strategy == RotationOnError,
		k.strategy == RotationOnRateLimit && core.IsRateLimitError(err):
		k.rotateLocked()
		k.logger.Warn().
			Str("from", key.ID).
			Str("to", k.keys[k.current].ID).
			Err(err).
			Msg("rotated api key")
	}
}

func (k *KeyRing) Disable(id string) {
	k.setDisabled(id, true)
}

func (k *KeyRing) Enable(id string) {
	k.setDisabled(id, false)
}

func (k *KeyRing) setDisabled(id string, disabled bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, key := range k.keys {
		if key.ID == id {
			key.Disabled = disabled
			if !disabled {
				key.ErrorCount = 0
			}
			return
		}
	}
}

func (k *KeyRing) Add(key *APIKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for _, existing := range k.keys {
		if existing.ID == key.ID {
			return
		}
	}
	k.keys = append(k.keys, key)
}

func (k *KeyRing) Remove(id string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	for i, key := range k.keys {
		if key.ID == id {
			k.keys = append(k.keys[:i], k.keys[i+1:]...)
			if k.current >= len(k.keys) {
				k.current = 0
			}
			return
		}
	}
}

func maskKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "****" + key[len(key)-4:]
}
