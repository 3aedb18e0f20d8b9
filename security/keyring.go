package security

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// KeyRotationWindow gates when a key version may still decrypt.
type KeyRotationWindow struct {
	NotBefore time.Time
	NotAfter  time.Time
}

func (w KeyRotationWindow) Allows(at time.Time) bool {
	ts := at.UTC()
	if !w.NotBefore.IsZero() && ts.Before(w.NotBefore.UTC()) {
		return false
	}
	if !w.NotAfter.IsZero() && ts.After(w.NotAfter.UTC()) {
		return false
	}
	return true
}

type retiredKey struct {
	cipher *AppKeyCipher
	window KeyRotationWindow
}

// Keyring encrypts with a primary key and decrypts payloads sealed by the
// primary or by any retired key still inside its rotation window.
type Keyring struct {
	primary *AppKeyCipher
	retired map[string]retiredKey
	now     func() time.Time
}

func NewKeyring(primary *AppKeyCipher) (*Keyring, error) {
	if primary == nil {
		return nil, fmt.Errorf("security: primary cipher is required")
	}
	return &Keyring{
		primary: primary,
		retired: map[string]retiredKey{},
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Retire keeps c available for decryption while window allows it.
func (k *Keyring) Retire(c *AppKeyCipher, window KeyRotationWindow) error {
	if k == nil {
		return fmt.Errorf("security: keyring is nil")
	}
	if c == nil {
		return fmt.Errorf("security: retired cipher is required")
	}
	id := keyRef(c.KeyID(), c.Version())
	if id == keyRef(k.primary.KeyID(), k.primary.Version()) {
		return fmt.Errorf("security: key %s is the primary key", id)
	}
	k.retired[id] = retiredKey{cipher: c, window: window}
	return nil
}

func (k *Keyring) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	if k == nil || k.primary == nil {
		return nil, fmt.Errorf("security: keyring is not configured")
	}
	return k.primary.Encrypt(ctx, plaintext)
}

func (k *Keyring) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if k == nil || k.primary == nil {
		return nil, fmt.Errorf("security: keyring is not configured")
	}
	env, err := decodeEnvelope(ciphertext)
	if err != nil {
		return nil, err
	}
	id := keyRef(env.KeyID, env.Version)
	if id == keyRef(k.primary.KeyID(), k.primary.Version()) {
		return k.primary.open(env)
	}
	retired, ok := k.retired[id]
	if !ok {
		return nil, fmt.Errorf("security: unknown key %s", id)
	}
	if !retired.window.Allows(k.now()) {
		return nil, fmt.Errorf("security: key %s is outside its rotation window", id)
	}
	return retired.cipher.open(env)
}

func keyRef(keyID string, version int) string {
	return keyID + "@v" + strconv.Itoa(version)
}

var (
	_ Cipher = (*AppKeyCipher)(nil)
	_ Cipher = (*Keyring)(nil)
)
