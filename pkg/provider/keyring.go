package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/igolaizola/musaix/pkg/storage"
)

var (
	ErrNoKey    = errors.New("provider: no api key selected")
	ErrFixedKey = errors.New("provider: api key is set by configuration")
)

// Keyring resolves the API key of a provider. A configured key always
// wins; otherwise the key selected by the user is used, stored in the
// settings table when a database is available.
type Keyring struct {
	id    string
	fixed string
	db    *storage.Store

	lck   sync.Mutex
	value string
}

func NewKeyring(id, fixed string, db *storage.Store) *Keyring {
	return &Keyring{
		id:    id,
		fixed: strings.TrimSpace(fixed),
		db:    db,
	}
}

// Fixed reports whether the key is set by configuration.
func (k *Keyring) Fixed() bool {
	return k.fixed != ""
}

func (k *Keyring) GetKey(ctx context.Context) (string, error) {
	if k.fixed != "" {
		return k.fixed, nil
	}
	k.lck.Lock()
	value := k.value
	k.lck.Unlock()
	if value != "" {
		return value, nil
	}
	if k.db == nil {
		return "", ErrNoKey
	}
	value, err := k.db.GetKey(ctx, k.id)
	if errors.Is(err, storage.ErrNotFound) {
		return "", ErrNoKey
	}
	if err != nil {
		return "", fmt.Errorf("provider: couldn't get key: %w", err)
	}
	return value, nil
}

// HasKey reports whether a key is available.
func (k *Keyring) HasKey(ctx context.Context) bool {
	_, err := k.GetKey(ctx)
	return err == nil
}

// SetKey selects a new key.
func (k *Keyring) SetKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("provider: empty api key")
	}
	if k.fixed != "" {
		return ErrFixedKey
	}
	if k.db != nil {
		if err := k.db.SetSetting(ctx, &storage.Setting{ID: k.id, Value: key}); err != nil {
			return fmt.Errorf("provider: couldn't store key: %w", err)
		}
	}
	k.lck.Lock()
	k.value = key
	k.lck.Unlock()
	return nil
}

// Reset forgets the selected key so a new one has to be selected.
func (k *Keyring) Reset(ctx context.Context) error {
	if k.fixed != "" {
		return ErrFixedKey
	}
	k.lck.Lock()
	k.value = ""
	k.lck.Unlock()
	if k.db != nil {
		if err := k.db.DeleteSetting(ctx, k.id); err != nil {
			return fmt.Errorf("provider: couldn't delete key: %w", err)
		}
	}
	return nil
}
