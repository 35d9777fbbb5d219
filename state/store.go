// Package state persists ledger snapshots as JSON documents in a key-value
// database. Each component (staking engine, asset ledgers, membership
// registry, vault) snapshots itself; the store only handles encoding and
// placement.
package state

import (
	"encoding/json"
	"errors"
	"fmt"

	"pillarstake/storage"
)

const (
	KeyStakingEngine = "staking/engine"
	KeyStakingAsset  = "token/staking"
	KeyRewardAsset   = "token/reward"
	KeyReceiptToken  = "token/receipt"
	KeyMembership    = "membership/registry"
	KeyVault         = "dao/vault"
)

// ErrNotFound is returned when no snapshot exists under the requested key.
var ErrNotFound = errors.New("state: snapshot not found")

// Store reads and writes JSON snapshots.
type Store struct {
	db storage.Database
}

// NewStore wraps the database in a snapshot store.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

// Save encodes the snapshot and writes it under key.
func (s *Store) Save(key string, snapshot any) error {
	encoded, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("state: encode %s: %w", key, err)
	}
	if err := s.db.Put([]byte(key), encoded); err != nil {
		return fmt.Errorf("state: write %s: %w", key, err)
	}
	return nil
}

// Load decodes the snapshot stored under key into out.
func (s *Store) Load(key string, out any) error {
	raw, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("state: read %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("state: decode %s: %w", key, err)
	}
	return nil
}

// Has reports whether a snapshot exists under key.
func (s *Store) Has(key string) (bool, error) {
	return s.db.Has([]byte(key))
}
