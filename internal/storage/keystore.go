package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/lcgrsa/internal/config"
	"github.com/user/lcgrsa/internal/interchange"
)

var ErrKeyNotFound = errors.New("key not found")

type StoredKey struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id,omitempty"`
	Seed       uint64    `json:"seed"`
	Bits       int       `json:"bits"`
	CreatedAt  time.Time `json:"created_at"`
	PublicKey  string    `json:"public_key"`
	PrivateKey string    `json:"private_key"`
	FileStored bool      `json:"file_stored"`
	FilePath   string    `json:"file_path,omitempty"`
}

// NewStoredKey wraps an exported PEM pair with a fresh ID.
func NewStoredKey(pair interchange.PEMPair, seed uint64, bits int, jobID string) *StoredKey {
	return &StoredKey{
		ID:         uuid.New().String(),
		JobID:      jobID,
		Seed:       seed,
		Bits:       bits,
		CreatedAt:  time.Now(),
		PublicKey:  pair.PublicPEM,
		PrivateKey: pair.PrivatePEM,
	}
}

// Pair returns the stored PEM blocks.
func (k *StoredKey) Pair() interchange.PEMPair {
	return interchange.PEMPair{PublicPEM: k.PublicKey, PrivatePEM: k.PrivateKey}
}

// Store persists generated key pairs.
type Store interface {
	Save(key *StoredKey) error
	Get(id string) (*StoredKey, error)
	List() ([]*StoredKey, error)
	ListByJob(jobID string) ([]*StoredKey, error)
	Delete(id string) error
	Count() (int, error)
	Close() error
}

// NewStore opens the store selected by cfg.Driver.
func NewStore(cfg config.StorageConfig) (Store, error) {
	switch cfg.Driver {
	case "", config.DriverMemory:
		return NewKeyStore(), nil
	case config.DriverSQLite:
		return NewSQLiteStore(cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Driver)
	}
}

// KeyStore keeps keys in memory.
type KeyStore struct {
	mu   sync.RWMutex
	keys map[string]*StoredKey
}

func NewKeyStore() *KeyStore {
	return &KeyStore{
		keys: make(map[string]*StoredKey),
	}
}

func (ks *KeyStore) Save(key *StoredKey) error {
	if key == nil || key.ID == "" {
		return fmt.Errorf("cannot store key without an ID")
	}

	ks.mu.Lock()
	ks.keys[key.ID] = key
	ks.mu.Unlock()
	return nil
}

func (ks *KeyStore) Get(id string) (*StoredKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	key, exists := ks.keys[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	return key, nil
}

func (ks *KeyStore) List() ([]*StoredKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	keys := make([]*StoredKey, 0, len(ks.keys))
	for _, key := range ks.keys {
		keys = append(keys, key)
	}
	sortByCreation(keys)
	return keys, nil
}

func (ks *KeyStore) ListByJob(jobID string) ([]*StoredKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	var keys []*StoredKey
	for _, key := range ks.keys {
		if key.JobID == jobID {
			keys = append(keys, key)
		}
	}
	sortByCreation(keys)
	return keys, nil
}

func (ks *KeyStore) Delete(id string) error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if _, exists := ks.keys[id]; !exists {
		return fmt.Errorf("%w: %s", ErrKeyNotFound, id)
	}
	delete(ks.keys, id)
	return nil
}

func (ks *KeyStore) Count() (int, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	return len(ks.keys), nil
}

// CountFileStored returns how many keys were also written to disk.
func (ks *KeyStore) CountFileStored() int {
	ks.mu.RLock()
	defer ks.mu.RUnlock()

	count := 0
	for _, key := range ks.keys {
		if key.FileStored {
			count++
		}
	}
	return count
}

func (ks *KeyStore) Close() error { return nil }

func sortByCreation(keys []*StoredKey) {
	sort.SliceStable(keys, func(i, j int) bool {
		if keys[i].CreatedAt.Equal(keys[j].CreatedAt) {
			return keys[i].ID < keys[j].ID
		}
		return keys[i].CreatedAt.Before(keys[j].CreatedAt)
	})
}
