// Package memstore is an in-memory Store used to back unit tests of
// packages that need a storage.Store (such as auditcore), mirroring the reference in-memory
// implementations the rest of the corpus pairs with each durable backend.
package memstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ledgerseal/auditcore/pkg/auditerr"
	"github.com/ledgerseal/auditcore/pkg/storage"
)

type entry struct {
	data      []byte
	metadata  map[string]string
	hash      [32]byte
	storedAt  time.Time
	retention *storage.Retention
	legalHold bool
}

// Store is an in-memory implementation of storage.Store. It never
// actually enforces WORM; its Capabilities report none of the lock
// guarantees, so compliance checks correctly flag it as non-production.
type Store struct {
	mu      sync.RWMutex
	objects map[string]*entry
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{objects: make(map[string]*entry)}
}

func (s *Store) Store(_ context.Context, key string, data []byte, opts storage.StoreOptions) (*storage.StoredObject, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.objects[key]; exists {
		return nil, auditerr.New("memstore.Store", auditerr.KindAlreadyExists, errAlreadyExists)
	}

	hash := storage.ContentHash(data)
	now := time.Now().UTC()
	e := &entry{
		data:      append([]byte(nil), data...),
		metadata:  opts.Metadata,
		hash:      hash,
		storedAt:  now,
		retention: opts.Retention,
	}
	s.objects[key] = e

	return &storage.StoredObject{
		Key:         key,
		ContentHash: hash,
		Size:        int64(len(data)),
		StoredAt:    now,
		Retention:   opts.Retention,
	}, nil
}

func (s *Store) Retrieve(_ context.Context, key string) (*storage.RetrievedObject, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.objects[key]
	if !ok {
		return nil, auditerr.New("memstore.Retrieve", auditerr.KindNotFound, errNotFound)
	}
	return &storage.RetrievedObject{Data: append([]byte(nil), e.data...), Metadata: e.metadata}, nil
}

func (s *Store) VerifyIntegrity(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.objects[key]
	if !ok {
		return false, auditerr.New("memstore.VerifyIntegrity", auditerr.KindNotFound, errNotFound)
	}
	recomputed := storage.ContentHash(e.data)
	return storage.ConstantTimeEqual(recomputed, e.hash), nil
}

func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *Store) List(_ context.Context, prefix string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (s *Store) ApplyLegalHold(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects[key]
	if !ok {
		return auditerr.New("memstore.ApplyLegalHold", auditerr.KindNotFound, errNotFound)
	}
	e.legalHold = true
	return nil
}

func (s *Store) RemoveLegalHold(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.objects[key]
	if !ok {
		return auditerr.New("memstore.RemoveLegalHold", auditerr.KindNotFound, errNotFound)
	}
	e.legalHold = false
	return nil
}

func (s *Store) HealthCheck(_ context.Context) error { return nil }

func (s *Store) Capabilities() storage.Capabilities {
	return storage.Capabilities{
		ProviderName:      "memory",
		SupportsWORM:      false,
		SupportsLegalHold: true,
		SupportsRetention: false,
		EnforcesRetention: false,
		MaxObjectSize:     0,
	}
}
