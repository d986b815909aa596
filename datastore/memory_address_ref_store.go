package datastore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
)

var _ AddressRefStore = (*MemoryAddressRefStore)(nil)

// MemoryAddressRefStore keeps address refs in memory and can be saved to and loaded from a JSON
// file. It is safe for concurrent use.
type MemoryAddressRefStore struct {
	mu      sync.RWMutex
	Records []AddressRef `json:"records"`
}

// NewMemoryAddressRefStore creates an empty store.
func NewMemoryAddressRefStore() *MemoryAddressRefStore {
	return &MemoryAddressRefStore{Records: []AddressRef{}}
}

// LoadMemoryAddressRefStore reads a store written by Save. A missing file yields an empty store.
func LoadMemoryAddressRefStore(path string) (*MemoryAddressRefStore, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return NewMemoryAddressRefStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read address book %s: %w", path, err)
	}

	store := NewMemoryAddressRefStore()
	if err = json.Unmarshal(b, store); err != nil {
		return nil, fmt.Errorf("failed to decode address book %s: %w", path, err)
	}

	return store, nil
}

// Save writes all records to path as indented JSON.
func (s *MemoryAddressRefStore) Save(path string) error {
	s.mu.RLock()
	b, err := json.MarshalIndent(s, "", "  ")
	s.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode address book: %w", err)
	}

	if err = os.WriteFile(path, b, 0o600); err != nil {
		return fmt.Errorf("failed to write address book %s: %w", path, err)
	}

	return nil
}

func (s *MemoryAddressRefStore) indexOf(key AddressRefKey) int {
	return slices.IndexFunc(s.Records, func(r AddressRef) bool {
		return r.Key().Equals(key)
	})
}

// Fetch implements AddressRefStore.
func (s *MemoryAddressRefStore) Fetch(_ context.Context) ([]AddressRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]AddressRef, 0, len(s.Records))
	for _, r := range s.Records {
		records = append(records, r.Clone())
	}

	return records, nil
}

// Get implements AddressRefStore.
func (s *MemoryAddressRefStore) Get(_ context.Context, key AddressRefKey) (AddressRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	idx := s.indexOf(key)
	if idx == -1 {
		return AddressRef{}, ErrAddressRefNotFound
	}

	return s.Records[idx].Clone(), nil
}

// Filter implements AddressRefStore.
func (s *MemoryAddressRefStore) Filter(ctx context.Context, filters ...FilterFunc) ([]AddressRef, error) {
	records, err := s.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	return ApplyFilters(records, filters...), nil
}

// Add implements AddressRefStore.
func (s *MemoryAddressRefStore) Add(_ context.Context, record AddressRef) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.indexOf(record.Key()) != -1 {
		return fmt.Errorf("%w: %s", ErrAddressRefExists, record.Key())
	}
	s.Records = append(s.Records, record.Clone())

	return nil
}

// Upsert implements AddressRefStore.
func (s *MemoryAddressRefStore) Upsert(_ context.Context, record AddressRef) error {
	if err := record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexOf(record.Key()); idx != -1 {
		s.Records[idx] = record.Clone()
		return nil
	}
	s.Records = append(s.Records, record.Clone())

	return nil
}
