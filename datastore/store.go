package datastore

import "context"

// AddressRefStore is the address book deployments are recorded in.
type AddressRefStore interface {
	// Fetch returns copies of all records.
	Fetch(ctx context.Context) ([]AddressRef, error)
	// Get returns the record with the given key or ErrAddressRefNotFound.
	Get(ctx context.Context, key AddressRefKey) (AddressRef, error)
	// Filter returns the records passing all filters, applied in order.
	Filter(ctx context.Context, filters ...FilterFunc) ([]AddressRef, error)
	// Add stores a new record. It returns ErrAddressRefExists if the key is taken.
	Add(ctx context.Context, record AddressRef) error
	// Upsert adds the record or replaces the one with the same key.
	Upsert(ctx context.Context, record AddressRef) error
}
