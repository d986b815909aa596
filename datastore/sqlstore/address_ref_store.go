// Package sqlstore keeps the address book in a SQL database. Postgres is used in production via
// lib/pq; tests run against the in-memory ramsql driver.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/Masterminds/semver/v3"
	_ "github.com/lib/pq"

	"github.com/timelock-labs/withdrawal-deployer/datastore"
	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

// DriverPostgres is the database/sql driver name registered by lib/pq.
const DriverPostgres = "postgres"

var _ datastore.AddressRefStore = (*AddressRefStore)(nil)

// AddressRefStore is a datastore.AddressRefStore backed by database/sql. Access is serialised so
// the read-then-write of Add and Upsert runs in a single transaction.
type AddressRefStore struct {
	mu sync.Mutex
	db *dbController
}

// Open connects to the database with driverName and dsn and returns a migrated store.
func Open(ctx context.Context, driverName, dsn string, lggr logger.Logger) (*AddressRefStore, *sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open %s database: %w", driverName, err)
	}

	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("failed to connect to %s database: %w", driverName, err)
	}

	store := NewAddressRefStore(db, lggr)
	if err = store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, nil, err
	}

	return store, db, nil
}

// NewAddressRefStore wraps an open database. Call Migrate before first use.
func NewAddressRefStore(db *sql.DB, lggr logger.Logger) *AddressRefStore {
	return &AddressRefStore{db: newDBController(db, lggr)}
}

// Migrate creates the schema if it does not exist.
func (s *AddressRefStore) Migrate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.ExecContext(ctx, schemaAddressReferences); err != nil {
		return fmt.Errorf("failed to create address references schema: %w", err)
	}

	return nil
}

// Get implements datastore.AddressRefStore.
func (s *AddressRefStore) Get(ctx context.Context, key datastore.AddressRefKey) (datastore.AddressRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.get(ctx, key)
}

func (s *AddressRefStore) get(ctx context.Context, key datastore.AddressRefKey) (datastore.AddressRef, error) {
	records, err := s.query(ctx, queryAddressRefByKey, key.String())
	if err != nil {
		return datastore.AddressRef{}, err
	}

	switch len(records) {
	case 0:
		return datastore.AddressRef{}, datastore.ErrAddressRefNotFound
	case 1:
		return records[0], nil
	default:
		return datastore.AddressRef{}, fmt.Errorf("expected a single row, got %d", len(records))
	}
}

// Fetch implements datastore.AddressRefStore.
func (s *AddressRefStore) Fetch(ctx context.Context) ([]datastore.AddressRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.query(ctx, queryAllAddressRefs)
}

// Filter implements datastore.AddressRefStore.
func (s *AddressRefStore) Filter(ctx context.Context, filters ...datastore.FilterFunc) ([]datastore.AddressRef, error) {
	records, err := s.Fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch records: %w", err)
	}

	return datastore.ApplyFilters(records, filters...), nil
}

// Add implements datastore.AddressRefStore.
func (s *AddressRefStore) Add(ctx context.Context, record datastore.AddressRef) error {
	return s.write(ctx, record, false)
}

// Upsert implements datastore.AddressRefStore.
func (s *AddressRefStore) Upsert(ctx context.Context, record datastore.AddressRef) error {
	return s.write(ctx, record, true)
}

func (s *AddressRefStore) write(ctx context.Context, record datastore.AddressRef, replace bool) (err error) {
	if err = record.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err = s.db.Begin(ctx); err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, s.db.Rollback())
			return
		}
		err = s.db.Commit()
	}()

	key := record.Key()
	_, err = s.get(ctx, key)
	switch {
	case err == nil && !replace:
		return fmt.Errorf("%w: %s", datastore.ErrAddressRefExists, key)
	case err == nil:
		_, err = s.db.ExecContext(ctx, queryUpdateAddressRef,
			key.String(), record.Address, record.Labels.String())
	case errors.Is(err, datastore.ErrAddressRefNotFound):
		_, err = s.db.ExecContext(ctx, queryInsertAddressRef,
			key.String(),
			strconv.FormatUint(record.ChainSelector, 10),
			record.Type.String(),
			record.Version.String(),
			record.Qualifier,
			record.Address,
			record.Labels.String(),
		)
	}
	if err != nil {
		return fmt.Errorf("failed to write address ref %s: %w", key, err)
	}

	return nil
}

func (s *AddressRefStore) query(ctx context.Context, q string, args ...any) ([]datastore.AddressRef, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []datastore.AddressRef{}
	for rows.Next() {
		var selector, contractType, version, labels string
		record := datastore.AddressRef{}
		if err = rows.Scan(&selector, &contractType, &version, &record.Qualifier, &record.Address, &labels); err != nil {
			return nil, err
		}

		if record.ChainSelector, err = strconv.ParseUint(selector, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid chain selector %q: %w", selector, err)
		}
		if record.Version, err = semver.NewVersion(version); err != nil {
			return nil, fmt.Errorf("invalid version %q: %w", version, err)
		}
		record.Type = datastore.ContractType(contractType)
		record.Labels = datastore.ParseLabelSet(labels)

		records = append(records, record)
	}

	return records, rows.Err()
}
