package sqlstore

import (
	"database/sql"
	"sync"
	"testing"

	"github.com/Masterminds/semver/v3"
	_ "github.com/proullon/ramsql/driver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timelock-labs/withdrawal-deployer/datastore"
	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

const (
	testAddr1 = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	testAddr2 = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
	// Larger than math.MaxInt64.
	testChain = uint64(16015286601757825753)
)

func newTestRef(address, qualifier string, labels ...string) datastore.AddressRef {
	return datastore.AddressRef{
		Address:       address,
		ChainSelector: testChain,
		Type:          "TimeLockedWithdrawal",
		Version:       semver.MustParse("1.0.0"),
		Qualifier:     qualifier,
		Labels:        datastore.NewLabelSet(labels...),
	}
}

// newRamStore opens a fresh in-memory database named after the test.
func newRamStore(t *testing.T) *AddressRefStore {
	t.Helper()

	db, err := sql.Open("ramsql", t.Name())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	store := NewAddressRefStore(db, logger.Test(t))
	require.NoError(t, store.Migrate(t.Context()))

	return store
}

func Test_AddressRefStore_Migrate_Idempotent(t *testing.T) {
	t.Parallel()

	store := newRamStore(t)
	require.NoError(t, store.Migrate(t.Context()))
}

func Test_AddressRefStore_AddGet(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := newRamStore(t)

	ref := newTestRef(testAddr1, "run-1", "unlock:1700003600", "dry-run")
	require.NoError(t, store.Add(ctx, ref))

	got, err := store.Get(ctx, ref.Key())
	require.NoError(t, err)
	assert.Equal(t, testAddr1, got.Address)
	assert.Equal(t, testChain, got.ChainSelector)
	assert.Equal(t, datastore.ContractType("TimeLockedWithdrawal"), got.Type)
	assert.Equal(t, "1.0.0", got.Version.String())
	assert.Equal(t, "run-1", got.Qualifier)
	assert.True(t, got.Labels.Equal(datastore.NewLabelSet("dry-run", "unlock:1700003600")))

	err = store.Add(ctx, newTestRef(testAddr2, "run-1"))
	require.ErrorIs(t, err, datastore.ErrAddressRefExists)

	_, err = store.Get(ctx, newTestRef(testAddr1, "run-2").Key())
	require.ErrorIs(t, err, datastore.ErrAddressRefNotFound)

	require.ErrorContains(t, store.Add(ctx, datastore.AddressRef{Address: testAddr1}), "chain selector is required")

	// Labels are stored space separated.
	spaced := newTestRef(testAddr2, "run-3", "unlock at noon")
	require.ErrorContains(t, store.Add(ctx, spaced), `label "unlock at noon" must not contain whitespace`)
	_, err = store.Get(ctx, spaced.Key())
	require.ErrorIs(t, err, datastore.ErrAddressRefNotFound)
}

func Test_AddressRefStore_Upsert(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := newRamStore(t)

	require.NoError(t, store.Upsert(ctx, newTestRef(testAddr1, "run-1")))
	require.NoError(t, store.Upsert(ctx, newTestRef(testAddr2, "run-1", "replaced")))
	require.NoError(t, store.Upsert(ctx, newTestRef(testAddr1, "run-2")))

	got, err := store.Get(ctx, newTestRef("", "run-1").Key())
	require.NoError(t, err)
	assert.Equal(t, testAddr2, got.Address)
	assert.True(t, got.Labels.Contains("replaced"))

	records, err := store.Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	filtered, err := store.Filter(ctx, datastore.AddressRefByAddress(testAddr1))
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, "run-2", filtered[0].Qualifier)
}

func Test_AddressRefStore_Concurrent(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := newRamStore(t)

	var wg sync.WaitGroup
	for _, q := range []string{"a", "b", "c", "d"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, store.Upsert(ctx, newTestRef(testAddr1, q)))
		}()
	}
	wg.Wait()

	records, err := store.Fetch(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func Test_dbController_Transactions(t *testing.T) {
	t.Parallel()

	ctx := t.Context()
	store := newRamStore(t)
	ctrl := store.db

	require.EqualError(t, ctrl.Commit(), "no transaction to commit")
	require.EqualError(t, ctrl.Rollback(), "no transaction to roll back")

	require.NoError(t, ctrl.Begin(ctx))
	require.EqualError(t, ctrl.Begin(ctx), "transaction already started")
	require.NoError(t, ctrl.Rollback())
	assert.Nil(t, ctrl.tx)
}

func Test_Open_Errors(t *testing.T) {
	t.Parallel()

	_, _, err := Open(t.Context(), "no-such-driver", "", logger.Nop())
	require.ErrorContains(t, err, "failed to open no-such-driver database")
}
