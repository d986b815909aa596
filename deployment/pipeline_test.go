package deployment

import (
	"math/big"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/timelock-labs/withdrawal-deployer/chain/evm"
	"github.com/timelock-labs/withdrawal-deployer/chain/evm/provider"
	"github.com/timelock-labs/withdrawal-deployer/contracts/timelock"
	"github.com/timelock-labs/withdrawal-deployer/datastore"
	"github.com/timelock-labs/withdrawal-deployer/operations"
	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

// newSimChain starts a simulated chain which is closed with the test.
func newSimChain(t *testing.T) evm.Chain {
	t.Helper()

	p := provider.NewSimChainProvider(provider.SimChainSelector, provider.SimChainProviderConfig{})
	chain, err := p.Initialize(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	return chain
}

// pinnedClock returns a clock slightly ahead of the simulated chain's block time.
func pinnedClock() (Clock, time.Time) {
	now := time.Now().Add(time.Minute).Truncate(time.Second)

	return func() time.Time { return now }, now
}

func Test_Pipeline_Run(t *testing.T) {
	t.Parallel()

	chain := newSimChain(t)
	clock, now := pinnedClock()
	reporter := operations.NewMemoryReporter()
	book := datastore.NewMemoryAddressRefStore()

	p := Pipeline{
		Chain:       chain,
		Clock:       clock,
		Logger:      logger.Test(t),
		Reporter:    reporter,
		AddressBook: book,
	}

	got, err := p.Run(t.Context())
	require.NoError(t, err)

	wantUnlock := now.Unix() + 3600
	assert.Equal(t, wantUnlock, got.UnlockTime)
	assert.True(t, common.IsHexAddress(got.Address))
	assert.NotEmpty(t, got.TxHash)
	assert.Positive(t, got.BlockNumber)
	assert.Equal(t, chain.DeployerKey.From.Hex(), got.Owner)
	assert.Equal(t, got.RunID, got.Qualifier)

	artifact, err := timelock.Embedded()
	require.NoError(t, err)
	onchain, err := artifact.Bind(common.HexToAddress(got.Address), chain.Client).UnlockTime(&bind.CallOpts{Context: t.Context()})
	require.NoError(t, err)
	assert.Equal(t, big.NewInt(wantUnlock), onchain)

	ref, err := book.Get(t.Context(), datastore.NewAddressRefKey(chain.Selector, ContractType, timelock.Version, got.Qualifier))
	require.NoError(t, err)
	assert.Equal(t, got.Address, ref.Address)
	assert.True(t, ref.Labels.Contains(UnlockLabel(wantUnlock)))

	reports, err := reporter.GetReports()
	require.NoError(t, err)
	ids := make([]string, 0, len(reports))
	for _, r := range reports {
		ids = append(ids, r.Def.ID)
	}
	assert.Equal(t, []string{"timelock-deploy", "timelock-confirm", "timelock-verify", "timelock-deploy-sequence"}, ids)
}

func Test_Pipeline_Run_DeploysNewContractEachTime(t *testing.T) {
	t.Parallel()

	chain := newSimChain(t)
	clock, _ := pinnedClock()
	book := datastore.NewMemoryAddressRefStore()
	reporter := operations.NewMemoryReporter()

	p := Pipeline{Chain: chain, Clock: clock, AddressBook: book, Reporter: reporter}

	first, err := p.Run(t.Context())
	require.NoError(t, err)
	second, err := p.Run(t.Context())
	require.NoError(t, err)

	assert.NotEqual(t, first.Address, second.Address)
	assert.NotEqual(t, first.RunID, second.RunID)

	refs, err := book.Filter(t.Context(), datastore.AddressRefByType(ContractType))
	require.NoError(t, err)
	assert.Len(t, refs, 2)
}

func Test_Pipeline_Run_QualifierTaken(t *testing.T) {
	t.Parallel()

	chain := newSimChain(t)
	clock, _ := pinnedClock()

	p := Pipeline{
		Chain:       chain,
		Clock:       clock,
		Qualifier:   "treasury",
		AddressBook: datastore.NewMemoryAddressRefStore(),
	}

	first, err := p.Run(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "treasury", first.Qualifier)

	second, err := p.Run(t.Context())
	require.ErrorIs(t, err, datastore.ErrAddressRefExists)
	require.ErrorContains(t, err, "but not recorded")
	assert.NotEmpty(t, second.Address)
}

func Test_Pipeline_Run_Resume(t *testing.T) {
	t.Parallel()

	chain := newSimChain(t)
	clock, _ := pinnedClock()
	book := datastore.NewMemoryAddressRefStore()
	reporter := operations.NewMemoryReporter()

	first, err := Pipeline{Chain: chain, Clock: clock, AddressBook: book, Reporter: reporter}.Run(t.Context())
	require.NoError(t, err)

	// Keep only the deployment, as if the run stopped before confirming it.
	all, err := reporter.GetReports()
	require.NoError(t, err)
	var sent []operations.Report[any, any]
	for _, r := range all {
		if r.Def.ID == DeployOp.ID() {
			sent = append(sent, r)
		}
	}
	require.Len(t, sent, 1)

	path := filepath.Join(t.TempDir(), "reports.json")
	require.NoError(t, operations.WriteReports(operations.NewMemoryReporter(operations.WithReports(sent)), path))
	stored, err := operations.ReadReports(path)
	require.NoError(t, err)

	input, err := ResumeInput(stored)
	require.NoError(t, err)
	assert.Equal(t, first.RunID, input.RunID)
	assert.Equal(t, first.UnlockTime, input.UnlockTime)
	assert.Equal(t, chain.Selector, input.ChainSelector)

	later := func() time.Time { return clock().Add(time.Hour) }
	got, err := Pipeline{
		Chain:       chain,
		Clock:       later,
		AddressBook: book,
		Reporter:    operations.NewMemoryReporter(operations.WithReports(stored)),
		Resume:      &input,
	}.Run(t.Context())
	require.NoError(t, err)

	assert.Equal(t, first.Address, got.Address)
	assert.Equal(t, first.TxHash, got.TxHash)
	assert.Equal(t, first.UnlockTime, got.UnlockTime)
	assert.Equal(t, first.RunID, got.Qualifier)

	refs, err := book.Filter(t.Context(), datastore.AddressRefByType(ContractType))
	require.NoError(t, err)
	assert.Len(t, refs, 1)
}

func Test_Pipeline_Run_ResumeOtherChain(t *testing.T) {
	t.Parallel()

	chain := newSimChain(t)
	input := SequenceInput{ChainSelector: chain.Selector + 1, UnlockTime: 1_700_003_600, RunID: NewRunID()}

	_, err := Pipeline{Chain: chain, Resume: &input}.Run(t.Context())
	require.ErrorContains(t, err, "resumed deployment is for chain")
}

func Test_ResumeInput(t *testing.T) {
	t.Parallel()

	want := DeployInput{ChainSelector: 16015286601757825753, UnlockTime: 1_700_003_600, RunID: "run-2"}

	tests := []struct {
		name        string
		giveReports []operations.Report[any, any]
		want        SequenceInput
		wantErr     string
	}{
		{
			name: "latest successful deployment",
			giveReports: []operations.Report[any, any]{
				operations.NewReport(DeployOp.Def(), DeployInput{ChainSelector: want.ChainSelector, RunID: "run-1"}, DeployOutput{}, nil).ToGenericReport(),
				operations.NewReport(DeployOp.Def(), want, DeployOutput{}, nil).ToGenericReport(),
				operations.NewReport(VerifyOp.Def(), VerifyInput{ChainSelector: 1}, VerifyOutput{}, nil).ToGenericReport(),
			},
			want: want,
		},
		{
			name: "failed deployment skipped",
			giveReports: []operations.Report[any, any]{
				operations.NewReport(DeployOp.Def(), want, DeployOutput{}, nil).ToGenericReport(),
				operations.NewReport(DeployOp.Def(), DeployInput{RunID: "run-3"}, DeployOutput{}, assert.AnError).ToGenericReport(),
			},
			want: want,
		},
		{
			name:    "no reports",
			wantErr: "no successful deployment",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ResumeInput(tt.giveReports)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func Test_Pipeline_Run_Errors(t *testing.T) {
	t.Parallel()

	chain := newSimChain(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	unfunded, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(1337))
	require.NoError(t, err)

	unfundedChain := chain
	unfundedChain.DeployerKey = unfunded

	tests := []struct {
		name     string
		give     Pipeline
		wantErr  string
		wantRuns int
	}{
		{
			name:    "missing client",
			give:    Pipeline{},
			wantErr: "invalid pipeline: chain client is required",
		},
		{
			name:    "missing confirm",
			give:    Pipeline{Chain: evm.Chain{Client: chain.Client}},
			wantErr: "invalid pipeline: chain confirm function is required",
		},
		{
			name:    "negative delay",
			give:    Pipeline{Chain: chain, UnlockDelay: -time.Second},
			wantErr: "unlock delay must be at least 1s",
		},
		{
			name: "unlock time already passed",
			give: Pipeline{
				Chain: chain,
				Clock: func() time.Time { return time.Now().Add(-2 * time.Hour) },
			},
			wantErr: "Unlock time should be in the future",
		},
		{
			name:    "deployer cannot pay for gas",
			give:    Pipeline{Chain: unfundedChain},
			wantErr: "failed to deploy TimeLockedWithdrawal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := tt.give.Run(t.Context())
			require.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func newSimProviderWithUsers(t *testing.T, users uint) *provider.SimChainProvider {
	t.Helper()

	p := provider.NewSimChainProvider(provider.SimChainSelector, provider.SimChainProviderConfig{
		NumAdditionalAccounts: users,
	})
	_, err := p.Initialize(t.Context())
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })

	return p
}
