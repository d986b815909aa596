// Package deploy provides the command that deploys a TimeLockedWithdrawal contract and prints its
// address.
package deploy

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/timelock-labs/withdrawal-deployer/chain/evm"
	"github.com/timelock-labs/withdrawal-deployer/chain/evm/provider"
	"github.com/timelock-labs/withdrawal-deployer/datastore"
	"github.com/timelock-labs/withdrawal-deployer/datastore/sqlstore"
	"github.com/timelock-labs/withdrawal-deployer/engine/config"
	"github.com/timelock-labs/withdrawal-deployer/engine/config/network"
	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

// ChainRequest describes the chain to deploy to.
type ChainRequest struct {
	// DryRun deploys to an in-memory simulated chain instead of a network.
	DryRun bool
	// Network is a chain name or selector from the networks manifests.
	Network string
	// NetworksFiles are the networks manifests, merged in order.
	NetworksFiles []string
	// ConfirmTimeout bounds how long to wait for the deployment to be mined.
	ConfirmTimeout time.Duration
	// Config holds the deployer key or KMS settings.
	Config *config.Config
	Logger logger.Logger
}

// AddressBookRequest describes where the deployed address is recorded.
type AddressBookRequest struct {
	// Path of a JSON address book. Empty keeps the address in memory only.
	Path string
	// DatastoreURL is a Postgres URL. It takes precedence over Path.
	DatastoreURL string
	// ReadOnly skips saving the JSON address book on close.
	ReadOnly bool
	Logger   logger.Logger
}

// CloseFunc releases a resource. For file backed address books it also saves the file.
type CloseFunc func() error

// ConfigLoaderFunc loads the secrets config from an optional file and the environment.
type ConfigLoaderFunc func(path string) (*config.Config, error)

// ChainLoaderFunc connects to the chain described by the request.
type ChainLoaderFunc func(ctx context.Context, req ChainRequest) (evm.Chain, CloseFunc, error)

// AddressBookLoaderFunc opens the address book described by the request.
type AddressBookLoaderFunc func(ctx context.Context, req AddressBookRequest) (datastore.AddressRefStore, CloseFunc, error)

// Deps holds the injectable dependencies of the deploy command.
// All fields are optional; nil values will use production defaults.
type Deps struct {
	// ConfigLoader loads the secrets config.
	// Default: config.Load
	ConfigLoader ConfigLoaderFunc

	// ChainLoader connects to the chain.
	// Default: a simulated chain for dry runs, an RPC chain otherwise.
	ChainLoader ChainLoaderFunc

	// AddressBookLoader opens the address book.
	// Default: Postgres when a datastore URL is set, a JSON file otherwise.
	AddressBookLoader AddressBookLoaderFunc

	// Clock is the source of the current time for the unlock time.
	// Default: time.Now
	Clock func() time.Time
}

// applyDefaults fills in nil dependencies with production defaults.
func (d *Deps) applyDefaults() {
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.ChainLoader == nil {
		d.ChainLoader = defaultChainLoader
	}
	if d.AddressBookLoader == nil {
		d.AddressBookLoader = OpenAddressBook
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
}

func noopClose() error { return nil }

// defaultChainLoader starts a simulated chain for dry runs and dials the network's RPCs
// otherwise.
func defaultChainLoader(ctx context.Context, req ChainRequest) (evm.Chain, CloseFunc, error) {
	if req.DryRun {
		p := provider.NewSimChainProvider(provider.SimChainSelector, provider.SimChainProviderConfig{
			ConfirmTimeout: req.ConfirmTimeout,
		})
		chain, err := p.Initialize(ctx)
		if err != nil {
			return evm.Chain{}, nil, err
		}

		return chain, p.Close, nil
	}

	if req.Network == "" {
		return evm.Chain{}, nil, errors.New("--network is required unless --dry-run is set")
	}
	if len(req.NetworksFiles) == 0 {
		return evm.Chain{}, nil, errors.New("--networks is required unless --dry-run is set")
	}

	networks, err := network.Load(req.NetworksFiles, network.WithURLTransformer(os.ExpandEnv))
	if err != nil {
		return evm.Chain{}, nil, err
	}

	n, err := networks.Lookup(req.Network)
	if err != nil {
		return evm.Chain{}, nil, err
	}

	rpcCfg, err := n.RPCConfig()
	if err != nil {
		return evm.Chain{}, nil, err
	}

	signer, err := signerFromConfig(req.Config)
	if err != nil {
		return evm.Chain{}, nil, err
	}

	p := provider.NewRPCChainProvider(n.ChainSelector, provider.RPCChainProviderConfig{
		DeployerTransactorGen: signer,
		RPCs:                  rpcCfg.RPCs,
		ConfirmFunctor:        provider.ConfirmFuncGeth(req.ConfirmTimeout),
		Logger:                req.Logger,
	})

	chain, err := p.Initialize(ctx)
	if err != nil {
		return evm.Chain{}, nil, err
	}

	return chain, noopClose, nil
}

// signerFromConfig prefers a KMS key over a raw private key.
func signerFromConfig(cfg *config.Config) (provider.SignerGenerator, error) {
	if cfg.UseKMS() {
		return provider.TransactorFromKMS(
			cfg.Onchain.KMS.KeyID, cfg.Onchain.KMS.KeyRegion, cfg.Onchain.KMS.AWSProfile,
		)
	}

	if cfg.Onchain.EVM.DeployerKey != "" {
		return provider.TransactorFromRaw(cfg.Onchain.EVM.DeployerKey), nil
	}

	return nil, errors.New(
		"no deployer key configured: set ONCHAIN_EVM_DEPLOYER_KEY, or ONCHAIN_KMS_KEY_ID and ONCHAIN_KMS_KEY_REGION",
	)
}

// OpenAddressBook is the default AddressBookLoaderFunc. It opens the Postgres address book when
// a URL is configured and a JSON address book file otherwise. Unless the request is read only,
// the JSON file is saved by the returned CloseFunc.
func OpenAddressBook(ctx context.Context, req AddressBookRequest) (datastore.AddressRefStore, CloseFunc, error) {
	if req.DatastoreURL != "" {
		store, db, err := sqlstore.Open(ctx, sqlstore.DriverPostgres, req.DatastoreURL, req.Logger)
		if err != nil {
			return nil, nil, err
		}

		return store, db.Close, nil
	}

	if req.Path != "" {
		store, err := datastore.LoadMemoryAddressRefStore(req.Path)
		if err != nil {
			return nil, nil, err
		}

		if req.ReadOnly {
			return store, noopClose, nil
		}

		return store, func() error { return store.Save(req.Path) }, nil
	}

	return datastore.NewMemoryAddressRefStore(), noopClose, nil
}
