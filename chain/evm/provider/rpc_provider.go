package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"

	"github.com/timelock-labs/withdrawal-deployer/chain/evm"
	"github.com/timelock-labs/withdrawal-deployer/chain/evm/provider/rpcclient"
	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

// RPCChainProviderConfig holds the configuration to initialize the RPCChainProvider.
type RPCChainProviderConfig struct {
	// Required: A generator for the deployer key. Use TransactorFromRaw to create a deployer
	// key from a private key, or TransactorFromKMS to create a deployer key from a KMS key.
	DeployerTransactorGen SignerGenerator
	// Required: At least one RPC must be provided to connect to the EVM node.
	RPCs []rpcclient.RPC
	// Required: ConfirmFunctor generates the confirmation function for transactions. If in
	// doubt, use ConfirmFuncGeth.
	ConfirmFunctor ConfirmFunctor
	// Optional: ClientOpts are applied to the MultiClient, e.g. to tune retries.
	ClientOpts []func(client *rpcclient.MultiClient)
	// Optional: Generators for additional user transactors.
	UsersTransactorGen []SignerGenerator
	// Optional: Logger defaults to logger.New().
	Logger logger.Logger
}

// RPCChainProvider provides a chain that connects to an EVM node via RPC.
type RPCChainProvider struct {
	selector uint64
	config   RPCChainProviderConfig

	chain *evm.Chain
}

// NewRPCChainProvider creates a new RPCChainProvider with the given selector and configuration.
func NewRPCChainProvider(selector uint64, config RPCChainProviderConfig) *RPCChainProvider {
	return &RPCChainProvider{
		selector: selector,
		config:   config,
	}
}

// Initialize connects to the chain. The chain is built once, later calls return it.
func (p *RPCChainProvider) Initialize(ctx context.Context) (evm.Chain, error) {
	if p.chain != nil {
		return *p.chain, nil
	}

	chainID, err := p.chainID()
	if err != nil {
		return evm.Chain{}, err
	}

	deployerKey, users, err := p.transactors(chainID)
	if err != nil {
		return evm.Chain{}, err
	}
	deployerKey.Context = ctx

	client, err := rpcclient.NewMultiClient(p.config.Logger, rpcclient.RPCConfig{
		ChainSelector: p.selector,
		RPCs:          p.config.RPCs,
	}, p.config.ClientOpts...)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to create multi-client: %w", err)
	}

	confirm, err := p.config.ConfirmFunctor.Generate(ctx, p.selector, client, deployerKey.From)
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to generate confirm function: %w", err)
	}

	p.chain = &evm.Chain{
		Selector:    p.selector,
		Client:      client,
		DeployerKey: deployerKey,
		Users:       users,
		Confirm:     confirm,
		SignHash:    p.config.DeployerTransactorGen.SignHash,
	}

	return *p.chain, nil
}

// chainID checks the config, fills in the logger and resolves the EVM chain ID of the selector.
func (p *RPCChainProvider) chainID() (*big.Int, error) {
	var missing error
	switch {
	case p.config.DeployerTransactorGen == nil:
		missing = errors.New("deployer transactor generator is required")
	case p.config.ConfirmFunctor == nil:
		missing = errors.New("confirm functor is required")
	case len(p.config.RPCs) == 0:
		missing = errors.New("at least one RPC is required")
	}
	if missing != nil {
		return nil, fmt.Errorf("failed to validate provider config: %w", missing)
	}

	if p.config.Logger == nil {
		lggr, err := logger.New()
		if err != nil {
			return nil, fmt.Errorf("failed to create default logger: %w", err)
		}
		p.config.Logger = lggr
	}

	return evm.ChainIDFromSelector(p.selector)
}

// transactors signs for chainID with the deployer key and every user key.
func (p *RPCChainProvider) transactors(chainID *big.Int) (*bind.TransactOpts, []*bind.TransactOpts, error) {
	deployerKey, err := p.config.DeployerTransactorGen.Generate(chainID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate deployer key: %w", err)
	}

	users := make([]*bind.TransactOpts, len(p.config.UsersTransactorGen))
	for i, g := range p.config.UsersTransactorGen {
		if users[i], err = g.Generate(chainID); err != nil {
			return nil, nil, fmt.Errorf("failed to generate user transactor %d: %w", i, err)
		}
	}

	return deployerKey, users, nil
}

// Name returns the name of the RPCChainProvider.
func (*RPCChainProvider) Name() string {
	return "EVM RPC Chain Provider"
}

// ChainSelector returns the chain selector of the chain managed by this provider.
func (p *RPCChainProvider) ChainSelector() uint64 {
	return p.selector
}

// Chain returns the chain built by Initialize, or the zero chain before that.
func (p *RPCChainProvider) Chain() evm.Chain {
	if p.chain == nil {
		return evm.Chain{}
	}

	return *p.chain
}
