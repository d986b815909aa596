package provider

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/ethereum/go-ethereum/params"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/timelock-labs/withdrawal-deployer/chain/evm"
)

var (
	// SimChainSelector is the selector of the local geth dev network, chain ID 1337, which the
	// simulated backend always uses.
	SimChainSelector = chainsel.GETH_TESTNET.Selector

	simChainID       = params.AllDevChainProtocolChanges.ChainID
	prefundAmountWei = new(big.Int).Mul(big.NewInt(1_000_000), big.NewInt(params.Ether))
)

const simBlockGasLimit = 50_000_000

// SimChainProviderConfig configures the simulated chain.
type SimChainProviderConfig struct {
	// Optional: NumAdditionalAccounts prefunded accounts are exposed as evm.Chain.Users.
	NumAdditionalAccounts uint
	// Optional: BlockTime mines a block on every tick. Zero leaves block production to Confirm
	// and explicit SimClient.Commit calls.
	BlockTime time.Duration
	// Optional: ConfirmTimeout bounds how long Confirm waits for a receipt. Defaults to 1 minute.
	ConfirmTimeout time.Duration
}

// SimChainProvider runs an in-memory EVM chain on the go-ethereum simulated backend. Each account
// is prefunded with 1,000,000 ether.
type SimChainProvider struct {
	selector uint64
	config   SimChainProviderConfig

	mu     sync.Mutex
	chain  *evm.Chain
	client *SimClient
	stop   context.CancelFunc
}

// NewSimChainProvider creates a SimChainProvider. The selector must resolve to chain ID 1337;
// use SimChainSelector when in doubt.
func NewSimChainProvider(selector uint64, config SimChainProviderConfig) *SimChainProvider {
	return &SimChainProvider{
		selector: selector,
		config:   config,
	}
}

// Initialize creates the backend with a prefunded deployer and returns the chain.
func (p *SimChainProvider) Initialize(_ context.Context) (evm.Chain, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.chain != nil {
		return *p.chain, nil
	}

	chainID, err := evm.ChainIDFromSelector(p.selector)
	if err != nil {
		return evm.Chain{}, err
	}
	if chainID.Cmp(simChainID) != 0 {
		return evm.Chain{}, fmt.Errorf("simulated chain requires chain ID %s, selector %d has chain ID %s",
			simChainID, p.selector, chainID,
		)
	}

	deployer, err := newSimTransactor()
	if err != nil {
		return evm.Chain{}, fmt.Errorf("failed to generate deployer key: %w", err)
	}

	genesis := types.GenesisAlloc{
		deployer.From: {Balance: prefundAmountWei},
	}

	users := make([]*bind.TransactOpts, 0, p.config.NumAdditionalAccounts)
	for range p.config.NumAdditionalAccounts {
		user, uerr := newSimTransactor()
		if uerr != nil {
			return evm.Chain{}, fmt.Errorf("failed to generate user key: %w", uerr)
		}

		users = append(users, user)
		genesis[user.From] = types.Account{Balance: prefundAmountWei}
	}

	backend := simulated.NewBackend(genesis, simulated.WithBlockGasLimit(simBlockGasLimit))

	client, err := NewSimClient(backend)
	if err != nil {
		return evm.Chain{}, err
	}
	client.Commit()

	autoMineCtx, stop := context.WithCancel(context.Background())
	p.stop = stop
	if p.config.BlockTime > 0 {
		go autoMine(autoMineCtx, client, p.config.BlockTime)
	}

	confirmTimeout := p.config.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = time.Minute
	}

	p.client = client
	p.chain = &evm.Chain{
		Selector:    p.selector,
		Client:      client,
		DeployerKey: deployer,
		Users:       users,
		Confirm: func(tx *types.Transaction) (uint64, error) {
			if tx == nil {
				return 0, fmt.Errorf("tx was nil, nothing to confirm for selector: %d", p.selector)
			}

			client.Commit()

			ctx, cancel := context.WithTimeout(autoMineCtx, confirmTimeout)
			defer cancel()

			receipt, err := bind.WaitMined(ctx, client, tx)
			if err != nil {
				return 0, fmt.Errorf("tx %s failed to confirm for selector %d: %w",
					tx.Hash().Hex(), p.selector, err,
				)
			}

			return checkReceipt(ctx, client, deployer.From, p.selector, tx, receipt)
		},
	}

	return *p.chain, nil
}

func newSimTransactor() (*bind.TransactOpts, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, err
	}

	return bind.NewKeyedTransactorWithChainID(key, simChainID)
}

// Name returns the name of the SimChainProvider.
func (*SimChainProvider) Name() string {
	return "Simulated EVM Chain Provider"
}

// ChainSelector returns the chain selector of the simulated chain.
func (p *SimChainProvider) ChainSelector() uint64 {
	return p.selector
}

// Chain returns the initialized chain.
func (p *SimChainProvider) Chain() evm.Chain {
	return *p.chain
}

// Client returns the simulated client, or nil before Initialize.
func (p *SimChainProvider) Client() *SimClient {
	return p.client
}

// Close stops auto mining and shuts the backend down. It is safe to call more than once.
func (p *SimChainProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client == nil {
		return nil
	}

	p.stop()
	err := p.client.Close()
	p.client = nil
	p.chain = nil

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close simulated backend: %w", err)
	}

	return nil
}

// autoMine commits a block every blockTime until ctx is done.
func autoMine(ctx context.Context, client *SimClient, blockTime time.Duration) {
	ticker := time.NewTicker(blockTime)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			client.Commit()
		case <-ctx.Done():
			return
		}
	}
}
