// Package rpcclient provides an EVM client that fails over between several RPC endpoints.
package rpcclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/google/uuid"
	chainsel "github.com/smartcontractkit/chain-selectors"

	"github.com/timelock-labs/withdrawal-deployer/chain/evm"
	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

const (
	// Default retry configuration for RPC calls
	RPCDefaultRetryAttempts = 1
	RPCDefaultRetryDelay    = 1000 * time.Millisecond
	RPCDefaultRetryTimeout  = 10 * time.Second

	// Default retry configuration for dialing RPC endpoints
	RPCDefaultDialRetryAttempts = 1
	RPCDefaultDialRetryDelay    = 1000 * time.Millisecond
	RPCDefaultDialTimeout       = 10 * time.Second

	// Default timeout for health checks
	RPCDefaultHealthCheckTimeout = 2 * time.Second
)

// RetryConfig controls how calls and dials are retried against each endpoint.
type RetryConfig struct {
	Attempts     uint
	Delay        time.Duration
	Timeout      time.Duration
	DialAttempts uint
	DialDelay    time.Duration
	DialTimeout  time.Duration
}

func defaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     RPCDefaultRetryAttempts,
		Delay:        RPCDefaultRetryDelay,
		Timeout:      RPCDefaultRetryTimeout,
		DialAttempts: RPCDefaultDialRetryAttempts,
		DialDelay:    RPCDefaultDialRetryDelay,
		DialTimeout:  RPCDefaultDialTimeout,
	}
}

// WithRetryConfig overrides the default retry configuration.
func WithRetryConfig(cfg RetryConfig) func(*MultiClient) {
	return func(mc *MultiClient) {
		mc.RetryConfig = cfg
	}
}

var _ evm.OnchainClient = (*MultiClient)(nil)

// MultiClient wraps a primary ethclient and a list of backups. Every call is attempted against
// the primary first; a backup that succeeds is promoted to primary.
type MultiClient struct {
	*ethclient.Client
	Backups     []*ethclient.Client
	RetryConfig RetryConfig

	lggr      logger.Logger
	chainName string
	mu        sync.RWMutex
}

// NewMultiClient dials every configured RPC, dropping those that fail to dial or fail the health
// check. At least one healthy RPC is required.
func NewMultiClient(lggr logger.Logger, rpcsCfg RPCConfig, opts ...func(client *MultiClient)) (*MultiClient, error) {
	if len(rpcsCfg.RPCs) == 0 {
		return nil, errors.New("no RPCs provided, need at least one")
	}

	chain, exists := chainsel.ChainBySelector(rpcsCfg.ChainSelector)
	if !exists {
		return nil, fmt.Errorf("chain with selector %d not found", rpcsCfg.ChainSelector)
	}

	mc := &MultiClient{
		lggr:        lggr,
		chainName:   chain.Name,
		RetryConfig: defaultRetryConfig(),
	}
	for _, opt := range opts {
		opt(mc)
	}

	clients := make([]*ethclient.Client, 0, len(rpcsCfg.RPCs))
	for i, r := range rpcsCfg.RPCs {
		client, err := mc.dialWithRetry(r)
		if err != nil {
			lggr.Warnw("Failed to dial RPC, trying the next one",
				"index", i, "rpc", r.Name, "chain", chain.Name, "error", err)

			continue
		}

		if err := mc.healthCheck(context.Background(), client); err != nil {
			lggr.Warnw("RPC health check failed, trying the next one",
				"index", i, "rpc", r.Name, "chain", chain.Name, "error", err)
			client.Close()

			continue
		}

		clients = append(clients, client)
	}

	if len(clients) == 0 {
		return nil, errors.New("no valid RPC clients created")
	}

	mc.Client = clients[0]
	mc.Backups = clients[1:]

	return mc, nil
}

// healthCheck calls eth_blockNumber against the client.
func (mc *MultiClient) healthCheck(ctx context.Context, client *ethclient.Client) error {
	ctx, cancel := context.WithTimeout(ctx, RPCDefaultHealthCheckTimeout)
	defer cancel()

	if _, err := client.BlockNumber(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}

	return nil
}

func (mc *MultiClient) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := withBackups(ctx, mc, "SendTransaction", func(ctx context.Context, c *ethclient.Client) (struct{}, error) {
		return struct{}{}, c.SendTransaction(ctx, tx)
	})

	return err
}

func (mc *MultiClient) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	return withBackups(ctx, mc, "CallContract", func(ctx context.Context, c *ethclient.Client) ([]byte, error) {
		return c.CallContract(ctx, msg, blockNumber)
	})
}

func (mc *MultiClient) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	return withBackups(ctx, mc, "CodeAt", func(ctx context.Context, c *ethclient.Client) ([]byte, error) {
		return c.CodeAt(ctx, account, blockNumber)
	})
}

func (mc *MultiClient) NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error) {
	return withBackups(ctx, mc, "NonceAt", func(ctx context.Context, c *ethclient.Client) (uint64, error) {
		return c.NonceAt(ctx, account, blockNumber)
	})
}

func (mc *MultiClient) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	return withBackups(ctx, mc, "HeaderByNumber", func(ctx context.Context, c *ethclient.Client) (*types.Header, error) {
		return c.HeaderByNumber(ctx, number)
	})
}

func (mc *MultiClient) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return withBackups(ctx, mc, "SuggestGasPrice", func(ctx context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.SuggestGasPrice(ctx)
	})
}

func (mc *MultiClient) SuggestGasTipCap(ctx context.Context) (*big.Int, error) {
	return withBackups(ctx, mc, "SuggestGasTipCap", func(ctx context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.SuggestGasTipCap(ctx)
	})
}

func (mc *MultiClient) PendingCodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return withBackups(ctx, mc, "PendingCodeAt", func(ctx context.Context, c *ethclient.Client) ([]byte, error) {
		return c.PendingCodeAt(ctx, account)
	})
}

func (mc *MultiClient) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	return withBackups(ctx, mc, "PendingNonceAt", func(ctx context.Context, c *ethclient.Client) (uint64, error) {
		return c.PendingNonceAt(ctx, account)
	})
}

func (mc *MultiClient) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	return withBackups(ctx, mc, "EstimateGas", func(ctx context.Context, c *ethclient.Client) (uint64, error) {
		return c.EstimateGas(ctx, call)
	})
}

func (mc *MultiClient) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	return withBackups(ctx, mc, "BalanceAt", func(ctx context.Context, c *ethclient.Client) (*big.Int, error) {
		return c.BalanceAt(ctx, account, blockNumber)
	})
}

func (mc *MultiClient) FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	return withBackups(ctx, mc, "FilterLogs", func(ctx context.Context, c *ethclient.Client) ([]types.Log, error) {
		return c.FilterLogs(ctx, q)
	})
}

func (mc *MultiClient) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return withBackups(ctx, mc, "SubscribeFilterLogs", func(ctx context.Context, c *ethclient.Client) (ethereum.Subscription, error) {
		return c.SubscribeFilterLogs(ctx, q, ch)
	})
}

// WaitMined waits on every client for the transaction to be mined and returns the first receipt.
// Retry timeouts do not apply; bound the wait with the context.
func (mc *MultiClient) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	mc.lggr.Debugw("Waiting for tx to be mined", "tx", tx.Hash().Hex(), "chain", mc.chainName)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	resultCh := make(chan *types.Receipt, 1)
	for _, client := range mc.clients() {
		go func(client *ethclient.Client) {
			receipt, err := bind.WaitMined(ctx, client, tx)
			if err != nil {
				mc.lggr.Debugw("WaitMined stopped", "chain", mc.chainName, "error", err)
				return
			}

			select {
			case resultCh <- receipt:
			default:
			}
		}(client)
	}

	select {
	case receipt := <-resultCh:
		mc.lggr.Debugw("Tx mined", "tx", tx.Hash().Hex(), "chain", mc.chainName)
		return receipt, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// withBackups runs op against the primary client and then each backup until one succeeds.
func withBackups[T any](
	ctx context.Context, mc *MultiClient, opName string, op func(context.Context, *ethclient.Client) (T, error),
) (T, error) {
	var (
		zero    T
		lastErr error
		traceID = uuid.NewString()
	)

	for rpcIndex, client := range mc.clients() {
		retries := 0
		result, err := retry.DoWithData(func() (T, error) {
			callCtx, cancel := ensureTimeout(ctx, mc.RetryConfig.Timeout)
			defer cancel()

			res, err := op(callCtx, client)
			if err != nil {
				mc.lggr.Warnw("RPC call failed",
					"traceID", traceID, "chain", mc.chainName, "op", opName, "index", rpcIndex, "error", maybeDataErr(err))

				return zero, err
			}

			return res, nil
		},
			retry.Context(ctx),
			retry.Attempts(mc.RetryConfig.Attempts),
			retry.Delay(mc.RetryConfig.Delay),
			retry.LastErrorOnly(true),
			retry.OnRetry(func(uint, error) { retries++ }),
		)
		if err == nil {
			if retries > 0 {
				mc.lggr.Infow("RPC call succeeded after retries",
					"traceID", traceID, "chain", mc.chainName, "op", opName, "index", rpcIndex, "retries", retries)
			}
			mc.promote(rpcIndex)

			return result, nil
		}

		lastErr = err
		mc.lggr.Infow("RPC client exhausted, trying next client",
			"traceID", traceID, "chain", mc.chainName, "op", opName, "index", rpcIndex)
	}

	return zero, errors.Join(lastErr, fmt.Errorf("all backup clients failed for chain %q", mc.chainName))
}

func (mc *MultiClient) dialWithRetry(r RPC) (*ethclient.Client, error) {
	endpoint, err := r.ToEndpoint()
	if err != nil {
		return nil, err
	}

	traceID := uuid.NewString()
	client, err := retry.DoWithData(func() (*ethclient.Client, error) {
		ctx, cancel := context.WithTimeout(context.Background(), mc.RetryConfig.DialTimeout)
		defer cancel()

		mc.lggr.Debugw("Dialing RPC", "traceID", traceID, "chain", mc.chainName, "rpc", r.Name)

		return ethclient.DialContext(ctx, endpoint)
	},
		retry.Attempts(mc.RetryConfig.DialAttempts),
		retry.Delay(mc.RetryConfig.DialDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial RPC %s for chain %s: %w", r.Name, mc.chainName, err)
	}

	return client, nil
}

// ensureTimeout keeps the parent's deadline if it has one, otherwise applies timeout.
func ensureTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := parent.Deadline(); hasDeadline {
		return context.WithCancel(parent)
	}

	return context.WithTimeout(parent, timeout)
}

// promote makes the client at rpcIndex the primary. Clients that failed before it move to the
// end of the backup list.
func (mc *MultiClient) promote(rpcIndex int) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if rpcIndex < 1 || len(mc.Backups) == 0 {
		return
	}

	idx := rpcIndex - 1
	newPrimary := mc.Backups[idx]

	reordered := make([]*ethclient.Client, 0, len(mc.Backups))
	reordered = append(reordered, mc.Backups[idx+1:]...)
	reordered = append(reordered, mc.Backups[:idx]...)
	reordered = append(reordered, mc.Client)

	mc.Backups = reordered
	mc.Client = newPrimary
}

func (mc *MultiClient) clients() []*ethclient.Client {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	return append([]*ethclient.Client{mc.Client}, mc.Backups...)
}

func maybeDataErr(err error) error {
	var d rpc.DataError
	if errors.As(err, &d) {
		return fmt.Errorf("%s: %v", d.Error(), d.ErrorData())
	}

	return err
}
