package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/timelock-labs/withdrawal-deployer/chain/evm"
)

// defaultTickInterval matches the polling interval hardcoded in bind.WaitMined.
const defaultTickInterval = time.Second

// ConfirmFunctor generates the function used to confirm transactions on an EVM chain.
type ConfirmFunctor interface {
	Generate(
		ctx context.Context, selector uint64, client evm.OnchainClient, from common.Address,
	) (evm.ConfirmFunc, error)
}

// ConfirmFuncGeth returns a ConfirmFunctor which polls the client for the transaction receipt
// until it is found or waitMinedTimeout elapses.
func ConfirmFuncGeth(waitMinedTimeout time.Duration, opts ...func(*confirmFuncGeth)) ConfirmFunctor {
	cf := &confirmFuncGeth{
		tickInterval:     defaultTickInterval,
		waitMinedTimeout: waitMinedTimeout,
	}
	for _, o := range opts {
		o(cf)
	}

	return cf
}

// WithTickInterval sets how often the receipt is polled. Useful for chains with instant blocks.
func WithTickInterval(interval time.Duration) func(*confirmFuncGeth) {
	return func(o *confirmFuncGeth) {
		o.tickInterval = interval
	}
}

type confirmFuncGeth struct {
	tickInterval     time.Duration
	waitMinedTimeout time.Duration
}

// Generate implements ConfirmFunctor.
func (g *confirmFuncGeth) Generate(
	ctx context.Context, selector uint64, client evm.OnchainClient, from common.Address,
) (evm.ConfirmFunc, error) {
	if g.waitMinedTimeout <= 0 {
		return nil, fmt.Errorf("wait mined timeout must be positive, got %s", g.waitMinedTimeout)
	}

	return func(tx *types.Transaction) (uint64, error) {
		if tx == nil {
			return 0, fmt.Errorf("tx was nil, nothing to confirm for selector: %d", selector)
		}

		ctxTimeout, cancel := context.WithTimeout(ctx, g.waitMinedTimeout)
		defer cancel()

		receipt, err := WaitMinedWithInterval(ctxTimeout, g.tickInterval, client, tx.Hash())
		if err != nil {
			return 0, fmt.Errorf("tx %s failed to confirm for selector %d: %w",
				tx.Hash().Hex(), selector, err,
			)
		}

		return checkReceipt(ctxTimeout, client, from, selector, tx, receipt)
	}, nil
}

// checkReceipt returns the block number of a successful receipt. For a reverted receipt the
// transaction is replayed to recover the revert reason.
func checkReceipt(
	ctx context.Context,
	caller ContractCaller,
	from common.Address,
	selector uint64,
	tx *types.Transaction,
	receipt *types.Receipt,
) (uint64, error) {
	if receipt == nil {
		return 0, fmt.Errorf("receipt was nil for tx %s for selector %d", tx.Hash().Hex(), selector)
	}

	if receipt.Status == types.ReceiptStatusFailed {
		reason, err := getErrorReasonFromTx(ctx, caller, from, tx, receipt)
		if err == nil && reason != "" {
			return 0, fmt.Errorf("tx %s reverted for selector %d: %s",
				tx.Hash().Hex(), selector, reason,
			)
		}

		return 0, fmt.Errorf("tx %s reverted, could not decode error reason for selector %d",
			tx.Hash().Hex(), selector,
		)
	}

	return receipt.BlockNumber.Uint64(), nil
}

// WaitMinedWithInterval polls for the receipt of txHash every tick until it is available or the
// context is done.
func WaitMinedWithInterval(
	ctx context.Context, tick time.Duration, b bind.DeployBackend, txHash common.Hash,
) (*types.Receipt, error) {
	queryTicker := time.NewTicker(tick)
	defer queryTicker.Stop()

	for {
		receipt, err := b.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-queryTicker.C:
		}
	}
}
