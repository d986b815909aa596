package deployment

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/timelock-labs/withdrawal-deployer/chain/evm"
	"github.com/timelock-labs/withdrawal-deployer/contracts/timelock"
	"github.com/timelock-labs/withdrawal-deployer/operations"
)

var opVersion = semver.MustParse("1.0.0")

// Reads are retried with this policy. Sending the deployment is never retried since a retry could
// deploy a second contract.
var readRetryPolicy = operations.RetryPolicy{MaxAttempts: 5, Delay: 500 * time.Millisecond}

// Deps are the runtime dependencies of the deployment operations. They are not part of the
// reports.
type Deps struct {
	Chain    evm.Chain
	Artifact *timelock.Artifact

	txs *txTracker
}

// NewDeps creates the dependencies for deploying artifact to chain.
func NewDeps(chain evm.Chain, artifact *timelock.Artifact) Deps {
	return Deps{Chain: chain, Artifact: artifact, txs: &txTracker{}}
}

func (d Deps) validate() error {
	if d.Artifact == nil {
		return errors.New("artifact is required")
	}
	if d.Chain.Client == nil {
		return errors.New("chain client is required")
	}
	if d.txs == nil {
		return errors.New("deps must be created with NewDeps")
	}

	return nil
}

// transaction returns the deployment transaction sent by this run. A transaction sent by an
// earlier, resumed run is looked up on chain.
func (d Deps) transaction(ctx context.Context, hash common.Hash) (*types.Transaction, error) {
	if tx, ok := d.txs.get(hash); ok {
		return tx, nil
	}

	reader, ok := d.Chain.Client.(ethereum.TransactionReader)
	if !ok {
		return nil, operations.NewUnrecoverableError(
			fmt.Errorf("transaction %s was not sent by this run", hash.Hex()))
	}

	tx, _, err := reader.TransactionByHash(ctx, hash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, operations.NewUnrecoverableError(fmt.Errorf("transaction %s not found", hash.Hex()))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up transaction %s: %w", hash.Hex(), err)
	}
	d.txs.put(tx)

	return tx, nil
}

// txTracker hands the sent transaction from the deploy operation to the confirm operation, whose
// input only carries the hash.
type txTracker struct {
	m sync.Map
}

func (t *txTracker) put(tx *types.Transaction) {
	t.m.Store(tx.Hash(), tx)
}

func (t *txTracker) get(hash common.Hash) (*types.Transaction, bool) {
	v, ok := t.m.Load(hash)
	if !ok {
		return nil, false
	}

	return v.(*types.Transaction), true
}

// DeployInput is the input of DeployOp.
type DeployInput struct {
	ChainSelector uint64 `json:"chain_selector"`
	UnlockTime    int64  `json:"unlock_time"`
	// RunID makes every run a distinct execution, so a run never reuses a deployment
	// reported by an earlier one.
	RunID string `json:"run_id"`
}

// DeployOutput is the output of DeployOp.
type DeployOutput struct {
	Address    string `json:"address"`
	TxHash     string `json:"tx_hash"`
	UnlockTime int64  `json:"unlock_time"`
}

// DeployOp sends the creation transaction of the contract. It does not wait for the transaction.
var DeployOp = operations.NewOperation(
	"timelock-deploy",
	opVersion,
	"Deploy TimeLockedWithdrawal with the unlock time as constructor argument",
	func(b operations.Bundle, deps Deps, input DeployInput) (DeployOutput, error) {
		if err := deps.validate(); err != nil {
			return DeployOutput{}, err
		}
		if deps.Chain.Selector != input.ChainSelector {
			return DeployOutput{}, fmt.Errorf("chain selector mismatch: chain is %d, input is %d",
				deps.Chain.Selector, input.ChainSelector)
		}
		if deps.Chain.DeployerKey == nil {
			return DeployOutput{}, errors.New("deployer key is required")
		}

		opts := *deps.Chain.DeployerKey
		opts.Context = b.GetContext()

		address, tx, _, err := deps.Artifact.Deploy(&opts, deps.Chain.Client, big.NewInt(input.UnlockTime))
		if err != nil {
			return DeployOutput{}, err
		}
		deps.txs.put(tx)

		b.Logger.Infow("Sent deployment transaction",
			"chain", deps.Chain.String(), "address", address.Hex(), "tx", tx.Hash().Hex())

		return DeployOutput{
			Address:    address.Hex(),
			TxHash:     tx.Hash().Hex(),
			UnlockTime: input.UnlockTime,
		}, nil
	},
)

// ConfirmInput is the input of ConfirmOp.
type ConfirmInput struct {
	ChainSelector uint64 `json:"chain_selector"`
	TxHash        string `json:"tx_hash"`
}

// ConfirmOutput is the output of ConfirmOp.
type ConfirmOutput struct {
	BlockNumber uint64 `json:"block_number"`
}

// ConfirmOp waits until the deployment transaction is mined and succeeded.
var ConfirmOp = operations.NewOperation(
	"timelock-confirm",
	opVersion,
	"Wait for the deployment transaction to be confirmed",
	func(b operations.Bundle, deps Deps, input ConfirmInput) (ConfirmOutput, error) {
		if err := deps.validate(); err != nil {
			return ConfirmOutput{}, operations.NewUnrecoverableError(err)
		}

		tx, err := deps.transaction(b.GetContext(), common.HexToHash(input.TxHash))
		if err != nil {
			return ConfirmOutput{}, err
		}

		block, err := deps.Chain.Confirm(tx)
		if err != nil {
			return ConfirmOutput{}, err
		}

		b.Logger.Infow("Deployment confirmed", "chain", deps.Chain.String(), "tx", input.TxHash, "block", block)

		return ConfirmOutput{BlockNumber: block}, nil
	},
)

// VerifyInput is the input of VerifyOp.
type VerifyInput struct {
	ChainSelector uint64 `json:"chain_selector"`
	Address       string `json:"address"`
	UnlockTime    int64  `json:"unlock_time"`
}

// VerifyOutput is the output of VerifyOp.
type VerifyOutput struct {
	UnlockTime int64  `json:"unlock_time"`
	Owner      string `json:"owner"`
}

// VerifyOp reads the deployed contract back and checks it holds the requested unlock time and is
// owned by the deployer.
var VerifyOp = operations.NewOperation(
	"timelock-verify",
	opVersion,
	"Read back the unlock time and owner of the deployed contract",
	func(b operations.Bundle, deps Deps, input VerifyInput) (VerifyOutput, error) {
		if err := deps.validate(); err != nil {
			return VerifyOutput{}, operations.NewUnrecoverableError(err)
		}

		contract := deps.Artifact.Bind(common.HexToAddress(input.Address), deps.Chain.Client)
		callOpts := &bind.CallOpts{Context: b.GetContext()}

		unlockTime, err := contract.UnlockTime(callOpts)
		if err != nil {
			return VerifyOutput{}, fmt.Errorf("failed to read unlock time: %w", err)
		}
		if unlockTime.Cmp(big.NewInt(input.UnlockTime)) != 0 {
			return VerifyOutput{}, operations.NewUnrecoverableError(
				fmt.Errorf("unlock time mismatch: contract has %s, want %d", unlockTime, input.UnlockTime))
		}

		owner, err := contract.Owner(callOpts)
		if err != nil {
			return VerifyOutput{}, fmt.Errorf("failed to read owner: %w", err)
		}
		if deps.Chain.DeployerKey != nil && owner != deps.Chain.DeployerKey.From {
			return VerifyOutput{}, operations.NewUnrecoverableError(
				fmt.Errorf("owner mismatch: contract has %s, want %s", owner.Hex(), deps.Chain.DeployerKey.From.Hex()))
		}

		return VerifyOutput{UnlockTime: unlockTime.Int64(), Owner: owner.Hex()}, nil
	},
)

// SequenceInput is the input of DeploySequence.
type SequenceInput = DeployInput

// SequenceOutput is the output of DeploySequence.
type SequenceOutput struct {
	Address     string `json:"address"`
	TxHash      string `json:"tx_hash"`
	UnlockTime  int64  `json:"unlock_time"`
	BlockNumber uint64 `json:"block_number"`
	Owner       string `json:"owner"`
}

// DeploySequence deploys, confirms and verifies one contract.
var DeploySequence = operations.NewSequence(
	"timelock-deploy-sequence",
	opVersion,
	"Deploy, confirm and verify a TimeLockedWithdrawal contract",
	func(b operations.Bundle, deps Deps, input SequenceInput) (SequenceOutput, error) {
		deployed, err := operations.ExecuteOperation(b, DeployOp, deps, input)
		if err != nil {
			return SequenceOutput{}, err
		}

		confirmed, err := operations.ExecuteOperation(b, ConfirmOp, deps,
			ConfirmInput{ChainSelector: input.ChainSelector, TxHash: deployed.Output.TxHash},
			operations.WithRetryConfig(operations.RetryConfig[ConfirmInput, Deps]{
				Enabled: true,
				Policy:  readRetryPolicy,
			}),
		)
		if err != nil {
			return SequenceOutput{}, err
		}

		verified, err := operations.ExecuteOperation(b, VerifyOp, deps,
			VerifyInput{
				ChainSelector: input.ChainSelector,
				Address:       deployed.Output.Address,
				UnlockTime:    input.UnlockTime,
			},
			operations.WithRetryConfig(operations.RetryConfig[VerifyInput, Deps]{
				Enabled: true,
				Policy:  readRetryPolicy,
			}),
		)
		if err != nil {
			return SequenceOutput{}, err
		}

		return SequenceOutput{
			Address:     deployed.Output.Address,
			TxHash:      deployed.Output.TxHash,
			UnlockTime:  verified.Output.UnlockTime,
			BlockNumber: confirmed.Output.BlockNumber,
			Owner:       verified.Output.Owner,
		}, nil
	},
)

// NewRegistry returns a registry holding the deployment operations.
func NewRegistry() *operations.OperationRegistry {
	registry := operations.NewOperationRegistry()
	operations.RegisterOperation(registry, DeployOp)
	operations.RegisterOperation(registry, ConfirmOp)
	operations.RegisterOperation(registry, VerifyOp)

	return registry
}
