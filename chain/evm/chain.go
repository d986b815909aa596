// Package evm defines the EVM chain handle that deployments run against.
package evm

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	chainsel "github.com/smartcontractkit/chain-selectors"
)

// ConfirmFunc is a function that takes a transaction, waits for the transaction to be confirmed,
// and returns the block number and an error.
type ConfirmFunc func(tx *types.Transaction) (uint64, error)

// OnchainClient is an EVM chain client.
// For EVM specifically we can use existing geth interface to abstract chain clients.
type OnchainClient interface {
	bind.ContractBackend
	bind.DeployBackend

	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	NonceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (uint64, error)
}

// Chain represents an EVM chain.
type Chain struct {
	Selector uint64

	Client OnchainClient
	// The Signer of the DeployerKey may be backed by a raw key or a KMS key.
	DeployerKey *bind.TransactOpts
	Confirm     ConfirmFunc
	// Users are additional keys distinct from the deployer key.
	Users []*bind.TransactOpts

	// SignHash signs arbitrary hashes with the deployer key's signing mechanism.
	SignHash func([]byte) ([]byte, error)
}

// ChainSelector returns the chain selector of the chain
func (c Chain) ChainSelector() uint64 {
	return c.Selector
}

// Name returns the name of the chain, falling back to the selector when the chain is unknown.
func (c Chain) Name() string {
	details, ok := chainsel.ChainBySelector(c.Selector)
	if !ok || details.Name == "" {
		return strconv.FormatUint(c.Selector, 10)
	}

	return details.Name
}

// String returns chain name and selector "<name> (<selector>)"
func (c Chain) String() string {
	return fmt.Sprintf("%s (%d)", c.Name(), c.Selector)
}

// Family returns the family of the chain
func (c Chain) Family() string {
	family, err := chainsel.GetSelectorFamily(c.Selector)
	if err != nil {
		return ""
	}

	return family
}

// ChainID returns the EVM chain ID for the chain selector.
func (c Chain) ChainID() (*big.Int, error) {
	return ChainIDFromSelector(c.Selector)
}

// ChainIDFromSelector resolves the EVM chain ID registered for the selector.
func ChainIDFromSelector(selector uint64) (*big.Int, error) {
	idStr, err := chainsel.GetChainIDFromSelector(selector)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID from selector %d: %w", selector, err)
	}

	id, ok := new(big.Int).SetString(idStr, 10)
	if !ok {
		return nil, fmt.Errorf("failed to convert chain ID %s to big.Int", idStr)
	}

	return id, nil
}

// SelectorFromName resolves an EVM chain selector from either a chain name
// (e.g. "ethereum-testnet-sepolia") or a decimal selector.
func SelectorFromName(name string) (uint64, error) {
	if sel, err := strconv.ParseUint(name, 10, 64); err == nil {
		if _, ok := chainsel.ChainBySelector(sel); !ok {
			return 0, fmt.Errorf("unknown chain selector %d", sel)
		}

		return sel, nil
	}

	chainID, err := chainsel.ChainIdFromName(name)
	if err != nil {
		return 0, fmt.Errorf("unknown EVM chain %q: %w", name, err)
	}

	sel, err := chainsel.SelectorFromChainId(chainID)
	if err != nil {
		return 0, fmt.Errorf("no selector for chain %q (chain ID %d): %w", name, chainID, err)
	}

	return sel, nil
}
