// Package provider builds evm.Chain instances, either connected to live RPC endpoints or backed by
// an in-memory simulated chain.
package provider

import (
	"context"

	"github.com/timelock-labs/withdrawal-deployer/chain/evm"
)

// ChainProvider initializes and exposes a single EVM chain.
type ChainProvider interface {
	// Initialize sets up the chain. Calling it again returns the already initialized chain.
	Initialize(ctx context.Context) (evm.Chain, error)
	Name() string
	ChainSelector() uint64
	// Chain returns the initialized chain. Initialize must be called first.
	Chain() evm.Chain
}

var (
	_ ChainProvider = (*RPCChainProvider)(nil)
	_ ChainProvider = (*SimChainProvider)(nil)
)
