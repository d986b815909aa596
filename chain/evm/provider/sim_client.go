package provider

import (
	"errors"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
)

var errSimClosed = errors.New("simulated backend is closed")

// SimClient wraps a simulated backend. It satisfies evm.OnchainClient through the embedded
// client and exposes the block production controls of the backend.
type SimClient struct {
	mu sync.Mutex

	simulated.Client
	sim    *simulated.Backend
	closed bool
}

// NewSimClient wraps sim.
func NewSimClient(sim *simulated.Backend) (*SimClient, error) {
	if sim == nil {
		return nil, errors.New("simulated backend must not be nil")
	}

	return &SimClient{
		sim:    sim,
		Client: sim.Client(),
	}, nil
}

// Commit seals the pending transactions into a new block. It is a no-op once closed.
func (b *SimClient) Commit() common.Hash {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return common.Hash{}
	}

	return b.sim.Commit()
}

// AdjustTime moves the chain clock forward by d. An empty block is sealed first because the
// backend replaces the head block when adjusting time.
func (b *SimClient) AdjustTime(d time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return errSimClosed
	}

	b.sim.Commit()

	if err := b.sim.AdjustTime(d); err != nil {
		return err
	}
	b.sim.Commit()

	return nil
}

// Close shuts the backend down.
func (b *SimClient) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	return b.sim.Close()
}
