package timelock

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// TimeLockedWithdrawal is a binding to a deployed contract.
type TimeLockedWithdrawal struct {
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
}

// Withdrawal is the event emitted when the owner withdraws the balance.
type Withdrawal struct {
	Amount *big.Int
	When   *big.Int
	Raw    types.Log
}

// Address returns the contract address.
func (c *TimeLockedWithdrawal) Address() common.Address {
	return c.address
}

// UnlockTime returns the timestamp after which withdraw succeeds.
func (c *TimeLockedWithdrawal) UnlockTime(opts *bind.CallOpts) (*big.Int, error) {
	var out []any
	if err := c.contract.Call(opts, &out, "unlockTime"); err != nil {
		return nil, err
	}

	return *abi.ConvertType(out[0], new(*big.Int)).(**big.Int), nil
}

// Owner returns the address that deployed the contract.
func (c *TimeLockedWithdrawal) Owner(opts *bind.CallOpts) (common.Address, error) {
	var out []any
	if err := c.contract.Call(opts, &out, "owner"); err != nil {
		return common.Address{}, err
	}

	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// Withdraw sends the whole balance to the owner. It reverts before the unlock time and for
// callers other than the owner.
func (c *TimeLockedWithdrawal) Withdraw(opts *bind.TransactOpts) (*types.Transaction, error) {
	return c.contract.Transact(opts, "withdraw")
}

// ParseWithdrawal decodes a Withdrawal log emitted by the contract.
func (c *TimeLockedWithdrawal) ParseWithdrawal(log types.Log) (*Withdrawal, error) {
	event, ok := c.abi.Events["Withdrawal"]
	if !ok {
		return nil, errors.New("ABI has no Withdrawal event")
	}
	if len(log.Topics) == 0 || log.Topics[0] != event.ID {
		return nil, errors.New("log is not a Withdrawal event")
	}

	w := &Withdrawal{Raw: log}
	if err := c.contract.UnpackLog(w, "Withdrawal", log); err != nil {
		return nil, fmt.Errorf("failed to unpack Withdrawal: %w", err)
	}

	return w, nil
}
