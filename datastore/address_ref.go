package datastore

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrAddressRefNotFound is returned when no address ref matches the key.
	ErrAddressRefNotFound = errors.New("no address ref record with the given key was found")
	// ErrAddressRefExists is returned by Add when a record with the same key is already stored.
	ErrAddressRefExists = errors.New("an address ref with the supplied key already exists")
)

// ContractType names the kind of contract deployed at an address.
type ContractType string

// String returns the contract type as a string.
func (ct ContractType) String() string {
	return string(ct)
}

// AddressRef records where a contract was deployed.
type AddressRef struct {
	// Address is the hex address of the contract.
	Address string `json:"address"`
	// ChainSelector identifies the chain the contract lives on.
	ChainSelector uint64 `json:"chainSelector"`
	// Labels are free form tags, e.g. the unlock time the contract was deployed with.
	Labels LabelSet `json:"labels"`
	// Qualifier separates several deployments of the same type and version on one chain.
	Qualifier string `json:"qualifier"`
	// Type is the contract type.
	Type ContractType `json:"type"`
	// Version is the version of the deployed contract.
	Version *semver.Version `json:"version"`
}

// Key returns the primary key of the record.
func (r AddressRef) Key() AddressRefKey {
	return NewAddressRefKey(r.ChainSelector, r.Type, r.Version, r.Qualifier)
}

// Clone returns a copy of the record which shares no mutable state with r.
func (r AddressRef) Clone() AddressRef {
	clone := r
	clone.Labels = r.Labels.Clone()
	if r.Version != nil {
		v := *r.Version
		clone.Version = &v
	}

	return clone
}

// Equals reports whether two records hold the same values.
func (r AddressRef) Equals(other AddressRef) bool {
	return r.Address == other.Address &&
		r.Key().Equals(other.Key()) &&
		r.Labels.Equal(other.Labels)
}

// Validate checks the fields required to store the record.
func (r AddressRef) Validate() error {
	if !common.IsHexAddress(r.Address) {
		return fmt.Errorf("invalid address %q", r.Address)
	}
	if r.ChainSelector == 0 {
		return errors.New("chain selector is required")
	}
	if r.Type == "" {
		return errors.New("contract type is required")
	}
	if r.Version == nil {
		return errors.New("version is required")
	}
	for _, l := range r.Labels.List() {
		if strings.ContainsFunc(l, unicode.IsSpace) {
			return fmt.Errorf("label %q must not contain whitespace", l)
		}
	}

	return nil
}
