package datastore

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// AddressRefKey uniquely identifies an AddressRef.
type AddressRefKey interface {
	fmt.Stringer

	// ChainSelector returns the selector of the chain the contract is deployed on.
	ChainSelector() uint64
	// Type returns the contract type.
	Type() ContractType
	// Version returns the contract version.
	Version() *semver.Version
	// Qualifier returns the optional qualifier.
	Qualifier() string
	// Equals reports whether both keys identify the same record.
	Equals(other AddressRefKey) bool
}

var _ AddressRefKey = addressRefKey{}

type addressRefKey struct {
	chainSelector uint64
	contractType  ContractType
	version       *semver.Version
	qualifier     string
}

func (a addressRefKey) ChainSelector() uint64 { return a.chainSelector }

func (a addressRefKey) Type() ContractType { return a.contractType }

func (a addressRefKey) Version() *semver.Version { return a.version }

func (a addressRefKey) Qualifier() string { return a.qualifier }

// Equals compares versions semantically, so 1.0 and 1.0.0 are the same key.
func (a addressRefKey) Equals(other AddressRefKey) bool {
	if a.chainSelector != other.ChainSelector() ||
		a.contractType != other.Type() ||
		a.qualifier != other.Qualifier() {
		return false
	}

	if a.version == nil || other.Version() == nil {
		return a.version == nil && other.Version() == nil
	}

	return a.version.Equal(other.Version())
}

// String renders the key as chain_selector:type:version:qualifier. It is the primary key of the
// SQL store.
func (a addressRefKey) String() string {
	version := ""
	if a.version != nil {
		version = a.version.String()
	}

	return fmt.Sprintf("%d:%s:%s:%s", a.chainSelector, a.contractType, version, a.qualifier)
}

// NewAddressRefKey creates an AddressRefKey.
func NewAddressRefKey(chainSelector uint64, contractType ContractType, version *semver.Version, qualifier string) AddressRefKey {
	return addressRefKey{
		chainSelector: chainSelector,
		contractType:  contractType,
		version:       version,
		qualifier:     qualifier,
	}
}
