// Package timelock embeds the compiled TimeLockedWithdrawal contract and binds its methods.
package timelock

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ContractName is the name the contract is compiled and registered under.
const ContractName = "TimeLockedWithdrawal"

// Version is the version of the TimeLockedWithdrawal contract recorded in the address book.
var Version = semver.MustParse("1.0.0")

//go:embed artifacts/TimeLockedWithdrawal.json
var embeddedArtifact []byte

// Artifact is a Hardhat compilation artifact.
type Artifact struct {
	Format           string          `json:"_format"`
	ContractName     string          `json:"contractName"`
	SourceName       string          `json:"sourceName"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`

	parsedABI abi.ABI
	code      []byte
}

// Embedded returns the artifact compiled into the binary.
func Embedded() (*Artifact, error) {
	return ParseArtifact(embeddedArtifact)
}

// LoadArtifact reads and validates an artifact from a file, e.g. after re-compiling the contract.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	a, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact %s: %w", path, err)
	}

	return a, nil
}

// ParseArtifact decodes a Hardhat artifact and checks that it describes a deployable
// TimeLockedWithdrawal contract.
func ParseArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}

	if a.ContractName == "" {
		return nil, errors.New("artifact has no contract name")
	}
	if a.ContractName != ContractName {
		return nil, fmt.Errorf("artifact is for contract %q, want %q", a.ContractName, ContractName)
	}

	parsed, err := abi.JSON(strings.NewReader(string(a.ABI)))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ABI: %w", err)
	}
	a.parsedABI = parsed

	if !strings.HasPrefix(a.Bytecode, "0x") {
		return nil, errors.New("bytecode must be 0x prefixed hex")
	}
	code, err := hexutil.Decode(a.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("failed to decode bytecode: %w", err)
	}
	if len(code) == 0 {
		return nil, errors.New("bytecode is empty, the contract may be abstract")
	}
	a.code = code

	if err := checkConstructor(parsed.Constructor); err != nil {
		return nil, err
	}

	for _, name := range []string{"unlockTime", "owner", "withdraw"} {
		if _, ok := parsed.Methods[name]; !ok {
			return nil, fmt.Errorf("ABI is missing method %s", name)
		}
	}

	return &a, nil
}

func checkConstructor(ctor abi.Method) error {
	if len(ctor.Inputs) != 1 {
		return fmt.Errorf("constructor must take exactly one argument, got %d", len(ctor.Inputs))
	}
	if t := ctor.Inputs[0].Type; t.T != abi.UintTy || t.Size != 256 {
		return fmt.Errorf("constructor argument must be uint256, got %s", t.String())
	}

	return nil
}

// ParsedABI returns the parsed contract ABI.
func (a *Artifact) ParsedABI() abi.ABI {
	return a.parsedABI
}

// Code returns the creation bytecode without constructor arguments.
func (a *Artifact) Code() []byte {
	return common.CopyBytes(a.code)
}

// Deploy sends the creation transaction with unlockTime as the constructor argument. Any
// opts.Value is locked in the contract. The transaction is not waited for.
func (a *Artifact) Deploy(
	opts *bind.TransactOpts, backend bind.ContractBackend, unlockTime *big.Int,
) (common.Address, *types.Transaction, *TimeLockedWithdrawal, error) {
	if unlockTime == nil || unlockTime.Sign() <= 0 {
		return common.Address{}, nil, nil, fmt.Errorf("invalid unlock time %v", unlockTime)
	}

	address, tx, bound, err := bind.DeployContract(opts, a.parsedABI, a.code, backend, unlockTime)
	if err != nil {
		return common.Address{}, nil, nil, fmt.Errorf("failed to deploy %s: %w", a.ContractName, err)
	}

	return address, tx, &TimeLockedWithdrawal{address: address, abi: a.parsedABI, contract: bound}, nil
}

// Bind attaches to an already deployed contract.
func (a *Artifact) Bind(address common.Address, backend bind.ContractBackend) *TimeLockedWithdrawal {
	return &TimeLockedWithdrawal{
		address:  address,
		abi:      a.parsedABI,
		contract: bind.NewBoundContract(address, a.parsedABI, backend, backend, backend),
	}
}
