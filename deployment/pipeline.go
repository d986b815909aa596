// Package deployment deploys a TimeLockedWithdrawal contract that unlocks a fixed delay after the
// deployment starts, and records where it was deployed.
package deployment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/timelock-labs/withdrawal-deployer/chain/evm"
	"github.com/timelock-labs/withdrawal-deployer/contracts/timelock"
	"github.com/timelock-labs/withdrawal-deployer/datastore"
	"github.com/timelock-labs/withdrawal-deployer/operations"
	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

// ContractType is the address book type of deployed contracts.
const ContractType datastore.ContractType = timelock.ContractName

// UnlockLabel returns the address book label recording the unlock time.
func UnlockLabel(unlockTime int64) string {
	return "unlock:" + strconv.FormatInt(unlockTime, 10)
}

// NewRunID returns a sortable unique ID for a deployment run. It is the default qualifier of the
// address ref.
func NewRunID() string {
	return ksuid.New().String()
}

// Pipeline deploys a single contract. Only Chain is required.
type Pipeline struct {
	Chain evm.Chain

	// Optional: Artifact defaults to the embedded artifact.
	Artifact *timelock.Artifact
	// Optional: Clock defaults to time.Now.
	Clock Clock
	// Optional: UnlockDelay defaults to DefaultUnlockDelay.
	UnlockDelay time.Duration
	// Optional: Qualifier of the address ref. Defaults to the run ID.
	Qualifier string
	// Optional: Logger defaults to a no-op logger.
	Logger logger.Logger
	// Optional: Reporter defaults to an in-memory reporter.
	Reporter operations.Reporter
	// Optional: AddressBook receives the deployed address.
	AddressBook datastore.AddressRefStore
	// Optional: Resume continues the deployment started with this input instead of deploying a
	// new contract. Reporter must hold the reports of that run, see ResumeInput.
	Resume *SequenceInput
}

// Result describes a confirmed deployment.
type Result struct {
	RunID       string `json:"run_id"`
	Address     string `json:"address"`
	TxHash      string `json:"tx_hash"`
	UnlockTime  int64  `json:"unlock_time"`
	BlockNumber uint64 `json:"block_number"`
	Owner       string `json:"owner"`
	Qualifier   string `json:"qualifier"`
}

func (p *Pipeline) setDefaults() error {
	if p.Chain.Client == nil {
		return errors.New("chain client is required")
	}
	if p.Chain.Confirm == nil {
		return errors.New("chain confirm function is required")
	}
	if p.Artifact == nil {
		artifact, err := timelock.Embedded()
		if err != nil {
			return err
		}
		p.Artifact = artifact
	}
	if p.Clock == nil {
		p.Clock = time.Now
	}
	if p.UnlockDelay == 0 {
		p.UnlockDelay = DefaultUnlockDelay
	}
	if p.Logger == nil {
		p.Logger = logger.Nop()
	}
	if p.Reporter == nil {
		p.Reporter = operations.NewMemoryReporter()
	}

	return nil
}

// input returns the sequence input of a new run, or the input of the resumed run.
func (p Pipeline) input() (SequenceInput, error) {
	if p.Resume != nil {
		if p.Resume.ChainSelector != p.Chain.Selector {
			return SequenceInput{}, fmt.Errorf("resumed deployment is for chain %d, not %d",
				p.Resume.ChainSelector, p.Chain.Selector)
		}

		return *p.Resume, nil
	}

	unlockTime, err := UnlockTime(p.Clock(), p.UnlockDelay)
	if err != nil {
		return SequenceInput{}, err
	}

	return SequenceInput{
		ChainSelector: p.Chain.Selector,
		UnlockTime:    unlockTime.Int64(),
		RunID:         NewRunID(),
	}, nil
}

// Run computes the unlock time, deploys the contract and waits for the deployment to be
// confirmed. Every call deploys a new contract unless Resume is set.
func (p Pipeline) Run(ctx context.Context) (Result, error) {
	if err := p.setDefaults(); err != nil {
		return Result{}, fmt.Errorf("invalid pipeline: %w", err)
	}

	input, err := p.input()
	if err != nil {
		return Result{}, err
	}

	runID := input.RunID
	qualifier := p.Qualifier
	if qualifier == "" {
		qualifier = runID
	}

	p.Logger.Infow("Deploying contract",
		"contract", p.Artifact.ContractName,
		"chain", p.Chain.String(),
		"unlock_time", input.UnlockTime,
		"run_id", runID,
		"resumed", p.Resume != nil,
	)

	b := operations.NewBundle(func() context.Context { return ctx }, p.Logger, p.Reporter,
		operations.WithOperationRegistry(NewRegistry()),
	)

	report, err := operations.ExecuteSequence(b, DeploySequence, NewDeps(p.Chain, p.Artifact), input)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		RunID:       runID,
		Address:     report.Output.Address,
		TxHash:      report.Output.TxHash,
		UnlockTime:  report.Output.UnlockTime,
		BlockNumber: report.Output.BlockNumber,
		Owner:       report.Output.Owner,
		Qualifier:   qualifier,
	}

	if p.AddressBook != nil {
		ref := datastore.AddressRef{
			Address:       result.Address,
			ChainSelector: p.Chain.Selector,
			Type:          ContractType,
			Version:       timelock.Version,
			Qualifier:     qualifier,
			Labels:        datastore.NewLabelSet(UnlockLabel(result.UnlockTime)),
		}
		if err = p.record(ctx, ref); err != nil {
			return result, fmt.Errorf("contract deployed to %s but not recorded: %w", result.Address, err)
		}
	}

	return result, nil
}

// record adds ref to the address book. A resumed run finds its own ref already recorded.
func (p Pipeline) record(ctx context.Context, ref datastore.AddressRef) error {
	err := p.AddressBook.Add(ctx, ref)
	if !errors.Is(err, datastore.ErrAddressRefExists) {
		return err
	}

	existing, gerr := p.AddressBook.Get(ctx, ref.Key())
	if gerr != nil {
		return errors.Join(err, gerr)
	}
	if !strings.EqualFold(existing.Address, ref.Address) {
		return err
	}

	return nil
}

// ResumeInput finds the latest successful deployment in reports, e.g. read back with
// operations.ReadReports, so that a run which failed after sending the deployment can be resumed.
func ResumeInput(reports []operations.Report[any, any]) (SequenceInput, error) {
	for i := len(reports) - 1; i >= 0; i-- {
		r := reports[i]
		if r.Def.ID != DeployOp.ID() || r.Err != nil {
			continue
		}

		raw, err := json.Marshal(r.Input)
		if err != nil {
			return SequenceInput{}, fmt.Errorf("failed to encode report %s input: %w", r.ID, err)
		}

		var input SequenceInput
		if err = json.Unmarshal(raw, &input); err != nil {
			return SequenceInput{}, fmt.Errorf("failed to decode report %s input: %w", r.ID, err)
		}

		return input, nil
	}

	return SequenceInput{}, errors.New("reports hold no successful deployment to resume")
}
