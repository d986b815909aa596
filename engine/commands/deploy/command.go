package deploy

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/timelock-labs/withdrawal-deployer/contracts/timelock"
	"github.com/timelock-labs/withdrawal-deployer/datastore"
	"github.com/timelock-labs/withdrawal-deployer/deployment"
	"github.com/timelock-labs/withdrawal-deployer/engine/commands/flags"
	"github.com/timelock-labs/withdrawal-deployer/engine/commands/text"
	"github.com/timelock-labs/withdrawal-deployer/engine/config"
	"github.com/timelock-labs/withdrawal-deployer/operations"
	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

// DefaultConfirmTimeout bounds how long the command waits for the deployment to be mined.
const DefaultConfirmTimeout = 5 * time.Minute

var (
	deployShort = "Deploy a TimeLockedWithdrawal contract"

	deployLong = text.LongDesc(`
		Deploys a new TimeLockedWithdrawal contract that unlocks one hour from now, waits for the
		deployment to be confirmed and prints "Deployed to: <address>".

		Every run deploys a new contract unless --resume-reports points at the reports of an
		earlier run, which is then finished with the same unlock time. The deployer key is read from ONCHAIN_EVM_DEPLOYER_KEY
		(or PRIVATE_KEY), or from the AWS KMS key in ONCHAIN_KMS_KEY_ID and ONCHAIN_KMS_KEY_REGION.
		The address is recorded in the Postgres datastore when DATASTORE_URL is set, or in the JSON
		address book given by --addresses.
	`)

	deployExample = text.Examples(`
		# Deploy to a simulated chain
		timelock-deploy --dry-run

		# Deploy to Sepolia and record the address
		timelock-deploy deploy --network ethereum-testnet-sepolia --networks networks.yaml --addresses addresses.json

		# Read deployment parameters from a file
		timelock-deploy deploy --networks networks.yaml --params deploy.toml

		# Finish a run that stopped after sending the deployment
		timelock-deploy deploy --networks networks.yaml --resume-reports reports.json --reports reports.json
	`)
)

// Config holds the configuration for the deploy command.
type Config struct {
	// Use overrides the command name. Defaults to "deploy".
	Use string

	// Logger is the logger to use. Defaults to a stderr logger at the --log-level.
	Logger logger.Logger

	// Deps holds optional dependencies that can be overridden.
	// If fields are nil, production defaults are used.
	Deps Deps
}

// deps returns the Deps with defaults applied.
func (c *Config) deps() *Deps {
	c.Deps.applyDefaults()

	return &c.Deps
}

type options struct {
	network        string
	networks       []string
	configPath     string
	paramsPath     string
	unlockDelay    time.Duration
	qualifier      string
	artifact       string
	dryRun         bool
	confirmTimeout time.Duration
	addresses      string
	reports        string
	resumeReports  string
}

// NewCommand creates the deploy command.
func NewCommand(cfg Config) *cobra.Command {
	cfg.deps()

	if cfg.Use == "" {
		cfg.Use = "deploy"
	}

	var opts options

	cmd := &cobra.Command{
		Use:           cfg.Use,
		Short:         deployShort,
		Long:          deployLong,
		Example:       deployExample,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDeploy(cmd, cfg, opts)
		},
	}

	flags.Network(cmd)
	flags.LogLevel(cmd)
	flags.Output(cmd, "reports", "", "Write the operation reports to this JSON file")

	fs := cmd.Flags()
	fs.StringSliceVar(&opts.networks, "networks", nil, "Networks manifest YAML files, merged in order")
	fs.StringVar(&opts.configPath, "config", "", "Optional YAML config file; environment variables override it")
	fs.StringVar(&opts.paramsPath, "params", "", "Optional TOML deployment parameters; flags override it")
	fs.DurationVar(&opts.unlockDelay, "unlock-delay", deployment.DefaultUnlockDelay, "Time from now until funds can be withdrawn")
	fs.StringVar(&opts.qualifier, "qualifier", "", "Address book qualifier. Defaults to the run ID")
	fs.StringVar(&opts.artifact, "artifact", "", "Hardhat artifact to deploy instead of the embedded contract")
	fs.BoolVar(&opts.dryRun, "dry-run", false, "Deploy to an in-memory simulated chain")
	fs.DurationVar(&opts.confirmTimeout, "confirm-timeout", DefaultConfirmTimeout, "How long to wait for the deployment to be mined")
	fs.StringVar(&opts.addresses, "addresses", "", "JSON address book to record the deployment in")
	fs.StringVar(&opts.resumeReports, "resume-reports", "", "Resume the deployment recorded in this reports file")

	return cmd
}

// applyParams copies params into opts for every flag that was not set explicitly.
func applyParams(cmd *cobra.Command, opts *options, params config.Params) {
	changed := cmd.Flags().Changed

	if !changed("network") && params.Network != "" {
		opts.network = params.Network
	}
	if !changed("unlock-delay") && params.UnlockDelay > 0 {
		opts.unlockDelay = time.Duration(params.UnlockDelay)
	}
	if !changed("qualifier") && params.Qualifier != "" {
		opts.qualifier = params.Qualifier
	}
	if !changed("confirm-timeout") && params.ConfirmTimeout > 0 {
		opts.confirmTimeout = time.Duration(params.ConfirmTimeout)
	}
	if !changed("artifact") && params.Artifact != "" {
		opts.artifact = params.Artifact
	}
}

func runDeploy(cmd *cobra.Command, cfg Config, opts options) (err error) {
	ctx := cmd.Context()
	opts.network = flags.MustString(cmd.Flags().GetString("network"))
	opts.reports = flags.MustString(cmd.Flags().GetString("reports"))

	lggr := cfg.Logger
	if lggr == nil {
		lcfg, perr := logger.ParseConfig(flags.MustString(cmd.Flags().GetString("log-level")), false)
		if perr != nil {
			return perr
		}
		if lggr, err = lcfg.New(); err != nil {
			return fmt.Errorf("failed to create logger: %w", err)
		}
		defer func() { _ = lggr.Sync() }()
	}

	if opts.paramsPath != "" {
		params, perr := config.LoadParams(opts.paramsPath)
		if perr != nil {
			return perr
		}
		applyParams(cmd, &opts, params)
	}

	if opts.unlockDelay <= 0 {
		return fmt.Errorf("--unlock-delay must be positive, got %s", opts.unlockDelay)
	}
	if opts.confirmTimeout <= 0 {
		return fmt.Errorf("--confirm-timeout must be positive, got %s", opts.confirmTimeout)
	}

	var (
		stored []operations.Report[any, any]
		resume *deployment.SequenceInput
	)
	if opts.resumeReports != "" {
		if stored, err = operations.ReadReports(opts.resumeReports); err != nil {
			return err
		}
		input, rerr := deployment.ResumeInput(stored)
		if rerr != nil {
			return fmt.Errorf("failed to resume %s: %w", opts.resumeReports, rerr)
		}
		resume = &input
	}

	secrets, err := cfg.Deps.ConfigLoader(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	artifact, err := loadArtifact(opts.artifact)
	if err != nil {
		return err
	}

	chain, closeChain, err := cfg.Deps.ChainLoader(ctx, ChainRequest{
		DryRun:         opts.dryRun,
		Network:        opts.network,
		NetworksFiles:  opts.networks,
		ConfirmTimeout: opts.confirmTimeout,
		Config:         secrets,
		Logger:         lggr,
	})
	if err != nil {
		return fmt.Errorf("failed to load chain: %w", err)
	}
	defer func() { err = errors.Join(err, closeChain()) }()

	var (
		book      datastore.AddressRefStore
		closeBook CloseFunc
	)
	if opts.dryRun {
		lggr.Warnw("Dry run: the address is not recorded", "addresses", opts.addresses)
		book, closeBook = datastore.NewMemoryAddressRefStore(), noopClose
	} else {
		book, closeBook, err = cfg.Deps.AddressBookLoader(ctx, AddressBookRequest{
			Path:         opts.addresses,
			DatastoreURL: secrets.Datastore.URL,
			Logger:       lggr,
		})
		if err != nil {
			return fmt.Errorf("failed to open address book: %w", err)
		}
	}

	reporter := operations.NewMemoryReporter(operations.WithReports(stored))

	result, err := deployment.Pipeline{
		Chain:       chain,
		Artifact:    artifact,
		Clock:       cfg.Deps.Clock,
		UnlockDelay: opts.unlockDelay,
		Qualifier:   opts.qualifier,
		Logger:      lggr.Named("deployment"),
		Reporter:    reporter,
		AddressBook: book,
		Resume:      resume,
	}.Run(ctx)

	if opts.reports != "" {
		err = errors.Join(err, operations.WriteReports(reporter, opts.reports))
	}
	err = errors.Join(err, closeBook())
	if err != nil {
		return err
	}

	lggr.Infow("Deployment confirmed",
		"address", result.Address,
		"tx_hash", result.TxHash,
		"block_number", result.BlockNumber,
		"unlock_time", result.UnlockTime,
		"qualifier", result.Qualifier,
	)

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Deployed to: %s\n", result.Address)

	return err
}

func loadArtifact(path string) (*timelock.Artifact, error) {
	if path == "" {
		return timelock.Embedded()
	}

	return timelock.LoadArtifact(path)
}
