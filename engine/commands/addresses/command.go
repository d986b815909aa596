// Package addresses provides commands for inspecting the address book that deployments are
// recorded in.
package addresses

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
	chainsel "github.com/smartcontractkit/chain-selectors"
	"github.com/spf13/cobra"

	"github.com/timelock-labs/withdrawal-deployer/chain/evm"
	"github.com/timelock-labs/withdrawal-deployer/datastore"
	"github.com/timelock-labs/withdrawal-deployer/deployment"
	"github.com/timelock-labs/withdrawal-deployer/engine/commands/deploy"
	"github.com/timelock-labs/withdrawal-deployer/engine/commands/flags"
	"github.com/timelock-labs/withdrawal-deployer/engine/commands/text"
	"github.com/timelock-labs/withdrawal-deployer/engine/config"
	"github.com/timelock-labs/withdrawal-deployer/pkg/logger"
)

var (
	addressesLong = text.LongDesc(`
		Commands for the address book of deployed TimeLockedWithdrawal contracts.

		The Postgres datastore is used when DATASTORE_URL is set, the JSON file given by
		--addresses otherwise.
	`)

	listLong = text.LongDesc(`
		Prints the recorded contracts as a JSON array. Filters are combined.
	`)

	listExample = text.Examples(`
		# All contracts in a JSON address book
		timelock-deploy addresses list --addresses addresses.json

		# Contracts on Sepolia unlocking at a given time
		timelock-deploy addresses list --addresses addresses.json -n ethereum-testnet-sepolia --label unlock:1767225600
	`)
)

// Config holds the configuration for the addresses commands.
type Config struct {
	// Logger is the logger to use. Defaults to a no-op logger.
	Logger logger.Logger

	// Deps holds optional dependencies that can be overridden.
	// If fields are nil, production defaults are used.
	Deps Deps
}

// Deps holds the injectable dependencies of the addresses commands.
type Deps struct {
	// ConfigLoader loads the secrets config.
	// Default: config.Load
	ConfigLoader deploy.ConfigLoaderFunc

	// AddressBookLoader opens the address book.
	// Default: deploy.OpenAddressBook
	AddressBookLoader deploy.AddressBookLoaderFunc
}

func (d *Deps) applyDefaults() {
	if d.ConfigLoader == nil {
		d.ConfigLoader = config.Load
	}
	if d.AddressBookLoader == nil {
		d.AddressBookLoader = deploy.OpenAddressBook
	}
}

// NewCommand creates the addresses command group.
func NewCommand(cfg Config) *cobra.Command {
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	cfg.Deps.applyDefaults()

	cmd := &cobra.Command{
		Use:   "addresses",
		Short: "Address book commands",
		Long:  addressesLong,
	}

	cmd.AddCommand(newListCmd(cfg))

	return cmd
}

type listOptions struct {
	configPath string
	addresses  string
	qualifier  string
	labels     []string
	format     string
}

func newListCmd(cfg Config) *cobra.Command {
	var opts listOptions

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List deployed contracts",
		Long:    listLong,
		Example: listExample,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runList(cmd, cfg, opts)
		},
	}

	flags.Network(cmd)
	fs := cmd.Flags()
	fs.StringVar(&opts.configPath, "config", "", "Optional YAML config file; environment variables override it")
	fs.StringVar(&opts.addresses, "addresses", "", "JSON address book to read")
	fs.StringVar(&opts.qualifier, "qualifier", "", "Only list contracts with this qualifier")
	fs.StringSliceVar(&opts.labels, "label", nil, "Only list contracts with this label. Repeatable")
	fs.StringVar(&opts.format, "format", formatJSON, "Output format: json or table")

	return cmd
}

const (
	formatJSON  = "json"
	formatTable = "table"
)

func runList(cmd *cobra.Command, cfg Config, opts listOptions) (err error) {
	ctx := cmd.Context()

	if opts.format != formatJSON && opts.format != formatTable {
		return fmt.Errorf("unsupported format %q, want %q or %q", opts.format, formatJSON, formatTable)
	}

	filters := []datastore.FilterFunc{datastore.AddressRefByType(deployment.ContractType)}

	if network := flags.MustString(cmd.Flags().GetString("network")); network != "" {
		selector, serr := evm.SelectorFromName(network)
		if serr != nil {
			return serr
		}
		filters = append(filters, datastore.AddressRefByChainSelector(selector))
	}
	if opts.qualifier != "" {
		filters = append(filters, datastore.AddressRefByQualifier(opts.qualifier))
	}
	for _, label := range opts.labels {
		filters = append(filters, datastore.AddressRefByLabel(label))
	}

	secrets, err := cfg.Deps.ConfigLoader(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	book, closeBook, err := cfg.Deps.AddressBookLoader(ctx, deploy.AddressBookRequest{
		Path:         opts.addresses,
		DatastoreURL: secrets.Datastore.URL,
		ReadOnly:     true,
		Logger:       cfg.Logger,
	})
	if err != nil {
		return fmt.Errorf("failed to open address book: %w", err)
	}
	defer func() {
		if cerr := closeBook(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	refs, err := book.Filter(ctx, filters...)
	if err != nil {
		return err
	}
	if refs == nil {
		refs = []datastore.AddressRef{}
	}

	cfg.Logger.Debugw("Listing address refs", "count", len(refs))

	if opts.format == formatTable {
		writeTable(cmd.OutOrStdout(), refs)

		return nil
	}

	b, err := json.MarshalIndent(refs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode address refs: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(b))

	return err
}

func writeTable(w io.Writer, refs []datastore.AddressRef) {
	table := tablewriter.NewWriter(w)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Chain", "Address", "Version", "Qualifier", "Labels"})

	for _, ref := range refs {
		chain := strconv.FormatUint(ref.ChainSelector, 10)
		if details, ok := chainsel.ChainBySelector(ref.ChainSelector); ok {
			chain = details.Name
		}

		version := ""
		if ref.Version != nil {
			version = ref.Version.String()
		}

		table.Append([]string{chain, ref.Address, version, ref.Qualifier, ref.Labels.String()})
	}

	table.Render()
}
