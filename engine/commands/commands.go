// Package commands assembles the timelock-deploy CLI.
//
// The root command runs a deployment when invoked without a subcommand:
//
//	timelock-deploy --dry-run
//	timelock-deploy deploy --network ethereum-testnet-sepolia --networks networks.yaml
//	timelock-deploy addresses list --addresses addresses.json
//	timelock-deploy version
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/timelock-labs/withdrawal-deployer/contracts/timelock"
	"github.com/timelock-labs/withdrawal-deployer/deployment"
	"github.com/timelock-labs/withdrawal-deployer/engine/commands/addresses"
	"github.com/timelock-labs/withdrawal-deployer/engine/commands/deploy"
	"github.com/timelock-labs/withdrawal-deployer/engine/commands/text"
)

// BinaryName is the name of the CLI.
const BinaryName = "timelock-deploy"

// NewRootCommand creates the root command. Without a subcommand it behaves like deploy.
func NewRootCommand(cfg deploy.Config) *cobra.Command {
	rootCfg := cfg
	rootCfg.Use = BinaryName
	root := deploy.NewCommand(rootCfg)
	root.SilenceErrors = true
	root.SilenceUsage = true

	cfg.Use = ""
	root.AddCommand(deploy.NewCommand(cfg))
	root.AddCommand(addresses.NewCommand(addresses.Config{
		Logger: cfg.Logger,
		Deps: addresses.Deps{
			ConfigLoader:      cfg.Deps.ConfigLoader,
			AddressBookLoader: cfg.Deps.AddressBookLoader,
		},
	}))
	root.AddCommand(newVersionCmd())

	return root
}

var versionLong = text.LongDesc(`
	Prints the contract version recorded in the address book and the versions of the deployment
	operations.
`)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print contract and operation versions",
		Long:  versionLong,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "%s %s\n", timelock.ContractName, timelock.Version); err != nil {
				return err
			}

			for _, def := range deployment.NewRegistry().Definitions() {
				if _, err := fmt.Fprintf(out, "%s %s\n", def.ID, def.Version); err != nil {
					return err
				}
			}

			return nil
		},
	}
}

// Execute runs the CLI with args and returns the process exit status. Errors are written to
// stderr.
func Execute(ctx context.Context, cfg deploy.Config, args []string, stdout, stderr io.Writer) int {
	root := NewRootCommand(cfg)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)

		return 1
	}

	return 0
}
