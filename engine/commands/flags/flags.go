// Package flags provides flag helpers shared by the deployer's commands.
//
// Only flags used by more than one command belong here. Command-specific flags are defined
// next to the command.
package flags

import (
	"github.com/spf13/cobra"
)

// MustString returns the string value, ignoring the error.
// Safe to use with registered flags where GetString cannot fail.
func MustString(s string, _ error) string { return s }

// Network adds the --network/-n flag selecting a network by chain name or selector.
func Network(cmd *cobra.Command) {
	cmd.Flags().StringP("network", "n", "", "Network chain name or selector, e.g. ethereum-testnet-sepolia")
}

// LogLevel adds the --log-level flag. Logs are written to stderr.
func LogLevel(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "Log level: debug, info, warn or error")
}

// Output adds an output file flag with the given name and the -o shorthand.
func Output(cmd *cobra.Command, name, defaultValue, usage string) {
	cmd.Flags().StringP(name, "o", defaultValue, usage)
}
