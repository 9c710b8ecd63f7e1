// Command trustcore-admin is the trust core's operator CLI: schema
// migration, manual capability sweeps, and manual chain verification,
// grounded on the teacher's cmd/sage-crypto root-command-plus-subcommand-files
// layout.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trustcore-admin",
	Short: "Trust core operator CLI",
	Long: `trustcore-admin provides operator tooling for the trust core:

- applying the PostgreSQL schema to a fresh database
- running an out-of-band capability expiry sweep
- verifying an agent's event chain on demand`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().String("config", "", "path to a YAML config file (optional)")
}
