// Command querypipe compiles and runs physical query plans against an
// in-memory demo database, and can dump the compiled bytecode.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"github.com/querypipe/querypipe/internal/log"
)

var verbose bool

func main() {
	root := &cobra.Command{
		Use:   "querypipe",
		Short: "pipeline query compiler and bytecode VM",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetLevel(zapcore.DebugLevel)
			}
		},
		SilenceUsage: true,
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newDemoCmd())
	root.AddCommand(newDisasmCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
