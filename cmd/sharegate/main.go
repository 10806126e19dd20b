// sharegate is the command-line interface for the share broker: dataset
// registration, share request lifecycle, item grant management, and
// stewardship transfer.
package main

import (
	"os"

	"github.com/lakefabric/sharegate/cmd/sharegate/cmd"
	"github.com/lakefabric/sharegate/pkg/clierror"
)

func main() {
	if err := cmd.Execute(); err != nil {
		ce := clierror.FromError(err)
		clierror.PrintError(ce, cmd.OutputFormat())
		os.Exit(ce.ExitCode)
	}
}
