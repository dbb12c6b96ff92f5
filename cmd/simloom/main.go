// Command simloom grows and runs entity-component simulations from
// natural-language intents.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/simloom/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "simloom:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
