// Command musicbox runs a shared music box: the relay, a terminal client,
// and the journal tooling around them.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/roach88/musicbox/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "musicbox:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
