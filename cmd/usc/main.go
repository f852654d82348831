// Command usc compiles Sierra contract classes and raw Sierra programs of
// any supported version to CASM.
package main

import (
	"os"

	"github.com/roach88/usc/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
