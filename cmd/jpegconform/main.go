// Command jpegconform runs black-box conformance scenarios against a
// jpegoptim executable.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/jpegconform/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
