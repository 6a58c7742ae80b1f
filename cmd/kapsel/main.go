// Command kapsel is the capture and sync CLI.
package main

import (
	"fmt"
	"os"

	"github.com/mfme-labs/kapsel/internal/adapters/driving/cli"
)

// version is set at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
