// Command authctl signs in to an identity provider and makes authenticated
// requests with the resulting session. Sessions are kept in Redis between
// invocations.
package main

import (
	"fmt"
	"os"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
