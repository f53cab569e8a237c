// Package main provides the sitereel command line.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/maauso/sitereel/internal/cli"
)

// version is set via ldflags during build.
var version = "dev"

func main() {
	if err := cli.NewRootCmd(version).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
