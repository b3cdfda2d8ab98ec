// Package main is the pubtf command itself.
package main

import (
	"context"
	"os"

	"go.viam.com/pubtf/cli"

	// Register the broadcasters selectable with --broadcaster.
	_ "go.viam.com/pubtf/broadcast/kafka"
	_ "go.viam.com/pubtf/broadcast/stdout"
)

func main() {
	// Errors are already logged by the app.
	if err := cli.RunWithArgs(context.Background(), os.Args); err != nil {
		os.Exit(1)
	}
}
