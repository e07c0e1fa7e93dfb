// Package main is the projection CLI.
package main

import (
	"os"

	"go.viam.com/projection/cli"
	"go.viam.com/projection/logging"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		logging.NewLogger("projection").Fatal(err)
	}
}
