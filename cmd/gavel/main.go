package main

import (
	"os"

	"github.com/gavelhouse/gavel/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
