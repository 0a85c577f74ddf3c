package main

import (
	"os"

	"github.com/gridbase/gridbase/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
