package main

import (
	"os"

	"github.com/theirongolddev/redline/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
