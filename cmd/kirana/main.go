package main

import (
	"os"

	"github.com/nanda/kirana/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
