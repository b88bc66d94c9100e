package main

import (
	"os"

	"github.com/rustyeddy/tradectl/cmd/tradectl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
