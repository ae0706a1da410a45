// Package main is the entry point for convoctl, the terminal client for the
// convointel API.
package main

import (
	"os"

	"github.com/kiranshivaraju/convointel/cmd/convoctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
