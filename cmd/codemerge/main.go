// Package main provides the entry point for the codemerge CLI tool.
package main

import (
	"fmt"
	"os"

	"github.com/Sumatoshi-tech/codemerge/cmd/codemerge/commands"
	"github.com/Sumatoshi-tech/codemerge/pkg/version"
)

func main() {
	version.InitBinaryVersion()

	err := commands.NewRootCommand().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
