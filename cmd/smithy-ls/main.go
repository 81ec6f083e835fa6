package main

import (
	"fmt"
	"os"

	"github.com/milesziemer/smithy-language-server/cmd/smithy-ls/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
