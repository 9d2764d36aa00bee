package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
)

func main() {
	cmd := newRootCmd(afero.NewOsFs(), os.Stdout, os.Stderr)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
