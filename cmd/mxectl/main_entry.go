//go:build !testcoverage

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := run(os.Args, DefaultIOConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "mxectl: %v\n", err)
		os.Exit(1)
	}
}
