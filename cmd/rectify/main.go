// Command rectify detects and corrects hallucinations in model answers
package main

import (
	"fmt"
	"os"

	"github.com/ppiankov/rectify/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
