package main

import (
	"fmt"
	"os"

	_ "github.com/lib/pq"

	"github.com/km-arc/cubex/cmd/cubex/cmd"
)

func main() {
	rootCmd := cmd.NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
