package main

import (
	"fmt"
	"os"

	"github.com/jhansche/ha-birdbuddy/cmd"
	"github.com/jhansche/ha-birdbuddy/internal/conf"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
