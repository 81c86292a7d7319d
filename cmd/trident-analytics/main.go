package main

import (
	"fmt"
	"os"

	"github.com/tridentsec/trident-analytics/cmd/trident-analytics/commands"
)

func main() {
	if err := commands.NewRoot().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
