// cmd/guildgate/main.go
//
// This is the entry point for the guildgate CLI.
// Running `guildgate` with no arguments opens the TUI for the current
// directory; `check` and `whoami` answer quick questions without it.

package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
