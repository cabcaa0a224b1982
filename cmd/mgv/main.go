// mgv is a terminal client for the megagrid shared pixel grid.
//
// It renders the grid, lets you paint cells optimistically, and sends all
// pending cells to the grid in one batched write once a wallet session is
// bound. Confirmed paints from everyone else stream in live.
//
// Usage:
//
//	mgv                          # Open the TUI on the configured backend
//	mgv --db <path>              # Use a specific devnet database
//	mgv --color '#ff8800'        # Start in picker mode with a color
//	mgv dump                     # Print the grid as JSON and exit
//	mgv devnet init --size 64    # Create a local devnet
//	mgv devnet paint 3,4=#00ff00 # Paint as another user on the devnet
//	mgv version                  # Print version and exit
package main

import (
	"fmt"
	"os"
)

// Version is set via ldflags at build time (e.g. -X main.Version=v0.1.0).
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "mgv: %v\n", err)
		os.Exit(1)
	}
}
