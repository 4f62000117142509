package main

import (
	"fmt"
	"os"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
  __   ___ _        _
  \ \ / (_) |_ _ _ (_)_ _  ___
   \ V /| |  _| '_|| | ' \/ -_)
    \_/ |_|\__|_|  |_|_||_\___|

  Coin and stamp storefront

  Usage: vitrine serve            start the storefront and REST API
         vitrine <command> --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// No args with piped stdin: an agent host launched us as an MCP server.
	args := os.Args
	if len(args) < 2 {
		args = append(args, "mcp")
	}

	if err := newCLIApp().Run(args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
