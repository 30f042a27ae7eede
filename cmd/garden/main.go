// Package main is the entry point for the garden companion.
//
// MAIN PACKAGE IN GO:
// The main package should be kept minimal. Its job is to:
// 1. Read configuration (environment variables and an optional .env file)
// 2. Create dependencies (logger, database, broker) through server.NewApp
// 3. Run whatever the chosen subcommand asks for
//
// All actual logic lives in imported packages (internal/server, internal/service, etc.).
//
// SUBCOMMANDS:
// The binary is a small cobra CLI. "serve" runs the HTTP server; the others
// are maintenance jobs that open the same database and exit:
//
//	garden serve
//	garden weather prune --older-than 168h
//	garden plants clear
//	garden tasks --user <id> --limit 5
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
