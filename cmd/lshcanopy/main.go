// Package main provides the lshcanopy CLI tool.
//
// Usage:
//
//	lshcanopy [flags] <command> [args]
//
// Commands:
//
//	match   - Link records across two TSV profiles through shared LSH bands
//	cluster - Canopy clustering of the records of one TSV file
//
// Configuration:
//
//	Features, codecs, band layout and clustering parameters are read from a
//	YAML file given with --config.
package main

import (
	"fmt"
	"os"

	"github.com/wizenheimer/lsh/cmd/lshcanopy/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
