// Command interviewctl inspects persisted interview records and question banks.
//
// Usage:
//
//	interviewctl records list [--user ID] [--status S] [--jq EXPR]
//	interviewctl records show <session_id> [--jq EXPR] [--yaml]
//	interviewctl questions dump [--file bank.yaml]
//	interviewctl questions validate <bank.yaml>
//
// Storage settings come from the same environment as interviewd and can be
// overridden with --backend, --badger-dir and --database-url.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
