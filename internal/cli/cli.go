// Package cli implements the subcommand dispatch that runs ahead of
// the normal flag-parsed server start: version, config check, and
// audit tail.
package cli

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"mdchat/internal/audit"
	"mdchat/internal/config"
)

// Version is set at build time via -ldflags, as the teacher's root
// package does.
var Version = "dev"

// Run handles subcommand execution. Returns true if a subcommand was
// handled (the caller should not proceed to the normal server start).
func Run(args []string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("mdchat %s\n", Version)
		return true
	case "config":
		return runConfig(args[1:])
	case "audit":
		return runAudit(args[1:])
	default:
		return false
	}
}

func runConfig(args []string) bool {
	if len(args) < 2 || args[0] != "check" {
		fmt.Fprintln(os.Stderr, "Usage: mdchatd config check <path>")
		os.Exit(1)
	}
	path := args[1]

	cfg, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s: ok (%d listen address(es))\n", path, len(cfg.Listen))
	return true
}

func runAudit(args []string) bool {
	if len(args) < 2 || args[0] != "tail" {
		fmt.Fprintln(os.Stderr, "Usage: mdchatd audit tail <path> [n]")
		os.Exit(1)
	}
	path := args[1]
	n := 20
	if len(args) > 2 {
		if parsed, err := strconv.Atoi(args[2]); err == nil {
			n = parsed
		}
	}

	log, err := audit.Open(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening audit database: %v\n", err)
		os.Exit(1)
	}
	defer log.Close()

	rows, err := log.Tail(n)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(rows) == 0 {
		fmt.Println("No audit events recorded.")
		return true
	}
	for _, r := range rows {
		ts := time.Unix(r.CreatedAt, 0).UTC().Format(time.RFC3339)
		fmt.Printf("[%d] %s peer=%s nick=%q event=%s %s\n", r.ID, ts, r.PeerAddr, r.Nickname, r.Event, r.Description)
	}
	return true
}
