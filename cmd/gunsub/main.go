// Command gunsub mutes GitHub notification threads the user only
// follows implicitly.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
)

// version is stamped at link time with -ldflags "-X main.version=...".
var version = "0.3"

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	// Bare flags select the default subcommand.
	if len(args) == 0 || strings.HasPrefix(args[0], "-") && !isHelp(args[0]) {
		return runService(args)
	}

	subcommand, rest := args[0], args[1:]
	switch subcommand {
	case "run":
		return runService(rest)
	case "login":
		return runLogin(rest)
	case "logout":
		return runLogout(rest)
	case "status":
		return runStatus(rest)
	case "config":
		return runConfig(rest)
	case "version":
		fmt.Printf("gunsub %s\n", version)
		return nil
	case "-h", "--help", "help":
		printUsage()
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func isHelp(arg string) bool {
	return arg == "-h" || arg == "--help"
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: gunsub [subcommand] [flags]

Subcommands:
  run       Scan notifications and mute implicit subscriptions (default)
  login     Store a GitHub token in the system keyring
  logout    Remove the stored GitHub token
  status    Show the cursor and recent runs
  config    Print the effective configuration
  version   Print version information

Environment:
  GITHUB_USER, GITHUB_PASSWORD     credentials (password may be a token)
  GITHUB_POLL_INTERVAL             seconds between scans, 0 runs once
  GITHUB_INCLUDE_REPOS             comma-separated repository globs to scan
  GITHUB_EXCLUDE_REPOS             comma-separated repository globs to skip

Run 'gunsub <subcommand> --help' for subcommand flags.
`)
}
