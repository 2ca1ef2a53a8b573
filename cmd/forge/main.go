package main

import (
	"fmt"
	"os"
)

var (
	// Version is set via -ldflags at build time.
	Version = "dev"
	// Commit is set via -ldflags at build time.
	Commit = "unknown"
	// BuildTime is set via -ldflags at build time.
	BuildTime = "unknown"
)

// Exit codes, fixed across every subcommand that generates or rejects a
// generation: 0 success, 1 generation failure or strict-validation
// rejection, 2 argument parsing error, 3 unreachable/unconfigured
// provider.
const (
	exitOK                = 0
	exitGenerationFailed  = 1
	exitArgError          = 2
	exitProviderUnreachable = 3
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitArgError)
	}

	switch os.Args[1] {
	case "generate":
		generateCmd(os.Args[2:])
	case "serve":
		serveCmd(os.Args[2:])
	case "watch":
		watchCmd(os.Args[2:])
	case "grimoire":
		grimoireCmd(os.Args[2:])
	case "history":
		historyCmd(os.Args[2:])
	case "plugin":
		pluginCmd(os.Args[2:])
	case "migrate":
		migrateCmd(os.Args[2:])
	case "version":
		fmt.Printf("forge %s (%s) %s\n", Version, Commit, BuildTime)
	default:
		printUsage()
		os.Exit(exitArgError)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `forge

Usage:
  forge generate <prompt> [flags]   Generate one HTML app from a prompt
  forge serve [flags]               Run the HTTP/SSE surface
  forge watch <target> [flags]      Regenerate on file changes
  forge grimoire <subcommand>       Curated prompt library
  forge history <subcommand>        Past generation runs
  forge plugin <subcommand>         Plugin discovery and enable state
  forge migrate <subcommand>        Persistence-layout migrations
  forge version                     Print build information

Common flags:
  --workspace <dir>   Project directory owning .forgerc.json and .forge/ (default: current directory; every subcommand except version)
  --json              Emit machine-readable JSON instead of text (generate, grimoire, history, plugin, migrate)

`)
}
