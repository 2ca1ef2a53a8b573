package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/floegence/forge/internal/searchindex"
)

func migrateCmd(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: forge migrate <status|up|reindex> [flags]")
		os.Exit(exitArgError)
	}

	sub, rest := args[0], args[1:]
	workspace, field, asJSON, rest := extractGlobalFlags(rest)

	a, err := bootstrap(bootstrapOptions{Workspace: workspace})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	defer a.Close()

	switch sub {
	case "status":
		migrateStatus(a, field, asJSON)
	case "up":
		migrateUp(a, rest, field, asJSON)
	case "reindex":
		migrateReindex(a)
	default:
		fmt.Fprintf(os.Stderr, "unknown migrate subcommand %q\n", sub)
		os.Exit(exitArgError)
	}
}

func migrateStatus(a *app, field string, asJSON bool) {
	applied, err := a.migrate.Applied()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	pending, err := a.migrate.Pending()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	if asJSON || field != "" {
		emitEntry(map[string]any{"applied": applied, "pending": pending}, field, asJSON)
		return
	}
	for _, r := range applied {
		fmt.Printf("applied  v%-4d %-60s %s\n", r.Version, r.Description, r.Result)
	}
	for _, m := range pending {
		fmt.Printf("pending  v%-4d %s\n", m.Version, m.Description)
	}
}

func migrateUp(a *app, args []string, field string, asJSON bool) {
	fs := flag.NewFlagSet("migrate up", flag.ContinueOnError)
	dryRun := fs.Bool("dry-run", false, "Preview without applying")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitArgError)
	}

	applied, err := a.migrate.Upgrade(context.Background(), *dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "migration failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	emitEntry(applied, field, asJSON)
}

// migrateReindex rebuilds the Search Index from the KV Store directly —
// a repeatable cache rebuild, not a versioned migration step, so it
// bypasses the Runner entirely.
func migrateReindex(a *app) {
	if a.index == nil {
		fmt.Fprintln(os.Stderr, "search index unavailable")
		os.Exit(exitGenerationFailed)
	}

	historyRows, err := a.history.IndexRows()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read history: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	grimoireRows, err := a.grimoire.IndexRows()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read grimoire: %v\n", err)
		os.Exit(exitGenerationFailed)
	}

	rows := make([]searchindex.Row, 0, len(historyRows)+len(grimoireRows))
	rows = append(rows, historyRows...)
	rows = append(rows, grimoireRows...)

	if err := a.index.Reindex(rows); err != nil {
		fmt.Fprintf(os.Stderr, "reindex failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	fmt.Printf("reindexed %d rows\n", len(rows))
}
