package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/floegence/forge/internal/history"
)

func historyCmd(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: forge history <list|search|show|rm|stats> [flags]")
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
	case "list":
		historyList(a, rest, field, asJSON)
	case "search":
		historySearch(a, rest, field, asJSON)
	case "show":
		historyShow(a, rest, field, asJSON)
	case "rm":
		historyRemove(a, rest)
	case "stats":
		emitEntry(mustStats(a), field, asJSON)
	default:
		fmt.Fprintf(os.Stderr, "unknown history subcommand %q\n", sub)
		os.Exit(exitArgError)
	}
}

func mustStats(a *app) history.Stats {
	stats, err := a.history.Stats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	return stats
}

func historyList(a *app, args []string, field string, asJSON bool) {
	fs := flag.NewFlagSet("history list", flag.ContinueOnError)
	provider := fs.String("provider", "", "Filter by provider")
	minGrade := fs.String("min-grade", "", "Minimum grade (S|A|B|C|D)")
	limit := fs.Int("limit", 0, "Max results")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitArgError)
	}

	entries, err := a.history.List(history.ListOptions{Provider: *provider, MinGrade: *minGrade, Limit: *limit})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	printHistoryEntries(entries, field, asJSON)
}

func historySearch(a *app, args []string, field string, asJSON bool) {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" {
		fmt.Fprintln(os.Stderr, "usage: forge history search <query>")
		os.Exit(exitArgError)
	}
	entries, err := a.history.Search(query)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	printHistoryEntries(entries, field, asJSON)
}

func printHistoryEntries(entries []history.Entry, field string, asJSON bool) {
	if asJSON || field != "" {
		emitEntry(entries, field, asJSON)
		return
	}
	for _, e := range entries {
		fmt.Printf("%-36s %-5s %-16s %-40s %s\n", e.ID, e.Grade, e.Provider, truncate(e.Prompt, 40), relativeTime(e.At))
	}
}

func historyShow(a *app, args []string, field string, asJSON bool) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: forge history show <id> [--html]")
		os.Exit(exitArgError)
	}
	fs := flag.NewFlagSet("history show", flag.ContinueOnError)
	wantHTML := fs.Bool("html", false, "Print the generated HTML instead of metadata")
	if err := fs.Parse(args[1:]); err != nil {
		os.Exit(exitArgError)
	}
	id := args[0]

	if *wantHTML {
		html, found, err := a.history.GetCode(id)
		if err != nil || !found {
			fmt.Fprintf(os.Stderr, "not found: %s\n", id)
			os.Exit(exitGenerationFailed)
		}
		fmt.Println(html)
		return
	}

	entry, found, err := a.history.Get(id)
	if err != nil || !found {
		fmt.Fprintf(os.Stderr, "not found: %s\n", id)
		os.Exit(exitGenerationFailed)
	}
	emitEntry(entry, field, asJSON)
}

func historyRemove(a *app, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: forge history rm <id>")
		os.Exit(exitArgError)
	}
	if err := a.history.Delete(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
}
