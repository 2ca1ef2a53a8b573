package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/floegence/forge/internal/grimoire"
)

func grimoireCmd(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: forge grimoire <add|search|favorite|use|score|rm|stats> [flags]")
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
	case "add":
		grimoireAdd(a, rest, field, asJSON)
	case "search":
		grimoireSearch(a, rest, field, asJSON)
	case "favorite":
		grimoireMutate(a, rest, field, asJSON, a.grimoire.ToggleFavorite)
	case "use":
		grimoireMutate(a, rest, field, asJSON, a.grimoire.RecordUse)
	case "score":
		grimoireScore(a, rest, field, asJSON)
	case "rm":
		grimoireRemove(a, rest)
	case "stats":
		grimoireStats(a, field, asJSON)
	default:
		fmt.Fprintf(os.Stderr, "unknown grimoire subcommand %q\n", sub)
		os.Exit(exitArgError)
	}
}

func grimoireAdd(a *app, args []string, field string, asJSON bool) {
	fs := flag.NewFlagSet("grimoire add", flag.ContinueOnError)
	tags := fs.String("tags", "", "Comma-separated tags")
	category := fs.String("category", "", "Category")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitArgError)
	}
	prompt := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "usage: forge grimoire add <prompt> [--tags a,b] [--category c]")
		os.Exit(exitArgError)
	}
	entry, err := a.grimoire.Inscribe(prompt, splitCSV(*tags), *category, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "inscribe failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	emitEntry(entry, field, asJSON)
}

func grimoireSearch(a *app, args []string, field string, asJSON bool) {
	fs := flag.NewFlagSet("grimoire search", flag.ContinueOnError)
	tag := fs.String("tag", "", "Filter by tag")
	category := fs.String("category", "", "Filter by category")
	favoriteOnly := fs.Bool("favorite", false, "Only favorites")
	if err := fs.Parse(args); err != nil {
		os.Exit(exitArgError)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))

	opts := grimoire.SearchOptions{Query: query, Tag: *tag, Category: *category}
	if *favoriteOnly {
		v := true
		opts.Favorite = &v
	}
	results, err := a.grimoire.Search(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "search failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	if asJSON || field != "" {
		emitEntry(results, field, asJSON)
		return
	}
	for _, e := range results {
		star := " "
		if e.Favorite {
			star = "*"
		}
		fmt.Printf("%s %-36s %-40s %s\n", star, e.ID, truncate(e.Prompt, 40), relativeTime(e.CreatedAt))
	}
}

func grimoireMutate(a *app, args []string, field string, asJSON bool, fn func(id string) (grimoire.Entry, error)) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: forge grimoire <favorite|use> <id>")
		os.Exit(exitArgError)
	}
	entry, err := fn(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	emitEntry(entry, field, asJSON)
}

func grimoireScore(a *app, args []string, field string, asJSON bool) {
	if len(args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: forge grimoire score <id> <0..1>")
		os.Exit(exitArgError)
	}
	score, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid score %q: %v\n", args[1], err)
		os.Exit(exitArgError)
	}
	entry, err := a.grimoire.UpdateScore(args[0], score)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	emitEntry(entry, field, asJSON)
}

func grimoireRemove(a *app, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: forge grimoire rm <id>")
		os.Exit(exitArgError)
	}
	if err := a.grimoire.Delete(args[0]); err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
}

func grimoireStats(a *app, field string, asJSON bool) {
	stats, err := a.grimoire.Stats()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	emitEntry(stats, field, asJSON)
}
