package main

import (
	"fmt"
	"os"
)

func pluginCmd(args []string) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: forge plugin <list|enable|disable> [flags]")
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
		pluginList(a, field, asJSON)
	case "enable":
		pluginSetEnabled(a, rest, true, field, asJSON)
	case "disable":
		pluginSetEnabled(a, rest, false, field, asJSON)
	default:
		fmt.Fprintf(os.Stderr, "unknown plugin subcommand %q\n", sub)
		os.Exit(exitArgError)
	}
}

func pluginList(a *app, field string, asJSON bool) {
	catalog := a.plugins.Catalog()
	if asJSON || field != "" {
		emitEntry(catalog, field, asJSON)
		return
	}
	for _, e := range catalog.Plugins {
		state := "disabled"
		if e.Enabled {
			state = "enabled"
		}
		if !e.Effective && e.Enabled {
			state = "shadowed"
		}
		fmt.Printf("%-24s %-10s %-8s %s\n", e.Manifest.Name, e.Scope, state, e.Path)
	}
	for _, n := range catalog.Conflicts {
		fmt.Fprintf(os.Stderr, "conflict: %s (%s): %s\n", n.Name, n.Path, n.Message)
	}
	for _, n := range catalog.Errors {
		fmt.Fprintf(os.Stderr, "error: %s: %s\n", n.Path, n.Message)
	}
}

func pluginSetEnabled(a *app, args []string, enabled bool, field string, asJSON bool) {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: forge plugin <enable|disable> <name>")
		os.Exit(exitArgError)
	}
	name := args[0]

	var path string
	for _, e := range a.plugins.Catalog().Plugins {
		if e.Manifest.Name == name {
			path = e.Path
			break
		}
	}
	if path == "" {
		fmt.Fprintf(os.Stderr, "no plugin named %q\n", name)
		os.Exit(exitArgError)
	}

	catalog, err := a.plugins.SetEnabled(path, enabled)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	if asJSON || field != "" {
		emitEntry(catalog, field, asJSON)
	}
}
