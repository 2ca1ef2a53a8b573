package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
)

// printJSON marshals v and pretty-prints it, colorizing only when stdout
// is a real terminal.
func printJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	formatted := pretty.Pretty(b)
	if isTerminalWriter(os.Stdout) {
		formatted = pretty.Color(formatted, nil)
	}
	fmt.Print(string(formatted))
	return nil
}

// extractField marshals v to JSON and returns the value at a gjson path,
// letting `--field` pull one cell out of a result without a second
// round trip through a concrete struct.
func extractField(v any, path string) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	res := gjson.GetBytes(b, path)
	if !res.Exists() {
		return "", fmt.Errorf("no such field %q", path)
	}
	return res.String(), nil
}

func relativeTime(t time.Time) string {
	return humanize.Time(t)
}

// emitEntry renders v as a single gjson field (if field is set), as
// pretty-printed JSON (if asJSON), or as indented JSON as the plain
// default — every domain result is a struct a human can read straight
// off the wire, so there's no separate text renderer to maintain for
// the single-item commands.
func emitEntry(v any, field string, asJSON bool) {
	if field != "" {
		s, err := extractField(v, field)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(exitArgError)
		}
		fmt.Println(s)
		return
	}
	if asJSON {
		if err := printJSON(v); err != nil {
			fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
			os.Exit(exitGenerationFailed)
		}
		return
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to encode result: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	fmt.Println(string(b))
}

// truncate shortens s to at most n runes, marking the cut with an
// ellipsis so table columns stay aligned.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}

// extractGlobalFlags pulls --workspace/--json/--field out of args
// regardless of position, since every subcommand's own flag.FlagSet
// only knows about its own flags and a nested dispatcher (grimoire,
// history, plugin, migrate) parses its operation name positionally
// before handing the rest to flag.Parse.
func extractGlobalFlags(args []string) (workspace string, field string, asJSON bool, rest []string) {
	rest = make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--workspace", "-workspace":
			if i+1 < len(args) {
				workspace = args[i+1]
				i++
			}
		case "--field", "-field":
			if i+1 < len(args) {
				field = args[i+1]
				i++
			}
		case "--json", "-json":
			asJSON = true
		default:
			rest = append(rest, args[i])
		}
	}
	return workspace, field, asJSON, rest
}
