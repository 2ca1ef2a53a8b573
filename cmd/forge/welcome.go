package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"
)

// ANSI color codes for terminal styling.
const (
	ansiReset     = "\033[0m"
	ansiBold      = "\033[1m"
	ansiCyan      = "\033[96m"
	ansiUnderline = "\033[4m"
)

type welcomeBannerOptions struct {
	Version    string
	ServeURL   string
	WatchURL   string
}

func printWelcomeBanner(w io.Writer, opts welcomeBannerOptions) {
	width := terminalWidth(w)
	useANSI := isTerminalWriter(w)

	logo := []string{
		"  ███████╗ ██████╗ ██████╗  ██████╗ ███████╗",
		"  ██╔════╝██╔═══██╗██╔══██╗██╔════╝ ██╔════╝",
		"  █████╗  ██║   ██║██████╔╝██║  ███╗█████╗  ",
		"  ██╔══╝  ██║   ██║██╔══██╗██║   ██║██╔══╝  ",
		"  ██║     ╚██████╔╝██║  ██║╚██████╔╝███████╗",
		"  ╚═╝      ╚═════╝ ╚═╝  ╚═╝ ╚═════╝ ╚══════╝",
	}

	fmt.Fprintln(w)
	for _, line := range logo {
		fmt.Fprintln(w, center(line, width))
	}
	fmt.Fprintln(w)

	if version := strings.TrimSpace(opts.Version); version != "" {
		fmt.Fprintln(w, center(fmt.Sprintf("Version: %s", version), width))
	}
	if u := strings.TrimSpace(opts.ServeURL); u != "" {
		fmt.Fprintln(w, centerWithAnsi(fmt.Sprintf("Serving: %s", styleURL(u, useANSI)), width))
	}
	if u := strings.TrimSpace(opts.WatchURL); u != "" {
		fmt.Fprintln(w, centerWithAnsi(fmt.Sprintf("Dashboard: %s", styleURL(u, useANSI)), width))
	}
	fmt.Fprintln(w)
}

// isTerminalWriter reports whether w is a real terminal, using isatty
// rather than term.IsTerminal — isatty's ioctl-based check is what gates
// color/progress output here, while term.GetSize below is only used for
// layout width, not the color decision.
func isTerminalWriter(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return 0
	}
	return width
}

func styleURL(url string, enabled bool) string {
	if !enabled {
		return url
	}
	return fmt.Sprintf("%s%s%s%s", ansiCyan, ansiUnderline, url, ansiReset)
}

func center(text string, width int) string {
	if width <= 0 {
		return "                    " + text
	}
	textLen := len([]rune(text))
	if textLen >= width {
		return text
	}
	padding := (width - textLen) / 2
	return strings.Repeat(" ", padding) + text
}

func stripAnsi(s string) string {
	result := s
	result = strings.ReplaceAll(result, ansiReset, "")
	result = strings.ReplaceAll(result, ansiBold, "")
	result = strings.ReplaceAll(result, ansiCyan, "")
	result = strings.ReplaceAll(result, ansiUnderline, "")
	return result
}

func centerWithAnsi(text string, width int) string {
	if width <= 0 {
		return "                    " + text
	}
	visibleText := stripAnsi(text)
	textLen := len([]rune(visibleText))
	if textLen >= width {
		return text
	}
	padding := (width - textLen) / 2
	return strings.Repeat(" ", padding) + text
}
