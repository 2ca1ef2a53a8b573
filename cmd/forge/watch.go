package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/floegence/forge/internal/enhancer"
	"github.com/floegence/forge/internal/pipeline"
	"github.com/floegence/forge/internal/sanitizer"
	"github.com/floegence/forge/internal/watch"
)

func watchCmd(args []string) {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)

	workspace := fs.String("workspace", "", "Project directory (default: current directory)")
	style := fs.String("style", "", "Visual style preset (default: config)")
	model := fs.String("model", "", "Model alias (default: config)")
	debounceMs := fs.Int("debounce-ms", 0, "Debounce window in milliseconds (default: config)")
	pollMs := fs.Int("poll-ms", 0, "Poll interval in milliseconds (default: config)")
	dashboardPort := fs.Int("dashboard-port", 0, "Dashboard HTTP port (default: config)")

	if err := fs.Parse(args); err != nil {
		os.Exit(exitArgError)
	}
	target := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if target == "" {
		fmt.Fprintln(os.Stderr, "usage: forge watch <file-or-directory> [flags]")
		fs.PrintDefaults()
		os.Exit(exitArgError)
	}

	a, err := bootstrap(bootstrapOptions{Workspace: *workspace})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	defer a.Close()

	debounce := *debounceMs
	if debounce <= 0 {
		debounce = a.cfg.Watch.DebounceMs
	}
	poll := *pollMs
	if poll <= 0 {
		poll = a.cfg.Watch.PollIntervalMs
	}
	port := *dashboardPort
	if port <= 0 {
		port = a.cfg.Watch.DashboardPort
	}

	pipelineOpts := pipeline.Options{
		Style:       enhancer.StylePreset(strings.TrimSpace(*style)),
		Model:       strings.TrimSpace(*model),
		MaxTokens:   a.cfg.Generation.MaxTokens,
		Temperature: a.cfg.Generation.Temperature,
		Threshold:   a.cfg.Generation.Threshold,
		Patience:    a.cfg.Generation.Patience,
		Persist:     true,
	}
	if pipelineOpts.Style == "" {
		pipelineOpts.Style = enhancer.StylePreset(a.cfg.Generation.Style)
	}
	if a.cfg.Security.Sanitize {
		pipelineOpts.Sanitize = &sanitizer.Options{StripScripts: true}
	}

	w, err := watch.New(watch.Options{
		Target:          target,
		DebounceMs:      debounce,
		PollIntervalMs:  poll,
		Pipeline:        a.pipeline,
		PipelineOptions: pipelineOpts,
		Progress:        a.progress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init watcher: %v\n", err)
		os.Exit(exitArgError)
	}

	dashboard := watch.NewServer(w, port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	go func() {
		if err := dashboard.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "dashboard server error: %v\n", err)
		}
	}()

	printWelcomeBanner(os.Stderr, welcomeBannerOptions{
		Version:  Version,
		WatchURL: fmt.Sprintf("http://localhost:%d/", port),
	})

	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		fmt.Fprintf(os.Stderr, "watch exited with error: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
}
