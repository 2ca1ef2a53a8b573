package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/floegence/forge/internal/httpapi"
)

func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)

	workspace := fs.String("workspace", "", "Project directory (default: current directory)")
	port := fs.Int("port", 0, "Listen port (default: config)")
	rateLimit := fs.Int("rate-limit-per-min", 0, "Requests per minute per remote address (default: config)")

	if err := fs.Parse(args); err != nil {
		os.Exit(exitArgError)
	}

	a, err := bootstrap(bootstrapOptions{Workspace: *workspace})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
	defer a.Close()

	p := *port
	if p <= 0 {
		p = a.cfg.Server.Port
	}
	rl := *rateLimit
	if rl <= 0 {
		rl = a.cfg.Server.RateLimitPerMin
	}

	authToken := ""
	if envName := strings.TrimSpace(a.cfg.Server.AuthTokenEnv); envName != "" {
		authToken = strings.TrimSpace(os.Getenv(envName))
	}

	srv, err := httpapi.New(httpapi.Options{
		Logger:          a.log,
		Port:            p,
		Pipeline:        a.pipeline,
		Router:          a.router,
		History:         a.history,
		Grimoire:        a.grimoire,
		Progress:        a.progress,
		AuthToken:       authToken,
		RateLimitPerMin: rl,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init server: %v\n", err)
		os.Exit(exitGenerationFailed)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		cancel()
	}()

	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start server: %v\n", err)
		os.Exit(exitGenerationFailed)
	}

	printWelcomeBanner(os.Stderr, welcomeBannerOptions{
		Version:  Version,
		ServeURL: fmt.Sprintf("http://localhost:%d/", srv.Port()),
	})

	<-ctx.Done()
	if err := srv.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "server shutdown error: %v\n", err)
		os.Exit(exitGenerationFailed)
	}
}
