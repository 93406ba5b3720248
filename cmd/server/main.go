package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coursechat/go-rag/internal/config"
	"github.com/coursechat/go-rag/internal/httpapi"
	"github.com/coursechat/go-rag/internal/rag"
)

func main() {
	// Basic env check (SDK also reads API key)
	if os.Getenv("ANTHROPIC_API_KEY") == "" {
		fmt.Println("Missing ANTHROPIC_API_KEY; export it before running.")
		os.Exit(1)
	}

	cfgPath := os.Getenv("RAG_CONFIG")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	sys, err := rag.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	defer sys.Close()

	if err := sys.Sessions.Load(cfg.SessionsPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load sessions: %v\n", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := os.Stat(cfg.DocsDir); err == nil {
		courses, chunks, err := sys.IngestFolder(ctx, cfg.DocsDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: ingest %s: %v\n", cfg.DocsDir, err)
			os.Exit(1)
		}
		fmt.Printf("Loaded %d new courses (%d chunks) from %s\n", courses, chunks, cfg.DocsDir)
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.NewMux(sys),
	}

	// Graceful shutdown on Ctrl-C (SIGINT) / SIGTERM
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigch
		fmt.Println("\nShutting down...")
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		_ = srv.Shutdown(shutdownCtx)
		cancel()
	}()

	fmt.Printf("Course assistant listening on %s\n", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if err := sys.Sessions.Save(cfg.SessionsPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to save sessions: %v\n", err)
	}
}
