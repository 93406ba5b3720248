package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/coursechat/go-rag/internal/config"
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

	// Load prior sessions if a snapshot exists
	if err := sys.Sessions.Load(cfg.SessionsPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to load sessions: %v\n", err)
	}

	// Set up graceful shutdown on Ctrl-C (SIGINT) / SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigch)
	go func() {
		<-sigch
		fmt.Println("\nExiting...")
		cancel()
	}()

	if _, err := os.Stat(cfg.DocsDir); err == nil {
		courses, chunks, err := sys.IngestFolder(ctx, cfg.DocsDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: ingest %s: %v\n", cfg.DocsDir, err)
			os.Exit(1)
		}
		if courses > 0 {
			fmt.Printf("Loaded %d new courses (%d chunks)\n", courses, chunks)
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("Ask about your course materials (Ctrl-C to quit)")

	// stdin reader goroutine -> lines into channel
	inputCh := make(chan string)
	go func() {
		for scanner.Scan() {
			inputCh <- scanner.Text()
		}
		close(inputCh)
	}()

	var sessionID string
outer:
	for {
		fmt.Print("\u001b[94mYou\u001b[0m: ")
		var (
			query string
			ok    bool
		)
		select {
		case <-ctx.Done():
			break outer
		case query, ok = <-inputCh:
			if !ok {
				break outer
			}
		}
		if strings.TrimSpace(query) == "" {
			continue
		}

		answer, sources, sid, err := sys.Answer(ctx, query, sessionID)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		sessionID = sid

		fmt.Printf("\u001b[93mAssistant\u001b[0m: %s\n", answer)
		for _, src := range sources {
			if src.Link != "" {
				fmt.Printf("  source: %s (%s)\n", src.Label, src.Link)
			} else {
				fmt.Printf("  source: %s\n", src.Label)
			}
		}

		if err := sys.Sessions.Save(cfg.SessionsPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to save sessions: %v\n", err)
		}
	}
	if err := scanner.Err(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: stdin read error: %v\n", err)
	}
}
