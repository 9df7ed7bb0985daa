package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/chat-relay/backend/internal/chat"
	"github.com/chat-relay/backend/internal/config"
	"github.com/chat-relay/backend/internal/mock"
	"github.com/chat-relay/backend/internal/stats"
	"github.com/chat-relay/backend/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	mockMode := flag.Bool("mock", false, "Run scripted mock participants")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	closeLog := setupLogging(cfg)
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tracker, events := stats.NewTracker()
	go tracker.Run(ctx)

	hub := chat.NewHub(cfg.Chat.InactivityTimeout, cfg.ProbeInterval(), events)
	if cfg.Chat.InactivityTimeout > 0 {
		log.Printf("inactivity timeout %s (probe %s)", cfg.Chat.InactivityTimeout, cfg.ProbeInterval())
	} else {
		log.Printf("inactivity timeout disabled")
	}

	if *mockMode {
		log.Println("Starting mock participants")
		mock.NewGenerator(hub).Start(ctx)
	}

	server := ws.NewServer(hub, tracker, cfg.ProbeInterval())
	if err := server.Run(ctx, cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatalf("Server error: %v", err)
	}
	log.Println("Server shutting down...")
}

// setupLogging routes log output to the configured file, echoed to
// stdout outside production. Returns a close func for the file.
func setupLogging(cfg *config.Config) func() {
	log.SetPrefix("[CHAT] ")

	if cfg.Log.File == "" {
		return func() {}
	}

	f, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("cannot open log file %s, logging to stdout: %v", cfg.Log.File, err)
		return func() {}
	}

	if cfg.Production() {
		log.SetOutput(f)
	} else {
		log.SetOutput(io.MultiWriter(os.Stdout, f))
	}
	return func() { _ = f.Close() }
}
