// Command replay is the operator tool for cursor rewinds. It sets both the
// local cursor and the upstream delivery position so events after the given
// id are redelivered and re-ingested idempotently.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/user/name-indexer/internal/adapter/repository/postgres"
	"github.com/user/name-indexer/internal/adapter/upstream"
	"github.com/user/name-indexer/internal/pkg/config"
	"github.com/user/name-indexer/internal/pkg/logger"
	"github.com/user/name-indexer/internal/usecase"

	_ "github.com/lib/pq" // postgres driver
)

func main() {
	eventID := flag.Int64("event-id", -1, "Event id to rewind the cursor to")
	dryRun := flag.Bool("dry-run", false, "Print the current cursor and exit")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall timeout")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load config:", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("postgres", cfg.PostgresURL)
	if err != nil {
		log.Error("failed to open postgres connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := db.PingContext(ctx); err != nil {
		log.Error("failed to connect to postgres", "error", err)
		os.Exit(1)
	}

	eventRepo := postgres.NewEventRepository(db, log)
	upstreamClient := upstream.NewClient(upstream.Config{
		BaseURL: cfg.UpstreamBaseURL,
		APIKey:  cfg.UpstreamAPIKey,
		Timeout: cfg.UpstreamTimeout,
	})
	cursorManager := usecase.NewCursorManager(eventRepo, upstreamClient, log)

	current, err := cursorManager.Last(ctx)
	if err != nil {
		log.Error("failed to read cursor", "error", err)
		os.Exit(1)
	}
	fmt.Println("current cursor:", current)

	if *dryRun {
		return
	}
	if *eventID < 0 {
		fmt.Fprintln(os.Stderr, "-event-id is required (or use -dry-run)")
		os.Exit(2)
	}

	if err := cursorManager.Reset(ctx, *eventID); err != nil {
		log.Error("cursor reset failed", "event_id", *eventID, "error", err)
		os.Exit(1)
	}

	log.Info("cursor reset", "from", current, "to", *eventID)
	fmt.Println("cursor reset to:", *eventID)
}
