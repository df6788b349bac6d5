// eventtail follows the auth server's live event feed and prints each event
// as one line, reconnecting across connection drops.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/openclave/reclaim/internal/recovery/events"
	"github.com/openclave/reclaim/pkg/recoverysdk"
)

func main() {
	serverURL := envOr("RECLAIM_SERVER_URL", "http://localhost:8080")
	level := recoverysdk.ParseEventLevel(os.Getenv("RECLAIM_EVENTS_LEVEL"))

	latest := 0
	if raw := os.Getenv("RECLAIM_EVENTS_LATEST"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			log.Fatalf("invalid RECLAIM_EVENTS_LATEST: %v", err)
		}
		latest = n
	}

	tailer := events.NewTailer(
		recoverysdk.NewClient(serverURL),
		recoverysdk.StreamParams{
			Latest:      latest,
			Level:       level,
			BearerToken: os.Getenv("RECLAIM_EVENTS_TOKEN"),
		},
		level,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := tailer.Run(ctx, func(ev recoverysdk.Event) {
		ts := time.UnixMilli(ev.Timestamp).Format(time.RFC3339)
		fmt.Printf("%s %-8s %-24s %s %s\n", ts, ev.Level, ev.Type, ev.IP, ev.Text)
	})
	if err != nil && ctx.Err() == nil {
		log.Fatalf("event stream error: %v", err)
	}
}

func envOr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
