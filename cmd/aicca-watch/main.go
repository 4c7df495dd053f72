package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"aicca-realtime/internal/config"
	"aicca-realtime/pkg/events"
	pktNats "aicca-realtime/pkg/nats"

	"github.com/fatih/color"
)

func main() {
	sessionID := flag.String("session", "", "session id to follow (empty follows every session)")
	durable := flag.String("durable", "", "durable consumer name; empty only shows new events")
	flag.Parse()

	cfg := config.Load()
	if cfg.App.NatsURL == "" {
		log.Fatal("NATS_URL is not set")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sub, err := pktNats.NewSubscriber(cfg.App.NatsURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer sub.Close()

	filter := pktNats.SessionSubjects(*sessionID)
	err = sub.Subscribe(ctx, filter, *durable, func(ctx context.Context, event events.Event) error {
		line, ok := formatEvent(event)
		if !ok {
			color.Yellow("skipping %s", event.EventType())
			return nil
		}
		color.Cyan("%s %s", event.Timestamp().Format("15:04:05.000"), line)
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to subscribe: %v", err)
	}

	color.Green("Watching %s", filter)
	<-ctx.Done()
}
