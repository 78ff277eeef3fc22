// Package main wires the Operion API server: HTTP layer, engine, trigger
// gateway, and the persistence/event-bus/tracing backends selected by
// environment configuration (spec.md §6's "Environment" section).
package main

import (
	"context"
	"log/slog"
	"os"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/operion/internal/engine"
	"github.com/dukex/operion/internal/httpapi"
	"github.com/dukex/operion/internal/store"
	"github.com/dukex/operion/internal/trigger"
	"github.com/dukex/operion/pkg/channels/gochannel"
	"github.com/dukex/operion/pkg/eventbus"
	"github.com/dukex/operion/pkg/log"
	"github.com/dukex/operion/pkg/otelhelper"
)

const defaultPort = 9091

// newStore picks Postgres when DATABASE_URL is set and falls back to the
// in-memory store otherwise (spec.md §6).
func newStore(ctx context.Context, logger *slog.Logger, databaseURL string) (store.Store, error) {
	if databaseURL == "" {
		logger.InfoContext(ctx, "no DATABASE_URL set, using in-memory store")

		return store.NewMemory(), nil
	}

	return store.NewPostgres(ctx, databaseURL)
}

func port() int {
	if raw := os.Getenv("PORT"); raw != "" {
		if p, err := strconv.Atoi(raw); err == nil {
			return p
		}
	}

	return defaultPort
}

func main() {
	ctx := context.Background()

	log.Setup(os.Getenv("LOG_LEVEL"))

	logger := log.WithModule("api")
	logger.InfoContext(ctx, "initializing operion api")

	st, err := newStore(ctx, logger, os.Getenv("DATABASE_URL"))
	if err != nil {
		logger.ErrorContext(ctx, "failed to initialize store", "error", err)
		os.Exit(1)
	}

	defer func() {
		if err := st.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "failed to close store", "error", err)
		}
	}()

	pub, sub, err := gochannel.CreateChannel(watermill.NewSlogLogger(logger))
	if err != nil {
		logger.ErrorContext(ctx, "failed to initialize event bus", "error", err)
		os.Exit(1)
	}

	bus := eventbus.NewWatermillEventBus(pub, sub)
	defer func() {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "failed to close event bus", "error", err)
		}
	}()

	eng := engine.NewEngine(st, bus, logger)

	if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "" {
		tracer, err := otelhelper.NewTracer(ctx, "operion-api")
		if err != nil {
			logger.WarnContext(ctx, "failed to initialize tracer, continuing untraced", "error", err)
		} else {
			eng = eng.WithTracer(tracer)
		}
	}

	gateway := trigger.NewGateway(st, eng, logger)
	server := httpapi.NewServer(st, eng, gateway, logger)

	if err := server.Start(port()); err != nil {
		logger.ErrorContext(ctx, "api server exited", "error", err)
	}
}
