/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the gold ledger server. Handles configuration,
  dependency wiring, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and parse environment configuration
  2. Parse command-line flags (flags override environment)
  3. Open the configured store (sqlite, postgres, or memory)
  4. Wire the ledger service, modifier pipeline, and notifier
  5. Start the HTTP server with graceful shutdown

CONFIGURATION:
  GOLD_PORT       HTTP port (default 8080)
  GOLD_STORE      sqlite | postgres | memory (default sqlite)
  GOLD_SQLITE     SQLite path (default gold.db, ":memory:" supported)
  GOLD_PG_DSN     PostgreSQL DSN (required when GOLD_STORE=postgres)
  GOLD_KAFKA      Comma-separated broker list (empty = log notifier)
  GOLD_KAFKA_TOPIC  Topic for currency-earned events

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM: stop accepting connections, drain for 30s, close
  the store, exit.

EXAMPLES:
  ./server -port=3000 -store=sqlite -sqlite=./data/gold.db
  GOLD_STORE=postgres GOLD_PG_DSN=postgres://... ./server
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/stormhold/gold-engine/api"
	"github.com/stormhold/gold-engine/events"
	"github.com/stormhold/gold-engine/events/kafka"
	"github.com/stormhold/gold-engine/ledger"
	"github.com/stormhold/gold-engine/modifier"
	"github.com/stormhold/gold-engine/store/memory"
	"github.com/stormhold/gold-engine/store/postgres"
	"github.com/stormhold/gold-engine/store/sqlite"
)

type Config struct {
	Port         int      `env:"GOLD_PORT" envDefault:"8080"`
	Store        string   `env:"GOLD_STORE" envDefault:"sqlite"`
	SQLitePath   string   `env:"GOLD_SQLITE" envDefault:"gold.db"`
	PostgresDSN  string   `env:"GOLD_PG_DSN"`
	KafkaBrokers []string `env:"GOLD_KAFKA" envSeparator:","`
	KafkaTopic   string   `env:"GOLD_KAFKA_TOPIC"`
}

func main() {
	// .env is optional; absence is not an error.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse environment: %v", err)
	}

	// Flags override environment.
	flag.IntVar(&cfg.Port, "port", cfg.Port, "HTTP server port")
	flag.StringVar(&cfg.Store, "store", cfg.Store, "Store backend: sqlite, postgres, memory")
	flag.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "SQLite database path")
	flag.StringVar(&cfg.PostgresDSN, "pg-dsn", cfg.PostgresDSN, "PostgreSQL DSN")
	flag.Parse()

	store, closer, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Failed to open store: %v", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	svc := ledger.NewService(store)
	if provider, ok := store.(modifier.Provider); ok {
		svc.Modifier = modifier.NewPipeline(provider)
	}
	svc.Notifier = buildNotifier(cfg)

	handler := api.NewHandler(svc)
	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Gold ledger listening on http://localhost:%d (store=%s)", cfg.Port, cfg.Store)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func openStore(cfg Config) (ledger.Store, io.Closer, error) {
	switch cfg.Store {
	case "sqlite":
		s, err := sqlite.New(cfg.SQLitePath)
		return s, s, err
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, nil, fmt.Errorf("GOLD_PG_DSN is required for the postgres store")
		}
		s, err := postgres.New(cfg.PostgresDSN)
		return s, s, err
	case "memory":
		return memory.New(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}

func buildNotifier(cfg Config) ledger.Notifier {
	if len(cfg.KafkaBrokers) == 0 {
		return &events.LogNotifier{}
	}
	log.Printf("Publishing currency events to kafka (brokers=%v)", cfg.KafkaBrokers)
	return kafka.NewNotifier(cfg.KafkaBrokers, cfg.KafkaTopic)
}
