/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the placement engine server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, environment, then flags)
  2. Open the SQL store (SQLite or PostgreSQL) and run migrations
  3. Create the proof file store and the event publisher
  4. Wire the Lifecycle and Ledger behind the capability table
  5. Configure HTTP router and the overdue sweep scheduler
  6. Start server with graceful shutdown

COMMAND-LINE FLAGS (override environment):
  -port    HTTP server port
  -driver  Database driver: sqlite3 or postgres
  -db      Database DSN. Use ":memory:" with sqlite3 for an in-memory database
  -events  Event backend: none, log, kafka, rabbitmq

ENVIRONMENT:
  See config/config.go. JWT_SECRET is required outside development; when it
  is missing a random secret is generated and every token dies with the
  process.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the overdue scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close the event publisher and database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/placement.db"

  # Run against PostgreSQL, publishing events to Kafka
  ./server -driver=postgres -db="postgres://localhost/placement?sslmode=disable" -events=kafka

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlstore/sqlstore.go: Database implementation
*/
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/placement-engine/api"
	"github.com/warp/placement-engine/blob"
	"github.com/warp/placement-engine/config"
	"github.com/warp/placement-engine/events"
	"github.com/warp/placement-engine/placement"
	"github.com/warp/placement-engine/store/sqlstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags
	port := flag.String("port", cfg.Port, "HTTP server port")
	driver := flag.String("driver", cfg.DBDriver, "Database driver (sqlite3, postgres)")
	dsn := flag.String("db", cfg.DBDSN, "Database DSN")
	backend := flag.String("events", cfg.EventsBackend, "Event backend (none, log, kafka, rabbitmq)")
	flag.Parse()

	// Initialize store
	store, err := sqlstore.Open(*driver, *dsn)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	files, err := blob.NewLocal(cfg.UploadDir)
	if err != nil {
		log.Fatalf("Failed to initialize uploads: %v", err)
	}

	publisher, err := newPublisher(*backend, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize events: %v", err)
	}
	if c, ok := publisher.(io.Closer); ok {
		defer c.Close()
	}

	// Initialize engine
	gate := placement.DefaultCapabilities()
	lifecycle := placement.NewLifecycle(store, gate)
	lifecycle.Events = publisher
	ledger := placement.NewLedger(store, gate, files)
	ledger.Events = publisher
	ledger.ServiceFeeRate = cfg.ServiceFeeRate

	secret := cfg.JWTSecret
	if secret == "" {
		secret = randomSecret()
		log.Println("Warning: JWT_SECRET not set, using a random secret for this process")
	}

	handler := api.NewHandler(lifecycle, ledger, store)
	router := api.NewRouter(handler, api.NewAuthenticator(secret))

	var scheduler *api.OverdueScheduler
	if cfg.OverdueSweepInterval > 0 {
		scheduler = api.NewOverdueScheduler(ledger)
		scheduler.CheckInterval = cfg.OverdueSweepInterval
		scheduler.Start()
	}

	// Create server
	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%s", *port)
		log.Printf("API available at http://localhost:%s/api", *port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	if scheduler != nil {
		scheduler.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

func newPublisher(backend string, cfg *config.Config) (placement.Publisher, error) {
	switch backend {
	case config.EventsNone:
		return nil, nil
	case config.EventsLog:
		return events.LogPublisher{}, nil
	case config.EventsKafka:
		log.Printf("Publishing events to kafka %s topic %s", cfg.KafkaBroker, cfg.KafkaTopic)
		return events.NewKafkaPublisher(cfg.KafkaBroker, cfg.KafkaTopic), nil
	case config.EventsRabbitMQ:
		log.Printf("Publishing events to rabbitmq queue %s", cfg.RabbitMQQueue)
		return events.NewRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQQueue)
	}
	return nil, fmt.Errorf("unknown event backend %q", backend)
}

func randomSecret() string {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("Failed to generate JWT secret: %v", err)
	}
	return hex.EncodeToString(b)
}
