package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/kshitij406/VendingMachine/internal/auth"
	"github.com/kshitij406/VendingMachine/internal/chart"
	"github.com/kshitij406/VendingMachine/internal/currency"
	"github.com/kshitij406/VendingMachine/internal/inventory"
	"github.com/kshitij406/VendingMachine/internal/publisher"
	"github.com/kshitij406/VendingMachine/internal/repository"
	"github.com/kshitij406/VendingMachine/internal/server"
	"github.com/kshitij406/VendingMachine/internal/session"
	"github.com/kshitij406/VendingMachine/internal/web"
)

func main() {
	// Configuration
	listenAddr := getEnv("VEND_LISTEN_ADDR", "127.0.0.1:5556")
	dbPath := getEnv("VEND_DB_PATH", "vending.db")
	migrationsPath := getEnv("VEND_MIGRATIONS_PATH", "migrations")
	users := getEnv("VEND_USERS", "admin:admin123,alice:password")
	redisAddr := getEnv("REDIS_ADDR", "")
	kafkaBrokers := getEnv("KAFKA_BROKERS", "")
	debugAddr := getEnv("DEBUG_HTTP_ADDR", "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Catalog store
	repo, err := repository.NewRepository(dbPath)
	if err != nil {
		log.Fatalf("Failed to open catalog store: %v", err)
	}
	defer repo.Close()

	if err := repo.RunMigrations(migrationsPath); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}
	log.Printf("Catalog store ready at %s", dbPath)

	// Shared inventory snapshot
	snapshot := inventory.NewSnapshot(repo)
	if err := snapshot.Refresh(ctx); err != nil {
		log.Fatalf("Failed to load inventory: %v", err)
	}
	log.Printf("Loaded %d products", len(snapshot.List()))

	// Currency rates, optionally cached in Redis
	var rates currency.RateProvider = currency.NewStatic()
	if redisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: redisAddr})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Printf("Redis ping failed, rate caching disabled: %v", err)
		} else {
			rates = currency.NewCachedProvider(redisClient, rates)
			log.Printf("Currency rate cache on %s", redisAddr)
		}
	}

	// Purchase event publisher
	var pub publisher.Publisher = publisher.Nop{}
	if kafkaBrokers != "" {
		kafkaPub := publisher.NewKafka(strings.Split(kafkaBrokers, ",")...)
		defer kafkaPub.Close()
		pub = kafkaPub
		log.Printf("Publishing purchase events to %s", kafkaBrokers)
	}

	srv := server.New(listenAddr, session.Deps{
		Store:     repo,
		Inventory: snapshot,
		Auth:      auth.NewStatic(auth.ParseCredentials(users)),
		Rates:     rates,
		Charts:    chart.NewSalesChart(repo),
		Publisher: pub,
	})

	if err := srv.Listen(); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}

	// Optional debug/status endpoint
	if debugAddr != "" {
		router := web.NewRouter(snapshot, srv.ActiveSessions)
		go func() {
			log.Printf("Debug HTTP listening on %s", debugAddr)
			if err := http.ListenAndServe(debugAddr, router); err != nil {
				log.Printf("Debug HTTP server stopped: %v", err)
			}
		}()
	}

	go func() {
		if err := srv.Serve(ctx); err != nil {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down vending machine server...")
	cancel()
	srv.Shutdown()
	log.Println("Server stopped")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
