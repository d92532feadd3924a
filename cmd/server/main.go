package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ignite/outreach/internal/api"
	"github.com/ignite/outreach/internal/config"
	"github.com/ignite/outreach/internal/contact"
	"github.com/ignite/outreach/internal/dispatch"
	"github.com/ignite/outreach/internal/event"
	"github.com/ignite/outreach/internal/pkg/logger"
	"github.com/ignite/outreach/internal/progress"
	"github.com/ignite/outreach/internal/resend"
	"github.com/ignite/outreach/internal/sender"
	"github.com/ignite/outreach/internal/ses"
	"github.com/ignite/outreach/internal/template"
	"github.com/ignite/outreach/internal/webhook"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"
)

// checkPortAvailable verifies that the target port is not already in use.
// This prevents confusion from stale processes occupying the port.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v\n"+
			"  Hint: Run 'lsof -i :%d' to find the blocking process", port, addr, err, port)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	slash := strings.Index(rest, "/")
	if slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	if cfg.Log.RedactPII != nil {
		logger.SetRedactPII(*cfg.Log.RedactPII)
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}
	log.Printf("Pre-flight check passed: port %d is available", port)

	if cfg.Database.URL == "" {
		log.Fatal("database url is required (config database.url or DATABASE_URL)")
	}
	dbURL := cfg.Database.URL
	if !strings.Contains(dbURL, "connect_timeout") {
		sep := "?"
		if strings.Contains(dbURL, "?") {
			sep = "&"
		}
		dbURL += sep + "connect_timeout=5"
	}
	log.Printf("DB URL host portion: ...@%s/...", extractHost(dbURL))

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		log.Printf("Warning: database ping failed: %v — starting anyway", err)
	} else {
		log.Println("Connected to database")
	}
	pingCancel()

	// Redis is optional. Without it the rate limiter and progress hub
	// fall back to in-process implementations.
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			redisClient = redis.NewClient(&redis.Options{Addr: cfg.Redis.URL})
		} else {
			redisClient = redis.NewClient(opts)
		}
		pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v — using in-process fallbacks", cfg.Redis.URL, err)
			redisClient.Close()
			redisClient = nil
		} else {
			log.Printf("Redis connected: %s", cfg.Redis.URL)
		}
		pingCancel()
	} else {
		log.Println("Redis not configured — using in-process rate limiting and local progress fan-out")
	}

	contacts := contact.NewStore(db)
	senders := sender.NewStore(db)
	templates := template.NewStore(db)
	events := event.NewStore(db)
	sessions := dispatch.NewSessionStore(db)
	renderer := template.NewRenderer()
	importer := contact.NewImporter(contacts, redisClient)

	hub := progress.NewHub(redisClient)
	hub.Start(ctx)

	limiter := dispatch.NewRateLimiter(redisClient, int(cfg.Dispatch.MessagesPerSecond))

	transports := map[string]dispatch.Transport{
		sender.TransportResend: resend.NewClient(cfg.Resend.BaseURL, "", cfg.Resend.Timeout()),
	}
	if cfg.SES.Enabled {
		transports[sender.TransportSES] = ses.NewSender(cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region)
		log.Printf("SES transport enabled (region: %s)", cfg.SES.Region)
	}

	engine := dispatch.NewEngine(
		contacts, senders, events, templates, sessions,
		renderer, hub, limiter, transports,
		dispatch.EngineConfig{
			BatchSize:   cfg.Dispatch.BatchSize,
			BatchDelay:  cfg.Dispatch.BatchDelay(),
			SendTimeout: cfg.Dispatch.SendTimeout(),
			Environment: cfg.Server.Environment,
		},
	)
	engine.SetLockBackend(redisClient, db)

	receiver := webhook.NewReceiver(senders, events, cfg.Webhook.Tolerance())

	handlers := api.NewHandlers(db, contacts, importer, senders, templates, events, sessions, engine, hub, receiver)
	router := api.SetupRoutes(handlers)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", host, port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Starting server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	log.Println("All services initialized — server is ready")

	<-done
	log.Println("Shutting down...")

	// Stop background loops before closing the listener.
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}

	log.Println("Server stopped")
}
