/**
 * @description
 * This is the main entry point for the wallet bot service. It is responsible
 * for initializing all components: configuration, database connection, the
 * ticket and session stores, external API clients (chat transport and payment
 * rail), the message broker, the core application service, the cron sweeper,
 * and the webhook HTTP server. It wires everything together and starts the
 * service.
 *
 * @dependencies
 * - log, net/http: Standard Go libraries for logging and HTTP server functionality.
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - internal/api, internal/app, internal/bot, internal/config, internal/store: Internal packages.
 * - pkg/chatclient, pkg/railclient, pkg/rabbitmq: External service clients.
 */

package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/stablepay/walletbot/internal/api"
	"github.com/stablepay/walletbot/internal/app"
	"github.com/stablepay/walletbot/internal/bot"
	"github.com/stablepay/walletbot/internal/config"
	"github.com/stablepay/walletbot/internal/store"
	"github.com/stablepay/walletbot/pkg/chatclient"
	"github.com/stablepay/walletbot/pkg/rabbitmq"
	"github.com/stablepay/walletbot/pkg/railclient"
)

func main() {
	// Load application configuration from environment variables.
	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if strings.TrimSpace(cfg.BotToken) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"bot token must be configured\" env=BOT_TOKEN")
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		log.Fatalf("level=fatal component=bootstrap msg=\"webhook secret must be configured\" env=WEBHOOK_SECRET")
	}

	log.Printf("level=info component=bootstrap msg=\"starting walletbot\" port=%s", cfg.ServerPort)

	// Establish a connection pool to the PostgreSQL database.
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	// Disable prepared statement caching to prevent conflicts
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	// Initialize the RabbitMQ producer for mirrored-notice events. Broker
	// trouble degrades to the no-op fallback; payments do not depend on it.
	var producer rabbitmq.Publisher
	eventProducer, err := rabbitmq.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
		producer = &rabbitmq.EventProducerFallback{}
	} else {
		defer eventProducer.Close()
		producer = eventProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	// Initialize the external service clients.
	railClient := railclient.NewClient(cfg.RailAPIBaseURL, cfg.RailAPIKey)
	chatClient := chatclient.NewClient(cfg.ChatAPIBaseURL, cfg.BotToken)

	// The ticket store backs at-most-once confirmation; Redis when configured,
	// otherwise process-local memory (tickets are short-lived by design).
	var tickets store.TicketStore
	if cfg.RedisURL != "" {
		redisOptions, parseErr := redis.ParseURL(cfg.RedisURL)
		if parseErr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"redis url parse failed\" err=%v", parseErr)
		}
		redisClient := redis.NewClient(redisOptions)
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelPing()
		if pingErr := redisClient.Ping(pingCtx).Err(); pingErr != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"redis ping failed\" err=%v", pingErr)
		}
		defer redisClient.Close()
		tickets = store.NewRedisTicketStore(redisClient, cfg.TicketStorePrefix)
		log.Println("level=info component=bootstrap msg=\"redis ticket store connected\"")
	} else {
		tickets = store.NewMemoryTicketStore()
		log.Println("level=info component=bootstrap msg=\"using in-memory ticket store\"")
	}

	// Initialize the data access layer and the core application service.
	repository := store.NewPostgresRepository(dbpool)
	sessions := store.NewMemorySessionStore()
	service := app.NewService(
		repository,
		tickets,
		sessions,
		railClient,
		chatClient,
		producer,
		time.Duration(cfg.TicketTTLMinutes)*time.Minute,
	)

	// Start the expiry sweeper for stale tickets and payment requests.
	slogger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	sweeper := app.NewSweeper(repository, tickets, slogger, cfg.SweepSchedule)
	sweeper.Start()

	// Wire up the notifier: it consumes settlement and decline events and
	// delivers the mirrored chat notices.
	rabbitConsumer, err := rabbitmq.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; mirrored notices disabled\" err=%v", err)
	} else {
		notifier := app.NewNotifier(chatClient, rabbitConsumer, cfg.NotifierQueue)
		if err := notifier.Start(); err != nil {
			log.Printf("level=warn component=bootstrap msg=\"notifier start failed; mirrored notices disabled\" err=%v", err)
		}
		defer notifier.Close()
	}

	// Initialize the bot dispatcher and the webhook HTTP layer.
	dispatcher := bot.NewDispatcher(service, chatClient, app.RegexIntentResolver{}, cfg.DeepLinkBaseURL, cfg.HistoryLimit)
	handlers := api.NewWebhookHandlers(dispatcher)
	router := api.WebhookRoutes(handlers, cfg.WebhookSecret)

	// Register the webhook with the chat platform when a public URL is set.
	if cfg.WebhookPublicURL != "" {
		setCtx, cancelSet := context.WithTimeout(context.Background(), 10*time.Second)
		if err := chatClient.SetWebhook(setCtx, cfg.WebhookPublicURL+"/webhook", cfg.WebhookSecret); err != nil {
			log.Printf("level=warn component=bootstrap msg=\"webhook registration failed\" err=%v", err)
		} else {
			log.Printf("level=info component=bootstrap msg=\"webhook registered\" url=%s", cfg.WebhookPublicURL+"/webhook")
		}
		cancelSet()
	}

	// Start the HTTP server.
	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)

	server := &http.Server{
		Addr:    serverAddr,
		Handler: router,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	stopCtx := sweeper.Stop()
	<-stopCtx.Done()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
