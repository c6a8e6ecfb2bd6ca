/**
 * @description
 * This is the main entry point for the facepay-service. It loads configuration, builds the
 * key envelopes, connects PostgreSQL, Redis and RabbitMQ, wires the core application
 * service, starts the ledger auditor and the repudiation consumer, and serves HTTP.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver.
 * - github.com/redis/go-redis/v9: verification rate limiting.
 * - github.com/joho/godotenv: For loading .env files during local development.
 * - internal/api, internal/app, internal/config, internal/store: Internal packages for the service.
 * - pkg/envelope, pkg/embeddingclient, pkg/similarity, pkg/rabbitmq.
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
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/transfa/facepay-service/internal/api"
	"github.com/transfa/facepay-service/internal/app"
	"github.com/transfa/facepay-service/internal/config"
	"github.com/transfa/facepay-service/internal/domain"
	"github.com/transfa/facepay-service/internal/ledger"
	"github.com/transfa/facepay-service/internal/store"
	"github.com/transfa/facepay-service/pkg/embeddingclient"
	"github.com/transfa/facepay-service/pkg/envelope"
	rmrabbit "github.com/transfa/facepay-service/pkg/rabbitmq"
	"github.com/transfa/facepay-service/pkg/similarity"
)

func main() {
	// Load .env file for local development.
	if err := godotenv.Load(); err != nil {
		log.Println("level=info component=bootstrap msg=\"no .env file found, using environment variables\"")
	}

	cfg, err := config.LoadConfig(".")
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"config load failed\" err=%v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"invalid configuration\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"starting facepay-service\" port=%s", cfg.ServerPort)

	templateCipher, err := envelope.NewSymmetricFromBase64(cfg.AESKeyBase64)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"aes key load failed\" err=%v", err)
	}
	pinCipher, err := envelope.NewAsymmetricFromBase64(cfg.RSAPrivateKeyBase64, cfg.RSAPublicKeyBase64)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"rsa key load failed\" err=%v", err)
	}
	log.Printf("level=info component=bootstrap msg=\"key envelopes ready\" rsa_bits=%d", pinCipher.KeySize()*8)

	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database url parse failed\" err=%v", err)
	}
	poolConfig.MaxConns = 50
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = 30 * time.Minute
	poolConfig.MaxConnIdleTime = 5 * time.Minute
	// Disable prepared statement caching to prevent conflicts behind poolers.
	poolConfig.ConnConfig.DefaultQueryExecMode = pgx.QueryExecModeSimpleProtocol

	dbpool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
	if err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"database connection failed\" err=%v", err)
	}
	defer dbpool.Close()
	log.Println("level=info component=bootstrap msg=\"database connected\"")

	var events rmrabbit.Publisher = &rmrabbit.EventProducerFallback{}
	rabbitProducer, err := rmrabbit.NewEventProducer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq producer unavailable; using fallback\" err=%v", err)
	} else {
		defer rabbitProducer.Close()
		events = rabbitProducer
		log.Println("level=info component=bootstrap msg=\"rabbitmq producer connected\"")
	}

	var limiter app.VerificationLimiter
	if cfg.VerifyMaxFailures <= 0 {
		log.Println("level=info component=bootstrap msg=\"verification failure limit disabled\" env=VERIFY_MAX_FAILURES")
	} else if strings.TrimSpace(cfg.RedisURL) == "" {
		log.Println("level=warn component=bootstrap msg=\"redis url missing; verification failure limit disabled\" env=REDIS_URL")
	} else if redisOptions, parseErr := redis.ParseURL(cfg.RedisURL); parseErr != nil {
		log.Printf("level=warn component=bootstrap msg=\"redis url parse failed; verification failure limit disabled\" err=%v", parseErr)
	} else {
		redisClient := redis.NewClient(redisOptions)
		pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
		pingErr := redisClient.Ping(pingCtx).Err()
		cancelPing()
		if pingErr != nil {
			log.Printf("level=warn component=bootstrap msg=\"redis ping failed; verification failure limit disabled\" err=%v", pingErr)
			redisClient.Close()
		} else {
			defer redisClient.Close()
			limiter = app.NewRedisVerificationLimiter(redisClient, cfg.RedisVerifyKeyPrefix, cfg.VerifyMaxFailures, cfg.VerifyFailureWindow())
			log.Printf("level=info component=bootstrap msg=\"redis connected\" max_failures=%d window=%s", cfg.VerifyMaxFailures, cfg.VerifyFailureWindow())
		}
	}

	repository := store.NewPostgresRepository(dbpool)
	tokens := app.NewTokenIssuer(cfg.JWTSecret, cfg.JWTTTL())

	facepayService := app.NewService(app.Dependencies{
		Repo:      repository,
		Embedder:  embeddingclient.NewClient(cfg.EmbeddingServiceURL, cfg.EmbeddingServiceAPIKey, cfg.EmbeddingDimension),
		Templates: templateCipher,
		PINs:      pinCipher,
		Scorer:    similarity.NewScorer(cfg.FaceMatchThreshold),
		Ledger:    ledger.New(),
		Notifier:  app.NewEventNotifier(events),
		Events:    events,
		Limiter:   limiter,
		Tokens:    tokens,
	}, app.Settings{
		SessionTTL:          cfg.SessionTTL(),
		DefaultFacePayLimit: cfg.FacePayDefaultLimitMinor,
		FrontendURL:         strings.TrimRight(cfg.FrontendURL, "/"),
	})

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	auditor := app.NewLedgerAuditor(facepayService, events, logger, cfg.LedgerAuditSchedule)
	if err := auditor.Start(); err != nil {
		log.Fatalf("level=fatal component=bootstrap msg=\"ledger auditor start failed\" err=%v", err)
	}

	rabbitConsumer, err := rmrabbit.NewConsumer(cfg.RabbitMQURL)
	if err != nil {
		log.Printf("level=warn component=bootstrap msg=\"rabbitmq consumer unavailable; repudiation events disabled\" err=%v", err)
	} else {
		defer rabbitConsumer.Close()
		repudiationConsumer := app.NewRepudiationConsumer(facepayService)
		bindings := map[string]func([]byte) bool{
			domain.EventRepudiationReported: repudiationConsumer.HandleMessage,
		}
		if err := rabbitConsumer.ConsumeWithBindings(rmrabbit.EventsExchange, cfg.RepudiationEventQueue, bindings); err != nil {
			log.Fatalf("level=fatal component=bootstrap msg=\"repudiation consumer start failed\" err=%v", err)
		}
	}

	router := api.NewRouter(api.NewHandlers(facepayService), tokens)

	serverAddr := fmt.Sprintf(":%s", cfg.ServerPort)
	server := &http.Server{
		Addr:              serverAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Printf("level=info component=http msg=\"server listening\" addr=%s", serverAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("level=fatal component=http msg=\"server stopped unexpectedly\" err=%v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("level=info component=http msg=\"shutdown started\"")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("level=error component=http msg=\"shutdown failed\" err=%v", err)
	}
	<-auditor.Stop().Done()

	log.Println("level=info component=http msg=\"shutdown complete\"")
}
