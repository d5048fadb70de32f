package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/dotrep/payment-gateway/internal/api"
	"github.com/dotrep/payment-gateway/internal/billing"
	"github.com/dotrep/payment-gateway/internal/challenge"
	"github.com/dotrep/payment-gateway/internal/config"
	"github.com/dotrep/payment-gateway/internal/evidence"
	"github.com/dotrep/payment-gateway/internal/handlers"
	"github.com/dotrep/payment-gateway/internal/interfaces"
	"github.com/dotrep/payment-gateway/internal/models"
	"github.com/dotrep/payment-gateway/internal/proof"
	"github.com/dotrep/payment-gateway/internal/replay"
	"github.com/dotrep/payment-gateway/internal/repository"
	"github.com/dotrep/payment-gateway/internal/reputation"
	"github.com/dotrep/payment-gateway/internal/retry"
	"github.com/dotrep/payment-gateway/internal/service"
	"github.com/dotrep/payment-gateway/internal/settlement"
	"github.com/dotrep/payment-gateway/internal/store"
	"github.com/dotrep/payment-gateway/internal/telemetry"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize telemetry
	if err := telemetry.InitTelemetry("payment-gateway"); err != nil {
		panic(fmt.Sprintf("Failed to initialize telemetry: %v", err))
	}
	defer telemetry.Shutdown(context.Background())

	telemetry.Logger.Info("Starting Payment Gateway")

	retryOpts := retry.Options{
		MaxAttempts: cfg.RetryAttempts,
		BaseDelay:   cfg.BackoffBase,
	}

	// Challenge and replay stores: Redis when configured, in-memory otherwise
	var challengeStore interfaces.ChallengeStore
	var replayStore interfaces.ReplayStore
	if cfg.RedisURL != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisURL})
		challengeStore = store.NewRedisChallengeStore(redisClient)
		replayStore = store.NewRedisReplayStore(redisClient)
	} else {
		challengeStore = store.NewMemoryChallengeStore()
		replayStore = store.NewMemoryReplayStore()
	}

	challenges := challenge.NewRegistry(challengeStore, cfg.ChallengeExpiry)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	challenges.StartSweeper(sweepCtx, time.Minute)

	replays := replay.NewLedger(replayStore)

	// Settlement providers and ledger
	providers := settlement.NewProviderRegistry()
	if cfg.FacilitatorURL != "" {
		providers.Register(settlement.NewFacilitatorProvider(
			"facilitator", cfg.FacilitatorURL,
			[]string{"ethereum", "base", "polygon", "solana"},
			cfg.ProviderTimeout, retryOpts,
		))
	}
	ledger := settlement.NewEthLedger(cfg.LedgerRPCURLs)
	verifier := settlement.NewVerifier(providers, ledger, cfg.ConfirmationBlocks, cfg.FormatOnlyFallback, retryOpts)

	// Connect to NATS for reputation store queries
	nc, err := nats.Connect(cfg.NatsURL)
	if err != nil {
		telemetry.Logger.Fatal("Failed to connect to NATS", zap.Error(err))
	}
	defer nc.Close()

	gate := reputation.NewGate(reputation.NewNatsClient(nc), cfg.ReputationTimeout, cfg.FailOpen)

	// Connect to Kafka for evidence publication
	kafkaWriter := &kafka.Writer{
		Addr:     kafka.TCP(cfg.KafkaBrokers),
		Topic:    cfg.EvidenceTopic,
		Balancer: &kafka.LeastBytes{},
	}
	defer kafkaWriter.Close()
	publisher := evidence.NewKafkaPublisher(kafkaWriter, retryOpts)

	orchestrator := service.NewOrchestrator(
		challenges, proof.NewValidator(), verifier, replays, gate, publisher,
	)

	// Billing sessions: PostgreSQL when configured, in-memory otherwise
	var sessionStore interfaces.SessionStore
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			telemetry.Logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		repo := repository.NewBillingSessionRepository(db)
		if err := repo.InitDB(); err != nil {
			telemetry.Logger.Fatal("Failed to initialize database", zap.Error(err))
		}
		sessionStore = repo
	} else {
		sessionStore = store.NewMemorySessionStore()
	}

	billingPolicy := models.PaymentPolicy{
		Currency:        "USDC",
		Recipient:       os.Getenv("BILLING_RECIPIENT"),
		SupportedChains: []string{"base", "ethereum"},
		ProviderHint:    cfg.FacilitatorURL,
	}
	aggregator, err := billing.NewAggregator(
		sessionStore, challenges, billingPolicy,
		cfg.MaxCallsPerSession, cfg.BillingInterval, cfg.MinBillingAmount, cfg.SessionExpiry,
	)
	if err != nil {
		telemetry.Logger.Fatal("Failed to initialize billing", zap.Error(err))
	}

	// Protected resources
	premiumPolicy := models.PaymentPolicy{
		Resource:                "/api/premium",
		Amount:                  os.Getenv("PREMIUM_PRICE"),
		Currency:                "USDC",
		Recipient:               os.Getenv("BILLING_RECIPIENT"),
		SupportedChains:         []string{"base", "ethereum", "polygon", "solana"},
		ProviderHint:            cfg.FacilitatorURL,
		MinReputationScore:      cfg.MinReputationScore,
		MinPaymentCount:         cfg.MinPaymentCount,
		MinTotalValue:           cfg.MinTotalValue,
		RequireVerifiedIdentity: cfg.RequireVerifiedIdentity,
		BlockSybil:              cfg.BlockSybil,
		MinRecipientTrust:       cfg.MinRecipientTrust,
	}
	if premiumPolicy.Amount == "" {
		premiumPolicy.Amount = "0.10"
	}

	resources := []api.ProtectedResource{
		{
			Method: http.MethodGet,
			Path:   "/api/premium",
			Policy: premiumPolicy,
			Handler: func(c *gin.Context) {
				c.JSON(http.StatusOK, gin.H{
					"data":            "premium resource payload",
					"paymentEvidence": handlers.EvidenceFromContext(c),
				})
			},
		},
	}

	gatewayHandler := handlers.NewGatewayHandler(orchestrator, cfg.FacilitatorURL)
	billingHandler := handlers.NewBillingHandler(aggregator)
	r := api.NewRouter(gatewayHandler, billingHandler, resources)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	go func() {
		telemetry.Logger.Info("Payment Gateway starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			telemetry.Logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	telemetry.Logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		telemetry.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	telemetry.Logger.Info("Server exited")
}
