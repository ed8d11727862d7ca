package main

import (
	"context"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"botfactory/internal/config"
	"botfactory/internal/infrastructure"
	"botfactory/internal/interfaces/http"
	"botfactory/internal/repository"
	"botfactory/internal/usecases"
	"botfactory/pkg/logger"
)

func main() {
	// .env is optional; real deployments inject the environment directly
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic("Invalid configuration: " + err.Error())
	}

	log := logger.NewLogger(cfg.Env)
	defer log.Sync()

	// Connect to PostgreSQL (runs migrations on startup)
	pgClient, err := infrastructure.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("Failed to connect to database", err)
	}
	defer pgClient.Close()

	// Initialize Repositories
	userRepo := repository.NewUserRepository(pgClient.Pool)
	subRepo := repository.NewSubscriptionRepository(pgClient.Pool)
	botRepo := repository.NewBotRepository(pgClient.Pool)
	knowledgeRepo := repository.NewKnowledgeRepository(pgClient.Pool)
	convRepo := repository.NewConversationRepository(pgClient.Pool)
	broadcastRepo := repository.NewBroadcastRepository(pgClient.Pool)

	// Initialize Usecases & Services
	ledger := usecases.NewSubscriptionLedger(subRepo, botRepo)
	authUsecase := usecases.NewAuthUsecase(userRepo, ledger, cfg.JWTSecret)

	// Ensure Admin User
	adminUser := getenvDefault("ADMIN_USERNAME", "admin")
	adminPass := getenvDefault("ADMIN_PASSWORD", "admin")
	if err := authUsecase.EnsureAdmin(context.Background(), adminUser, adminPass); err != nil {
		log.Warnf("Failed to ensure admin user: %v", err)
	}

	aiClient := infrastructure.NewOpenAIClient(cfg.AIAPIKey, cfg.AIBaseURL, cfg.AIModel, cfg.AIMaxTokens)
	responder := usecases.NewResponder(botRepo, userRepo, knowledgeRepo, convRepo, ledger, aiClient, log, cfg.MaxContextLength, cfg.HistoryWindow)

	dialer := infrastructure.NewTelegramDialer()
	limiter := infrastructure.NewMessageRateLimiter(1, 5)

	runtime := infrastructure.NewBotRuntime(dialer, responder, limiter, log, cfg.AITimeout+10*time.Second)
	registry := usecases.NewBotRegistry(botRepo, ledger, dialer, runtime)
	broadcaster := usecases.NewBroadcaster(broadcastRepo, subRepo, botRepo, convRepo, runtime, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Supervisor resumes active bots at startup, restarts crashed loops
	// and enforces subscription expiry
	supervisor := infrastructure.NewSupervisor(runtime, botRepo, ledger, log)
	go supervisor.Run(ctx)

	// Setup HTTP server
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	authMiddleware := http.NewMiddleware(cfg.JWTSecret)
	http.SetupRoutes(r, authUsecase, registry, ledger, responder, broadcaster, runtime, knowledgeRepo, convRepo, userRepo, botRepo, authMiddleware, cfg.MaxKnowledgeSize)

	srv := &nethttp.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	go func() {
		log.Infof("HTTP server listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
			log.Fatal("HTTP server failed", err)
		}
	}()

	<-ctx.Done()
	log.Infof("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("HTTP shutdown failed", err)
	}

	// Let in-flight bot events drain before closing the database pool
	runtime.StopAll()
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
