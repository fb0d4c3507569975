package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NeuralTrust/TrustShield/pkg/app/admission"
	"github.com/NeuralTrust/TrustShield/pkg/app/detector"
	"github.com/NeuralTrust/TrustShield/pkg/app/ratelimit"
	"github.com/NeuralTrust/TrustShield/pkg/app/ruleengine"
	"github.com/NeuralTrust/TrustShield/pkg/config"
	handlers "github.com/NeuralTrust/TrustShield/pkg/handlers/http"
	"github.com/NeuralTrust/TrustShield/pkg/infra/counter"
	infraLogger "github.com/NeuralTrust/TrustShield/pkg/infra/logger"
	"github.com/NeuralTrust/TrustShield/pkg/infra/notifier"
	"github.com/NeuralTrust/TrustShield/pkg/infra/reputation"
	"github.com/NeuralTrust/TrustShield/pkg/server"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("no .env file found, using system environment variables")
	}

	logger := infraLogger.NewLogger()

	// Load configuration
	if err := config.Load("./config"); err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	cfg := config.GetConfig()

	store, err := counter.NewRedisStore(counter.Config{
		Host:     cfg.Redis.Host,
		Port:     cfg.Redis.Port,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
		TLS:      cfg.Redis.TLS,
	}, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize counter store: %v", err)
	}
	defer store.Close()

	var reputationChecker reputation.Checker
	if cfg.Reputation.URL != "" {
		reputationChecker = reputation.NewHTTPChecker(cfg.Reputation.URL, cfg.Reputation.Timeout(), logger)
	} else {
		reputationChecker = reputation.NewStaticChecker(reputation.NeutralScore)
	}

	actionNotifier := notifier.NewLogNotifier(logger, cfg.Notifier.EventsPerSecond)

	// application services
	limiter := ratelimit.NewLimiter(store, ratelimit.Config{
		Limit:     cfg.RateLimit.Limit,
		BurstSize: cfg.RateLimit.BurstSize,
		Window:    cfg.RateLimit.Window(),
	}, logger)

	attackDetector := detector.NewDetector(store, detector.Config{
		ConnectionRateThreshold: cfg.Detection.ConnectionRateThreshold,
		ConnectionRateWindow:    seconds(cfg.Detection.ConnectionRateWindowSeconds),
		RequestRateThreshold:    cfg.Detection.RequestRateThreshold,
		RequestRateWindow:       seconds(cfg.Detection.RequestRateWindowSeconds),
		TrafficVolumeThreshold:  cfg.Detection.TrafficVolumeThresholdBytes,
		TrafficVolumeWindow:     seconds(cfg.Detection.TrafficVolumeWindowSeconds),
		AnomalyThreshold:        cfg.Detection.AnomalyThreshold,
		AnomalyWindow:           seconds(cfg.Detection.AnomalyWindowSeconds),
	}, logger, nil)

	ruleEngine := ruleengine.NewEngine(store, reputationChecker, ruleengine.Config{
		Enabled:         cfg.RuleEngine.Enabled,
		DefaultPriority: cfg.RuleEngine.DefaultPriority,
		RulesFile:       cfg.RuleEngine.RulesFile,
		RescanInterval:  cfg.RuleEngine.RescanInterval(),
	}, logger, nil)
	if err := ruleEngine.Load(ctx); err != nil {
		// Rate limiting and detection still protect traffic without rules.
		logger.WithError(err).Error("failed to load rules, starting with an empty rule set")
	}

	admissionService := admission.NewService(
		limiter,
		attackDetector,
		ruleEngine,
		actionNotifier,
		admission.Config{FailOpen: cfg.Admission.FailOpen},
		logger,
	)

	// Handler Transport
	handlerTransport := handlers.HandlerTransport{
		// Admission
		AdmitConnectionHandler: handlers.NewAdmitConnectionHandler(logger, admissionService),
		AdmitRequestHandler:    handlers.NewAdmitRequestHandler(logger, admissionService),
		ResetIdentityHandler:   handlers.NewResetIdentityHandler(logger, admissionService),
		// Rule
		CreateRuleHandler: handlers.NewCreateRuleHandler(logger, ruleEngine),
		ListRulesHandler:  handlers.NewListRulesHandler(logger, ruleEngine),
		GetRuleHandler:    handlers.NewGetRuleHandler(logger, ruleEngine),
		UpdateRuleHandler: handlers.NewUpdateRuleHandler(logger, ruleEngine),
		DeleteRuleHandler: handlers.NewDeleteRuleHandler(logger, ruleEngine),
	}

	srv := server.NewShieldServer(server.ShieldServerDI{
		HandlerTransport: handlerTransport,
		Config:           cfg,
		Logger:           logger,
	})

	group, groupCtx := errgroup.WithContext(ctx)

	if cfg.RuleEngine.Enabled {
		group.Go(func() error {
			ruleEngine.Run(groupCtx)
			return nil
		})
	}
	group.Go(func() error {
		return srv.Run()
	})

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	<-quit
	fmt.Println("shutting down server...")
	cancel()
	if err := srv.Shutdown(); err != nil {
		fmt.Println("error shutting down server:", err)
		os.Exit(1)
	}
	if err := group.Wait(); err != nil {
		logger.WithError(err).Error("server stopped with error")
		os.Exit(1)
	}
	fmt.Println("server gracefully stopped")
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
