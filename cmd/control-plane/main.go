package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/influai/control-plane/internal/api"
	"github.com/influai/control-plane/internal/automation"
	"github.com/influai/control-plane/internal/config"
	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/influencer"
	"github.com/influai/control-plane/internal/llm"
	"github.com/influai/control-plane/internal/logging"
	"github.com/influai/control-plane/internal/negotiation"
	"github.com/influai/control-plane/internal/store"
	"github.com/influai/control-plane/internal/store/memory"
	"github.com/influai/control-plane/internal/store/redisstore"
	"github.com/influai/control-plane/internal/voice"
	"github.com/influai/control-plane/internal/workflows"
)

type server interface {
	Start(ctx context.Context, addr string) error
}

var (
	loadConfig   = config.Load
	newLogger    = logging.New
	newProvider  = llm.NewProvider
	connectRedis = redisstore.Connect
	dialTemporal = client.Dial

	newWorkflowService = func(c client.Client, taskQueue string) api.WorkflowService {
		return workflows.NewService(c, taskQueue)
	}
	newServer = func(st store.Store, broker *events.Broker, wf api.WorkflowService, cfg config.Config, opts ...api.Option) server {
		return api.NewServer(st, broker, wf, cfg, opts...)
	}
	notifyContext = signal.NotifyContext
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := notifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := newProvider(ctx, llmConfig(cfg, cfg.LLMModel))
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}
	searcher, err := influencer.NewClient(cfg.InfluencerAPIURL, &http.Client{Timeout: cfg.SearchTimeout})
	if err != nil {
		return err
	}
	driver := automation.NewDriver(provider, searcher,
		automation.WithPacing(cfg.PacingDelay),
		automation.WithLogger(logger.Named("automation")))

	st, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var workflowService api.WorkflowService
	if cfg.TemporalEnabled() {
		temporalClient, err := dialTemporal(client.Options{
			HostPort: cfg.TemporalAddress,
			Logger:   logging.NewTemporalLogger(logger.Named("temporal")),
		})
		if err != nil {
			return fmt.Errorf("dial temporal: %w", err)
		}
		if temporalClient != nil {
			defer temporalClient.Close()
		}
		workflowService = newWorkflowService(temporalClient, cfg.TemporalTaskQueue)
	}

	negotiationModel := provider
	if cfg.NegotiationModel != cfg.LLMModel {
		negotiationModel, err = newProvider(ctx, llmConfig(cfg, cfg.NegotiationModel))
		if err != nil {
			return fmt.Errorf("init negotiation provider: %w", err)
		}
	}

	srv := newServer(st, events.NewBroker(), workflowService, cfg,
		api.WithDriver(driver),
		api.WithVoice(voice.NewClient(cfg.ElevenLabsBaseURL, cfg.ElevenLabsAPIKey, nil)),
		api.WithNegotiation(negotiation.NewService(negotiationModel, cfg.NegotiationModel, st, logger.Named("negotiation"))),
		api.WithLogger(logger))

	addr := fmt.Sprintf(":%s", cfg.ControlPlanePort)
	logger.Info("InfluAI control plane listening",
		zap.String("addr", addr),
		zap.String("llm_provider", cfg.LLMProvider),
		zap.Bool("temporal", cfg.TemporalEnabled()),
		zap.Bool("redis", cfg.RedisAddr != ""))
	return srv.Start(ctx, addr)
}

func llmConfig(cfg config.Config, model string) llm.Config {
	return llm.Config{
		Provider:         cfg.LLMProvider,
		Model:            model,
		BaseURL:          cfg.LLMBaseURL,
		GoogleAPIKey:     cfg.GoogleAPIKey,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenRouterAPIKey: cfg.OpenRouterAPIKey,
	}
}

// openStore picks Redis when an address is configured and the in-memory store otherwise.
func openStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	redisClient, err := connectRedis(ctx, redisstore.ClientConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, nil, err
	}
	if redisClient == nil {
		st := memory.New(memory.WithRunTTL(cfg.RunTTL), memory.WithConversationTTL(cfg.ConversationTTL))
		return st, func() {}, nil
	}
	st := redisstore.New(redisClient, redisstore.Options{RunTTL: cfg.RunTTL, ConversationTTL: cfg.ConversationTTL})
	return st, func() { _ = redisClient.Close() }, nil
}
