package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"

	"github.com/influai/control-plane/internal/automation"
	"github.com/influai/control-plane/internal/config"
	"github.com/influai/control-plane/internal/influencer"
	"github.com/influai/control-plane/internal/llm"
	"github.com/influai/control-plane/internal/logging"
	"github.com/influai/control-plane/internal/store/redisstore"
	"github.com/influai/control-plane/internal/workflows"
)

var errTemporalRequired = errors.New("TEMPORAL_ADDRESS is required to run the worker")

var (
	loadConfig      = config.Load
	newLogger       = logging.New
	newProvider     = llm.NewProvider
	connectRedis    = redisstore.Connect
	dialTemporal    = client.Dial
	newWorker       = worker.New
	workerInterrupt = worker.InterruptCh
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
	if !cfg.TemporalEnabled() {
		return errTemporalRequired
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	ctx := context.Background()

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

	provider, err := newProvider(ctx, llm.Config{
		Provider:         cfg.LLMProvider,
		Model:            cfg.LLMModel,
		BaseURL:          cfg.LLMBaseURL,
		GoogleAPIKey:     cfg.GoogleAPIKey,
		OpenAIAPIKey:     cfg.OpenAIAPIKey,
		OpenRouterAPIKey: cfg.OpenRouterAPIKey,
	})
	if err != nil {
		return fmt.Errorf("init llm provider: %w", err)
	}
	searcher, err := influencer.NewClient(cfg.InfluencerAPIURL, &http.Client{Timeout: cfg.SearchTimeout})
	if err != nil {
		return err
	}
	// Pacing lives in the workflow; activities run one step each.
	driver := automation.NewDriver(provider, searcher, automation.WithLogger(logger.Named("automation")))

	var sink workflows.EventSink
	redisClient, err := connectRedis(ctx, redisstore.ClientConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		logger.Warn("redis unavailable, events are only delivered through the control plane", zap.Error(err))
	} else if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		sink = redisstore.New(redisClient, redisstore.Options{RunTTL: cfg.RunTTL, ConversationTTL: cfg.ConversationTTL})
	}

	emitter := workflows.NewIngestEmitter(cfg.ControlPlaneURL, sink, logger.Named("ingest"))
	activities := workflows.NewCampaignActivities(driver, emitter.ForRun, logger.Named("activities"))

	w := newWorker(temporalClient, cfg.TemporalTaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.CampaignWorkflow)
	w.RegisterActivity(activities)

	logger.Info("InfluAI worker started",
		zap.String("task_queue", cfg.TemporalTaskQueue),
		zap.String("control_plane", cfg.ControlPlaneURL),
		zap.Bool("redis_fallback", sink != nil))
	return w.Run(workerInterrupt())
}
