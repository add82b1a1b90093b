package main

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/client"
	"go.uber.org/zap"

	"github.com/influai/control-plane/internal/api"
	"github.com/influai/control-plane/internal/config"
	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/llm"
	"github.com/influai/control-plane/internal/store"
	"github.com/influai/control-plane/internal/store/memory"
	"github.com/influai/control-plane/internal/store/redisstore"
)

type stubServer struct {
	err error
}

func (s stubServer) Start(ctx context.Context, addr string) error {
	return s.err
}

type stubProvider struct{}

func (stubProvider) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	return "ok", nil
}

func captureControlPlaneDeps(t *testing.T) {
	origLoadConfig := loadConfig
	origNewLogger := newLogger
	origNewProvider := newProvider
	origConnectRedis := connectRedis
	origDialTemporal := dialTemporal
	origNewWorkflowService := newWorkflowService
	origNewServer := newServer
	origNotifyContext := notifyContext

	t.Cleanup(func() {
		loadConfig = origLoadConfig
		newLogger = origNewLogger
		newProvider = origNewProvider
		connectRedis = origConnectRedis
		dialTemporal = origDialTemporal
		newWorkflowService = origNewWorkflowService
		newServer = origNewServer
		notifyContext = origNotifyContext
	})

	newLogger = func(string) (*zap.Logger, error) { return zap.NewNop(), nil }
	newProvider = func(context.Context, llm.Config) (llm.Provider, error) { return stubProvider{}, nil }
	connectRedis = func(context.Context, redisstore.ClientConfig) (redis.UniversalClient, error) { return nil, nil }
	notifyContext = func(ctx context.Context, _ ...os.Signal) (context.Context, context.CancelFunc) {
		return context.WithCancel(ctx)
	}
}

func validConfig() config.Config {
	return config.Config{
		ControlPlanePort:  "0",
		LLMProvider:       config.ProviderGemini,
		LLMModel:          "gemini-1.5-flash",
		NegotiationModel:  "gemini-1.5-flash",
		GoogleAPIKey:      "key",
		InfluencerAPIURL:  "http://search.local",
		PacingEnabled:     true,
		PacingScale:       1,
		ElevenLabsBaseURL: "https://api.elevenlabs.io",
	}
}

func TestRunSuccessWithMemoryStore(t *testing.T) {
	captureControlPlaneDeps(t)
	loadConfig = func() (config.Config, error) { return validConfig(), nil }

	var gotStore store.Store
	var gotWorkflows api.WorkflowService
	newServer = func(st store.Store, _ *events.Broker, wf api.WorkflowService, _ config.Config, opts ...api.Option) server {
		gotStore = st
		gotWorkflows = wf
		require.Len(t, opts, 4)
		return stubServer{}
	}

	require.NoError(t, run())
	require.IsType(t, &memory.MemoryStore{}, gotStore)
	require.Nil(t, gotWorkflows)
}

func TestRunFailsFastWithoutGoogleKey(t *testing.T) {
	captureControlPlaneDeps(t)
	cfg := validConfig()
	cfg.GoogleAPIKey = ""
	loadConfig = func() (config.Config, error) { return cfg, nil }
	newServer = func(store.Store, *events.Broker, api.WorkflowService, config.Config, ...api.Option) server {
		t.Fatal("server must not be built")
		return nil
	}

	require.ErrorIs(t, run(), config.ErrMissingGoogleAPIKey)
}

func TestRunConfigError(t *testing.T) {
	captureControlPlaneDeps(t)
	loadConfig = func() (config.Config, error) { return config.Config{}, errors.New("bad config") }

	require.EqualError(t, run(), "bad config")
}

func TestRunRedisError(t *testing.T) {
	captureControlPlaneDeps(t)
	cfg := validConfig()
	cfg.RedisAddr = "redis:6379"
	loadConfig = func() (config.Config, error) { return cfg, nil }
	connectRedis = func(context.Context, redisstore.ClientConfig) (redis.UniversalClient, error) {
		return nil, errors.New("redis ping failed")
	}

	require.EqualError(t, run(), "redis ping failed")
}

func TestRunDialsTemporalWhenConfigured(t *testing.T) {
	captureControlPlaneDeps(t)
	cfg := validConfig()
	cfg.TemporalAddress = "temporal:7233"
	cfg.TemporalTaskQueue = "campaigns"
	loadConfig = func() (config.Config, error) { return cfg, nil }

	var dialed client.Options
	dialTemporal = func(opts client.Options) (client.Client, error) {
		dialed = opts
		return nil, nil
	}
	var queue string
	newWorkflowService = func(_ client.Client, taskQueue string) api.WorkflowService {
		queue = taskQueue
		return nil
	}
	newServer = func(store.Store, *events.Broker, api.WorkflowService, config.Config, ...api.Option) server {
		return stubServer{}
	}

	require.NoError(t, run())
	require.Equal(t, "temporal:7233", dialed.HostPort)
	require.NotNil(t, dialed.Logger)
	require.Equal(t, "campaigns", queue)
}

func TestRunTemporalDialError(t *testing.T) {
	captureControlPlaneDeps(t)
	cfg := validConfig()
	cfg.TemporalAddress = "temporal:7233"
	loadConfig = func() (config.Config, error) { return cfg, nil }
	dialTemporal = func(client.Options) (client.Client, error) { return nil, errors.New("unreachable") }

	require.ErrorContains(t, run(), "dial temporal: unreachable")
}

func TestRunBuildsSeparateNegotiationModel(t *testing.T) {
	captureControlPlaneDeps(t)
	cfg := validConfig()
	cfg.NegotiationModel = "gemini-2.0-flash"
	loadConfig = func() (config.Config, error) { return cfg, nil }

	var models []string
	newProvider = func(_ context.Context, c llm.Config) (llm.Provider, error) {
		models = append(models, c.Model)
		return stubProvider{}, nil
	}
	newServer = func(store.Store, *events.Broker, api.WorkflowService, config.Config, ...api.Option) server {
		return stubServer{}
	}

	require.NoError(t, run())
	require.Equal(t, []string{"gemini-1.5-flash", "gemini-2.0-flash"}, models)
}

func TestRunServerError(t *testing.T) {
	captureControlPlaneDeps(t)
	loadConfig = func() (config.Config, error) { return validConfig(), nil }
	newServer = func(store.Store, *events.Broker, api.WorkflowService, config.Config, ...api.Option) server {
		return stubServer{err: errors.New("listen failed")}
	}

	require.EqualError(t, run(), "listen failed")
}
