package main

import (
	"context"
	"errors"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"github.com/nexus-rpc/sdk-go/nexus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"
	"go.uber.org/zap"

	"github.com/influai/control-plane/internal/config"
	"github.com/influai/control-plane/internal/llm"
	"github.com/influai/control-plane/internal/store/redisstore"
	"github.com/influai/control-plane/internal/workflows"
)

type stubWorker struct {
	runErr     error
	startErr   error
	workflows  []interface{}
	activities []interface{}
}

func (s *stubWorker) RegisterWorkflow(w interface{}) {
	s.workflows = append(s.workflows, w)
}

func (s *stubWorker) RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions) {}

func (s *stubWorker) RegisterDynamicWorkflow(w interface{}, options workflow.DynamicRegisterOptions) {
}

func (s *stubWorker) RegisterActivity(a interface{}) {
	s.activities = append(s.activities, a)
}

func (s *stubWorker) RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions) {}

func (s *stubWorker) RegisterDynamicActivity(a interface{}, options activity.DynamicRegisterOptions) {
}

func (s *stubWorker) RegisterNexusService(_ *nexus.Service) {}

func (s *stubWorker) Start() error {
	return s.startErr
}

func (s *stubWorker) Run(_ <-chan interface{}) error {
	return s.runErr
}

func (s *stubWorker) Stop() {}

type stubProvider struct{}

func (stubProvider) Generate(ctx context.Context, messages []llm.Message) (string, error) {
	return "ok", nil
}

func captureWorkerDeps(t *testing.T) {
	origLoadConfig := loadConfig
	origNewLogger := newLogger
	origNewProvider := newProvider
	origConnectRedis := connectRedis
	origDialTemporal := dialTemporal
	origNewWorker := newWorker
	origWorkerInterrupt := workerInterrupt

	t.Cleanup(func() {
		loadConfig = origLoadConfig
		newLogger = origNewLogger
		newProvider = origNewProvider
		connectRedis = origConnectRedis
		dialTemporal = origDialTemporal
		newWorker = origNewWorker
		workerInterrupt = origWorkerInterrupt
	})

	newLogger = func(string) (*zap.Logger, error) { return zap.NewNop(), nil }
	newProvider = func(context.Context, llm.Config) (llm.Provider, error) { return stubProvider{}, nil }
	connectRedis = func(context.Context, redisstore.ClientConfig) (redis.UniversalClient, error) { return nil, nil }
	dialTemporal = func(client.Options) (client.Client, error) { return nil, nil }
	workerInterrupt = func() <-chan interface{} { return make(chan interface{}) }
}

func workerConfig() config.Config {
	return config.Config{
		LLMProvider:       config.ProviderGemini,
		LLMModel:          "gemini-1.5-flash",
		GoogleAPIKey:      "key",
		InfluencerAPIURL:  "http://search.local",
		TemporalAddress:   "localhost:7233",
		TemporalTaskQueue: "campaigns",
		ControlPlaneURL:   "http://localhost:8080",
	}
}

func functionName(fn interface{}) string {
	return runtime.FuncForPC(reflect.ValueOf(fn).Pointer()).Name()
}

func TestRunRegistersCampaignWorkflow(t *testing.T) {
	captureWorkerDeps(t)
	loadConfig = func() (config.Config, error) { return workerConfig(), nil }
	stub := &stubWorker{}
	var queue string
	newWorker = func(_ client.Client, taskQueue string, _ worker.Options) worker.Worker {
		queue = taskQueue
		return stub
	}

	require.NoError(t, run())
	require.Equal(t, "campaigns", queue)
	require.Len(t, stub.workflows, 1)
	require.True(t, strings.HasSuffix(functionName(stub.workflows[0]), "CampaignWorkflow"))
	require.Len(t, stub.activities, 1)
	require.IsType(t, &workflows.CampaignActivities{}, stub.activities[0])
}

func TestRunRequiresTemporal(t *testing.T) {
	captureWorkerDeps(t)
	cfg := workerConfig()
	cfg.TemporalAddress = ""
	loadConfig = func() (config.Config, error) { return cfg, nil }

	require.ErrorIs(t, run(), errTemporalRequired)
}

func TestRunConfigFailures(t *testing.T) {
	captureWorkerDeps(t)
	loadConfig = func() (config.Config, error) { return config.Config{}, errors.New("config load failed") }
	require.EqualError(t, run(), "config load failed")

	cfg := workerConfig()
	cfg.GoogleAPIKey = ""
	loadConfig = func() (config.Config, error) { return cfg, nil }
	require.ErrorIs(t, run(), config.ErrMissingGoogleAPIKey)
}

func TestRunTemporalClientFailure(t *testing.T) {
	captureWorkerDeps(t)
	loadConfig = func() (config.Config, error) { return workerConfig(), nil }
	dialTemporal = func(client.Options) (client.Client, error) { return nil, errors.New("temporal dial failed") }

	require.ErrorContains(t, run(), "temporal dial failed")
}

func TestRunRedisFailureIsNonFatal(t *testing.T) {
	captureWorkerDeps(t)
	cfg := workerConfig()
	cfg.RedisAddr = "redis:6379"
	loadConfig = func() (config.Config, error) { return cfg, nil }
	connectRedis = func(context.Context, redisstore.ClientConfig) (redis.UniversalClient, error) {
		return nil, errors.New("redis ping failed")
	}
	newWorker = func(client.Client, string, worker.Options) worker.Worker { return &stubWorker{} }

	require.NoError(t, run())
}

func TestRunWorkerError(t *testing.T) {
	captureWorkerDeps(t)
	loadConfig = func() (config.Config, error) { return workerConfig(), nil }
	newWorker = func(client.Client, string, worker.Options) worker.Worker {
		return &stubWorker{runErr: errors.New("worker stopped")}
	}

	require.EqualError(t, run(), "worker stopped")
}
