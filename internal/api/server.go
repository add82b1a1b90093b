package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/influai/control-plane/internal/automation"
	"github.com/influai/control-plane/internal/config"
	"github.com/influai/control-plane/internal/events"
	"github.com/influai/control-plane/internal/negotiation"
	"github.com/influai/control-plane/internal/store"
)

type Server struct {
	store       store.Store
	broker      Broker
	workflows   WorkflowService
	cfg         config.Config
	driver      *automation.Driver
	voice       SignedURLProvider
	negotiation NegotiationService
	logger      *zap.Logger
	httpClient  *http.Client

	runsMu  sync.Mutex
	cancels map[string]context.CancelFunc
	runsWG  sync.WaitGroup
}

type Broker interface {
	Publish(event events.Event)
	Subscribe(ctx context.Context, runID string) <-chan events.Event
}

type WorkflowService interface {
	StartRun(ctx context.Context, runID string, req automation.Request, delays map[events.Phase]time.Duration) error
	CancelRun(ctx context.Context, runID string) error
	Ping(ctx context.Context) error
}

type SignedURLProvider interface {
	SignedURL(ctx context.Context, agentID string) (string, error)
}

type NegotiationService interface {
	Start(ctx context.Context, userPrompt string, influencerData map[string]any) (negotiation.Draft, error)
	Reply(ctx context.Context, conversationID string, userMessage string) (negotiation.Reply, error)
	End(ctx context.Context, conversationID string) error
	Health(ctx context.Context) (negotiation.Health, error)
}

type Option func(*Server)

func WithDriver(driver *automation.Driver) Option {
	return func(s *Server) { s.driver = driver }
}

func WithVoice(voice SignedURLProvider) Option {
	return func(s *Server) { s.voice = voice }
}

func WithNegotiation(service NegotiationService) Option {
	return func(s *Server) { s.negotiation = service }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer wires the HTTP surface. A nil workflows service runs detached automations
// in process.
func NewServer(store store.Store, broker Broker, workflows WorkflowService, cfg config.Config, opts ...Option) *Server {
	s := &Server{
		store:      store,
		broker:     broker,
		workflows:  workflows,
		cfg:        cfg,
		logger:     zap.NewNop(),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cancels:    map[string]context.CancelFunc{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(requestMetrics)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Post("/api/campaign-automation", s.campaignAutomation)
	r.Post("/api/automation/runs", s.createRun)
	r.Get("/api/automation/runs", s.listRuns)
	r.Get("/api/automation/runs/{id}", s.getRun)
	r.Get("/api/automation/runs/{id}/events", s.streamEvents)
	r.Post("/api/automation/runs/{id}/events", s.ingestEvent)
	r.Post("/api/automation/runs/{id}/cancel", s.cancelRun)
	r.Get("/api/get-signed-url", s.getSignedURL)
	r.Post("/api/get-signed-ws-url", s.getSignedWSURL)
	r.Post("/negotiate", s.negotiate)
	r.Post("/negotiate-conversation", s.negotiateConversation)
	r.Post("/end-conversation", s.endConversation)
	r.Get("/negotiation/health", s.negotiationHealth)
	r.Get("/health", s.health)
	r.Get("/ready", s.ready)
	if s.cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type subsystemStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type readinessResponse struct {
	Status     string                     `json:"status"`
	Subsystems map[string]subsystemStatus `json:"subsystems"`
}

// ready probes every dependency concurrently and reports each one.
func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	var mu sync.Mutex
	subsystems := map[string]subsystemStatus{}
	record := func(name string, err error) {
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			subsystems[name] = subsystemStatus{Status: "error", Error: err.Error()}
			return
		}
		subsystems[name] = subsystemStatus{Status: "ok"}
	}
	skip := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		subsystems[name] = subsystemStatus{Status: "skipped"}
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		record("store", s.store.Ping(groupCtx))
		return nil
	})
	if s.cfg.InfluencerAPIExplicit {
		group.Go(func() error {
			record("influencer_search", s.probeHTTP(groupCtx, s.cfg.InfluencerAPIURL))
			return nil
		})
	} else {
		skip("influencer_search")
	}
	if s.workflows != nil {
		group.Go(func() error {
			record("temporal", s.workflows.Ping(groupCtx))
			return nil
		})
	} else {
		skip("temporal")
	}
	_ = group.Wait()

	status, code := "ok", http.StatusOK
	for _, subsystem := range subsystems {
		if subsystem.Status == "error" {
			status, code = "degraded", http.StatusServiceUnavailable
			break
		}
	}
	writeJSON(w, code, readinessResponse{Status: status, Subsystems: subsystems})
}

// probeHTTP treats any answer below 500 as reachable; the search endpoint only accepts POST.
func (s *Server) probeHTTP(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("health status %d", resp.StatusCode)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, statusCode int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

// decodeJSONBody reads a JSON object body. An empty body counts as invalid JSON.
func (s *Server) decodeJSONBody(w http.ResponseWriter, r *http.Request, out any) error {
	body := http.MaxBytesReader(w, r.Body, s.maxBodyBytes())
	decoder := json.NewDecoder(body)
	if err := decoder.Decode(out); err != nil {
		return err
	}
	return nil
}

func (s *Server) maxBodyBytes() int64 {
	if s.cfg.MaxRequestBodyBytes > 0 {
		return s.cfg.MaxRequestBodyBytes
	}
	return 1 << 20
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Last-Event-ID")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until ctx is done, then cancels in-process runs and drains connections.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		s.cancelAllRuns()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		s.runsWG.Wait()
		return nil
	}
	return err
}

func isStreamPath(path string) bool {
	return strings.HasSuffix(path, "/events") || path == "/api/campaign-automation"
}
