package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	ProviderGemini = "gemini"

	defaultInfluencerAPIURL = "https://api.example.com/influencers"
	defaultElevenLabsURL    = "https://api.elevenlabs.io"
)

var ErrMissingGoogleAPIKey = errors.New("GOOGLE_GENERATIVE_AI_API_KEY environment variable is not set")

type Config struct {
	ControlPlanePort      string
	ControlPlaneURL       string
	LLMProvider           string
	LLMModel              string
	LLMBaseURL            string
	GoogleAPIKey          string
	OpenAIAPIKey          string
	OpenRouterAPIKey      string
	ElevenLabsAPIKey      string
	ElevenLabsBaseURL     string
	AgentID               string
	InfluencerAPIURL      string
	PacingEnabled         bool
	PacingScale           float64
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RunTTL                time.Duration
	ConversationTTL       time.Duration
	TemporalAddress       string
	TemporalTaskQueue     string
	LogLevel              string
	MetricsEnabled        bool
	StreamHeartbeat       time.Duration
	SearchTimeout         time.Duration
	NegotiationModel      string
	MaxRequestBodyBytes   int64
	ConfigFile            string
	InfluencerAPIExplicit bool
}

// Load reads configuration from the environment. Values in the YAML file named by
// INFLUAI_CONFIG act as defaults that the environment overrides.
func Load() (Config, error) {
	src := source{}
	if path := strings.TrimSpace(os.Getenv("INFLUAI_CONFIG")); path != "" {
		defaults, err := readFile(path)
		if err != nil {
			return Config{}, err
		}
		src.file = defaults
	}

	controlPlanePort := src.get("CONTROL_PLANE_PORT", "8080")
	model := src.get("LLM_MODEL", "gemini-1.5-flash")
	searchURL := src.first([]string{"INFLUENCER_API_URL", "NEXT_PUBLIC_INFLUENCER_API_URL"}, "")
	return Config{
		ControlPlanePort:      controlPlanePort,
		ControlPlaneURL:       src.get("CONTROL_PLANE_URL", "http://localhost:"+controlPlanePort),
		LLMProvider:           strings.ToLower(src.get("LLM_PROVIDER", ProviderGemini)),
		LLMModel:              model,
		LLMBaseURL:            src.get("LLM_BASE_URL", ""),
		GoogleAPIKey:          src.get("GOOGLE_GENERATIVE_AI_API_KEY", ""),
		OpenAIAPIKey:          src.get("OPENAI_API_KEY", ""),
		OpenRouterAPIKey:      src.get("OPENROUTER_API_KEY", ""),
		ElevenLabsAPIKey:      src.get("ELEVENLABS_API_KEY", ""),
		ElevenLabsBaseURL:     src.get("ELEVENLABS_BASE_URL", defaultElevenLabsURL),
		AgentID:               src.first([]string{"AGENT_ID", "NEXT_PUBLIC_AGENT_ID"}, ""),
		InfluencerAPIURL:      defaultIfEmpty(searchURL, defaultInfluencerAPIURL),
		InfluencerAPIExplicit: searchURL != "",
		PacingEnabled:         src.getBool("AUTOMATION_PACING", true),
		PacingScale:           src.getFloat("AUTOMATION_PACING_SCALE", 1),
		RedisAddr:             src.get("REDIS_ADDR", ""),
		RedisPassword:         src.get("REDIS_PASSWORD", ""),
		RedisDB:               src.getInt("REDIS_DB", 0),
		RunTTL:                time.Duration(src.getInt("RUN_TTL_MINUTES", 60)) * time.Minute,
		ConversationTTL:       time.Duration(src.getInt("CONVERSATION_TTL_HOURS", 24)) * time.Hour,
		TemporalAddress:       src.get("TEMPORAL_ADDRESS", ""),
		TemporalTaskQueue:     src.get("TEMPORAL_TASK_QUEUE", "influai-campaigns"),
		LogLevel:              strings.ToLower(src.get("LOG_LEVEL", "info")),
		MetricsEnabled:        src.getBool("METRICS_ENABLED", true),
		StreamHeartbeat:       time.Duration(src.getInt("STREAM_HEARTBEAT_SECONDS", 15)) * time.Second,
		SearchTimeout:         time.Duration(src.getInt("SEARCH_TIMEOUT_SECONDS", 0)) * time.Second,
		NegotiationModel:      src.get("NEGOTIATION_MODEL", model),
		MaxRequestBodyBytes:   int64(src.getInt("MAX_REQUEST_BODY_BYTES", 1<<20)),
		ConfigFile:            os.Getenv("INFLUAI_CONFIG"),
	}, nil
}

// Validate enforces the startup preconditions of the control plane.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderGemini:
		if c.GoogleAPIKey == "" {
			return ErrMissingGoogleAPIKey
		}
	case "openai":
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY environment variable is not set")
		}
	case "openrouter":
		if c.OpenRouterAPIKey == "" {
			return errors.New("OPENROUTER_API_KEY environment variable is not set")
		}
	default:
		return fmt.Errorf("unsupported LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.PacingScale < 0 {
		return fmt.Errorf("AUTOMATION_PACING_SCALE must not be negative, got %v", c.PacingScale)
	}
	return nil
}

// TemporalEnabled reports whether detached runs go through the Temporal worker.
func (c Config) TemporalEnabled() bool {
	return strings.TrimSpace(c.TemporalAddress) != ""
}

// PacingDelay scales a step's base delay. Zero when pacing is off.
func (c Config) PacingDelay(base time.Duration) time.Duration {
	if !c.PacingEnabled || c.PacingScale <= 0 {
		return 0
	}
	return time.Duration(float64(base) * c.PacingScale)
}

type source struct {
	file map[string]string
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	raw := map[string]any{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for key, value := range raw {
		if value == nil {
			continue
		}
		values[strings.ToUpper(strings.TrimSpace(key))] = fmt.Sprint(value)
	}
	return values, nil
}

func (s source) get(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value, ok := s.file[key]; ok && value != "" {
		return value
	}
	return fallback
}

func (s source) first(keys []string, fallback string) string {
	for _, key := range keys {
		if value := s.get(key, ""); value != "" {
			return value
		}
	}
	return fallback
}

func (s source) getInt(key string, fallback int) int {
	if value := s.get(key, ""); value != "" {
		parsed, err := strconv.Atoi(value)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func (s source) getFloat(key string, fallback float64) float64 {
	if value := s.get(key, ""); value != "" {
		parsed, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return parsed
		}
	}
	return fallback
}

func (s source) getBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(s.get(key, ""))) {
	case "1", "true", "on", "yes":
		return true
	case "0", "false", "off", "no":
		return false
	}
	return fallback
}

func defaultIfEmpty(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
