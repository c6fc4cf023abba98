package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	APIPort  string
	LogLevel string

	CasesRoot    string
	RulesFile    string
	AllowedTypes []string
	PromptsDir   string

	SummaryMaxChunkChars      int
	SummaryContextTokens      int
	SummaryMaxNewTokens       int
	SummaryGroupSize          int
	SummaryMaxPartials        int
	SummaryCharsPerToken      float64
	SummaryTemperature        float64
	SummaryTopP               float64
	SummaryRepetitionPenalty  float64
	SummaryDocumentTimeoutMin int

	OllamaURL            string
	OllamaGenModel       string
	OllamaAutoPull       bool
	OllamaTimeoutSeconds int

	PostgresDSN string

	NATSURL           string
	NATSResumeSubject string
	NATSEventsSubject string

	APIRateLimitRPS            float64
	APIRateLimitBurst          int
	APIBackpressureMaxInFlight int
	APIBackpressureWaitMS      int

	WorkerMetricsPort   string
	WorkerResumeOnStart bool

	ResilienceRetryMaxAttempts      int
	ResilienceRetryInitialBackoffMS int
	ResilienceRetryMaxBackoffMS     int
	ResilienceBreakerEnabled        bool
	ResilienceBreakerMinRequests    int
	ResilienceBreakerFailureRatio   float64
	ResilienceBreakerOpenTimeoutSec int
}

func Load() Config {
	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),

		CasesRoot:    mustEnv("CASES_ROOT", "./data/cases"),
		RulesFile:    mustEnv("RULES_FILE", ""),
		AllowedTypes: mustEnvList("ALLOWED_TYPES", nil),
		PromptsDir:   mustEnv("PROMPTS_DIR", ""),

		SummaryMaxChunkChars:      mustEnvInt("SUMMARY_MAX_CHUNK_CHARS", 1800),
		SummaryContextTokens:      mustEnvInt("SUMMARY_CONTEXT_TOKENS", 2048),
		SummaryMaxNewTokens:       mustEnvInt("SUMMARY_MAX_NEW_TOKENS", 180),
		SummaryGroupSize:          mustEnvInt("SUMMARY_GROUP_SIZE", 4),
		SummaryMaxPartials:        mustEnvInt("SUMMARY_MAX_PARTIALS", 6),
		SummaryCharsPerToken:      mustEnvFloat("SUMMARY_CHARS_PER_TOKEN", 3.6),
		SummaryTemperature:        mustEnvFloat("SUMMARY_TEMPERATURE", 0.2),
		SummaryTopP:               mustEnvFloat("SUMMARY_TOP_P", 0.9),
		SummaryRepetitionPenalty:  mustEnvFloat("SUMMARY_REPETITION_PENALTY", 1.15),
		SummaryDocumentTimeoutMin: mustEnvInt("SUMMARY_DOCUMENT_TIMEOUT_MINUTES", 0),

		OllamaURL:            mustEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaGenModel:       mustEnv("OLLAMA_GEN_MODEL", "tinyllama"),
		OllamaAutoPull:       mustEnvBool("OLLAMA_AUTO_PULL", false),
		OllamaTimeoutSeconds: mustEnvInt("OLLAMA_TIMEOUT_SECONDS", 300),

		PostgresDSN: mustEnv("POSTGRES_DSN", ""),

		NATSURL:           mustEnv("NATS_URL", ""),
		NATSResumeSubject: mustEnv("NATS_RESUME_SUBJECT", "dossier.cases.resume"),
		NATSEventsSubject: mustEnv("NATS_EVENTS_SUBJECT", "dossier.documents"),

		APIRateLimitRPS:            mustEnvFloat("API_RATE_LIMIT_RPS", 20),
		APIRateLimitBurst:          mustEnvInt("API_RATE_LIMIT_BURST", 40),
		APIBackpressureMaxInFlight: mustEnvInt("API_BACKPRESSURE_MAX_IN_FLIGHT", 32),
		APIBackpressureWaitMS:      mustEnvInt("API_BACKPRESSURE_WAIT_MS", 250),

		WorkerMetricsPort:   mustEnv("WORKER_METRICS_PORT", "9090"),
		WorkerResumeOnStart: mustEnvBool("WORKER_RESUME_ON_START", true),

		ResilienceRetryMaxAttempts:      mustEnvInt("RESILIENCE_RETRY_MAX_ATTEMPTS", 3),
		ResilienceRetryInitialBackoffMS: mustEnvInt("RESILIENCE_RETRY_INITIAL_BACKOFF_MS", 200),
		ResilienceRetryMaxBackoffMS:     mustEnvInt("RESILIENCE_RETRY_MAX_BACKOFF_MS", 2000),
		ResilienceBreakerEnabled:        mustEnvBool("RESILIENCE_BREAKER_ENABLED", true),
		ResilienceBreakerMinRequests:    mustEnvInt("RESILIENCE_BREAKER_MIN_REQUESTS", 5),
		ResilienceBreakerFailureRatio:   mustEnvFloat("RESILIENCE_BREAKER_FAILURE_RATIO", 0.5),
		ResilienceBreakerOpenTimeoutSec: mustEnvInt("RESILIENCE_BREAKER_OPEN_TIMEOUT_SECONDS", 30),
	}
}

func (c Config) OllamaTimeout() time.Duration {
	return time.Duration(c.OllamaTimeoutSeconds) * time.Second
}

// DocumentTimeout bounds one document's summarization; zero means no bound.
func (c Config) DocumentTimeout() time.Duration {
	if c.SummaryDocumentTimeoutMin <= 0 {
		return 0
	}
	return time.Duration(c.SummaryDocumentTimeoutMin) * time.Minute
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return f
}

func mustEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvList reads a comma separated list; blank items are dropped.
func mustEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
