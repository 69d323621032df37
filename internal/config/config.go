package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/kirillkom/glossary-rag-gateway/internal/core/domain"
)

type Config struct {
	APIPort  string
	LogLevel string
	APIKey   string

	RAGFlowBaseURL string
	RAGFlowAPIKey  string

	OpenAIBaseURL string
	OpenAIAPIKey  string
	OpenAIModel   string

	HTTPTimeout            time.Duration
	RetryAttempts          int
	RetryWait              time.Duration
	UpstreamBreakerEnabled bool

	RAGAnswerSimilarityThreshold    float64
	RAGAnswerVectorSimilarityWeight float64

	NATSURL     string
	NATSSubject string

	APIRateLimitRPS    float64
	APIRateLimitBurst  int
	APIMaxInFlight     int
	APIQueueTimeout    time.Duration
	APIMaxConnections  int
	CORSAllowedOrigins []string

	WorkerMetricsPort string

	MCP MCPConfig
}

// MCPConfig configures the tool server process.
type MCPConfig struct {
	APIBaseURL string
	APIKey     string
	Toolset    string
	ListenAddr string
	LogLevel   string

	MetricsPort string

	HTTPTimeout   time.Duration
	RetryAttempts int
	RetryWait     time.Duration

	RateLimitCapacity int
	RateLimitInterval time.Duration
	// ToolRateLimitsRaw is the unparsed MCP_TOOL_RATE_LIMITS value.
	ToolRateLimitsRaw string

	MaxQueryLength   int
	MaxTerms         int
	MaxTermLength    int
	DatasetIDPattern string

	SearchTopK             int
	DefinitionTopK         int
	SimilarityThreshold    float64
	VectorSimilarityWeight float64
}

// Load reads the process environment. A .env file in the working directory
// is loaded first; variables already set in the environment win.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		APIPort:  mustEnv("API_PORT", "8080"),
		LogLevel: mustEnv("LOG_LEVEL", "info"),
		APIKey:   mustEnv("API_KEY", ""),

		RAGFlowBaseURL: mustEnv("RAGFLOW_BASE_URL", "http://localhost:9380"),
		RAGFlowAPIKey:  mustEnv("RAGFLOW_API_KEY", ""),

		OpenAIBaseURL: mustEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIAPIKey:  mustEnv("OPENAI_API_KEY", ""),
		OpenAIModel:   mustEnv("OPENAI_MODEL", "gpt-4o-mini"),

		HTTPTimeout:            mustEnvDuration("HTTP_TIMEOUT", 30*time.Second),
		RetryAttempts:          mustEnvInt(firstSet("RAGFLOW_RETRY_ATTEMPTS", "RETRY_ATTEMPTS"), 3),
		RetryWait:              mustEnvDuration(firstSet("RAGFLOW_RETRY_WAIT", "RETRY_WAIT"), 500*time.Millisecond),
		UpstreamBreakerEnabled: mustEnvBool("UPSTREAM_BREAKER_ENABLED", true),

		RAGAnswerSimilarityThreshold:    mustEnvFloat("RAG_ANSWER_SIMILARITY_THRESHOLD", 0.2),
		RAGAnswerVectorSimilarityWeight: mustEnvFloat("RAG_ANSWER_VECTOR_SIMILARITY_WEIGHT", 0.3),

		NATSURL:     mustEnv("NATS_URL", ""),
		NATSSubject: mustEnv("NATS_SUBJECT", "glossary.documents.parse"),

		APIRateLimitRPS:    mustEnvFloat("API_RATE_LIMIT_RPS", 0),
		APIRateLimitBurst:  mustEnvInt("API_RATE_LIMIT_BURST", 10),
		APIMaxInFlight:     mustEnvInt("API_MAX_IN_FLIGHT", 0),
		APIQueueTimeout:    mustEnvDuration("API_QUEUE_TIMEOUT", 2*time.Second),
		APIMaxConnections:  mustEnvInt("API_MAX_CONNECTIONS", 0),
		CORSAllowedOrigins: splitList(mustEnv("CORS_ALLOWED_ORIGINS", "")),

		WorkerMetricsPort: mustEnv("WORKER_METRICS_PORT", "9090"),

		MCP: MCPConfig{
			APIBaseURL: mustEnv(firstSet("MCP_API_BASE_URL", "LLM_API_BASE_URL"), "http://127.0.0.1:8080"),
			APIKey:     mustEnv(firstSet("MCP_API_KEY", "LLM_API_KEY"), ""),
			Toolset:    strings.ToLower(mustEnv("MCP_TOOLSET", "catalog")),
			ListenAddr: mustEnv("MCP_LISTEN_ADDR", ":8090"),
			LogLevel:   mustEnv(firstSet("MCP_LOG_LEVEL", "LOG_LEVEL"), "info"),

			MetricsPort: mustEnv("MCP_METRICS_PORT", ""),

			HTTPTimeout:   mustEnvDuration(firstSet("MCP_HTTP_TIMEOUT", "HTTP_TIMEOUT"), 30*time.Second),
			RetryAttempts: mustEnvInt(firstSet("MCP_RETRY_ATTEMPTS", "RETRY_ATTEMPTS"), 3),
			RetryWait:     mustEnvDuration(firstSet("MCP_RETRY_WAIT", "RETRY_WAIT"), 500*time.Millisecond),

			RateLimitCapacity: mustEnvInt(firstSet("MCP_RATE_LIMIT_CAPACITY", "RATE_LIMIT_CAPACITY"), 10),
			RateLimitInterval: mustEnvDuration(firstSet("MCP_RATE_LIMIT_INTERVAL", "MCP_RATE_LIMIT_INTERVAL_SECONDS"), 60*time.Second),
			ToolRateLimitsRaw: mustEnv(firstSet("MCP_TOOL_RATE_LIMITS", "TOOL_RATE_LIMITS"), ""),

			MaxQueryLength:   mustEnvInt(firstSet("MCP_MAX_QUERY_LENGTH", "MAX_QUERY_LENGTH"), 256),
			MaxTerms:         mustEnvInt(firstSet("MCP_MAX_TERMS", "MAX_TERMS"), 10),
			MaxTermLength:    mustEnvInt(firstSet("MCP_MAX_TERM_LENGTH", "MAX_TERM_LENGTH"), 128),
			DatasetIDPattern: mustEnv(firstSet("MCP_DATASET_ID_PATTERN", "DATASET_ID_PATTERN"), `^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`),

			SearchTopK:             mustEnvInt(firstSet("MCP_SEARCH_TOP_K", "SEARCH_TOP_K"), 8),
			DefinitionTopK:         mustEnvInt(firstSet("MCP_DEFINITION_TOP_K", "DEFINITION_TOP_K"), 12),
			SimilarityThreshold:    mustEnvFloat(firstSet("MCP_SIMILARITY_THRESHOLD", "SIMILARITY_THRESHOLD"), 0.2),
			VectorSimilarityWeight: mustEnvFloat(firstSet("MCP_VECTOR_SIMILARITY_WEIGHT", "VECTOR_SIMILARITY_WEIGHT"), 0.3),
		},
	}
}

// ValidateGateway checks what the API process needs before it starts.
func (c Config) ValidateGateway() error {
	if strings.TrimSpace(c.RAGFlowAPIKey) == "" {
		return configError("RAGFLOW_API_KEY is required")
	}
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return configError("OPENAI_API_KEY is required")
	}
	if !unitInterval(c.RAGAnswerSimilarityThreshold) || !unitInterval(c.RAGAnswerVectorSimilarityWeight) {
		return configError("RAG answer similarity settings must be within [0, 1]")
	}
	return nil
}

func (c Config) ValidateWorker() error {
	if strings.TrimSpace(c.RAGFlowAPIKey) == "" {
		return configError("RAGFLOW_API_KEY is required")
	}
	if strings.TrimSpace(c.NATSURL) == "" {
		return configError("NATS_URL is required for the worker")
	}
	return nil
}

func (c Config) ValidateToolServer() error {
	m := c.MCP
	if strings.TrimSpace(m.APIKey) == "" {
		return configError("MCP_API_KEY is required")
	}
	switch m.Toolset {
	case "catalog", "retrieval":
	default:
		return configError(fmt.Sprintf("MCP_TOOLSET must be catalog or retrieval, got %q", m.Toolset))
	}
	if _, err := regexp.Compile(m.DatasetIDPattern); err != nil {
		return configError(fmt.Sprintf("MCP_DATASET_ID_PATTERN does not compile: %v", err))
	}
	if m.RateLimitCapacity < 1 {
		return configError("MCP_RATE_LIMIT_CAPACITY must be at least 1")
	}
	if m.RateLimitInterval <= 0 {
		return configError("MCP_RATE_LIMIT_INTERVAL must be positive")
	}
	if m.SearchTopK < 1 || m.SearchTopK > domain.MaxTopK || m.DefinitionTopK < 1 || m.DefinitionTopK > domain.MaxTopK {
		return configError(fmt.Sprintf("MCP top_k defaults must be between 1 and %d", domain.MaxTopK))
	}
	if !unitInterval(m.SimilarityThreshold) || !unitInterval(m.VectorSimilarityWeight) {
		return configError("MCP similarity settings must be within [0, 1]")
	}
	if _, err := m.ToolRateLimits(); err != nil {
		return err
	}
	return nil
}

// ToolRateLimits decodes MCP_TOOL_RATE_LIMITS. Both JSON objects and YAML
// mappings are accepted.
func (m MCPConfig) ToolRateLimits() (map[string]int, error) {
	raw := strings.TrimSpace(m.ToolRateLimitsRaw)
	if raw == "" {
		return map[string]int{}, nil
	}

	var parsed map[string]int
	if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, domain.WrapError(domain.ErrConfig, "parse MCP_TOOL_RATE_LIMITS", err)
	}
	for tool, limit := range parsed {
		if limit < 1 {
			return nil, configError(fmt.Sprintf("MCP_TOOL_RATE_LIMITS[%s] must be at least 1", tool))
		}
	}
	if parsed == nil {
		parsed = map[string]int{}
	}
	return parsed, nil
}

func configError(msg string) error {
	return domain.WrapError(domain.ErrConfig, "config", fmt.Errorf("%s", msg))
}

func unitInterval(v float64) bool {
	return v >= 0 && v <= 1
}

// firstSet returns the first key present in the environment, or the first key.
func firstSet(keys ...string) string {
	for _, key := range keys {
		if strings.TrimSpace(os.Getenv(key)) != "" {
			return key
		}
	}
	return keys[0]
}

func splitList(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func mustEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
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
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvBool(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

// mustEnvDuration accepts Go durations ("750ms") or plain seconds ("0.5").
func mustEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	seconds, err := strconv.ParseFloat(v, 64)
	if err != nil || seconds < 0 {
		return fallback
	}
	return time.Duration(seconds * float64(time.Second))
}
