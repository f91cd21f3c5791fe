package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// QueryAgentName is the agent name advertised on the A2A agent card.
const QueryAgentName = "WorkItemQueryAgent"

// Config holds the application configuration
type Config struct {
	// Server configuration
	ServerPort  int
	ServerHost  string
	HTTPPort    int
	MetricsPort int

	// Agent configuration
	AgentName    string
	AgentVersion string
	AgentURL     string

	// Authentication
	AuthType  string // "jwt", "apikey" or "" for none
	JWTSecret string
	APIKey    string

	// Tracker configuration
	TrackerBackend      string // "ado" or "jira"
	TrackerBaseURL      string
	TrackerOrganization string
	TrackerProject      string
	TrackerTeam         string
	TrackerUsername     string
	TrackerToken        string
	TrackerTimeout      time.Duration

	// LLM configuration
	LLMEnabled    bool
	LLMProvider   string // "openai", "azure" or "ollama"
	LLMModel      string
	LLMAPIKey     string
	LLMServiceURL string
	LLMMaxTokens  int
	LLMTimeout    time.Duration

	// Per-stage temperatures
	TemperatureClassify   float64
	TemperatureDecide     float64
	TemperaturePlan       float64
	TemperatureEvaluate   float64
	TemperatureSynthesize float64
	TemperatureValidate   float64

	// Cache configuration
	CacheBackend    string // "redis" or "memory"
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	QueryCacheTTL   time.Duration
	MetadataTTL     time.Duration
	ConversationTTL time.Duration

	// Pipeline configuration
	MaxRetries         int
	PipelineTimeout    time.Duration
	CallTimeout        time.Duration
	ExecutorWorkers    int
	SimilarQueryWindow time.Duration
	ValidatorEnabled   bool
	MaxQueryLength     int

	// Logging
	LogLevel  string
	LogFormat string
}

var (
	v        *viper.Viper
	initOnce sync.Once
)

// init loads environment variables from .env file
func init() {
	// Try to load from project root first
	err := godotenv.Load()
	if err != nil {
		// Try loading from parent directory (assuming we're in a subdirectory)
		err = godotenv.Load("../.env")
		if err != nil {
			// Try one more level up
			err = godotenv.Load("../../.env")
			if err != nil {
				log.Println("No .env file found or error loading it. Using environment variables or defaults.")
			}
		}
	}
}

// GetViper returns the shared viper instance, creating it with defaults on first use.
func GetViper() *viper.Viper {
	initOnce.Do(func() {
		v = viper.New()
		setDefaults(v)
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		if path := os.Getenv("WORKQ_CONFIG"); path != "" {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				log.Printf("Failed to read config file %s: %v", path, err)
			}
		}
	})
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server_port", 8080)
	v.SetDefault("server_host", "localhost")
	v.SetDefault("http_port", 8081)
	v.SetDefault("metrics_port", 9090)

	v.SetDefault("agent_name", QueryAgentName)
	v.SetDefault("agent_version", "1.0.0")
	v.SetDefault("agent_url", "")

	v.SetDefault("auth_type", "apikey")
	v.SetDefault("jwt_secret", "")
	v.SetDefault("api_key", "")

	v.SetDefault("tracker_backend", "ado")
	v.SetDefault("tracker_base_url", "https://dev.azure.com")
	v.SetDefault("tracker_organization", "")
	v.SetDefault("tracker_project", "")
	v.SetDefault("tracker_team", "")
	v.SetDefault("tracker_username", "")
	v.SetDefault("tracker_token", "")
	v.SetDefault("tracker_timeout", "15s")

	v.SetDefault("llm_enabled", true)
	v.SetDefault("llm_provider", "openai")
	v.SetDefault("llm_model", "gpt-4o-mini")
	v.SetDefault("llm_api_key", "")
	v.SetDefault("llm_service_url", "")
	v.SetDefault("llm_max_tokens", 2000)
	v.SetDefault("llm_timeout", "20s")

	v.SetDefault("temperature_classify", 0.1)
	v.SetDefault("temperature_decide", 0.0)
	v.SetDefault("temperature_plan", 0.0)
	v.SetDefault("temperature_evaluate", 0.1)
	v.SetDefault("temperature_synthesize", 0.4)
	v.SetDefault("temperature_validate", 0.0)

	v.SetDefault("cache_backend", "memory")
	v.SetDefault("redis_addr", "localhost:6379")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("query_cache_ttl", "5m")
	v.SetDefault("metadata_ttl", "30m")
	v.SetDefault("conversation_ttl", "24h")

	v.SetDefault("max_retries", 2)
	v.SetDefault("pipeline_timeout", "60s")
	v.SetDefault("call_timeout", "20s")
	v.SetDefault("executor_workers", 4)
	v.SetDefault("similar_query_window", "5m")
	v.SetDefault("validator_enabled", true)
	v.SetDefault("max_query_length", 2000)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// NewConfig creates a new configuration from the shared viper instance
func NewConfig() *Config {
	return FromViper(GetViper())
}

// FromViper builds a Config from an arbitrary viper instance. Tests use it
// with a private instance.
func FromViper(v *viper.Viper) *Config {
	cfg := &Config{
		ServerPort:  v.GetInt("server_port"),
		ServerHost:  v.GetString("server_host"),
		HTTPPort:    v.GetInt("http_port"),
		MetricsPort: v.GetInt("metrics_port"),

		AgentName:    v.GetString("agent_name"),
		AgentVersion: v.GetString("agent_version"),
		AgentURL:     v.GetString("agent_url"),

		AuthType:  strings.ToLower(v.GetString("auth_type")),
		JWTSecret: v.GetString("jwt_secret"),
		APIKey:    v.GetString("api_key"),

		TrackerBackend:      strings.ToLower(v.GetString("tracker_backend")),
		TrackerBaseURL:      strings.TrimRight(v.GetString("tracker_base_url"), "/"),
		TrackerOrganization: v.GetString("tracker_organization"),
		TrackerProject:      v.GetString("tracker_project"),
		TrackerTeam:         v.GetString("tracker_team"),
		TrackerUsername:     v.GetString("tracker_username"),
		TrackerToken:        v.GetString("tracker_token"),
		TrackerTimeout:      v.GetDuration("tracker_timeout"),

		LLMEnabled:    v.GetBool("llm_enabled"),
		LLMProvider:   strings.ToLower(v.GetString("llm_provider")),
		LLMModel:      v.GetString("llm_model"),
		LLMAPIKey:     v.GetString("llm_api_key"),
		LLMServiceURL: v.GetString("llm_service_url"),
		LLMMaxTokens:  v.GetInt("llm_max_tokens"),
		LLMTimeout:    v.GetDuration("llm_timeout"),

		TemperatureClassify:   v.GetFloat64("temperature_classify"),
		TemperatureDecide:     v.GetFloat64("temperature_decide"),
		TemperaturePlan:       v.GetFloat64("temperature_plan"),
		TemperatureEvaluate:   v.GetFloat64("temperature_evaluate"),
		TemperatureSynthesize: v.GetFloat64("temperature_synthesize"),
		TemperatureValidate:   v.GetFloat64("temperature_validate"),

		CacheBackend:    strings.ToLower(v.GetString("cache_backend")),
		RedisAddr:       v.GetString("redis_addr"),
		RedisPassword:   v.GetString("redis_password"),
		RedisDB:         v.GetInt("redis_db"),
		QueryCacheTTL:   v.GetDuration("query_cache_ttl"),
		MetadataTTL:     v.GetDuration("metadata_ttl"),
		ConversationTTL: v.GetDuration("conversation_ttl"),

		MaxRetries:         v.GetInt("max_retries"),
		PipelineTimeout:    v.GetDuration("pipeline_timeout"),
		CallTimeout:        v.GetDuration("call_timeout"),
		ExecutorWorkers:    v.GetInt("executor_workers"),
		SimilarQueryWindow: v.GetDuration("similar_query_window"),
		ValidatorEnabled:   v.GetBool("validator_enabled"),
		MaxQueryLength:     v.GetInt("max_query_length"),

		LogLevel:  v.GetString("log_level"),
		LogFormat: v.GetString("log_format"),
	}
	cfg.normalize()
	return cfg
}

// normalize enforces the timeout ordering: a single call must always be
// shorter than the whole pipeline budget.
func (c *Config) normalize() {
	if c.PipelineTimeout <= 0 {
		c.PipelineTimeout = 60 * time.Second
	}
	if c.CallTimeout <= 0 || c.CallTimeout >= c.PipelineTimeout {
		c.CallTimeout = c.PipelineTimeout / 3
	}
	if c.LLMTimeout <= 0 || c.LLMTimeout > c.CallTimeout {
		c.LLMTimeout = c.CallTimeout
	}
	if c.TrackerTimeout <= 0 || c.TrackerTimeout > c.CallTimeout {
		c.TrackerTimeout = c.CallTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.ExecutorWorkers <= 0 {
		c.ExecutorWorkers = 1
	}
	if c.QueryCacheTTL <= 0 {
		c.QueryCacheTTL = 5 * time.Minute
	}
	if c.MetadataTTL <= 0 {
		c.MetadataTTL = 30 * time.Minute
	}
	if c.ConversationTTL <= 0 {
		c.ConversationTTL = 24 * time.Hour
	}
	if c.MaxQueryLength <= 0 {
		c.MaxQueryLength = 2000
	}
	if c.AgentURL == "" {
		c.AgentURL = fmt.Sprintf("http://%s:%d", c.ServerHost, c.ServerPort)
	}
}
