package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kira-labs/kira/internal/domain"
)

// Config holds the kira API configuration.
type Config struct {
	AppName   string          `yaml:"app_name"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	Cache     CacheConfig     `yaml:"cache"`
	LLM       LLMConfig       `yaml:"llm"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Auth      AuthConfig      `yaml:"auth"`
	Limits    LimitsConfig    `yaml:"limits"`
	Data      DataConfig      `yaml:"data"`
	CORS      CORSConfig      `yaml:"cors"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
// Static API keys and JWTs are both accepted as Bearer tokens.
type AuthConfig struct {
	APIKeys     []string `yaml:"api_keys"`
	JWTSecret   string   `yaml:"jwt_secret"`
	JWTIssuer   string   `yaml:"jwt_issuer"`
	JWTAudience string   `yaml:"jwt_audience"`
	Disabled    bool     `yaml:"disabled"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int  `yaml:"port"`
	ReadTimeoutSec  int  `yaml:"read_timeout_sec"`
	WriteTimeoutSec int  `yaml:"write_timeout_sec"`
	ShutdownSec     int  `yaml:"shutdown_timeout_sec"`
	MetricsEnabled  bool `yaml:"metrics_enabled"`
}

// DatabaseConfig holds Redis connection settings.
type DatabaseConfig struct {
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
	KeyPrefix        string   `yaml:"key_prefix"`
	VectorIndex      string   `yaml:"vector_index"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Namespace    string `yaml:"namespace"`
	TTLSec       int    `yaml:"ttl_sec"`
	EmbeddingTTL int    `yaml:"embedding_ttl_sec"`
}

// TTL returns the response cache TTL.
func (c CacheConfig) TTL() time.Duration { return time.Duration(c.TTLSec) * time.Second }

// LLMConfig holds provider selection and the retry envelope.
type LLMConfig struct {
	Provider   string                    `yaml:"provider"` // auto, openai, gemini, mega
	TimeoutSec int                       `yaml:"timeout_sec"`
	MaxRetries *int                      `yaml:"max_retries"`
	BackoffMS  int                       `yaml:"backoff_ms"`
	Providers  map[string]ProviderConfig `yaml:"providers"`
}

// Retries returns the configured retry count, default 2.
func (c LLMConfig) Retries() int {
	if c.MaxRetries == nil {
		return 2
	}
	return *c.MaxRetries
}

// ProviderConfig holds settings for one LLM vendor.
type ProviderConfig struct {
	APIKey            string   `yaml:"api_key"`
	BaseURL           string   `yaml:"base_url"`
	GenerationModel   string   `yaml:"generation_model"`
	EmbeddingModel    string   `yaml:"embedding_model"`
	FallbackModels    []string `yaml:"fallback_models"`
	Dimensions        int      `yaml:"dimensions"`
	RequestsPerSecond float64  `yaml:"requests_per_second"`
}

// RetrievalConfig holds chunking and ranking tuning.
type RetrievalConfig struct {
	MaxResults          int     `yaml:"max_results"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	VectorSearch        bool    `yaml:"vector_search"`
	ChunkSize           int     `yaml:"chunk_size"`
	ChunkOverlap        int     `yaml:"chunk_overlap"`
	AnalysisChunkSize   int     `yaml:"analysis_chunk_size"`
	AnalysisOverlap     int     `yaml:"analysis_chunk_overlap"`
	CandidateLimit      int     `yaml:"candidate_limit"`
	TopK                int     `yaml:"top_k"`
	LexicalWeight       float64 `yaml:"lexical_weight"`
	SemanticWeight      float64 `yaml:"semantic_weight"`
	EmbedCharLimit      int     `yaml:"embed_char_limit"`
	Parallelism         int     `yaml:"parallelism"`
}

// LimitsConfig holds request admission limits.
type LimitsConfig struct {
	RateLimitPerMinute  int `yaml:"rate_limit_per_minute"`
	MaxRequestSizeBytes int `yaml:"max_request_size_bytes"`
}

// DataConfig locates source documents on disk.
type DataConfig struct {
	GazettesFile string `yaml:"gazettes_file"`
	PoliciesPath string `yaml:"policies_path"`
	WatchGazette bool   `yaml:"watch_gazettes"`
	SeedStore    bool   `yaml:"seed_store"`
}

// CORSConfig lists allowed browser origins.
type CORSConfig struct {
	Origins []string `yaml:"origins"`
}

// Load reads configuration from a YAML file by environment name (local, dev, docker, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	return Parse(data)
}

// Parse decodes YAML bytes, expands ${VAR} references, applies defaults and validates.
func Parse(data []byte) (Config, error) {
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

var providerDefaults = map[string]ProviderConfig{
	domain.ProviderOpenAI: {
		GenerationModel: "gpt-4o-mini",
		EmbeddingModel:  "text-embedding-3-small",
	},
	domain.ProviderGemini: {
		BaseURL:         "https://generativelanguage.googleapis.com/v1beta/openai/",
		GenerationModel: "models/gemini-2.5-flash",
		EmbeddingModel:  "models/gemini-embedding-001",
	},
	domain.ProviderMega: {
		BaseURL:         "https://api.megallm.ai/v1",
		GenerationModel: "mega-chat-1",
		EmbeddingModel:  "mega-embedding-1",
		FallbackModels:  []string{"mega-flash", "gpt-4o-mini", "gpt-4.1-mini", "gpt-5-mini"},
	},
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.AppName == "" {
		c.AppName = "Kira Regulatory Intelligence API"
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 120
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Database.KeyPrefix == "" {
		c.Database.KeyPrefix = "kira:"
	}
	if c.Database.VectorIndex == "" {
		c.Database.VectorIndex = "kira_policies"
	}
	if c.Cache.Namespace == "" {
		c.Cache.Namespace = "kira"
	}
	if c.Cache.TTLSec <= 0 {
		c.Cache.TTLSec = 300
	}
	if c.Cache.EmbeddingTTL <= 0 {
		c.Cache.EmbeddingTTL = 24 * 60 * 60
	}
	c.applyLLMDefaults()
	c.applyRetrievalDefaults()
	if c.Limits.RateLimitPerMinute == 0 {
		c.Limits.RateLimitPerMinute = 60
	}
	if c.Limits.MaxRequestSizeBytes == 0 {
		c.Limits.MaxRequestSizeBytes = 1 << 20
	}
	if c.Auth.JWTIssuer == "" {
		c.Auth.JWTIssuer = "kira-backend"
	}
	if c.Auth.JWTAudience == "" {
		c.Auth.JWTAudience = "kira-clients"
	}
	if c.Data.PoliciesPath == "" {
		c.Data.PoliciesPath = "data/policies"
	}
	if c.Data.GazettesFile == "" {
		c.Data.GazettesFile = filepath.Join(c.Data.PoliciesPath, "gazettes.json")
	}
}

func (c *Config) applyLLMDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = "auto"
	}
	if c.LLM.TimeoutSec <= 0 {
		c.LLM.TimeoutSec = 25
	}
	if c.LLM.BackoffMS <= 0 {
		c.LLM.BackoffMS = 200
	}
	if c.LLM.Providers == nil {
		c.LLM.Providers = make(map[string]ProviderConfig)
	}
	for name := range providerDefaults {
		p := c.LLM.Providers[name]
		p.APIKey = strings.TrimSpace(p.APIKey)
		c.LLM.Providers[name] = ProviderDefaults(name, p)
	}
}

func (c *Config) applyRetrievalDefaults() {
	r := &c.Retrieval
	if r.MaxResults <= 0 {
		r.MaxResults = 8
	}
	if r.SimilarityThreshold == 0 {
		r.SimilarityThreshold = 0.7
	}
	if r.ChunkSize <= 0 {
		r.ChunkSize = 3500
	}
	if r.ChunkOverlap <= 0 {
		r.ChunkOverlap = 300
	}
	if r.AnalysisChunkSize <= 0 {
		r.AnalysisChunkSize = 12000
	}
	if r.AnalysisOverlap <= 0 {
		r.AnalysisOverlap = 800
	}
	if r.CandidateLimit <= 0 {
		r.CandidateLimit = 12
	}
	if r.TopK <= 0 {
		r.TopK = 3
	}
	if r.LexicalWeight == 0 && r.SemanticWeight == 0 {
		r.LexicalWeight, r.SemanticWeight = 0.4, 0.6
	}
	if r.EmbedCharLimit <= 0 {
		r.EmbedCharLimit = 6000
	}
	if r.Parallelism <= 0 {
		r.Parallelism = 4
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return errors.New("database.addrs is required")
	}
	if c.Limits.RateLimitPerMinute <= 0 {
		return fmt.Errorf("limits.rate_limit_per_minute must be positive, got %d", c.Limits.RateLimitPerMinute)
	}
	if c.Limits.MaxRequestSizeBytes < 1024 {
		return fmt.Errorf("limits.max_request_size_bytes must be at least 1024, got %d", c.Limits.MaxRequestSizeBytes)
	}
	if c.Retrieval.SimilarityThreshold < 0 || c.Retrieval.SimilarityThreshold > 1 {
		return fmt.Errorf("retrieval.similarity_threshold must be in [0,1], got %g", c.Retrieval.SimilarityThreshold)
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize || c.Retrieval.AnalysisOverlap >= c.Retrieval.AnalysisChunkSize {
		return errors.New("retrieval chunk overlap must be smaller than chunk size")
	}
	if c.LLM.Retries() < 0 {
		return fmt.Errorf("llm.max_retries must not be negative, got %d", c.LLM.Retries())
	}
	return c.validateProviders()
}

func (c *Config) validateProviders() error {
	for name := range c.LLM.Providers {
		if _, ok := providerDefaults[name]; !ok {
			return fmt.Errorf("llm.providers.%s: unknown provider", name)
		}
	}

	switch c.LLM.Provider {
	case "auto", domain.ProviderOpenAI, domain.ProviderGemini, domain.ProviderMega:
		return nil
	default:
		return fmt.Errorf("llm.provider must be one of auto, openai, gemini, mega, got %q", c.LLM.Provider)
	}
}

// ProviderDefaults returns the built-in base URL and models for a known provider
// merged under the given settings. Unknown names come back unchanged.
func ProviderDefaults(name string, p ProviderConfig) ProviderConfig {
	def, ok := providerDefaults[name]
	if !ok {
		return p
	}
	if p.BaseURL == "" {
		p.BaseURL = def.BaseURL
	}
	if p.GenerationModel == "" {
		p.GenerationModel = def.GenerationModel
	}
	if p.EmbeddingModel == "" {
		p.EmbeddingModel = def.EmbeddingModel
	}
	if p.FallbackModels == nil {
		p.FallbackModels = def.FallbackModels
	}
	return p
}

// ProviderConfigs converts the providers section into domain configs in preference order.
func (c *Config) ProviderConfigs() []domain.ProviderConfig {
	out := make([]domain.ProviderConfig, 0, len(domain.ProviderPreference))
	for _, name := range domain.ProviderPreference {
		p := c.LLM.Providers[name]
		out = append(out, domain.ProviderConfig{
			Name:              name,
			BaseURL:           p.BaseURL,
			APIKey:            p.APIKey,
			GenerationModel:   p.GenerationModel,
			EmbeddingModel:    p.EmbeddingModel,
			FallbackModels:    p.FallbackModels,
			Dimensions:        p.Dimensions,
			RequestsPerSecond: p.RequestsPerSecond,
		})
	}
	return out
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
