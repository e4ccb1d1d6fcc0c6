package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds the ragdex API configuration.
type Config struct {
	HTTP      HTTPConfig                `yaml:"http"`
	Database  DatabaseConfig            `yaml:"database"`
	Providers map[string]ProviderConfig `yaml:"providers"`
	Embedding EmbeddingConfig           `yaml:"embedding"`
	LLM       LLMConfig                 `yaml:"llm"`
	Pipeline  PipelineConfig            `yaml:"pipeline"`
	Cache     CacheConfig               `yaml:"cache"`
	Router    RouterConfig              `yaml:"router"`
	Auth      AuthConfig                `yaml:"auth"`
	Index     IndexConfig               `yaml:"index"`
	Storage   StorageConfig             `yaml:"storage"`
	Logging   LoggingConfig             `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int `yaml:"port"`
	ReadTimeoutSec  int `yaml:"read_timeout_sec"`
	WriteTimeoutSec int `yaml:"write_timeout_sec"`
	ShutdownSec     int `yaml:"shutdown_timeout_sec"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Password         string   `yaml:"password"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig holds HNSW index and pagination settings.
type IndexConfig struct {
	HNSWM           int `yaml:"hnsw_m"`
	HNSWEFConstruct int `yaml:"hnsw_ef_construction"`
	DefaultPageSize int `yaml:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size"`
	MaxBatchSize    int `yaml:"max_batch_size"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	KeyPrefix string `yaml:"key_prefix"`
}

// ProviderConfig holds credentials and budget for one OpenAI-compatible
// endpoint. Embedding vectorizers and the LLM section reference providers
// by map key, so one API key can back both concerns.
type ProviderConfig struct {
	APIKey  string       `yaml:"api_key"`
	BaseURL string       `yaml:"base_url"`
	Budget  BudgetConfig `yaml:"budget"`
}

// BudgetConfig holds token budget settings.
type BudgetConfig struct {
	DailyTokenLimit      int64   `yaml:"daily_token_limit"`       // 0 = unlimited
	MonthlyTokenLimit    int64   `yaml:"monthly_token_limit"`     // 0 = unlimited
	CostPerMillionTokens float64 `yaml:"cost_per_million_tokens"` // для дашборда
	Action               string  `yaml:"action"`                  // "reject" | "warn" (default)
}

// EmbeddingConfig holds embedding settings.
type EmbeddingConfig struct {
	Vectorizers map[string]VectorizerConfig `yaml:"vectorizers"`
}

// VectorizerConfig holds vectorizer settings.
type VectorizerConfig struct {
	Provider            string `yaml:"provider"`
	Model               string `yaml:"model"`
	Dimensions          int    `yaml:"dimensions"`
	DocumentInstruction string `yaml:"document_instruction"`
	QueryInstruction    string `yaml:"query_instruction"`
}

// LLMConfig holds chat model settings. The generation model answers
// questions; the utility model handles expansion, routing and rerank
// scoring where latency matters more than quality.
type LLMConfig struct {
	Provider        string `yaml:"provider"` // key in providers map; empty disables chat collaborators
	GenerationModel string `yaml:"generation_model"`
	UtilityModel    string `yaml:"utility_model"`
}

// PipelineConfig holds retrieval pipeline tuning and per-stage timeouts.
// Alpha is the vector weight in hybrid fusion ([0,1]); RRFK is the
// reciprocal rank fusion constant; NumVariants counts query expansions
// beyond the original.
type PipelineConfig struct {
	Alpha                   float64 `yaml:"alpha"`
	RRFK                    int     `yaml:"rrf_k"`
	NumVariants             int     `yaml:"num_variants"`
	VariantDecay            float64 `yaml:"variant_decay"`
	MaxConcurrentRetrievals int     `yaml:"max_concurrent_retrievals"`
	RerankCandidates        int     `yaml:"rerank_candidates"`
	RouteTimeoutSec         int     `yaml:"route_timeout_sec"`
	ExpandTimeoutSec        int     `yaml:"expand_timeout_sec"`
	RetrieveTimeoutSec      int     `yaml:"retrieve_timeout_sec"`
	RerankTimeoutSec        int     `yaml:"rerank_timeout_sec"`
	GenerateTimeoutSec      int     `yaml:"generate_timeout_sec"`
	OverallTimeoutSec       int     `yaml:"overall_timeout_sec"`
}

// CacheConfig holds cache namespace TTLs in seconds.
type CacheConfig struct {
	Disabled             bool `yaml:"disabled"`
	EmbeddingTTLSec      int  `yaml:"embedding_ttl_sec"`
	RetrievalTTLSec      int  `yaml:"retrieval_ttl_sec"`
	AnswerStaticTTLSec   int  `yaml:"answer_static_ttl_sec"`
	AnswerDefaultTTLSec  int  `yaml:"answer_default_ttl_sec"`
	AnswerVolatileTTLSec int  `yaml:"answer_volatile_ttl_sec"`
}

// RouterConfig holds query router settings.
type RouterConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"` // below it the router defaults to retrieval
	UseRules            bool    `yaml:"use_rules"`            // rule-based classifier instead of the LLM
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
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

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "valkey"
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.LLM.GenerationModel == "" {
		c.LLM.GenerationModel = "Qwen3-32B"
	}
	if c.LLM.UtilityModel == "" {
		c.LLM.UtilityModel = "Qwen3-8B"
	}
	if c.Pipeline.Alpha <= 0 {
		c.Pipeline.Alpha = 0.6
	}
	if c.Pipeline.RRFK <= 0 {
		c.Pipeline.RRFK = 60
	}
	if c.Pipeline.NumVariants <= 0 {
		c.Pipeline.NumVariants = 2
	}
	if c.Pipeline.VariantDecay <= 0 {
		c.Pipeline.VariantDecay = 0.7
	}
	if c.Pipeline.MaxConcurrentRetrievals <= 0 {
		c.Pipeline.MaxConcurrentRetrievals = 5
	}
	if c.Pipeline.RerankCandidates <= 0 {
		c.Pipeline.RerankCandidates = 50
	}
	if c.Pipeline.RouteTimeoutSec <= 0 {
		c.Pipeline.RouteTimeoutSec = 2
	}
	if c.Pipeline.ExpandTimeoutSec <= 0 {
		c.Pipeline.ExpandTimeoutSec = 3
	}
	if c.Pipeline.RetrieveTimeoutSec <= 0 {
		c.Pipeline.RetrieveTimeoutSec = 5
	}
	if c.Pipeline.RerankTimeoutSec <= 0 {
		c.Pipeline.RerankTimeoutSec = 5
	}
	if c.Pipeline.GenerateTimeoutSec <= 0 {
		c.Pipeline.GenerateTimeoutSec = 10
	}
	if c.Pipeline.OverallTimeoutSec <= 0 {
		c.Pipeline.OverallTimeoutSec = 15
	}
	if c.Cache.EmbeddingTTLSec <= 0 {
		c.Cache.EmbeddingTTLSec = 604800 // 7 days
	}
	if c.Cache.RetrievalTTLSec <= 0 {
		c.Cache.RetrievalTTLSec = 14400 // 4 hours
	}
	if c.Cache.AnswerStaticTTLSec <= 0 {
		c.Cache.AnswerStaticTTLSec = 86400 // 24 hours
	}
	if c.Cache.AnswerDefaultTTLSec <= 0 {
		c.Cache.AnswerDefaultTTLSec = 900 // 15 minutes
	}
	if c.Cache.AnswerVolatileTTLSec <= 0 {
		c.Cache.AnswerVolatileTTLSec = 30
	}
	if c.Router.ConfidenceThreshold <= 0 {
		c.Router.ConfidenceThreshold = 0.5
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = 32
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = 400
	}
	if c.Index.DefaultPageSize <= 0 {
		c.Index.DefaultPageSize = 20
	}
	if c.Index.MaxPageSize <= 0 {
		c.Index.MaxPageSize = 100
	}
	if c.Index.MaxBatchSize <= 0 {
		c.Index.MaxBatchSize = 100
	}
	if c.Storage.KeyPrefix == "" {
		c.Storage.KeyPrefix = "ragdex:"
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	if c.Pipeline.Alpha < 0 || c.Pipeline.Alpha > 1 {
		return fmt.Errorf("pipeline.alpha must be in [0,1], got %g", c.Pipeline.Alpha)
	}
	if c.Pipeline.VariantDecay < 0 || c.Pipeline.VariantDecay > 1 {
		return fmt.Errorf("pipeline.variant_decay must be in [0,1], got %g", c.Pipeline.VariantDecay)
	}
	if c.Pipeline.RRFK < 0 {
		return fmt.Errorf("pipeline.rrf_k must be positive, got %d", c.Pipeline.RRFK)
	}
	if c.Router.ConfidenceThreshold < 0 || c.Router.ConfidenceThreshold > 1 {
		return fmt.Errorf("router.confidence_threshold must be in [0,1], got %g", c.Router.ConfidenceThreshold)
	}
	if c.LLM.Provider != "" {
		if _, ok := c.Providers[c.LLM.Provider]; !ok {
			return fmt.Errorf("llm.provider %q is not defined in providers", c.LLM.Provider)
		}
	}
	for name, v := range c.Embedding.Vectorizers {
		if v.Provider != "" {
			if _, ok := c.Providers[v.Provider]; !ok {
				return fmt.Errorf("embedding.vectorizers.%s.provider %q is not defined in providers", name, v.Provider)
			}
		}
	}
	for name, p := range c.Providers {
		switch p.Budget.Action {
		case "", "warn", "reject":
			// ok
		default:
			return fmt.Errorf(
				"providers.%s.budget.action must be \"warn\" or \"reject\", got %q",
				name, p.Budget.Action,
			)
		}
	}
	return nil
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
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
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
