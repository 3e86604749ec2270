// Package config loads pipeline configuration from a YAML file with
// environment-variable overrides, following the same load-once-then-pass
// pattern used throughout this module: nothing in internal/ reads os.Getenv
// directly after Load returns.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DBConfig selects and configures the persistence backends (full-text
// search, vector store, graph store) consumed by internal/persistence/databases.
type DBConfig struct {
	DefaultDSN string       `yaml:"default_dsn"`
	Search     BackendConfig `yaml:"search"`
	Vector     VectorConfig `yaml:"vector"`
	Graph      BackendConfig `yaml:"graph"`
}

// BackendConfig is shared by backends that only need a DSN and a driver name.
type BackendConfig struct {
	Backend string `yaml:"backend"` // memory|auto|postgres|none
	DSN     string `yaml:"dsn,omitempty"`
}

// VectorConfig adds the dimension/metric knobs a vector backend needs.
type VectorConfig struct {
	Backend    string `yaml:"backend"` // memory|auto|postgres|qdrant|none
	DSN        string `yaml:"dsn,omitempty"`
	Collection string `yaml:"collection,omitempty"`
	Dimensions int    `yaml:"dimensions"`
	Metric     string `yaml:"metric"` // cosine|l2|ip
}

// EmbeddingConfig configures the embedding HTTP endpoint used to vectorize
// chunk text before it reaches the vector store.
type EmbeddingConfig struct {
	BaseURL   string `yaml:"base_url"`
	Path      string `yaml:"path"`
	Model     string `yaml:"model"`
	APIHeader string `yaml:"api_header"` // "Authorization" or a custom header name
	APIKey    string `yaml:"api_key"`
	Timeout   int    `yaml:"timeout_seconds"`
}

// LLMProviderConfig describes one entry in the enrichment fallback chain.
type LLMProviderConfig struct {
	Name    string `yaml:"name"` // openai|anthropic|google
	Model   string `yaml:"model"`
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url,omitempty"`
}

// OpenAIConfig configures internal/llm/openai.Client.
type OpenAIConfig struct {
	APIKey      string         `yaml:"api_key"`
	Model       string         `yaml:"model"`
	BaseURL     string         `yaml:"base_url,omitempty"`
	API         string         `yaml:"api,omitempty"` // "completions" or "responses"
	ExtraParams map[string]any `yaml:"extra_params,omitempty"`
	LogPayloads bool           `yaml:"log_payloads,omitempty"`
}

// AnthropicPromptCacheConfig controls Anthropic prompt-caching scope.
type AnthropicPromptCacheConfig struct {
	Enabled       bool `yaml:"enabled"`
	CacheSystem   bool `yaml:"cache_system"`
	CacheTools    bool `yaml:"cache_tools"`
	CacheMessages bool `yaml:"cache_messages"`
}

// AnthropicConfig configures internal/llm/anthropic.Client.
type AnthropicConfig struct {
	APIKey      string                     `yaml:"api_key"`
	Model       string                     `yaml:"model"`
	BaseURL     string                     `yaml:"base_url,omitempty"`
	PromptCache AnthropicPromptCacheConfig `yaml:"prompt_cache,omitempty"`
	ExtraParams map[string]any             `yaml:"extra_params,omitempty"`
}

// GoogleConfig configures internal/llm/google.Client.
type GoogleConfig struct {
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`
	BaseURL string `yaml:"base_url,omitempty"`
	Timeout int    `yaml:"timeout_seconds,omitempty"`
}


// ObjectStoreConfig configures raw-document archival.
type ObjectStoreConfig struct {
	Backend string    `yaml:"backend"` // memory|s3
	S3      S3Config  `yaml:"s3,omitempty"`
}

// S3SSEConfig configures server-side encryption for objects written to S3.
type S3SSEConfig struct {
	Mode     string `yaml:"mode,omitempty"` // "", "AES256", "aws:kms"
	KMSKeyID string `yaml:"kms_key_id,omitempty"`
}

// S3Config configures the raw-document archival ObjectStore backend
// (AWS S3 or an S3-compatible service such as MinIO).
type S3Config struct {
	Bucket                string      `yaml:"bucket,omitempty"`
	Region                string      `yaml:"region,omitempty"`
	Prefix                string      `yaml:"prefix,omitempty"`
	Endpoint              string      `yaml:"endpoint,omitempty"`
	AccessKey             string      `yaml:"access_key,omitempty"`
	SecretKey             string      `yaml:"secret_key,omitempty"`
	UsePathStyle          bool        `yaml:"use_path_style,omitempty"`
	TLSInsecureSkipVerify bool        `yaml:"tls_insecure_skip_verify,omitempty"`
	SSE                   S3SSEConfig `yaml:"sse,omitempty"`
}

// VaultConfig configures the markdown export target.
type VaultConfig struct {
	RootDir        string `yaml:"root_dir"`
	InboxDir       string `yaml:"inbox_dir"`
	EntitiesDir    string `yaml:"entities_dir"`
	DailyNotesDir  string `yaml:"daily_notes_dir"`
	WeeklyNotesDir string `yaml:"weekly_notes_dir"`
	MonthlyNotesDir string `yaml:"monthly_notes_dir"`
}

// QualityGateConfig exposes the thresholds and weights from the Quality Gate
// design (recency decay constant, STOP/CONTINUE boundaries, score weights).
type QualityGateConfig struct {
	// RecencyHalfLifeDays is the tau of the exp(-age_days/tau) recency score,
	// an e-folding time rather than a half-life.
	RecencyHalfLifeDays float64 `yaml:"recency_half_life_days"`
	MinQualityScore     float64 `yaml:"min_quality_score"`
	MinSignalness       float64 `yaml:"min_signalness"`
	QualityWeight       float64 `yaml:"quality_weight"`
	NoveltyWeight       float64 `yaml:"novelty_weight"`
	ActionabilityWeight float64 `yaml:"actionability_weight"`
	EnableCritic        bool    `yaml:"enable_critic"`
	MinCriticScore      float64 `yaml:"min_critic_score"`
}

// EnrichConfig bounds the content window sent to the LLM during enrichment.
type EnrichConfig struct {
	MaxContentChars int `yaml:"max_content_chars"`
}

// ChunkingConfig carries the target/max token sizes used by the chunker.
type ChunkingConfig struct {
	TargetTokens int `yaml:"target_tokens"`
	MaxTokens    int `yaml:"max_tokens"`
	MinTokens    int `yaml:"min_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
}

// TriageConfig holds the fuzzy-dedup similarity threshold and watchlist path.
type TriageConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	WatchlistPath       string  `yaml:"watchlist_path,omitempty"`
}

// ResourceConfig bounds per-document and per-LLM-call time budgets and the
// size of the cross-document worker pool.
type ResourceConfig struct {
	MaxWorkers      int `yaml:"max_workers"`
	DocBudgetSec    int `yaml:"doc_budget_s"`
	LLMTimeoutSec   int `yaml:"llm_timeout_s"`
	LLMConcurrency  int `yaml:"llm_concurrency"`
	IngestQueueSize int `yaml:"ingest_queue_size"`
}

// TelemetryConfig controls OpenTelemetry metrics/trace export.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// LoggingConfig selects level/output for the primary structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	JSONFormat bool   `yaml:"json_format"`
	FilePath   string `yaml:"file_path,omitempty"`
}

// VocabularyConfig points at the controlled-vocabulary source files.
type VocabularyConfig struct {
	ConceptsPath string `yaml:"concepts_path"`
	ProjectsPath string `yaml:"projects_path"`
}

// Config is the top-level, fully-resolved pipeline configuration.
type Config struct {
	DB          DBConfig           `yaml:"db"`
	Embedding   EmbeddingConfig    `yaml:"embedding"`
	LLMChain    []LLMProviderConfig `yaml:"llm_chain"`
	ObjectStore ObjectStoreConfig `yaml:"object_store"`
	Vault       VaultConfig       `yaml:"vault"`
	Gate        QualityGateConfig `yaml:"quality_gate"`
	Enrich      EnrichConfig      `yaml:"enrich"`
	Chunking    ChunkingConfig    `yaml:"chunking"`
	Triage      TriageConfig      `yaml:"triage"`
	Resources   ResourceConfig    `yaml:"resources"`
	OTel        TelemetryConfig   `yaml:"otel"`
	Logging     LoggingConfig     `yaml:"logging"`
	Vocabulary  VocabularyConfig  `yaml:"vocabulary"`
}

// Load reads filename (if present), applies defaults for anything left
// unset, then overlays process environment variables (after loading a local
// .env file, if present, via godotenv) on top of the file values.
func Load(filename string) (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err == nil {
			if uerr := yaml.Unmarshal(data, &cfg); uerr != nil {
				return Config{}, fmt.Errorf("parse config file: %w", uerr)
			}
		}
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.DB.Search.Backend == "" {
		cfg.DB.Search.Backend = "memory"
	}
	if cfg.DB.Vector.Backend == "" {
		cfg.DB.Vector.Backend = "memory"
	}
	if cfg.DB.Vector.Dimensions == 0 {
		cfg.DB.Vector.Dimensions = 1536
	}
	if cfg.DB.Vector.Metric == "" {
		cfg.DB.Vector.Metric = "cosine"
	}
	if cfg.DB.Vector.Collection == "" {
		cfg.DB.Vector.Collection = "documents"
	}
	if cfg.DB.Graph.Backend == "" {
		cfg.DB.Graph.Backend = "memory"
	}
	if cfg.Embedding.APIHeader == "" {
		cfg.Embedding.APIHeader = "Authorization"
	}
	if cfg.Embedding.Timeout == 0 {
		cfg.Embedding.Timeout = 30
	}
	if cfg.ObjectStore.Backend == "" {
		cfg.ObjectStore.Backend = "memory"
	}
	if cfg.Vault.RootDir == "" {
		cfg.Vault.RootDir = "./vault"
	}
	if cfg.Vault.InboxDir == "" {
		cfg.Vault.InboxDir = "inbox"
	}
	if cfg.Vault.EntitiesDir == "" {
		cfg.Vault.EntitiesDir = "entities"
	}
	if cfg.Vault.DailyNotesDir == "" {
		cfg.Vault.DailyNotesDir = "daily"
	}
	if cfg.Vault.WeeklyNotesDir == "" {
		cfg.Vault.WeeklyNotesDir = "weekly"
	}
	if cfg.Vault.MonthlyNotesDir == "" {
		cfg.Vault.MonthlyNotesDir = "monthly"
	}
	if cfg.Gate.RecencyHalfLifeDays == 0 {
		cfg.Gate.RecencyHalfLifeDays = 180
	}
	if cfg.Gate.MinQualityScore == 0 {
		cfg.Gate.MinQualityScore = 0.35
	}
	if cfg.Gate.MinSignalness == 0 {
		cfg.Gate.MinSignalness = 0.2
	}
	if cfg.Gate.QualityWeight == 0 && cfg.Gate.NoveltyWeight == 0 && cfg.Gate.ActionabilityWeight == 0 {
		cfg.Gate.QualityWeight = 1
		cfg.Gate.NoveltyWeight = 1
		cfg.Gate.ActionabilityWeight = 1
	}
	if cfg.Gate.MinCriticScore == 0 {
		cfg.Gate.MinCriticScore = 2.0
	}
	if cfg.Enrich.MaxContentChars == 0 {
		cfg.Enrich.MaxContentChars = 8000
	}
	if cfg.Chunking.TargetTokens == 0 {
		cfg.Chunking.TargetTokens = 500
	}
	if cfg.Chunking.MaxTokens == 0 {
		cfg.Chunking.MaxTokens = 800
	}
	if cfg.Chunking.MinTokens == 0 {
		cfg.Chunking.MinTokens = 64
	}
	if cfg.Chunking.OverlapTokens == 0 {
		cfg.Chunking.OverlapTokens = 40
	}
	if cfg.Triage.SimilarityThreshold == 0 {
		cfg.Triage.SimilarityThreshold = 0.92
	}
	if cfg.Resources.MaxWorkers <= 0 {
		cfg.Resources.MaxWorkers = 4
	}
	if cfg.Resources.DocBudgetSec <= 0 {
		cfg.Resources.DocBudgetSec = 300
	}
	if cfg.Resources.LLMTimeoutSec <= 0 {
		cfg.Resources.LLMTimeoutSec = 30
	}
	if cfg.Resources.LLMConcurrency <= 0 {
		cfg.Resources.LLMConcurrency = 2
	}
	if cfg.Resources.IngestQueueSize <= 0 {
		cfg.Resources.IngestQueueSize = 256
	}
	if cfg.OTel.ServiceName == "" {
		cfg.OTel.ServiceName = "ingestd"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_API_KEY")); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("EMBEDDING_BASE_URL")); v != "" {
		cfg.Embedding.BaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		setProviderKey(cfg, "openai", v)
	}
	if v := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); v != "" {
		setProviderKey(cfg, "anthropic", v)
	}
	if v := strings.TrimSpace(os.Getenv("GOOGLE_API_KEY")); v != "" {
		setProviderKey(cfg, "google", v)
	}
	if v := strings.TrimSpace(os.Getenv("QDRANT_DSN")); v != "" {
		cfg.DB.Vector.DSN = v
	}
	if v := strings.TrimSpace(os.Getenv("VAULT_ROOT")); v != "" {
		cfg.Vault.RootDir = v
	}
	if v := intFromEnv("MAX_WORKERS", 0); v > 0 {
		cfg.Resources.MaxWorkers = v
	}
	if v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
}

func setProviderKey(cfg *Config, name, key string) {
	for i := range cfg.LLMChain {
		if cfg.LLMChain[i].Name == name {
			cfg.LLMChain[i].APIKey = key
			return
		}
	}
	cfg.LLMChain = append(cfg.LLMChain, LLMProviderConfig{Name: name, APIKey: key})
}

func intFromEnv(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// DocBudget returns the configured per-document processing deadline.
func (c Config) DocBudget() time.Duration {
	return time.Duration(c.Resources.DocBudgetSec) * time.Second
}

// LLMTimeout returns the configured per-LLM-call timeout.
func (c Config) LLMTimeout() time.Duration {
	return time.Duration(c.Resources.LLMTimeoutSec) * time.Second
}
