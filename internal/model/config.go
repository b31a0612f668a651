package model

import (
	"errors"
	"fmt"
	"strings"
)

// Config is the complete rectify configuration
type Config struct {
	LLM          LLMConfig          `yaml:"llm" mapstructure:"llm"`
	VectorDB     VectorDBConfig     `yaml:"vector_db" mapstructure:"vector_db"`
	Retrieval    RetrievalConfig    `yaml:"retrieval" mapstructure:"retrieval"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Intent       IntentConfig       `yaml:"intent" mapstructure:"intent"`
	Pipeline     PipelineConfig     `yaml:"pipeline" mapstructure:"pipeline"`
	Batch        BatchConfig        `yaml:"batch" mapstructure:"batch"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	System       SystemConfig       `yaml:"system" mapstructure:"system"`
	Authority    AuthorityConfig    `yaml:"authority" mapstructure:"authority"`
}

// LLMConfig configures the text-generation gateway
type LLMConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider"` // openai, deepseek, anthropic, ollama
	APIKey            string  `yaml:"api_key" mapstructure:"api_key"`
	Model             string  `yaml:"model" mapstructure:"model"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens"`
	Timeout           int     `yaml:"timeout" mapstructure:"timeout"` // seconds
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int     `yaml:"burst" mapstructure:"burst"`
	CacheTTL          int     `yaml:"cache_ttl" mapstructure:"cache_ttl"` // seconds, 0 disables
	HTTPProxy         string  `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string  `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
}

// VectorDBConfig configures the embedding similarity store
type VectorDBConfig struct {
	Backend          string `yaml:"backend" mapstructure:"backend"` // memory, sqlite, postgres
	EmbeddingModel   string `yaml:"embedding_model" mapstructure:"embedding_model"`
	EmbeddingBaseURL string `yaml:"embedding_base_url,omitempty" mapstructure:"embedding_base_url"`
	EmbeddingAPIKey  string `yaml:"embedding_api_key,omitempty" mapstructure:"embedding_api_key"`
	DBPath           string `yaml:"db_path" mapstructure:"db_path"`
	DSN              string `yaml:"dsn,omitempty" mapstructure:"dsn"` // postgres only
	CollectionName   string `yaml:"collection_name" mapstructure:"collection_name"`
	CacheDir         string `yaml:"cache_dir,omitempty" mapstructure:"cache_dir"` // embedding disk cache
}

// RetrievalConfig configures evidence retrieval
type RetrievalConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold" mapstructure:"similarity_threshold"`
	MaxRetrievedDocs    int     `yaml:"max_retrieved_docs" mapstructure:"max_retrieved_docs"`
	ChunkSize           int     `yaml:"chunk_size" mapstructure:"chunk_size"`
	ChunkOverlap        int     `yaml:"chunk_overlap" mapstructure:"chunk_overlap"`
}

// VerificationConfig configures claim verification
type VerificationConfig struct {
	ConfidenceThreshold     float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	MaxVerificationAttempts int     `yaml:"max_verification_attempts" mapstructure:"max_verification_attempts"`
}

// IntentConfig configures intent classification
type IntentConfig struct {
	SupportedIntents []string `yaml:"supported_intents" mapstructure:"supported_intents"`
	DefaultIntent    string   `yaml:"default_intent" mapstructure:"default_intent"`
}

// PipelineConfig configures per-run execution
type PipelineConfig struct {
	ClaimWorkers int `yaml:"claim_workers" mapstructure:"claim_workers"` // 1 = sequential
}

// BatchConfig configures multi-query processing
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"` // 1 = sequential
}

// ServerConfig configures the HTTP service
type ServerConfig struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
}

// SystemConfig holds process-wide settings
type SystemConfig struct {
	LogLevel  string `yaml:"log_level" mapstructure:"log_level"`
	LogFormat string `yaml:"log_format" mapstructure:"log_format"` // json, console
}

// AuthorityConfig configures source authority classification
type AuthorityConfig struct {
	PrimaryDomains   []string      `yaml:"primary_domains" mapstructure:"primary_domains"`
	SecondaryDomains []string      `yaml:"secondary_domains" mapstructure:"secondary_domains"`
	PathPatterns     []PathPattern `yaml:"path_patterns" mapstructure:"path_patterns"`
}

// PathPattern assigns a tier to URLs whose path matches Pattern
type PathPattern struct {
	Pattern string `yaml:"pattern" mapstructure:"pattern"`
	Tier    string `yaml:"tier" mapstructure:"tier"` // primary, secondary, tertiary
}

// Providers that need no API key
var keylessProviders = map[string]bool{"ollama": true}

// SupportedProviders lists the gateway providers
var SupportedProviders = []string{"openai", "deepseek", "anthropic", "claude", "ollama"}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	intents := make([]string, len(DefaultIntents))
	for i, in := range DefaultIntents {
		intents[i] = string(in)
	}

	return &Config{
		LLM: LLMConfig{
			Provider:          "deepseek",
			Model:             "deepseek-chat",
			BaseURL:           "https://api.deepseek.com/v1",
			Temperature:       0.1,
			MaxTokens:         1000,
			Timeout:           30,
			MaxRetries:        3,
			RequestsPerSecond: 2,
			Burst:             4,
		},
		VectorDB: VectorDBConfig{
			Backend:        "sqlite",
			EmbeddingModel: "text-embedding-3-small",
			DBPath:         "./data/vector_db",
			CollectionName: "knowledge_base",
		},
		Retrieval: RetrievalConfig{
			SimilarityThreshold: 0.7,
			MaxRetrievedDocs:    5,
			ChunkSize:           1000,
			ChunkOverlap:        200,
		},
		Verification: VerificationConfig{
			ConfidenceThreshold:     0.8,
			MaxVerificationAttempts: 3,
		},
		Intent: IntentConfig{
			SupportedIntents: intents,
			DefaultIntent:    string(IntentFactual),
		},
		Pipeline: PipelineConfig{ClaimWorkers: 1},
		Batch:    BatchConfig{Concurrency: 1},
		Server:   ServerConfig{Addr: ":8080"},
		System: SystemConfig{
			LogLevel:  "info",
			LogFormat: "console",
		},
		Authority: AuthorityConfig{
			PrimaryDomains: []string{
				"legislation.gov.uk", "congress.gov", "eur-lex.europa.eu",
				"nih.gov", "who.int", "arxiv.org", "doi.org", "python.org",
			},
			SecondaryDomains: []string{
				"wikipedia.org", "britannica.com", "nature.com", "reuters.com",
				"apnews.com", "bbc.co.uk", "nytimes.com",
			},
			PathPatterns: []PathPattern{
				{Pattern: `\.gov(\.[a-z]{2})?/`, Tier: "primary"},
				{Pattern: `\.edu/`, Tier: "primary"},
				{Pattern: `/docs?/`, Tier: "secondary"},
			},
		},
	}
}

// Intents returns the configured intent set, normalized
func (c *Config) Intents() []Intent {
	out := make([]Intent, 0, len(c.Intent.SupportedIntents))
	for _, s := range c.Intent.SupportedIntents {
		if in := NormalizeIntent(s); in != "" {
			out = append(out, in)
		}
	}
	return out
}

// RequiresAPIKey reports whether the configured provider needs credentials
func (c *Config) RequiresAPIKey() bool {
	return !keylessProviders[strings.ToLower(c.LLM.Provider)]
}

// Validate checks the configuration. Fatal problems are returned joined
// in err; recoverable issues are returned as warnings.
func (c *Config) Validate() (warnings []string, err error) {
	var errs []error

	provider := strings.ToLower(c.LLM.Provider)
	known := false
	for _, p := range SupportedProviders {
		if p == provider {
			known = true
			break
		}
	}
	if !known {
		errs = append(errs, fmt.Errorf("llm.provider %q is not supported (supported: %s)", c.LLM.Provider, strings.Join(SupportedProviders, ", ")))
	} else if c.RequiresAPIKey() && c.LLM.APIKey == "" {
		errs = append(errs, fmt.Errorf("llm.api_key is required for provider %q", c.LLM.Provider))
	}
	if c.LLM.Model == "" {
		warnings = append(warnings, "llm.model not set, provider default will be used")
	}

	switch c.VectorDB.Backend {
	case "memory":
	case "", "sqlite":
		if c.VectorDB.DBPath == "" {
			warnings = append(warnings, "vector_db.db_path not set, using ./data/vector_db")
		}
	case "postgres":
		if c.VectorDB.DSN == "" {
			errs = append(errs, errors.New("vector_db.dsn is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("vector_db.backend %q is not supported (supported: memory, sqlite, postgres)", c.VectorDB.Backend))
	}

	if t := c.Retrieval.SimilarityThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("retrieval.similarity_threshold %.2f outside [0,1]", t))
	}
	if c.Retrieval.MaxRetrievedDocs <= 0 {
		errs = append(errs, errors.New("retrieval.max_retrieved_docs must be positive"))
	}
	if c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize && c.Retrieval.ChunkSize > 0 {
		errs = append(errs, errors.New("retrieval.chunk_overlap must be smaller than chunk_size"))
	}
	if t := c.Verification.ConfidenceThreshold; t < 0 || t > 1 {
		errs = append(errs, fmt.Errorf("verification.confidence_threshold %.2f outside [0,1]", t))
	}

	intents := c.Intents()
	if len(intents) == 0 {
		errs = append(errs, errors.New("intent.supported_intents must not be empty"))
	} else {
		def := NormalizeIntent(c.Intent.DefaultIntent)
		found := false
		for _, in := range intents {
			if in == def {
				found = true
				break
			}
		}
		if !found {
			errs = append(errs, fmt.Errorf("intent.default_intent %q is not in supported_intents", c.Intent.DefaultIntent))
		}
	}

	return warnings, errors.Join(errs...)
}
