// Package config loads and validates the onboarding core's runtime
// configuration: retrieval tuning knobs, cache TTLs, classifier thresholds
// and the connection settings for its external collaborators (vector store,
// relational store, cache backend, text generator). Values come from a YAML
// file with environment-variable overrides, following the same
// ServiceEndpoint pattern the rest of the Helix stack uses for its
// infrastructure services.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServiceEndpoint describes a dependency the process connects to over the
// network: host/port or a full URL override, plus health-check tuning.
type ServiceEndpoint struct {
	Host       string        `yaml:"host"`
	Port       string        `yaml:"port"`
	URL        string        `yaml:"url"`
	Enabled    bool          `yaml:"enabled"`
	Required   bool          `yaml:"required"`
	Timeout    time.Duration `yaml:"timeout"`
	RetryCount int           `yaml:"retry_count"`
}

// ResolvedURL returns the URL override if set, otherwise host:port.
func (e ServiceEndpoint) ResolvedURL() string {
	if e.URL != "" {
		return e.URL
	}
	if e.Host == "" {
		return ""
	}
	if e.Port == "" {
		return e.Host
	}
	return e.Host + ":" + e.Port
}

// RetrievalConfig holds ingestion and hybrid search tuning (spec §6).
type RetrievalConfig struct {
	ChunkSize            int     `yaml:"chunk_size"`
	ChunkOverlap          int     `yaml:"chunk_overlap"`
	TopKRetrieval        int     `yaml:"top_k_retrieval"`
	HybridSemanticWeight float64 `yaml:"hybrid_semantic_weight"`
	HybridBM25Weight     float64 `yaml:"hybrid_bm25_weight"`
	HybridCacheTTLSeconds int    `yaml:"hybrid_cache_ttl_seconds"`
	HybridCacheMaxSize   int     `yaml:"hybrid_cache_maxsize"`
	EmbeddingCacheCapacity int   `yaml:"embedding_cache_capacity"`
}

// CacheConfig holds the Two-tier Cache's tuning (spec §4.9).
type CacheConfig struct {
	SemanticCacheTTLHours          int     `yaml:"semantic_cache_ttl_hours"`
	SemanticCacheSimilarityThreshold float64 `yaml:"semantic_cache_similarity_threshold"`
	SemanticCacheScanLimit          int     `yaml:"semantic_cache_scan_limit"`
}

// RoutingConfig holds classifier/router thresholds (spec §6).
type RoutingConfig struct {
	ClassifierConfidenceThreshold float64 `yaml:"classifier_confidence_threshold"`
	ConfidenceHighThreshold       float64 `yaml:"confidence_high_threshold"`
	ConfidenceMediumThreshold     float64 `yaml:"confidence_medium_threshold"`
	ClassifierArtifactPath        string  `yaml:"classifier_artifact_path"`
}

// EscalationConfig holds confidence/escalation engine thresholds (spec §4.11).
type EscalationConfig struct {
	ScoreThreshold          float64 `yaml:"score_threshold"`
	RepeatedQueryThreshold  int     `yaml:"repeated_query_threshold"`
	RepeatedQuerySimilarity float64 `yaml:"repeated_query_similarity"`
}

// LLMConfig configures the Text Generator collaborator (spec §6); the core
// depends only on the string-in/string-out contract, so this is deliberately thin.
type LLMConfig struct {
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	Temperature    float64       `yaml:"temperature"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ConversationConfig bounds per-user conversation memory (spec §3, §6).
type ConversationConfig struct {
	HistoryMax int `yaml:"conversation_history_max"`
}

// PoliciesConfig points ingestion at the on-disk policy corpus (spec §6).
type PoliciesConfig struct {
	Directory string `yaml:"directory"`
}

// Config is the full process-scoped configuration object, constructed once
// at startup and passed by reference (spec §9: no global singletons).
type Config struct {
	Policies     PoliciesConfig     `yaml:"policies"`
	Retrieval    RetrievalConfig    `yaml:"retrieval"`
	Cache        CacheConfig        `yaml:"cache"`
	Routing      RoutingConfig      `yaml:"routing"`
	Escalation   EscalationConfig   `yaml:"escalation"`
	LLM          LLMConfig          `yaml:"llm"`
	Conversation ConversationConfig `yaml:"conversation"`

	VectorStore ServiceEndpoint `yaml:"vector_store"`
	Redis       ServiceEndpoint `yaml:"redis"`
	Postgres    ServiceEndpoint `yaml:"postgres"`

	RetrievalDeadline time.Duration `yaml:"retrieval_deadline"`
	EmbedderDeadline  time.Duration `yaml:"embedder_deadline"`
}

// Default returns a Config populated with the spec's documented defaults.
func Default() *Config {
	return &Config{
		Policies: PoliciesConfig{Directory: "./policies"},
		Retrieval: RetrievalConfig{
			ChunkSize:              500,
			ChunkOverlap:           50,
			TopKRetrieval:          5,
			HybridSemanticWeight:   0.7,
			HybridBM25Weight:       0.3,
			HybridCacheTTLSeconds:  300,
			HybridCacheMaxSize:     1000,
			EmbeddingCacheCapacity: 10000,
		},
		Cache: CacheConfig{
			SemanticCacheTTLHours:            24,
			SemanticCacheSimilarityThreshold: 0.92,
			SemanticCacheScanLimit:           100,
		},
		Routing: RoutingConfig{
			ClassifierConfidenceThreshold: 0.6,
			ConfidenceHighThreshold:       0.7,
			ConfidenceMediumThreshold:     0.4,
			ClassifierArtifactPath:        "./models/question_router.json",
		},
		Escalation: EscalationConfig{
			ScoreThreshold:          0.5,
			RepeatedQueryThreshold:  2,
			RepeatedQuerySimilarity: 0.8,
		},
		LLM: LLMConfig{
			Provider:       "stub",
			Temperature:    0.1,
			RequestTimeout: 30 * time.Second,
		},
		Conversation: ConversationConfig{HistoryMax: 10},
		VectorStore: ServiceEndpoint{Host: "localhost", Port: "6334", Enabled: true, Required: true, Timeout: 5 * time.Second},
		Redis:       ServiceEndpoint{Host: "localhost", Port: "6379", Enabled: true, Timeout: 2 * time.Second},
		Postgres:    ServiceEndpoint{Host: "localhost", Port: "5432", Enabled: true, Timeout: 5 * time.Second},

		RetrievalDeadline: 2 * time.Second,
		EmbedderDeadline:  1 * time.Second,
	}
}

// Load reads a YAML config file (if present), applies it over the defaults,
// then applies environment-variable overrides (HELIX_ONBOARDING_*). A
// missing file is not an error: the defaults stand on their own.
func Load(path string) (*Config, error) {
	_ = godotenv.Load() // best-effort; absence of a .env file is normal in prod

	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HELIX_ONBOARDING_POLICIES_DIR"); v != "" {
		cfg.Policies.Directory = v
	}
	if v := os.Getenv("HELIX_ONBOARDING_VECTORSTORE_HOST"); v != "" {
		cfg.VectorStore.Host = v
	}
	if v := os.Getenv("HELIX_ONBOARDING_VECTORSTORE_PORT"); v != "" {
		cfg.VectorStore.Port = v
	}
	if v := os.Getenv("HELIX_ONBOARDING_REDIS_HOST"); v != "" {
		cfg.Redis.Host = v
	}
	if v := os.Getenv("HELIX_ONBOARDING_REDIS_PORT"); v != "" {
		cfg.Redis.Port = v
	}
	if v := os.Getenv("HELIX_ONBOARDING_POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("HELIX_ONBOARDING_LLM_PROVIDER"); v != "" {
		cfg.LLM.Provider = v
	}
	if v := os.Getenv("HELIX_ONBOARDING_CLASSIFIER_ARTIFACT"); v != "" {
		cfg.Routing.ClassifierArtifactPath = v
	}
	if v := os.Getenv("HELIX_ONBOARDING_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Retrieval.TopKRetrieval = n
		}
	}
}

// Validate rejects configurations that would violate the spec's stated invariants.
func (c *Config) Validate() error {
	if c.Retrieval.ChunkSize <= 0 {
		return fmt.Errorf("retrieval.chunk_size must be positive")
	}
	if c.Retrieval.ChunkOverlap < 0 || c.Retrieval.ChunkOverlap >= c.Retrieval.ChunkSize {
		return fmt.Errorf("retrieval.chunk_overlap must be >= 0 and < chunk_size")
	}
	sum := c.Retrieval.HybridSemanticWeight + c.Retrieval.HybridBM25Weight
	if sum < 0.999 || sum > 1.001 {
		return fmt.Errorf("hybrid_semantic_weight + hybrid_bm25_weight must sum to 1, got %f", sum)
	}
	if c.Routing.ConfidenceMediumThreshold > c.Routing.ConfidenceHighThreshold {
		return fmt.Errorf("confidence_medium_threshold must be <= confidence_high_threshold")
	}
	return nil
}
