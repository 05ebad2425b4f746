package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all deepreport configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// LLM used by the planner, filter, evaluator, writer and chart extraction
	LLM LLMConfig `yaml:"llm"`

	// Embedding backend for the knowledge base and evidence indexes
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Web search provider
	Web WebConfig `yaml:"web"`

	// Chart rendering service
	Chart ChartConfig `yaml:"chart"`

	// On-disk locations
	Storage StorageConfig `yaml:"storage"`

	// Orchestrator policy knobs
	Workflow WorkflowConfig `yaml:"workflow"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// LLMConfig configures the language-model backend.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, dashscope, gemini
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	BaseURL     string  `yaml:"base_url"`
	Timeout     string  `yaml:"timeout"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"` // ollama, genai, hash
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`
	GenAIAPIKey    string `yaml:"genai_api_key"`
	GenAIModel     string `yaml:"genai_model"`
	TaskType       string `yaml:"task_type"`
	Dimensions     int    `yaml:"dimensions"` // hash provider only
}

// WebConfig configures web search.
type WebConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Provider     string `yaml:"provider"` // duckduckgo, tavily
	TavilyAPIKey string `yaml:"tavily_api_key"`
	Timeout      string `yaml:"timeout"`
	CacheTTL     string `yaml:"cache_ttl"`
	CacheSize    int    `yaml:"cache_size"`
	FetchPages   string `yaml:"fetch_pages"` // none, http, rod
	FetchChars   int    `yaml:"fetch_chars"`
}

// ChartConfig configures the chart renderer.
type ChartConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BaseURL   string `yaml:"base_url"`
	ShortURLs bool   `yaml:"short_urls"` // register charts via /chart/create instead of inline config URLs
}

// StorageConfig configures on-disk locations.
type StorageConfig struct {
	DataDir      string `yaml:"data_dir"`
	KnowledgeDB  string `yaml:"knowledge_db"`
	EvidenceDir  string `yaml:"evidence_dir"`
	DocumentsDir string `yaml:"documents_dir"`
	LogsDir      string `yaml:"logs_dir"`
	ChunkSize    int    `yaml:"chunk_size"`
	ChunkOverlap int    `yaml:"chunk_overlap"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:    "deepreport",
		Version: "0.3.0",

		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			BaseURL:     "https://api.openai.com/v1",
			Timeout:     "180s",
			Temperature: 0.3,
			MaxTokens:   4096,
		},

		Embedding: EmbeddingConfig{
			Provider:       "ollama",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			TaskType:       "RETRIEVAL_DOCUMENT",
			Dimensions:     256,
		},

		Web: WebConfig{
			Enabled:    true,
			Provider:   "duckduckgo",
			Timeout:    "30s",
			CacheTTL:   "30m",
			CacheSize:  500,
			FetchPages: "none",
			FetchChars: 4000,
		},

		Chart: ChartConfig{
			Enabled: true,
			BaseURL: "https://quickchart.io",
		},

		Storage: StorageConfig{
			DataDir:      "data",
			KnowledgeDB:  "knowledge.db",
			EvidenceDir:  "evidence",
			DocumentsDir: "documents",
			LogsDir:      "logs",
			ChunkSize:    1000,
			ChunkOverlap: 200,
		},

		Workflow: DefaultWorkflowConfig(),

		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return defaults if config file doesn't exist
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" && c.LLM.APIKey == "" {
		c.LLM.APIKey = key
	}
	if key := os.Getenv("DASHSCOPE_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.LLM.Provider = "dashscope"
		if c.LLM.BaseURL == "" || c.LLM.BaseURL == DefaultConfig().LLM.BaseURL {
			c.LLM.BaseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1"
		}
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		if c.LLM.Provider == "gemini" && c.LLM.APIKey == "" {
			c.LLM.APIKey = key
		}
		if c.Embedding.GenAIAPIKey == "" {
			c.Embedding.GenAIAPIKey = key
		}
	}
	if key := os.Getenv("TAVILY_API_KEY"); key != "" {
		c.Web.TavilyAPIKey = key
		c.Web.Provider = "tavily"
	}
	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.OllamaEndpoint = host
	}
	if dir := os.Getenv("DEEPREPORT_DATA_DIR"); dir != "" {
		c.Storage.DataDir = dir
	}
}

// GetLLMTimeout returns the LLM timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 180*time.Second)
}

// GetWebTimeout returns the web search timeout as a duration.
func (c *Config) GetWebTimeout() time.Duration {
	return parseDuration(c.Web.Timeout, 30*time.Second)
}

// GetWebCacheTTL returns the web search cache TTL as a duration.
func (c *Config) GetWebCacheTTL() time.Duration {
	return parseDuration(c.Web.CacheTTL, 30*time.Minute)
}

// KnowledgeDBPath returns the main knowledge index database path.
func (c *Config) KnowledgeDBPath() string {
	return c.resolve(c.Storage.KnowledgeDB)
}

// EvidenceDir returns the directory holding per-task evidence indexes.
func (c *Config) EvidenceDir() string {
	return c.resolve(c.Storage.EvidenceDir)
}

// DocumentsDir returns the directory ingested into the knowledge base.
func (c *Config) DocumentsDir() string {
	return c.resolve(c.Storage.DocumentsDir)
}

// LogsDir returns the log directory.
func (c *Config) LogsDir() string {
	return c.resolve(c.Storage.LogsDir)
}

func (c *Config) resolve(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Storage.DataDir, p)
}

// ValidProviders lists all supported LLM providers.
var ValidProviders = []string{"openai", "dashscope", "gemini"}

// ValidEmbeddingProviders lists all supported embedding providers.
var ValidEmbeddingProviders = []string{"ollama", "genai", "hash"}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key not configured (set OPENAI_API_KEY, DASHSCOPE_API_KEY or GEMINI_API_KEY)")
	}
	if !contains(ValidProviders, c.LLM.Provider) {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}
	if !contains(ValidEmbeddingProviders, c.Embedding.Provider) {
		return fmt.Errorf("invalid embedding provider: %s (valid: %v)", c.Embedding.Provider, ValidEmbeddingProviders)
	}
	switch c.Web.Provider {
	case "duckduckgo":
	case "tavily":
		if c.Web.TavilyAPIKey == "" {
			return fmt.Errorf("web provider tavily requires tavily_api_key or TAVILY_API_KEY")
		}
	default:
		return fmt.Errorf("invalid web provider: %s (valid: duckduckgo, tavily)", c.Web.Provider)
	}
	switch c.Web.FetchPages {
	case "", "none", "http", "rod":
	default:
		return fmt.Errorf("invalid web.fetch_pages: %s (valid: none, http, rod)", c.Web.FetchPages)
	}
	return c.Workflow.Validate()
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
