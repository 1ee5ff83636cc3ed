package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"docrag/internal/crypto"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLMConfig configures the chat completion client. BaseURL may point at any
// OpenAI-compatible endpoint (OpenAI itself, an Ollama /v1 endpoint, or an
// academic gateway).
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
}

// EmbeddingConfig configures the embedding provider and the batching stage.
type EmbeddingConfig struct {
	Provider    string `yaml:"provider"` // "openai" or "huggingface"
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
	MaxRetries  int    `yaml:"max_retries"`
}

// ChunkerConfig configures how document text is split into token windows.
type ChunkerConfig struct {
	MaxTokens int    `yaml:"max_tokens"`
	Overlap   int    `yaml:"overlap"`
	Encoding  string `yaml:"encoding"`
}

// RetrievalConfig configures query-time search.
type RetrievalConfig struct {
	Mode    string `yaml:"mode"`    // "vector", "bm25", or "hybrid"
	Scoring string `yaml:"scoring"` // "cosine" or "dot"
	TopK    int    `yaml:"top_k"`
	Dedup   bool   `yaml:"dedup"` // keep at most one chunk per document
}

// StoreConfig locates the on-disk index store.
type StoreConfig struct {
	DataDir string `yaml:"data_dir"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Chunker   ChunkerConfig   `yaml:"chunker"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Store     StoreConfig     `yaml:"store"`
}

// Load reads a config from a specified path. If the file does not exist,
// returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault loads .env, then tries ./docrag.yaml, then
// ~/.config/docrag/config.yaml. If neither config exists, it writes defaults
// to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	_ = godotenv.Load() // ignore error if .env doesn't exist

	cwdPath := "docrag.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// APIKey resolves an API key: environment variable named by envName first,
// then the encrypted keys file under dataDir. Returns "" if neither is set.
func APIKey(dataDir, envName, provider string) string {
	if envName != "" {
		if v := os.Getenv(envName); v != "" {
			return v
		}
	}
	// Fallback env var shared by every OpenAI-compatible component
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && provider != "huggingface" {
		return v
	}
	keys := LoadKeys(dataDir)
	return keys[provider]
}

// SaveKeys persists provider API keys to dataDir/keys.json, encrypted at rest.
func SaveKeys(dataDir string, keys map[string]string) error {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return err
	}
	enc, err := crypto.EncryptMap(keys)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(enc, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dataDir, "keys.json"), data, 0o600)
}

// LoadKeys reads and decrypts the keys file. Missing file yields an empty map.
func LoadKeys(dataDir string) map[string]string {
	data, err := os.ReadFile(filepath.Join(dataDir, "keys.json"))
	if err != nil {
		return map[string]string{}
	}
	var enc map[string]string
	if err := json.Unmarshal(data, &enc); err != nil {
		return map[string]string{}
	}
	return crypto.DecryptMap(enc)
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "docrag", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		LLM: LLMConfig{
			BaseURL:     "http://localhost:11434/v1",
			APIKeyEnv:   "OPENAI_API_KEY",
			Model:       "llama3.1",
			Temperature: 0.8,
		},
		Embedding: EmbeddingConfig{
			Provider: "openai",
		},
		Chunker: ChunkerConfig{},
		Retrieval: RetrievalConfig{
			Mode:    "hybrid",
			Scoring: "cosine",
			Dedup:   true,
		},
		Store: StoreConfig{DataDir: "data"},
	}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *AppConfig) {
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = "llama3.1"
	}
	if cfg.LLM.APIKeyEnv == "" {
		cfg.LLM.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "openai"
	}
	if cfg.Embedding.Model == "" {
		switch cfg.Embedding.Provider {
		case "huggingface":
			cfg.Embedding.Model = "BAAI/bge-small-en-v1.5"
		default:
			cfg.Embedding.Model = "text-embedding-3-small"
		}
	}
	if cfg.Embedding.APIKeyEnv == "" {
		cfg.Embedding.APIKeyEnv = "EMBEDDING_API_KEY"
	}
	if cfg.Embedding.BatchSize == 0 {
		cfg.Embedding.BatchSize = 200
	}
	if cfg.Embedding.Concurrency == 0 {
		cfg.Embedding.Concurrency = 6
	}
	if cfg.Embedding.MaxRetries == 0 {
		cfg.Embedding.MaxRetries = 5
	}
	if cfg.Chunker.MaxTokens == 0 {
		cfg.Chunker.MaxTokens = 512
	}
	if cfg.Chunker.Overlap == 0 {
		cfg.Chunker.Overlap = 64
	}
	if cfg.Chunker.Encoding == "" {
		cfg.Chunker.Encoding = "cl100k_base"
	}
	if cfg.Retrieval.Mode == "" {
		cfg.Retrieval.Mode = "hybrid"
	}
	if cfg.Retrieval.Scoring == "" {
		cfg.Retrieval.Scoring = "cosine"
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}
	if cfg.Store.DataDir == "" {
		cfg.Store.DataDir = "data"
	}
}
