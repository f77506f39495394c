// Package config handles tabq configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./config.yaml, ~/.config/tabq/config.yaml, /etc/tabq/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"config.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "tabq", "config.yaml"))
	}

	paths = append(paths, "/etc/tabq/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all tabq configuration.
type Config struct {
	Listen    ListenConfig    `yaml:"listen"`
	Models    ModelsConfig    `yaml:"models"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Memory    MemoryConfig    `yaml:"memory"`
	Agent     AgentConfig     `yaml:"agent"`
	DataDir   string          `yaml:"data_dir"`
	LogLevel  string          `yaml:"log_level"`
}

// ListenConfig defines the HTTP server settings.
type ListenConfig struct {
	Address string `yaml:"address"` // Bind address (default: "" = all interfaces)
	Port    int    `yaml:"port"`
}

// ModelsConfig defines model and provider routing settings.
type ModelsConfig struct {
	Default   string        `yaml:"default"`
	OllamaURL string        `yaml:"ollama_url"`
	Available []ModelConfig `yaml:"available"`
}

// ModelConfig maps a model name to its provider.
type ModelConfig struct {
	Name     string `yaml:"name"`
	Provider string `yaml:"provider"` // openai, anthropic, ollama
}

// OpenAIConfig defines OpenAI API settings.
type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"` // optional, for compatible gateways
}

// AnthropicConfig defines Anthropic API settings.
type AnthropicConfig struct {
	APIKey string `yaml:"api_key"`
}

// DatasetConfig controls CSV loading limits and parsing defaults.
type DatasetConfig struct {
	// Path is a CSV file to load at startup (optional).
	Path string `yaml:"path"`
	// MaxFileSizeMB caps the on-disk size accepted by the loader.
	MaxFileSizeMB int `yaml:"max_file_size_mb"`
	// Delimiter is the field separator (default ",").
	Delimiter string `yaml:"delimiter"`
	// MaxResultRows limits rows included in tool output sent to the LLM.
	MaxResultRows int `yaml:"max_result_rows"`
}

// MemoryConfig controls conversation memory retention.
type MemoryConfig struct {
	// MaxMessages is the per-conversation cap before trimming.
	MaxMessages int `yaml:"max_messages"`
	// ArchivePath is the SQLite file for persisted transcripts.
	// If empty, <data_dir>/archive.db is used; if data_dir is also
	// empty, archiving is disabled.
	ArchivePath string `yaml:"archive_path"`
}

// AgentConfig controls the question-answering loop.
type AgentConfig struct {
	// MaxToolIterations bounds the tool-call round trips per question.
	MaxToolIterations int `yaml:"max_tool_iterations"`
	// Gate enables the CSV-relatedness check that declines off-topic
	// questions without calling the LLM.
	Gate bool `yaml:"gate"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables so API keys can live in the env.
	expanded := os.ExpandEnv(string(data))

	cfg := Default()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{Port: 8080},
		Models: ModelsConfig{
			Default:   "gpt-4o-mini",
			OllamaURL: "http://localhost:11434",
			Available: []ModelConfig{
				{Name: "gpt-4o-mini", Provider: "openai"},
				{Name: "gpt-4o", Provider: "openai"},
				{Name: "claude-sonnet-4-20250514", Provider: "anthropic"},
			},
		},
		Dataset: DatasetConfig{
			MaxFileSizeMB: 100,
			Delimiter:     ",",
			MaxResultRows: 10,
		},
		Memory: MemoryConfig{MaxMessages: 60},
		Agent: AgentConfig{
			MaxToolIterations: 5,
			Gate:              true,
		},
	}
}
