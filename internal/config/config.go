// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (OPENAI_API_KEY, OPENAI_BASE_URL, EMBEDDING_KEY,
//     EMBEDDING_BASE_URL, ...)
//  2. Config file (~/.ragent/config.yaml, or an explicit path)
//  3. Default values
//
// Categories:
//   - Chat: OpenAI-compatible chat completion endpoint and model
//   - Embedding: OpenAI-compatible embeddings endpoint and model
//     (falls back to the chat credentials when unset)
//   - RAG: knowledge directory and retrieval depth
//   - MCP: stdio tool servers to spawn, with allow/exclude filtering
//
// Sensitive values (API keys) are never logged.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrMissingAPIKey indicates no chat API key was configured.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidTopK indicates the retrieval depth is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidBaseURL indicates an endpoint base URL is malformed.
	ErrInvalidBaseURL = errors.New("invalid base URL")

	// ErrInvalidMCPServer indicates an MCP server entry is incomplete.
	ErrInvalidMCPServer = errors.New("invalid MCP server")

	// ErrUnresolvedEnv indicates a $VAR reference in an MCP server env
	// could not be resolved from the environment.
	ErrUnresolvedEnv = errors.New("unresolved environment variable")

	// ErrInvalidRate indicates a negative embedding request rate.
	ErrInvalidRate = errors.New("invalid embedding_rps")
)

// Defaults applied when neither the environment nor the config file
// provides a value.
const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultChatModel      = "gpt-4o-mini"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultKnowledgeDir   = "knowledge"
	DefaultTopK           = 3

	// MaxTopK bounds retrieval depth; the corpus is a handful of
	// documents, anything larger is a configuration mistake.
	MaxTopK = 100
)

// MCPServer describes one stdio MCP server to spawn.
type MCPServer struct {
	// Command is the executable to run (e.g. "uvx", "npx").
	Command string `mapstructure:"command"`

	// Args are passed to the command.
	Args []string `mapstructure:"args"`

	// Env holds extra environment variables for the subprocess.
	// Values may reference the parent environment as "$VAR".
	Env map[string]string `mapstructure:"env"`
}

// Config stores application configuration.
type Config struct {
	// Chat completion endpoint.
	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	OpenAIBaseURL string `mapstructure:"openai_base_url"`
	ChatModel     string `mapstructure:"chat_model"`

	// Embeddings endpoint. Empty key/URL fall back to the chat values.
	EmbeddingKey     string `mapstructure:"embedding_key"`
	EmbeddingBaseURL string `mapstructure:"embedding_base_url"`
	EmbeddingModel   string `mapstructure:"embedding_model"`

	// RAG settings. EmbeddingRPS paces bulk indexing requests against
	// rate-limited embedding providers; 0 disables pacing.
	KnowledgeDir string  `mapstructure:"knowledge_dir"`
	TopK         int     `mapstructure:"top_k"`
	EmbeddingRPS float64 `mapstructure:"embedding_rps"`

	// SystemPrompt seeds the conversation when set.
	SystemPrompt string `mapstructure:"system_prompt"`

	// MCP servers, keyed by name. AllowedServers/ExcludedServers filter
	// which entries are spawned; exclusion wins over allowance.
	MCPServers      map[string]MCPServer `mapstructure:"mcp_servers"`
	AllowedServers  []string             `mapstructure:"mcp_allowed"`
	ExcludedServers []string             `mapstructure:"mcp_excluded"`
}

// Load reads configuration from the environment and an optional config
// file. When path is empty, ~/.ragent/config.yaml is used if present; a
// missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("openai_base_url", DefaultBaseURL)
	v.SetDefault("chat_model", DefaultChatModel)
	v.SetDefault("embedding_model", DefaultEmbeddingModel)
	v.SetDefault("knowledge_dir", DefaultKnowledgeDir)
	v.SetDefault("top_k", DefaultTopK)

	// Environment bindings keep the variable names of the original
	// project so existing .env setups keep working.
	bindings := map[string]string{
		"openai_api_key":     "OPENAI_API_KEY",
		"openai_base_url":    "OPENAI_BASE_URL",
		"chat_model":         "CHAT_MODEL",
		"embedding_key":      "EMBEDDING_KEY",
		"embedding_base_url": "EMBEDDING_BASE_URL",
		"embedding_model":    "EMBEDDING_MODEL",
		"embedding_rps":      "EMBEDDING_RPS",
		"knowledge_dir":      "KNOWLEDGE_DIR",
	}
	for key, env := range bindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			v.AddConfigPath(filepath.Join(home, ".ragent"))
			if err := v.ReadInConfig(); err != nil {
				var notFound viper.ConfigFileNotFoundError
				if !errors.As(err, &notFound) {
					return nil, fmt.Errorf("reading config: %w", err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	// The embeddings endpoint usually shares credentials with the chat
	// endpoint; only override when explicitly configured.
	if cfg.EmbeddingKey == "" {
		cfg.EmbeddingKey = cfg.OpenAIAPIKey
	}
	if cfg.EmbeddingBaseURL == "" {
		cfg.EmbeddingBaseURL = cfg.OpenAIBaseURL
	}

	return &cfg, nil
}

// Validate checks the configuration for values that would only fail
// later with a confusing API error. The chat API key is checked
// separately by ValidateChat: retrieve-only and serve-only commands
// never touch the chat endpoint.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.EmbeddingKey) == "" {
		return fmt.Errorf("%w: set EMBEDDING_KEY or OPENAI_API_KEY", ErrMissingAPIKey)
	}
	if !strings.HasPrefix(c.OpenAIBaseURL, "http://") && !strings.HasPrefix(c.OpenAIBaseURL, "https://") {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.OpenAIBaseURL)
	}
	if !strings.HasPrefix(c.EmbeddingBaseURL, "http://") && !strings.HasPrefix(c.EmbeddingBaseURL, "https://") {
		return fmt.Errorf("%w: %q", ErrInvalidBaseURL, c.EmbeddingBaseURL)
	}
	if strings.TrimSpace(c.ChatModel) == "" {
		return fmt.Errorf("%w: chat_model is empty", ErrInvalidModelName)
	}
	if strings.TrimSpace(c.EmbeddingModel) == "" {
		return fmt.Errorf("%w: embedding_model is empty", ErrInvalidModelName)
	}
	if c.TopK <= 0 || c.TopK > MaxTopK {
		return fmt.Errorf("%w: %d (must be 1..%d)", ErrInvalidTopK, c.TopK, MaxTopK)
	}
	if c.EmbeddingRPS < 0 {
		return fmt.Errorf("%w: %v", ErrInvalidRate, c.EmbeddingRPS)
	}
	for name, srv := range c.MCPServers {
		if strings.TrimSpace(srv.Command) == "" {
			return fmt.Errorf("%w: %q has no command", ErrInvalidMCPServer, name)
		}
	}
	return nil
}

// ValidateChat checks the values only the chat endpoint needs.
func (c *Config) ValidateChat() error {
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return fmt.Errorf("%w: set OPENAI_API_KEY", ErrMissingAPIKey)
	}
	return nil
}

// EnabledServers returns the MCP servers that pass the allow/exclude
// filters, with $VAR references in env values resolved from the parent
// environment. Exclusion takes precedence over allowance.
func (c *Config) EnabledServers() (map[string]MCPServer, error) {
	allowed := toSet(c.AllowedServers)
	excluded := toSet(c.ExcludedServers)

	enabled := make(map[string]MCPServer, len(c.MCPServers))
	for name, srv := range c.MCPServers {
		if excluded[name] {
			continue
		}
		if len(allowed) > 0 && !allowed[name] {
			continue
		}

		resolved, err := resolveEnv(srv.Env)
		if err != nil {
			return nil, fmt.Errorf("server %q: %w", name, err)
		}
		srv.Env = resolved
		enabled[name] = srv
	}
	return enabled, nil
}

// resolveEnv expands "$VAR" values from the parent environment. A
// reference to an unset variable is an error rather than a silent empty
// string, since it is almost always a missing API key.
func resolveEnv(env map[string]string) (map[string]string, error) {
	if len(env) == 0 {
		return env, nil
	}
	resolved := make(map[string]string, len(env))
	for key, value := range env {
		if name, ok := strings.CutPrefix(value, "$"); ok {
			expanded, found := os.LookupEnv(name)
			if !found {
				return nil, fmt.Errorf("%w: %s", ErrUnresolvedEnv, name)
			}
			resolved[key] = expanded
			continue
		}
		resolved[key] = value
	}
	return resolved, nil
}

func toSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
