package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

// Config root configuration
type Config struct {
	Sandbox   SandboxConfig   `mapstructure:"sandbox" json:"sandbox"`
	Gateway   GatewayConfig   `mapstructure:"gateway" json:"gateway"`
	Log       LogConfig       `mapstructure:"log" json:"log"`
	Actions   ActionsConfig   `mapstructure:"actions" json:"actions"`
	Agent     AgentConfig     `mapstructure:"agent" json:"agent"`
	Providers ProvidersConfig `mapstructure:"providers" json:"providers"`
}

// SandboxConfig sandbox settings
type SandboxConfig struct {
	Root string `mapstructure:"root" json:"root"`
}

// GatewayConfig server settings
type GatewayConfig struct {
	Host  string `mapstructure:"host" json:"host"`
	Port  int    `mapstructure:"port" json:"port"`
	Token string `mapstructure:"token" json:"token"`
}

// LogConfig application logging settings
type LogConfig struct {
	Level  string `mapstructure:"level" json:"level"`
	Format string `mapstructure:"format" json:"format"`
	File   string `mapstructure:"file" json:"file"`
}

// ActionsConfig action settings
type ActionsConfig struct {
	TimeoutSeconds int                 `mapstructure:"timeout_seconds" json:"timeout_seconds"`
	FetchMaxBytes  int                 `mapstructure:"fetch_max_bytes" json:"fetch_max_bytes"`
	Git            GitConfig           `mapstructure:"git" json:"git"`
	DuckDB         DuckDBConfig        `mapstructure:"duckdb" json:"duckdb"`
	Transcription  TranscriptionConfig `mapstructure:"transcription" json:"transcription"`
}

// GitConfig clone-and-commit settings
type GitConfig struct {
	Binary  string `mapstructure:"binary" json:"binary"`
	RepoDir string `mapstructure:"repo_dir" json:"repo_dir"`
}

// DuckDBConfig duckdb CLI settings
type DuckDBConfig struct {
	Binary string `mapstructure:"binary" json:"binary"`
}

// TranscriptionConfig speech-to-text endpoint settings
type TranscriptionConfig struct {
	APIKey  string `mapstructure:"api_key" json:"api_key"`
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	Model   string `mapstructure:"model" json:"model"`
}

// AgentConfig task agent parameters
type AgentConfig struct {
	Model             string  `mapstructure:"model" json:"model"`
	MaxTokens         int     `mapstructure:"max_tokens" json:"max_tokens"`
	Temperature       float64 `mapstructure:"temperature" json:"temperature"`
	MaxToolIterations int     `mapstructure:"max_tool_iterations" json:"max_tool_iterations"`
}

// ProvidersConfig LLM provider settings
type ProvidersConfig struct {
	OpenRouter ProviderConfig `mapstructure:"openrouter" json:"openrouter"`
	Claude     ProviderConfig `mapstructure:"claude" json:"claude"`
	OpenAI     ProviderConfig `mapstructure:"openai" json:"openai"`
	DeepSeek   ProviderConfig `mapstructure:"deepseek" json:"deepseek"`
	Ollama     ProviderConfig `mapstructure:"ollama" json:"ollama"`
}

// ProviderConfig single provider settings
type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" json:"api_key"`
	BaseURL string `mapstructure:"base_url" json:"base_url"`
}

// DefaultConfig returns config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Sandbox: SandboxConfig{
			Root: filepath.Join(ConfigDir(), "sandbox"),
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 8000,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Actions: ActionsConfig{
			TimeoutSeconds: 60,
			FetchMaxBytes:  10 * 1024 * 1024,
			Git: GitConfig{
				Binary:  "git",
				RepoDir: "repo",
			},
			DuckDB: DuckDBConfig{
				Binary: "duckdb",
			},
			Transcription: TranscriptionConfig{
				Model: "whisper-1",
			},
		},
		Agent: AgentConfig{
			Model:             "gpt-4o-mini",
			MaxTokens:         4096,
			Temperature:       0.2,
			MaxToolIterations: 10,
		},
		Providers: ProvidersConfig{},
	}
}

var (
	pathMu       sync.RWMutex
	pathOverride string
)

// SetConfigPath points Load and Save at an explicit file instead of the
// default location. An empty path restores the default.
func SetConfigPath(path string) {
	pathMu.Lock()
	defer pathMu.Unlock()
	pathOverride = strings.TrimSpace(path)
}

// ConfigDir returns the taskgate config directory
func ConfigDir() string {
	homeDir, _ := os.UserHomeDir()
	return filepath.Join(homeDir, ".taskgate")
}

// ConfigPath returns the config file path
func ConfigPath() string {
	pathMu.RLock()
	override := pathOverride
	pathMu.RUnlock()
	if override != "" {
		return override
	}
	return filepath.Join(ConfigDir(), "config.json")
}

// Load loads config from file or returns defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	configPath := ConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := Save(cfg); err != nil {
			return cfg, fmt.Errorf("failed to create default config: %w", err)
		}
		return cfg, nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("TASKGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return cfg, err
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.MatchName = func(mapKey, fieldName string) bool {
			return normalizeKey(mapKey) == normalizeKey(fieldName)
		}
	}); err != nil {
		return cfg, err
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func normalizeKey(input string) string {
	input = strings.ReplaceAll(input, "_", "")
	input = strings.ReplaceAll(input, "-", "")
	return strings.ToLower(input)
}

// Save saves config to file
func Save(cfg *Config) error {
	configPath := ConfigPath()

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}

// Validate checks that the configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	root := strings.TrimSpace(c.Sandbox.Root)
	if root == "" {
		return fmt.Errorf("sandbox.root must be non-empty")
	}
	root, err := expandHome(root)
	if err != nil {
		return err
	}
	if !filepath.IsAbs(root) {
		return fmt.Errorf("sandbox.root must be an absolute path, got %q", c.Sandbox.Root)
	}
	c.Sandbox.Root = filepath.Clean(root)

	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("gateway.port must be between 1 and 65535, got %d", c.Gateway.Port)
	}

	level := strings.ToLower(strings.TrimSpace(c.Log.Level))
	if level == "" {
		c.Log.Level = "info"
	} else {
		validLevels := map[string]bool{
			"debug": true,
			"info":  true,
			"warn":  true,
			"error": true,
		}
		if !validLevels[level] {
			return fmt.Errorf("log.level must be one of debug, info, warn, error; got %q", c.Log.Level)
		}
		c.Log.Level = level
	}
	switch format := strings.ToLower(strings.TrimSpace(c.Log.Format)); format {
	case "":
		c.Log.Format = "text"
	case "text", "json":
		c.Log.Format = format
	default:
		return fmt.Errorf("log.format must be text or json; got %q", c.Log.Format)
	}

	a := &c.Actions
	if a.TimeoutSeconds < 0 {
		return fmt.Errorf("actions.timeout_seconds must not be negative, got %d", a.TimeoutSeconds)
	}
	if a.TimeoutSeconds == 0 {
		a.TimeoutSeconds = 60
	}
	if a.FetchMaxBytes < 0 {
		return fmt.Errorf("actions.fetch_max_bytes must not be negative, got %d", a.FetchMaxBytes)
	}
	if a.FetchMaxBytes == 0 {
		a.FetchMaxBytes = 10 * 1024 * 1024
	}
	if strings.TrimSpace(a.Git.Binary) == "" {
		a.Git.Binary = "git"
	}
	repoDir := strings.TrimSpace(a.Git.RepoDir)
	if repoDir == "" {
		repoDir = "repo"
	}
	if filepath.IsAbs(repoDir) || strings.HasPrefix(filepath.Clean(repoDir), "..") {
		return fmt.Errorf("actions.git.repo_dir must be relative to sandbox.root, got %q", a.Git.RepoDir)
	}
	a.Git.RepoDir = filepath.Clean(repoDir)
	if strings.TrimSpace(a.DuckDB.Binary) == "" {
		a.DuckDB.Binary = "duckdb"
	}
	if strings.TrimSpace(a.Transcription.Model) == "" {
		a.Transcription.Model = "whisper-1"
	}

	g := &c.Agent
	if g.MaxToolIterations < 0 {
		return fmt.Errorf("agent.max_tool_iterations must not be negative, got %d", g.MaxToolIterations)
	}
	if g.MaxToolIterations == 0 {
		g.MaxToolIterations = 10
	}
	if g.Temperature < 0 || g.Temperature > 2.0 {
		return fmt.Errorf("agent.temperature must be between 0 and 2.0, got %f", g.Temperature)
	}
	if g.MaxTokens <= 0 {
		return fmt.Errorf("agent.max_tokens must be > 0, got %d", g.MaxTokens)
	}

	return nil
}

func expandHome(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory for %q: %w", path, err)
	}
	rest := strings.TrimPrefix(path[1:], string(filepath.Separator))
	rest = strings.TrimPrefix(rest, "/")
	return filepath.Join(homeDir, rest), nil
}
