package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Config is the root configuration for askbot.
type Config struct {
	General   GeneralConfig             `json:"general"`
	Source    SourceConfig              `json:"source"`
	Corpus    CorpusConfig              `json:"corpus"`
	Retriever RetrieverConfig           `json:"retriever"`
	Providers map[string]ProviderConfig `json:"providers"`
	Synth     SynthConfig               `json:"synth"`
	Server    ServerConfig              `json:"server"`
	Telegram  TelegramConfig            `json:"telegram"`
	Metrics   MetricsConfig             `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel         string   `json:"logLevel"`  // debug | info | warn | error
	LogFormat        string   `json:"logFormat"` // text | json
	LogFile          string   `json:"logFile,omitempty"`
	FailoverChain    []string `json:"failoverChain"` // provider order for the synthesizer
	MaxQuestionChars int      `json:"maxQuestionChars"`
}

// SourceConfig configures the remote message archive the fetcher paginates.
type SourceConfig struct {
	BaseURL                string `json:"baseUrl"`
	PageSize               int    `json:"pageSize"`
	MaxPages               int    `json:"maxPages"` // safety bound against pagination loops
	TimeoutSeconds         int    `json:"timeoutSeconds"`
	RetryAttempts          int    `json:"retryAttempts"`
	RetryBackoffMS         int    `json:"retryBackoffMs"`
	MaxConsecutiveFailures int    `json:"maxConsecutiveFailures"`
}

type CorpusConfig struct {
	TTLMinutes             int  `json:"ttlMinutes"` // 0 = refresh on every question
	WarmOnStart            bool `json:"warmOnStart"`
	RefreshIntervalMinutes int  `json:"refreshIntervalMinutes"` // 0 = no background refresh
}

type RetrieverConfig struct {
	Mode          string  `json:"mode"` // lexical | embedding
	TopK          int     `json:"topK"`
	MinScore      float64 `json:"minScore"`      // lexical relevance threshold
	MinSimilarity float64 `json:"minSimilarity"` // embedding cosine threshold
}

type ProviderConfig struct {
	Enabled        bool   `json:"enabled"`
	APIBase        string `json:"apiBase,omitempty"`
	APIKey         string `json:"apiKey,omitempty"`
	Model          string `json:"model,omitempty"`
	MaxTokens      int    `json:"maxTokens,omitempty"`
	EmbeddingModel string `json:"embeddingModel,omitempty"` // gemini only
}

type SynthConfig struct {
	Temperature  float64 `json:"temperature"`
	ContextChars int     `json:"contextChars"` // prompt context budget in characters
}

type ServerConfig struct {
	Host           string  `json:"host"`
	Port           int     `json:"port"`
	RateLimitRPS   float64 `json:"rateLimitRps"` // 0 = unlimited
	RateLimitBurst int     `json:"rateLimitBurst"`
}

type TelegramConfig struct {
	Enabled   bool           `json:"enabled"`
	Token     string         `json:"token"`
	AllowFrom FlexStringList `json:"allowFrom"`
	ParseMode string         `json:"parseMode"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	// Try []string first
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	// Fallback: array of mixed types
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.askbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".askbot"
	}
	return filepath.Join(home, ".askbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("cannot resolve home directory: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	ApplyEnv(cfg)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadOrDefaults loads the config file when it exists and otherwise falls
// back to Defaults with environment overrides, so the service runs with
// nothing but API keys in the environment.
func LoadOrDefaults(path string) (*Config, error) {
	cfg, err := Load(path)
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	cfg = Defaults()
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// ApplyEnv fills fields that are still empty from well-known environment
// variables. File values and ${VAR} expansions win; this only covers the
// keys a hand-written minimal config tends to leave out.
func ApplyEnv(cfg *Config) {
	if v := os.Getenv("MESSAGES_API_URL"); v != "" && cfg.Source.BaseURL == "" {
		cfg.Source.BaseURL = v
	}
	envKeys := map[string]string{
		"groq":   "GROQ_API_KEY",
		"claude": "ANTHROPIC_API_KEY",
		"openai": "OPENAI_API_KEY",
		"gemini": "GEMINI_API_KEY",
	}
	for name, envVar := range envKeys {
		pc, ok := cfg.Providers[name]
		if !ok || pc.APIKey != "" {
			continue
		}
		if v := os.Getenv(envVar); v != "" {
			pc.APIKey = v
			cfg.Providers[name] = pc
		}
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" && cfg.Telegram.Token == "" {
		cfg.Telegram.Token = v
	}
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// Supports default values: ${VAR:-default} uses "default" when VAR is unset or empty.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		varName := groups[1]
		defaultVal := ""
		hasDefault := len(groups) >= 3 && groups[2] != ""
		if hasDefault {
			defaultVal = groups[2]
		}

		val, exists := os.LookupEnv(varName)
		if !exists || val == "" {
			if hasDefault {
				return defaultVal
			}
			return match // Keep original if no env var and no default
		}
		return val
	})
}

func Save(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch cfg.General.LogLevel {
	case "", "debug", "info", "warn", "error":
		// valid
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "", "text", "json":
		// valid
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.General.MaxQuestionChars < 1 {
		errs = append(errs, "general.maxQuestionChars must be >= 1")
	}

	if cfg.Source.BaseURL == "" {
		errs = append(errs, "source.baseUrl is required")
	}
	if cfg.Source.PageSize < 1 || cfg.Source.PageSize > 1000 {
		errs = append(errs, "source.pageSize must be between 1 and 1000")
	}
	if cfg.Source.MaxPages < 1 {
		errs = append(errs, "source.maxPages must be >= 1")
	}
	if cfg.Source.RetryAttempts < 1 || cfg.Source.RetryAttempts > 10 {
		errs = append(errs, "source.retryAttempts must be between 1 and 10")
	}
	if cfg.Source.MaxConsecutiveFailures < 1 {
		errs = append(errs, "source.maxConsecutiveFailures must be >= 1")
	}

	if cfg.Corpus.TTLMinutes < 0 {
		errs = append(errs, "corpus.ttlMinutes must be >= 0")
	}
	if cfg.Corpus.RefreshIntervalMinutes < 0 {
		errs = append(errs, "corpus.refreshIntervalMinutes must be >= 0")
	}

	switch cfg.Retriever.Mode {
	case "lexical", "embedding":
		// valid
	default:
		errs = append(errs, "retriever.mode must be one of: lexical, embedding")
	}
	if cfg.Retriever.TopK < 1 || cfg.Retriever.TopK > 200 {
		errs = append(errs, "retriever.topK must be between 1 and 200")
	}
	if cfg.Retriever.MinScore < 0 || cfg.Retriever.MinScore > 1 {
		errs = append(errs, "retriever.minScore must be between 0 and 1")
	}
	if cfg.Retriever.MinSimilarity < 0 || cfg.Retriever.MinSimilarity > 1 {
		errs = append(errs, "retriever.minSimilarity must be between 0 and 1")
	}

	if cfg.Synth.Temperature < 0 || cfg.Synth.Temperature > 2 {
		errs = append(errs, "synth.temperature must be between 0 and 2")
	}
	if cfg.Synth.ContextChars < 1000 {
		errs = append(errs, "synth.contextChars must be >= 1000")
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 0 and 65535")
	}
	if cfg.Server.RateLimitRPS < 0 {
		errs = append(errs, "server.rateLimitRps must be >= 0")
	}

	// Validate failover chain references exist in providers.
	for _, provName := range cfg.General.FailoverChain {
		if _, ok := cfg.Providers[provName]; !ok {
			errs = append(errs, fmt.Sprintf("general.failoverChain references unknown provider: %s", provName))
		}
	}

	if cfg.Telegram.Enabled && cfg.Telegram.Token == "" {
		errs = append(errs, "telegram.token is required when telegram is enabled")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
