// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"github.com/xkilldash9x/leoforge/internal/refinement"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	LLM() LLMRouterConfig
	Refinement() RefinementConfig
	Workspace() WorkspaceConfig
	Toolchain() ToolchainConfig
	Evaluation() EvaluationConfig
	Aleo() AleoConfig
	RunLog() RunLogConfig
	Database() DatabaseConfig
	Batch() BatchConfig

	// Refinement Setters, driven by CLI flags.
	SetRefinementMaxIterations(int)
	SetRefinementBuildThreshold(float64)
	SetRefinementAbandonFloor(float64)

	// Workspace Setters
	SetWorkspaceOutputDir(string)

	// Batch Setters
	SetBatchConcurrency(int)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg     LoggerConfig     `mapstructure:"logger" yaml:"logger"`
	LLMCfg        LLMRouterConfig  `mapstructure:"llm" yaml:"llm"`
	RefinementCfg RefinementConfig `mapstructure:"refinement" yaml:"refinement"`
	WorkspaceCfg  WorkspaceConfig  `mapstructure:"workspace" yaml:"workspace"`
	ToolchainCfg  ToolchainConfig  `mapstructure:"toolchain" yaml:"toolchain"`
	EvaluationCfg EvaluationConfig `mapstructure:"evaluation" yaml:"evaluation"`
	AleoCfg       AleoConfig       `mapstructure:"aleo" yaml:"aleo"`
	RunLogCfg     RunLogConfig     `mapstructure:"runlog" yaml:"runlog"`
	DatabaseCfg   DatabaseConfig   `mapstructure:"database" yaml:"database"`
	BatchCfg      BatchConfig      `mapstructure:"batch" yaml:"batch"`
}

// --- Interface Method Implementations (Getters) ---

func (c *Config) Logger() LoggerConfig         { return c.LoggerCfg }
func (c *Config) LLM() LLMRouterConfig         { return c.LLMCfg }
func (c *Config) Refinement() RefinementConfig { return c.RefinementCfg }
func (c *Config) Workspace() WorkspaceConfig   { return c.WorkspaceCfg }
func (c *Config) Toolchain() ToolchainConfig   { return c.ToolchainCfg }
func (c *Config) Evaluation() EvaluationConfig { return c.EvaluationCfg }
func (c *Config) Aleo() AleoConfig             { return c.AleoCfg }
func (c *Config) RunLog() RunLogConfig         { return c.RunLogCfg }
func (c *Config) Database() DatabaseConfig     { return c.DatabaseCfg }
func (c *Config) Batch() BatchConfig           { return c.BatchCfg }

// --- Interface Method Implementations (Setters) ---

func (c *Config) SetRefinementMaxIterations(n int)      { c.RefinementCfg.MaxIterations = n }
func (c *Config) SetRefinementBuildThreshold(f float64) { c.RefinementCfg.BuildThreshold = f }
func (c *Config) SetRefinementAbandonFloor(f float64)   { c.RefinementCfg.AbandonFloor = f }
func (c *Config) SetWorkspaceOutputDir(dir string)      { c.WorkspaceCfg.OutputDir = dir }
func (c *Config) SetBatchConcurrency(n int)             { c.BatchCfg.Concurrency = n }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini LLMProvider = "gemini"
)

// LLMRouterConfig configures the model routing logic.
type LLMRouterConfig struct {
	DefaultFastModel     string                    `mapstructure:"default_fast_model" yaml:"default_fast_model"`
	DefaultPowerfulModel string                    `mapstructure:"default_powerful_model" yaml:"default_powerful_model"`
	// APIKey is used by any model that does not carry its own key.
	APIKey string                    `mapstructure:"api_key" yaml:"api_key"`
	Models map[string]LLMModelConfig `mapstructure:"models" yaml:"models"`
}

// LLMModelConfig defines the configuration for a single LLM.
type LLMModelConfig struct {
	Provider    LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model       string        `mapstructure:"model" yaml:"model"`
	APIKey      string        `mapstructure:"api_key" yaml:"api_key"`
	Endpoint    string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout  time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature float32       `mapstructure:"temperature" yaml:"temperature"`
	TopP        float32       `mapstructure:"top_p" yaml:"top_p"`
	TopK        int           `mapstructure:"top_k" yaml:"top_k"`
	MaxTokens   int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	// RateLimit is requests per second; zero disables limiting.
	RateLimit  float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst      int     `mapstructure:"burst" yaml:"burst"`
	MaxRetries int     `mapstructure:"max_retries" yaml:"max_retries"`
}

// RefinementConfig holds the loop's thresholds. Scores use a 0-10 scale.
type RefinementConfig struct {
	MaxIterations  int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	BuildThreshold float64       `mapstructure:"build_threshold" yaml:"build_threshold"`
	AbandonFloor   float64       `mapstructure:"abandon_floor" yaml:"abandon_floor"`
	BuildTimeout   time.Duration `mapstructure:"build_timeout" yaml:"build_timeout"`
}

// Settings converts the section into the loop's settings type.
func (r RefinementConfig) Settings() refinement.Settings {
	return refinement.Settings{
		MaxIterations:  r.MaxIterations,
		BuildThreshold: r.BuildThreshold,
		AbandonFloor:   r.AbandonFloor,
		BuildTimeout:   r.BuildTimeout,
	}
}

// WorkspaceConfig controls where generated projects live.
type WorkspaceConfig struct {
	OutputDir  string `mapstructure:"output_dir" yaml:"output_dir"`
	Entrypoint string `mapstructure:"entrypoint" yaml:"entrypoint"`
	// TrackHistory commits every saved round into a git repository inside
	// the workspace.
	TrackHistory bool `mapstructure:"track_history" yaml:"track_history"`
}

// ToolchainConfig points at the native compiler.
type ToolchainConfig struct {
	Binary string `mapstructure:"binary" yaml:"binary"`
}

// EvaluationConfig tunes the evaluator adapter.
type EvaluationConfig struct {
	// CacheSize bounds the evaluation cache; zero disables caching.
	CacheSize int `mapstructure:"cache_size" yaml:"cache_size"`
}

// AleoConfig carries chain-specific values injected into prompts.
type AleoConfig struct {
	AdminAddress string `mapstructure:"admin_address" yaml:"admin_address"`
}

// RunLogConfig controls the per-run JSON logs.
type RunLogConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// DatabaseConfig holds the connection string for the optional run history store.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
}

// BatchConfig configures the batch runner.
type BatchConfig struct {
	Concurrency int  `mapstructure:"concurrency" yaml:"concurrency"`
	FailFast    bool `mapstructure:"fail_fast" yaml:"fail_fast"`
}

// DefaultAdminAddress is the placeholder admin used when none is configured.
const DefaultAdminAddress = "aleo1rhgdu77hgyqd3xjj8ucu3jj9r2krwz6mnzyd80gncr5fxcwlh5rsvzp9px"

var aleoAddressPattern = regexp.MustCompile(`^aleo1[0-9a-z]{58}$`)

// IsValidAleoAddress reports whether address has the aleo1 bech32 shape.
func IsValidAleoAddress(address string) bool {
	return aleoAddressPattern.MatchString(address)
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "leoforge")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- LLM --
	// Model keys must not contain dots; viper treats them as path separators.
	v.SetDefault("llm.default_fast_model", "gemini-flash")
	v.SetDefault("llm.default_powerful_model", "gemini-pro")
	v.SetDefault("llm.models", map[string]any{
		"gemini-flash": map[string]any{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-flash",
			"api_timeout": "2m",
			"temperature": 0.2,
			"max_tokens":  8192,
			"rate_limit":  1.0,
			"burst":       2,
			"max_retries": 3,
		},
		"gemini-pro": map[string]any{
			"provider":    string(ProviderGemini),
			"model":       "gemini-2.5-pro",
			"api_timeout": "5m",
			"temperature": 0.2,
			"max_tokens":  16384,
			"rate_limit":  0.5,
			"burst":       1,
			"max_retries": 3,
		},
	})

	// -- Refinement --
	v.SetDefault("refinement.max_iterations", refinement.DefaultMaxIterations)
	v.SetDefault("refinement.build_threshold", refinement.DefaultBuildThreshold)
	v.SetDefault("refinement.abandon_floor", refinement.DefaultAbandonFloor)
	v.SetDefault("refinement.build_timeout", refinement.DefaultBuildTimeout)

	// -- Workspace --
	v.SetDefault("workspace.output_dir", "./generated_projects")
	v.SetDefault("workspace.entrypoint", "src/main.leo")
	v.SetDefault("workspace.track_history", false)

	// -- Toolchain --
	v.SetDefault("toolchain.binary", "leo")

	// -- Evaluation --
	v.SetDefault("evaluation.cache_size", 64)

	// -- Aleo --
	v.SetDefault("aleo.admin_address", DefaultAdminAddress)

	// -- Run log --
	v.SetDefault("runlog.enabled", true)
	v.SetDefault("runlog.dir", "./logs")

	// -- Database --
	v.SetDefault("database.url", "")

	// -- Batch --
	v.SetDefault("batch.concurrency", 2)
	v.SetDefault("batch.fail_fast", false)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	_ = v.BindEnv("llm.api_key", "LEOFORGE_LLM_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("aleo.admin_address", "LEOFORGE_ALEO_ADMIN_ADDRESS", "ADMIN_ADDRESS")
	_ = v.BindEnv("database.url", "LEOFORGE_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the key if Unmarshal didn't pick it up
	if cfg.LLMCfg.APIKey == "" {
		cfg.LLMCfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	cfg.LLMCfg.inheritAPIKey()

	dir, err := homedir.Expand(cfg.WorkspaceCfg.OutputDir)
	if err != nil {
		return nil, fmt.Errorf("could not expand workspace.output_dir: %w", err)
	}
	cfg.WorkspaceCfg.OutputDir = dir
	if dir, err = homedir.Expand(cfg.RunLogCfg.Dir); err != nil {
		return nil, fmt.Errorf("could not expand runlog.dir: %w", err)
	}
	cfg.RunLogCfg.Dir = dir

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (l *LLMRouterConfig) inheritAPIKey() {
	for name, m := range l.Models {
		if m.APIKey == "" {
			m.APIKey = l.APIKey
			l.Models[name] = m
		}
	}
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.RefinementCfg.Settings().Validate(); err != nil {
		return fmt.Errorf("refinement configuration invalid: %w", err)
	}
	if err := c.LLMCfg.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if strings.TrimSpace(c.WorkspaceCfg.OutputDir) == "" {
		return fmt.Errorf("workspace.output_dir is a required configuration field")
	}
	if strings.TrimSpace(c.WorkspaceCfg.Entrypoint) == "" {
		return fmt.Errorf("workspace.entrypoint is a required configuration field")
	}
	if strings.TrimSpace(c.ToolchainCfg.Binary) == "" {
		return fmt.Errorf("toolchain.binary is a required configuration field")
	}
	if c.EvaluationCfg.CacheSize < 0 {
		return fmt.Errorf("evaluation.cache_size must not be negative")
	}
	if !IsValidAleoAddress(c.AleoCfg.AdminAddress) {
		return fmt.Errorf("aleo.admin_address %q is not a valid Aleo address", c.AleoCfg.AdminAddress)
	}
	if c.RunLogCfg.Enabled && strings.TrimSpace(c.RunLogCfg.Dir) == "" {
		return fmt.Errorf("runlog.dir is required when run logs are enabled")
	}
	if c.BatchCfg.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be a positive integer")
	}
	return nil
}

// Validate checks the router configuration. API keys are not required here
// so that commands which never reach the model (logs, version) still load.
func (l *LLMRouterConfig) Validate() error {
	if l.DefaultFastModel == "" || l.DefaultPowerfulModel == "" {
		return fmt.Errorf("default_fast_model and default_powerful_model are required")
	}
	for _, name := range []string{l.DefaultFastModel, l.DefaultPowerfulModel} {
		if _, ok := l.Models[name]; !ok {
			return fmt.Errorf("model %q is referenced as a default but not configured", name)
		}
	}
	for name, m := range l.Models {
		if m.Provider != ProviderGemini {
			return fmt.Errorf("model %q: unsupported provider %q", name, m.Provider)
		}
		if m.RateLimit < 0 {
			return fmt.Errorf("model %q: rate_limit must not be negative", name)
		}
		if m.MaxRetries < 0 {
			return fmt.Errorf("model %q: max_retries must not be negative", name)
		}
	}
	return nil
}
