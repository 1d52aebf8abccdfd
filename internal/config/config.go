// Package config is the explicit configuration value built once by the
// command layer and passed into every constructor. Nothing below cmd/ reads
// viper or the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/joescharf/codereview/internal/llm"
	"github.com/joescharf/codereview/internal/retry"
	"github.com/joescharf/codereview/internal/scan"
	"github.com/joescharf/codereview/internal/telemetry"
	"github.com/joescharf/codereview/internal/workspace"
)

// EnvPrefix prefixes every environment override, e.g. CODEREVIEW_LLM_MODEL.
const EnvPrefix = "CODEREVIEW"

// IgnorePatternsEnv adds comma-separated scan ignore patterns.
const IgnorePatternsEnv = "IGNORE_PATTERNS"

// Default models per provider, used when llm.model is empty.
var defaultModels = map[string]string{
	llm.ProviderAnthropic: "claude-sonnet-4-5",
	llm.ProviderOpenAI:    "gpt-4o-mini",
	llm.ProviderOllama:    "llama3.2",
}

// LLM configures the generative text producer.
type LLM struct {
	Provider    string `validate:"oneof=anthropic openai ollama none"`
	Model       string
	APIKey      string
	BaseURL     string        `validate:"omitempty,url"`
	MaxTokens   int           `validate:"min=1"`
	Temperature float64       `validate:"gte=0,lte=2"`
	Timeout     time.Duration `validate:"min=0"`
}

// Retry configures backoff around producer calls.
type Retry struct {
	MaxAttempts int           `validate:"min=1,max=10"`
	BaseDelay   time.Duration `validate:"min=0"`
	Multiplier  float64       `validate:"gte=1"`
	MaxDelay    time.Duration `validate:"min=0"`
}

// Scan configures the directory scanner.
type Scan struct {
	MaxFileSizeMB  float64 `validate:"gt=0"`
	CodeOnly       bool
	IgnorePatterns []string
}

// Tools configures the static analyzer subprocesses.
type Tools struct {
	Timeout time.Duration `validate:"min=0"`
	Python  string        `validate:"required"`
}

// MaxFiles caps the files each branch sends to the producer.
type MaxFiles struct {
	Security    int `validate:"min=1"`
	Performance int `validate:"min=1"`
	Style       int `validate:"min=1"`
}

// Cache configures the response cache.
type Cache struct {
	Enabled bool
	Path    string `validate:"required_if=Enabled true"`
}

// Telemetry configures OpenTelemetry export.
type Telemetry struct {
	Enabled      bool
	Stdout       bool
	OTLPEndpoint string
}

// Config is the complete configuration for one process.
type Config struct {
	OutputDir     string `validate:"required"`
	WorkspaceRoot string `validate:"required"`
	LLM           LLM
	Retry         Retry
	Scan          Scan
	Tools         Tools
	MaxFiles      MaxFiles
	Cache         Cache
	Telemetry     Telemetry
	Lenient       bool          // state.lenient
	ReportJSON    bool          // report.json
	RunTimeout    time.Duration `validate:"min=0"`
}

// DefaultDir is ~/.config/codereview.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", ".codereview")
	}
	return filepath.Join(home, ".config", "codereview")
}

// SetDefaults registers every key's default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("output_dir", "./code_reviews")
	v.SetDefault("workspace.root", workspace.DefaultRoot())

	v.SetDefault("llm.provider", llm.ProviderAnthropic)
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.base_url", "")
	v.SetDefault("llm.max_tokens", 8192)
	v.SetDefault("llm.temperature", 0.1)
	v.SetDefault("llm.timeout", 120*time.Second)

	p := retry.DefaultPolicy()
	v.SetDefault("retry.max_attempts", p.MaxAttempts)
	v.SetDefault("retry.base_delay", p.BaseDelay)
	v.SetDefault("retry.multiplier", p.Multiplier)
	v.SetDefault("retry.max_delay", p.MaxDelay)

	so := scan.DefaultOptions()
	v.SetDefault("scan.max_file_size_mb", so.MaxFileSizeMB)
	v.SetDefault("scan.code_only", so.CodeOnly)
	v.SetDefault("scan.ignore_patterns", []string{})

	v.SetDefault("tools.timeout", 60*time.Second)
	v.SetDefault("tools.python", "python3")

	v.SetDefault("stages.max_files.security", 20)
	v.SetDefault("stages.max_files.performance", 15)
	v.SetDefault("stages.max_files.style", 15)

	v.SetDefault("cache.enabled", false)
	v.SetDefault("cache.path", filepath.Join(DefaultDir(), "cache.db"))

	v.SetDefault("state.lenient", false)
	v.SetDefault("report.json", false)
	v.SetDefault("run.timeout", time.Duration(0))

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.stdout", false)
	v.SetDefault("telemetry.otlp_endpoint", "")
}

// BindEnv sets up the CODEREVIEW_ prefix with "." mapped to "_".
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// FromViper reads a Config from v. Provider API keys fall back to the
// provider's conventional environment variable, and IGNORE_PATTERNS is
// appended to the scan ignore list.
func FromViper(v *viper.Viper) (Config, error) {
	c := Config{
		OutputDir:     v.GetString("output_dir"),
		WorkspaceRoot: v.GetString("workspace.root"),
		LLM: LLM{
			Provider:    strings.ToLower(v.GetString("llm.provider")),
			Model:       v.GetString("llm.model"),
			APIKey:      v.GetString("llm.api_key"),
			BaseURL:     v.GetString("llm.base_url"),
			MaxTokens:   v.GetInt("llm.max_tokens"),
			Temperature: v.GetFloat64("llm.temperature"),
			Timeout:     v.GetDuration("llm.timeout"),
		},
		Retry: Retry{
			MaxAttempts: v.GetInt("retry.max_attempts"),
			BaseDelay:   v.GetDuration("retry.base_delay"),
			Multiplier:  v.GetFloat64("retry.multiplier"),
			MaxDelay:    v.GetDuration("retry.max_delay"),
		},
		Scan: Scan{
			MaxFileSizeMB:  v.GetFloat64("scan.max_file_size_mb"),
			CodeOnly:       v.GetBool("scan.code_only"),
			IgnorePatterns: v.GetStringSlice("scan.ignore_patterns"),
		},
		Tools: Tools{
			Timeout: v.GetDuration("tools.timeout"),
			Python:  v.GetString("tools.python"),
		},
		MaxFiles: MaxFiles{
			Security:    v.GetInt("stages.max_files.security"),
			Performance: v.GetInt("stages.max_files.performance"),
			Style:       v.GetInt("stages.max_files.style"),
		},
		Cache: Cache{
			Enabled: v.GetBool("cache.enabled"),
			Path:    v.GetString("cache.path"),
		},
		Telemetry: Telemetry{
			Enabled:      v.GetBool("telemetry.enabled"),
			Stdout:       v.GetBool("telemetry.stdout"),
			OTLPEndpoint: v.GetString("telemetry.otlp_endpoint"),
		},
		Lenient:    v.GetBool("state.lenient"),
		ReportJSON: v.GetBool("report.json"),
		RunTimeout: v.GetDuration("run.timeout"),
	}

	if c.LLM.APIKey == "" {
		c.LLM.APIKey = providerKey(c.LLM.Provider)
	}
	c.Scan.IgnorePatterns = append(c.Scan.IgnorePatterns, splitPatterns(os.Getenv(IgnorePatternsEnv))...)

	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func providerKey(provider string) string {
	switch provider {
	case llm.ProviderAnthropic:
		return os.Getenv("ANTHROPIC_API_KEY")
	case llm.ProviderOpenAI:
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}

func splitPatterns(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and reports every violation.
func (c Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// LLMSettings returns the producer settings, filling in the provider's
// default model.
func (c Config) LLMSettings() llm.Settings {
	model := c.LLM.Model
	if model == "" {
		model = defaultModels[c.LLM.Provider]
	}
	return llm.Settings{
		Provider:    c.LLM.Provider,
		Model:       model,
		APIKey:      c.LLM.APIKey,
		BaseURL:     c.LLM.BaseURL,
		MaxTokens:   c.LLM.MaxTokens,
		Temperature: c.LLM.Temperature,
		Timeout:     c.LLM.Timeout,
	}
}

// RetryPolicy returns the backoff policy for producer calls.
func (c Config) RetryPolicy() retry.Policy {
	return retry.Policy{
		MaxAttempts: c.Retry.MaxAttempts,
		BaseDelay:   c.Retry.BaseDelay,
		Multiplier:  c.Retry.Multiplier,
		MaxDelay:    c.Retry.MaxDelay,
	}
}

// ScanOptions returns the scanner options.
func (c Config) ScanOptions() scan.Options {
	return scan.Options{
		MaxFileSizeMB:  c.Scan.MaxFileSizeMB,
		CodeOnly:       c.Scan.CodeOnly,
		IgnorePatterns: c.Scan.IgnorePatterns,
	}
}

// TelemetrySettings returns the exporter settings for this build.
func (c Config) TelemetrySettings(version string) telemetry.Settings {
	return telemetry.Settings{
		Enabled:      c.Telemetry.Enabled,
		Stdout:       c.Telemetry.Stdout,
		OTLPEndpoint: c.Telemetry.OTLPEndpoint,
		ServiceName:  "codereview",
		Version:      version,
	}
}
