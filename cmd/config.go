package cmd

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var configForce bool

// configDirFunc returns the config directory path, replaceable in tests.
var configDirFunc = defaultConfigDir

func defaultConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "codereview"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage codereview configuration.

Running bare 'codereview config' is the same as 'codereview config show'.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config file with commented defaults",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configInitRun()
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration with sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configShowRun()
	},
}

var configEditCmd = &cobra.Command{
	Use:   "edit",
	Short: "Open config file in $EDITOR",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configEditRun()
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite existing config file")
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configEditCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# codereview configuration
# See: codereview config show (for effective values and sources)
# Every key can also be set with a CODEREVIEW_ environment variable,
# e.g. CODEREVIEW_LLM_MODEL.

# Where review reports are written
output_dir: "{{ .OutputDir }}"

# Text producer used for the per-file reviews
llm:
  # anthropic, openai, ollama or none (static analysis only)
  provider: "{{ .LLMProvider }}"

  # Model name; empty picks the provider default
  model: "{{ .LLMModel }}"

  # API key; falls back to ANTHROPIC_API_KEY / OPENAI_API_KEY
  # api_key: ""

  # OpenAI-compatible endpoint (e.g. http://localhost:11434/v1 for ollama)
  # base_url: ""

  max_tokens: {{ .LLMMaxTokens }}
  timeout: {{ .LLMTimeout }}

# Backoff around each LLM call
retry:
  max_attempts: {{ .RetryMaxAttempts }}
  base_delay: {{ .RetryBaseDelay }}

scan:
  max_file_size_mb: {{ .ScanMaxFileSizeMB }}
  code_only: {{ .ScanCodeOnly }}
  # Extra gitignore-style patterns (IGNORE_PATTERNS is also honoured)
  # ignore_patterns: ["vendor/", "*.min.js"]

tools:
  # Interpreter used to run bandit and radon
  python: "{{ .ToolsPython }}"
  timeout: {{ .ToolsTimeout }}

# Cache LLM responses so unchanged files are not reviewed twice
cache:
  enabled: {{ .CacheEnabled }}
  # path: {{ .CachePath }}

report:
  # Also write findings as JSON next to the markdown report
  json: {{ .ReportJSON }}
`

type configTemplateData struct {
	OutputDir         string
	LLMProvider       string
	LLMModel          string
	LLMMaxTokens      int
	LLMTimeout        string
	RetryMaxAttempts  int
	RetryBaseDelay    string
	ScanMaxFileSizeMB float64
	ScanCodeOnly      bool
	ToolsPython       string
	ToolsTimeout      string
	CacheEnabled      bool
	CachePath         string
	ReportJSON        bool
}

func configFilePath() (string, error) {
	dir, err := configDirFunc()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

func configInitRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if file already exists
	if _, err := os.Stat(cfgPath); err == nil {
		if !configForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", cfgPath)
		}
		ui.Warning("Overwriting existing config file")
	}

	// Build template data from current viper values
	data := configTemplateData{
		OutputDir:         viper.GetString("output_dir"),
		LLMProvider:       viper.GetString("llm.provider"),
		LLMModel:          viper.GetString("llm.model"),
		LLMMaxTokens:      viper.GetInt("llm.max_tokens"),
		LLMTimeout:        viper.GetDuration("llm.timeout").String(),
		RetryMaxAttempts:  viper.GetInt("retry.max_attempts"),
		RetryBaseDelay:    viper.GetDuration("retry.base_delay").String(),
		ScanMaxFileSizeMB: viper.GetFloat64("scan.max_file_size_mb"),
		ScanCodeOnly:      viper.GetBool("scan.code_only"),
		ToolsPython:       viper.GetString("tools.python"),
		ToolsTimeout:      viper.GetDuration("tools.timeout").String(),
		CacheEnabled:      viper.GetBool("cache.enabled"),
		CachePath:         viper.GetString("cache.path"),
		ReportJSON:        viper.GetBool("report.json"),
	}

	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("template parse error: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("template execute error: %w", err)
	}

	if dryRun {
		ui.DryRunMsg("Would create config file: %s", cfgPath)
		fmt.Fprintln(ui.Out)
		fmt.Fprint(ui.Out, buf.String())
		return nil
	}

	// Create config directory
	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(cfgPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	ui.Success("Config file created: %s", cfgPath)
	fmt.Fprintln(ui.Out)
	fmt.Fprint(ui.Out, buf.String())
	return nil
}

// configKeyInfo describes a config key for display purposes.
type configKeyInfo struct {
	Key    string
	EnvVar string
}

var configKeys = []configKeyInfo{
	{Key: "output_dir", EnvVar: "CODEREVIEW_OUTPUT_DIR"},
	{Key: "workspace.root", EnvVar: "CODEREVIEW_WORKSPACE_ROOT"},
	{Key: "llm.provider", EnvVar: "CODEREVIEW_LLM_PROVIDER"},
	{Key: "llm.model", EnvVar: "CODEREVIEW_LLM_MODEL"},
	{Key: "llm.base_url", EnvVar: "CODEREVIEW_LLM_BASE_URL"},
	{Key: "llm.max_tokens", EnvVar: "CODEREVIEW_LLM_MAX_TOKENS"},
	{Key: "llm.temperature", EnvVar: "CODEREVIEW_LLM_TEMPERATURE"},
	{Key: "llm.timeout", EnvVar: "CODEREVIEW_LLM_TIMEOUT"},
	{Key: "retry.max_attempts", EnvVar: "CODEREVIEW_RETRY_MAX_ATTEMPTS"},
	{Key: "retry.base_delay", EnvVar: "CODEREVIEW_RETRY_BASE_DELAY"},
	{Key: "retry.multiplier", EnvVar: "CODEREVIEW_RETRY_MULTIPLIER"},
	{Key: "retry.max_delay", EnvVar: "CODEREVIEW_RETRY_MAX_DELAY"},
	{Key: "scan.max_file_size_mb", EnvVar: "CODEREVIEW_SCAN_MAX_FILE_SIZE_MB"},
	{Key: "scan.code_only", EnvVar: "CODEREVIEW_SCAN_CODE_ONLY"},
	{Key: "scan.ignore_patterns", EnvVar: "CODEREVIEW_SCAN_IGNORE_PATTERNS"},
	{Key: "tools.python", EnvVar: "CODEREVIEW_TOOLS_PYTHON"},
	{Key: "tools.timeout", EnvVar: "CODEREVIEW_TOOLS_TIMEOUT"},
	{Key: "stages.max_files.security", EnvVar: "CODEREVIEW_STAGES_MAX_FILES_SECURITY"},
	{Key: "stages.max_files.performance", EnvVar: "CODEREVIEW_STAGES_MAX_FILES_PERFORMANCE"},
	{Key: "stages.max_files.style", EnvVar: "CODEREVIEW_STAGES_MAX_FILES_STYLE"},
	{Key: "cache.enabled", EnvVar: "CODEREVIEW_CACHE_ENABLED"},
	{Key: "cache.path", EnvVar: "CODEREVIEW_CACHE_PATH"},
	{Key: "state.lenient", EnvVar: "CODEREVIEW_STATE_LENIENT"},
	{Key: "report.json", EnvVar: "CODEREVIEW_REPORT_JSON"},
	{Key: "run.timeout", EnvVar: "CODEREVIEW_RUN_TIMEOUT"},
	{Key: "telemetry.enabled", EnvVar: "CODEREVIEW_TELEMETRY_ENABLED"},
	{Key: "telemetry.stdout", EnvVar: "CODEREVIEW_TELEMETRY_STDOUT"},
	{Key: "telemetry.otlp_endpoint", EnvVar: "CODEREVIEW_TELEMETRY_OTLP_ENDPOINT"},
}

func configShowRun() error {
	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	// Check if config file exists
	if _, err := os.Stat(cfgPath); err == nil {
		ui.Info("Config file: %s", cfgPath)
	} else {
		ui.Info("Config file: (none)")
	}
	fmt.Fprintln(ui.Out)

	// Read config file values to determine file source
	fileValues := readConfigFileValues(cfgPath)

	for _, k := range configKeys {
		val := viper.Get(k.Key)
		source := detectSource(k.Key, k.EnvVar, fileValues)
		fmt.Fprintf(ui.Out, "  %-30s %v  %s\n", k.Key, val, source)
	}

	return nil
}

// readConfigFileValues reads the raw YAML file and returns a flat map of keys present in it.
func readConfigFileValues(path string) map[string]bool {
	result := make(map[string]bool)

	data, err := os.ReadFile(path)
	if err != nil {
		return result
	}

	var parsed map[string]any
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return result
	}

	// Flatten nested keys with dot notation
	flattenKeys("", parsed, result)
	return result
}

// flattenKeys recursively flattens a nested map to dot-notation keys.
func flattenKeys(prefix string, m map[string]any, result map[string]bool) {
	for key, val := range m {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := val.(map[string]any); ok {
			flattenKeys(fullKey, nested, result)
		} else {
			result[fullKey] = true
		}
	}
}

// detectSource determines where a config value is coming from.
func detectSource(key, envVar string, fileValues map[string]bool) string {
	if _, ok := os.LookupEnv(envVar); ok {
		return fmt.Sprintf("(env: %s)", envVar)
	}
	if fileValues[key] {
		return "(file)"
	}
	return "(default)"
}

func configEditRun() error {
	editor := os.Getenv("EDITOR")
	if editor == "" {
		editor = os.Getenv("VISUAL")
	}
	if editor == "" {
		return fmt.Errorf("$EDITOR is not set; set it to your preferred editor (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'codereview config init' first)", cfgPath)
	}

	if dryRun {
		ui.DryRunMsg("Would open %s in %s", cfgPath, editor)
		return nil
	}

	editCmd := exec.Command(editor, cfgPath)
	editCmd.Stdin = os.Stdin
	editCmd.Stdout = os.Stdout
	editCmd.Stderr = os.Stderr
	return editCmd.Run()
}
