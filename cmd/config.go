package cmd

import (
	"bytes"
	"fmt"
	"log/slog"
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
	return filepath.Join(home, ".config", "trackflow"), nil
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or manage configuration",
	Long: `Show or manage trackflow configuration.

Running bare 'trackflow config' is the same as 'trackflow config show'.`,
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

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the effective configuration for invalid values",
	RunE: func(cmd *cobra.Command, args []string) error {
		return configValidateRun()
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
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

// configTemplate is the template for generating config.yaml with comments.
const configTemplate = `# trackflow configuration
# See: trackflow config show (for effective values and sources)

# Storage backend: sqlite, memory or remote (default: sqlite)
backend: {{ .Backend }}

# State/data directory (default: ~/.config/trackflow)
# state_dir: {{ .StateDir }}

# SQLite database path (default: ~/.config/trackflow/trackflow.db)
# db_path: {{ .DBPath }}

# YAML seed loaded into the memory backend (default: bundled demo data)
# seed_file: ""

# Remote record-store API, used by the remote backend
remote:
  url: "{{ .RemoteURL }}"
  timeout: {{ .RemoteTimeout }}

# Port for 'trackflow serve'
port: {{ .Port }}

log:
  # debug, info, warn or error
  level: {{ .LogLevel }}

analytics:
  # Width of the recent activity window in days
  recent_days: {{ .RecentDays }}

# Anthropic API, used by issue triage and import
anthropic:
  # api_key: ""  (or set ANTHROPIC_API_KEY)
  model: "{{ .AnthropicModel }}"
`

type configTemplateData struct {
	Backend        string
	StateDir       string
	DBPath         string
	RemoteURL      string
	RemoteTimeout  string
	Port           int
	LogLevel       string
	RecentDays     int
	AnthropicModel string
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
		Backend:        viper.GetString("backend"),
		StateDir:       viper.GetString("state_dir"),
		DBPath:         viper.GetString("db_path"),
		RemoteURL:      viper.GetString("remote.url"),
		RemoteTimeout:  viper.GetDuration("remote.timeout").String(),
		Port:           viper.GetInt("port"),
		LogLevel:       viper.GetString("log.level"),
		RecentDays:     viper.GetInt("analytics.recent_days"),
		AnthropicModel: viper.GetString("anthropic.model"),
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
	{Key: "backend", EnvVar: "TRACKFLOW_BACKEND"},
	{Key: "state_dir", EnvVar: "TRACKFLOW_STATE_DIR"},
	{Key: "db_path", EnvVar: "TRACKFLOW_DB_PATH"},
	{Key: "seed_file", EnvVar: "TRACKFLOW_SEED_FILE"},
	{Key: "remote.url", EnvVar: "TRACKFLOW_REMOTE_URL"},
	{Key: "remote.timeout", EnvVar: "TRACKFLOW_REMOTE_TIMEOUT"},
	{Key: "port", EnvVar: "TRACKFLOW_PORT"},
	{Key: "log.level", EnvVar: "TRACKFLOW_LOG_LEVEL"},
	{Key: "analytics.recent_days", EnvVar: "TRACKFLOW_ANALYTICS_RECENT_DAYS"},
	{Key: "anthropic.model", EnvVar: "TRACKFLOW_ANTHROPIC_MODEL"},
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
		fmt.Fprintf(ui.Out, "  %-22s %v  %s\n", k.Key, val, source)
	}

	key := "(not set)"
	switch {
	case viper.GetString("anthropic.api_key") != "":
		key = "(set in config)"
	case os.Getenv("ANTHROPIC_API_KEY") != "":
		key = "(env: ANTHROPIC_API_KEY)"
	}
	fmt.Fprintf(ui.Out, "  %-22s %s\n", "anthropic.api_key", key)
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
		return fmt.Errorf("$EDITOR is not set (e.g. export EDITOR=vim)")
	}

	cfgPath, err := configFilePath()
	if err != nil {
		return err
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s (run 'trackflow config init' first)", cfgPath)
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

// configProblems lists every invalid value in the effective configuration.
func configProblems() []string {
	var problems []string

	backend := viper.GetString("backend")
	switch backend {
	case "", "sqlite", "memory", "remote":
	default:
		problems = append(problems, fmt.Sprintf("backend: unknown backend %q (want sqlite, memory or remote)", backend))
	}
	if backend == "remote" && viper.GetString("remote.url") == "" {
		problems = append(problems, "remote.url: required by the remote backend")
	}
	if viper.GetDuration("remote.timeout") <= 0 {
		problems = append(problems, "remote.timeout: must be a positive duration")
	}
	if port := viper.GetInt("port"); port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("port: %d is out of range", port))
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(viper.GetString("log.level"))); err != nil {
		problems = append(problems, fmt.Sprintf("log.level: invalid level %q", viper.GetString("log.level")))
	}
	if viper.GetInt("analytics.recent_days") <= 0 {
		problems = append(problems, "analytics.recent_days: must be at least 1")
	}
	if path := viper.GetString("seed_file"); path != "" {
		if _, err := os.Stat(path); err != nil {
			problems = append(problems, fmt.Sprintf("seed_file: %v", err))
		}
	}
	return problems
}

func configValidateRun() error {
	problems := configProblems()
	if len(problems) == 0 {
		ui.Success("Configuration is valid")
		return nil
	}
	for _, p := range problems {
		ui.Error("%s", p)
	}
	return fmt.Errorf("%d configuration problem(s)", len(problems))
}
