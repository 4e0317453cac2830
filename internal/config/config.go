// Package config loads coralph.yaml and validates it.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all coralph configuration
type Config struct {
	Loop      LoopConfig      `mapstructure:"loop" yaml:"loop"`
	Files     FilesConfig     `mapstructure:"files" yaml:"files"`
	Assistant AssistantConfig `mapstructure:"assistant" yaml:"assistant"`
	GitHub    GitHubConfig    `mapstructure:"github" yaml:"github"`
	Events    EventsConfig    `mapstructure:"events" yaml:"events"`
	Metrics   MetricsConfig   `mapstructure:"metrics" yaml:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// LoopConfig holds iteration loop settings
type LoopConfig struct {
	MaxIterations    int `mapstructure:"max_iterations" yaml:"max_iterations"`
	MaxMinutes       int `mapstructure:"max_minutes" yaml:"max_minutes"`
	StallThreshold   int `mapstructure:"stall_threshold" yaml:"stall_threshold"`
	MaxProgressBytes int `mapstructure:"max_progress_bytes" yaml:"max_progress_bytes"`
}

// FilesConfig holds the paths of the loop's working files
type FilesConfig struct {
	Prompt         string `mapstructure:"prompt" yaml:"prompt"`
	Progress       string `mapstructure:"progress" yaml:"progress"`
	Issues         string `mapstructure:"issues" yaml:"issues"`
	GeneratedTasks string `mapstructure:"generated_tasks" yaml:"generated_tasks"`
}

// AssistantConfig holds assistant invocation settings
type AssistantConfig struct {
	Provider  string   `mapstructure:"provider" yaml:"provider"`
	Model     string   `mapstructure:"model" yaml:"model"`
	CLIPath   string   `mapstructure:"cli_path" yaml:"cli_path"`
	Args      []string `mapstructure:"args" yaml:"args"`
	Stream    bool     `mapstructure:"stream" yaml:"stream"`
	ShowTools bool     `mapstructure:"show_tools" yaml:"show_tools"`
	BaseURL   string   `mapstructure:"base_url" yaml:"base_url"`
}

// GitHubConfig holds issue source and PR workflow settings
type GitHubConfig struct {
	Repo          string   `mapstructure:"repo" yaml:"repo"`
	Remote        string   `mapstructure:"remote" yaml:"remote"`
	APIURL        string   `mapstructure:"api_url" yaml:"api_url"`
	RefreshIssues bool     `mapstructure:"refresh_issues" yaml:"refresh_issues"`
	PRMode        PRMode   `mapstructure:"pr_mode" yaml:"pr_mode"`
	BypassUsers   []string `mapstructure:"bypass_users" yaml:"bypass_users"`
}

// EventsConfig holds JSONL event stream settings
type EventsConfig struct {
	// Path is the event stream file; empty disables it and "-" means stdout.
	Path string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig holds Prometheus exporter settings
type MetricsConfig struct {
	// Addr is the listen address for /metrics; empty disables the server.
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
	File  string `mapstructure:"file" yaml:"file"`
}

// PRMode selects whether the assistant pushes to the default branch or
// works through pull requests.
type PRMode string

const (
	PRModeAuto PRMode = "auto"
	PRModeOn   PRMode = "on"
	PRModeOff  PRMode = "off"
)

var validPRModes = map[PRMode]bool{
	PRModeAuto: true,
	PRModeOn:   true,
	PRModeOff:  true,
}

// IsValid returns true if the mode is a supported value.
func (m PRMode) IsValid() bool {
	return validPRModes[m]
}

// LoadConfigWithFile loads configuration from a specific file if provided,
// otherwise falls back to LoadConfig with the working directory.
func LoadConfigWithFile(workDir, configFile string) (*Config, error) {
	if configFile != "" {
		return LoadConfigFromPath(configFile)
	}
	return LoadConfig(workDir)
}

// LoadConfig loads the global config, then coralph.yaml in dir on top of it.
// Missing files are skipped, so with neither present the defaults are returned.
func LoadConfig(dir string) (*Config, error) {
	var paths []string
	if global, err := GlobalConfigPath(); err == nil {
		paths = append(paths, global)
	}
	paths = append(paths, filepath.Join(dir, DefaultConfigFile))
	return load(paths...)
}

// LoadConfigFromPath loads configuration from a specific file path.
// A missing file yields the defaults.
func LoadConfigFromPath(configPath string) (*Config, error) {
	return load(configPath)
}

func load(paths ...string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType("yaml")
	v.SetEnvPrefix("CORALPH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("accessing config %s: %w", path, err)
		}
		if info.IsDir() {
			return nil, fmt.Errorf("config %s is a directory", path)
		}

		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration, ignoring files and environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	_ = v.Unmarshal(cfg)
	return cfg
}

// setDefaults sets all default values for configuration
func setDefaults(v *viper.Viper) {
	v.SetDefault("loop.max_iterations", DefaultMaxIterations)
	v.SetDefault("loop.max_minutes", DefaultMaxMinutes)
	v.SetDefault("loop.stall_threshold", DefaultStallThreshold)
	v.SetDefault("loop.max_progress_bytes", DefaultMaxProgressBytes)

	v.SetDefault("files.prompt", DefaultPromptFile)
	v.SetDefault("files.progress", DefaultProgressFile)
	v.SetDefault("files.issues", DefaultIssuesFile)
	v.SetDefault("files.generated_tasks", DefaultGeneratedTasksFile)

	v.SetDefault("assistant.provider", "")
	v.SetDefault("assistant.model", DefaultModel)
	v.SetDefault("assistant.cli_path", "")
	v.SetDefault("assistant.args", []string{})
	v.SetDefault("assistant.stream", true)
	v.SetDefault("assistant.show_tools", false)
	v.SetDefault("assistant.base_url", "")

	v.SetDefault("github.repo", "")
	v.SetDefault("github.remote", DefaultRemote)
	v.SetDefault("github.api_url", "")
	v.SetDefault("github.refresh_issues", false)
	v.SetDefault("github.pr_mode", string(DefaultPRMode))
	v.SetDefault("github.bypass_users", []string{})

	v.SetDefault("events.path", "")
	v.SetDefault("metrics.addr", "")

	v.SetDefault("logging.level", DefaultLogLevel)
	v.SetDefault("logging.file", DefaultLogFile)
}
