package config

// File defaults, relative to the working directory.
const (
	DefaultPromptFile         = "prompt.md"
	DefaultProgressFile       = "progress.txt"
	DefaultIssuesFile         = "issues.json"
	DefaultGeneratedTasksFile = "generated_tasks.json"
	DefaultConfigFile         = "coralph.yaml"
)

// Loop defaults
const (
	DefaultMaxIterations    = 10
	DefaultMaxMinutes       = 0
	DefaultStallThreshold   = 3
	DefaultMaxProgressBytes = 64 * 1024
)

// Assistant defaults
const (
	DefaultModel = "gpt-5.1-codex"
)

// GitHub defaults
const (
	DefaultPRMode = PRModeAuto
	DefaultRemote = "origin"
)

// Logging defaults
const (
	DefaultLogLevel = "info"
	DefaultLogFile  = ".coralph/logs/coralph.log"
)
