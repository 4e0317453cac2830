// Package scaffold prepares a repository for coralph: a prompt template,
// sample issues, a config file, an empty progress log and .gitignore entries.
package scaffold

import (
	"embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yarlson/coralph/internal/config"
	"github.com/yarlson/coralph/internal/logging"
	"github.com/yarlson/coralph/internal/memory"
)

//go:embed templates/*
var templates embed.FS

const (
	gitignoreBlockStart = "# Coralph loop artifacts (managed)"
	gitignoreBlockEnd   = "# End Coralph loop artifacts"
)

// ErrInitFailed is returned when at least one scaffold step failed.
var ErrInitFailed = errors.New("initialization failed")

// ProjectType selects the prompt template and feedback loops.
type ProjectType string

const (
	ProjectJavaScript ProjectType = "javascript"
	ProjectPython     ProjectType = "python"
	ProjectGo         ProjectType = "go"
	ProjectRust       ProjectType = "rust"
	ProjectDotNet     ProjectType = "dotnet"
)

var projectLabels = map[ProjectType]string{
	ProjectJavaScript: "JavaScript/TypeScript",
	ProjectPython:     "Python",
	ProjectGo:         "Go",
	ProjectRust:       "Rust",
	ProjectDotNet:     ".NET",
}

// ProjectTypes lists the supported types in menu order.
var ProjectTypes = []ProjectType{ProjectJavaScript, ProjectPython, ProjectGo, ProjectRust, ProjectDotNet}

// IsValid returns true if the type is supported.
func (p ProjectType) IsValid() bool {
	_, ok := projectLabels[p]
	return ok
}

// Label returns the human-readable name.
func (p ProjectType) Label() string {
	if l, ok := projectLabels[p]; ok {
		return l
	}
	return string(p)
}

// Options controls Run.
type Options struct {
	// ConfigFile is the config path to create; relative paths resolve
	// against the target directory. Empty means coralph.yaml.
	ConfigFile string

	// ProjectType skips detection when set.
	ProjectType ProjectType

	// Choose is asked for a project type when detection fails. Nil means
	// fall back to JavaScript/TypeScript.
	Choose func() (ProjectType, error)
}

// DetectProjectType inspects marker files in dir.
func DetectProjectType(dir string) (ProjectType, bool) {
	exists := func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	}

	switch {
	case exists("package.json"):
		return ProjectJavaScript, true
	case exists("pyproject.toml"), exists("requirements.txt"), exists("setup.py"):
		return ProjectPython, true
	case exists("go.mod"):
		return ProjectGo, true
	case exists("Cargo.toml"):
		return ProjectRust, true
	}

	for _, pattern := range []string{"*.sln", "*.csproj"} {
		if matches, _ := filepath.Glob(filepath.Join(dir, pattern)); len(matches) > 0 {
			return ProjectDotNet, true
		}
	}
	return "", false
}

// Run writes the coralph working files into dir, skipping any that exist,
// and reports each step to out. Every step runs even if an earlier one
// fails; the failures are returned together.
func Run(dir string, opts Options, out io.Writer) error {
	logger := logging.Component("scaffold")
	_, _ = fmt.Fprintln(out, "Initializing repository for Coralph...")

	projectType, err := resolveProjectType(dir, opts, out)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Selected project type: %s\n", projectType.Label())
	logger.Debug().Str("dir", dir).Str("project_type", string(projectType)).Msg("scaffolding repository")

	configPath := resolveConfigPath(dir, opts.ConfigFile)

	var errs []error
	record := func(what string, err error) {
		if err != nil {
			_, _ = fmt.Fprintf(out, "Failed to write %s: %v\n", what, err)
			errs = append(errs, fmt.Errorf("%s: %w", what, err))
		}
	}

	record("issues.json", ensureIssuesFile(dir, out))
	record("config file", ensureConfigFile(configPath, out))
	record("prompt.md", ensurePromptFile(dir, projectType, out))
	record("progress.txt", ensureProgressFile(dir, out))
	record(".gitignore", ensureGitignore(dir, configPath, out))

	if len(errs) > 0 {
		_, _ = fmt.Fprintln(out, "Initialization failed. Review the errors above.")
		return fmt.Errorf("%w: %w", ErrInitFailed, errors.Join(errs...))
	}

	_, _ = fmt.Fprintln(out, "Initialization complete.")
	_, _ = fmt.Fprintln(out, "Next steps:")
	_, _ = fmt.Fprintln(out, "  1. Review and customize prompt.md for your project")
	_, _ = fmt.Fprintln(out, "  2. Add your issues to issues.json (or use --refresh-issues)")
	_, _ = fmt.Fprintln(out, "  3. Run: coralph --max-iterations 5")
	return nil
}

func resolveProjectType(dir string, opts Options, out io.Writer) (ProjectType, error) {
	if opts.ProjectType != "" {
		if !opts.ProjectType.IsValid() {
			return "", fmt.Errorf("unknown project type %q", opts.ProjectType)
		}
		return opts.ProjectType, nil
	}
	if detected, ok := DetectProjectType(dir); ok {
		return detected, nil
	}
	if opts.Choose != nil {
		return opts.Choose()
	}
	_, _ = fmt.Fprintln(out, "Could not detect project type; defaulting to JavaScript/TypeScript.")
	return ProjectJavaScript, nil
}

func resolveConfigPath(dir, configFile string) string {
	if strings.TrimSpace(configFile) == "" {
		return filepath.Join(dir, config.DefaultConfigFile)
	}
	if filepath.IsAbs(configFile) {
		return configFile
	}
	return filepath.Join(dir, configFile)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func ensureIssuesFile(dir string, out io.Writer) error {
	path := filepath.Join(dir, config.DefaultIssuesFile)
	if fileExists(path) {
		_, _ = fmt.Fprintf(out, "%s already exists, skipping.\n", config.DefaultIssuesFile)
		return nil
	}

	sample, err := templates.ReadFile("templates/issues.sample.json")
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, sample, 0o644); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Created %s\n", config.DefaultIssuesFile)
	return nil
}

func ensureConfigFile(path string, out io.Writer) error {
	if fileExists(path) {
		_, _ = fmt.Fprintf(out, "Config file already exists, skipping: %s\n", path)
		return nil
	}

	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return fmt.Errorf("encoding default config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Created config file: %s\n", path)
	return nil
}

func ensurePromptFile(dir string, projectType ProjectType, out io.Writer) error {
	path := filepath.Join(dir, config.DefaultPromptFile)
	if fileExists(path) {
		_, _ = fmt.Fprintf(out, "%s already exists, skipping.\n", config.DefaultPromptFile)
		return nil
	}

	content, err := BuildPrompt(projectType)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "Created %s (%s template)\n", config.DefaultPromptFile, projectType.Label())
	return nil
}

func ensureProgressFile(dir string, out io.Writer) error {
	created, err := memory.NewProgressFile(filepath.Join(dir, config.DefaultProgressFile)).Ensure()
	if err != nil {
		return err
	}
	if !created {
		_, _ = fmt.Fprintf(out, "%s already exists, skipping.\n", config.DefaultProgressFile)
		return nil
	}
	_, _ = fmt.Fprintf(out, "Created %s\n", config.DefaultProgressFile)
	return nil
}

func ensureGitignore(dir, configPath string, out io.Writer) error {
	cfg, err := config.LoadConfigFromPath(configPath)
	if err != nil {
		return err
	}

	entries := GitignoreEntries(dir, cfg)
	path := filepath.Join(dir, ".gitignore")

	existing, err := os.ReadFile(path)
	existed := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}

	merged := MergeGitignoreBlock(string(existing), entries)
	if merged == string(existing) {
		_, _ = fmt.Fprintln(out, ".gitignore already contains Coralph loop artifact entries, skipping.")
		return nil
	}
	if err := os.WriteFile(path, []byte(merged), 0o644); err != nil {
		return err
	}

	if existed {
		_, _ = fmt.Fprintln(out, "Updated .gitignore with Coralph loop artifact entries.")
	} else {
		_, _ = fmt.Fprintln(out, "Created .gitignore with Coralph loop artifact entries.")
	}
	return nil
}
