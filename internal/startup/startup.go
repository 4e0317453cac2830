// Package startup holds checks that run before the loop starts.
package startup

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrPromptFileNotFound is returned when the prompt template is missing.
var ErrPromptFileNotFound = errors.New("prompt file not found")

// PromptFileError reports a missing prompt file with a hint for fixing it.
type PromptFileError struct {
	Path string
}

func (e *PromptFileError) Error() string {
	return fmt.Sprintf("Prompt file not found: %s. Run 'coralph --init' in this repository to create it.", e.Path)
}

func (e *PromptFileError) Unwrap() error {
	return ErrPromptFileNotFound
}

// ValidatePromptFile checks that path names an existing regular file.
// The error carries the absolute path.
func ValidatePromptFile(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}

	info, err := os.Stat(abs)
	if err != nil || info.IsDir() {
		return &PromptFileError{Path: abs}
	}
	return nil
}

// LoadPromptTemplate validates and reads the prompt template.
func LoadPromptTemplate(path string) (string, error) {
	if err := ValidatePromptFile(path); err != nil {
		return "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading prompt file: %w", err)
	}
	return string(data), nil
}
