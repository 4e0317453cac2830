// Package provider names the assistant backends.
package provider

import (
	"fmt"
	"strings"
)

const (
	Copilot = "copilot"
	Claude  = "claude"
	OpenAI  = "openai"
)

// Default is used when neither flag nor config names a provider.
const Default = Copilot

// Normalize validates a provider name, defaulting blank input to Default.
func Normalize(value string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "":
		return Default, nil
	case Copilot, Claude, OpenAI:
		return normalized, nil
	default:
		return "", fmt.Errorf("unsupported provider: %s", value)
	}
}

// DefaultCommand is the executable used for a subprocess provider.
// It is empty for API-backed providers.
func DefaultCommand(name string) string {
	switch name {
	case Copilot:
		return "copilot"
	case Claude:
		return "claude"
	default:
		return ""
	}
}

// IsSubprocess reports whether the provider runs as a local CLI.
func IsSubprocess(name string) bool {
	return DefaultCommand(name) != ""
}
