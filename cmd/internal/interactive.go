// Package internal provides shared helpers for coralph CLI commands.
package internal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"golang.org/x/term"
)

// IsInteractive returns true if the given file descriptor is a TTY.
// This is used to determine if interactive prompts should be shown.
func IsInteractive(fd uintptr) bool {
	return term.IsTerminal(int(fd))
}

// IsInteractiveReader reports whether r is a terminal file.
func IsInteractiveReader(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && IsInteractive(f.Fd())
}

// PromptSelection prints a numbered menu and reads a choice from in.
// An empty answer or end of input selects defaultIndex; invalid answers
// are asked again. The returned index is 0-based.
func PromptSelection(out io.Writer, in io.Reader, title string, options []string, defaultIndex int) (int, error) {
	if len(options) == 0 {
		return 0, errors.New("no options to choose from")
	}
	if defaultIndex < 0 || defaultIndex >= len(options) {
		defaultIndex = 0
	}

	_, _ = fmt.Fprintln(out, title)
	for i, opt := range options {
		_, _ = fmt.Fprintf(out, "  %d) %s\n", i+1, opt)
	}

	reader := bufio.NewReader(in)
	for {
		_, _ = fmt.Fprintf(out, "Select [1-%d] (default %d): ", len(options), defaultIndex+1)

		line, err := reader.ReadString('\n')
		answer := strings.TrimSpace(line)
		if err != nil && !errors.Is(err, io.EOF) {
			return 0, fmt.Errorf("reading selection: %w", err)
		}
		if answer == "" {
			if err != nil {
				_, _ = fmt.Fprintln(out)
			}
			return defaultIndex, nil
		}

		if n, convErr := strconv.Atoi(answer); convErr == nil && n >= 1 && n <= len(options) {
			return n - 1, nil
		}
		_, _ = fmt.Fprintf(out, "Please enter a number between 1 and %d.\n", len(options))
		if err != nil {
			return defaultIndex, nil
		}
	}
}
