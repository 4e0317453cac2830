package assistant

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/yarlson/coralph/internal/stream"
)

// ClaudeResult is what a Claude stream-json run reports.
type ClaudeResult struct {
	SessionID    string
	Model        string
	FinalText    string
	StreamText   string
	IsError      bool
	TotalCostUSD float64
	NumTurns     int

	// ParseErrors holds lines that could not be decoded.
	ParseErrors []string
}

// Text returns the authoritative output, falling back to streamed text.
func (r ClaudeResult) Text() string {
	if strings.TrimSpace(r.FinalText) != "" {
		return r.FinalText
	}
	return r.StreamText
}

type claudeEvent struct {
	Type         string  `json:"type"`
	Subtype      string  `json:"subtype"`
	SessionID    string  `json:"session_id"`
	Model        string  `json:"model"`
	Result       string  `json:"result"`
	IsError      bool    `json:"is_error"`
	TotalCostUSD float64 `json:"total_cost_usd"`
	NumTurns     int     `json:"num_turns"`
	Message      *struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

const maxLineSize = 10 * 1024 * 1024

var errNoResult = errors.New("no result event in claude output")

// ParseClaudeOutput decodes Claude's --output-format=stream-json stream.
// Undecodable lines are collected, not fatal, but a stream without any
// assistant text or result event is an error.
func ParseClaudeOutput(r io.Reader) (ClaudeResult, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var res ClaudeResult
	var text strings.Builder
	sawResult := false

	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var ev claudeEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			res.ParseErrors = append(res.ParseErrors, fmt.Sprintf("line %d: %v", n, err))
			continue
		}

		switch ev.Type {
		case "system":
			if ev.Subtype == "init" {
				res.SessionID = ev.SessionID
				res.Model = ev.Model
			}
		case "assistant":
			if ev.Message != nil {
				text.WriteString(stream.ContentText(ev.Message.Content))
			}
		case "result":
			sawResult = true
			res.FinalText = ev.Result
			res.IsError = ev.IsError
			res.TotalCostUSD = ev.TotalCostUSD
			res.NumTurns = ev.NumTurns
		}
	}
	if err := scanner.Err(); err != nil {
		return res, fmt.Errorf("reading claude output: %w", err)
	}

	res.StreamText = text.String()
	if !sawResult && res.StreamText == "" {
		return res, errNoResult
	}
	return res, nil
}
