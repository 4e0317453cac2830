// Package stream renders assistant stdout for live display while a turn runs.
package stream

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

// ansiCSI matches ANSI CSI escape sequences.
var ansiCSI = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// Format selects how assistant stdout is interpreted.
type Format string

const (
	// FormatText passes plain output through.
	FormatText Format = "text"
	// FormatNDJSON decodes newline-delimited JSON events.
	FormatNDJSON Format = "ndjson"
)

// Options configures the processor.
type Options struct {
	Format Format

	// ShowTools prints summarised tool events.
	ShowTools bool
}

// Processor copies a readable rendering of assistant output to a writer.
type Processor struct {
	opts Options
	out  *bufio.Writer
}

// NewProcessor creates a processor writing to w.
func NewProcessor(w io.Writer, opts Options) *Processor {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	return &Processor{opts: opts, out: bufio.NewWriterSize(w, 32*1024)}
}

// Process consumes r until EOF.
func (p *Processor) Process(r io.Reader) error {
	if p.opts.Format == FormatText {
		return p.processText(r)
	}

	err := JSONObjects(r, func(raw []byte) {
		p.handleEvent(raw)
		_ = p.out.Flush()
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return p.out.Flush()
}

func (p *Processor) processText(r io.Reader) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			_, _ = p.out.WriteString(Sanitize(line))
			_ = p.out.Flush()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return p.out.Flush()
			}
			return err
		}
	}
}

// JSONObjects yields each complete top-level JSON object in r. Objects may be
// concatenated without separators; bytes outside objects are skipped.
func JSONObjects(r io.Reader, onObject func([]byte)) error {
	br := bufio.NewReaderSize(r, 64*1024)

	var buf bytes.Buffer
	depth := 0
	inString, escaped := false, false

	for {
		b, err := br.ReadByte()
		if err != nil {
			return err
		}

		if depth == 0 {
			if b == '{' {
				buf.Reset()
				buf.WriteByte(b)
				depth = 1
				inString, escaped = false, false
			}
			continue
		}

		buf.WriteByte(b)
		switch {
		case inString && escaped:
			escaped = false
		case inString && b == '\\':
			escaped = true
		case inString && b == '"':
			inString = false
		case inString:
		case b == '"':
			inString = true
		case b == '{':
			depth++
		case b == '}':
			depth--
			if depth == 0 {
				onObject(bytes.Clone(buf.Bytes()))
			}
		}
	}
}

type event struct {
	Type     string          `json:"type"`
	Subtype  string          `json:"subtype"`
	Text     string          `json:"text"`
	Tool     string          `json:"tool"`
	ToolName string          `json:"tool_name"`
	Name     string          `json:"name"`
	Output   string          `json:"output"`
	Result   json.RawMessage `json:"result"`
	Delta    *struct {
		Text string `json:"text"`
	} `json:"delta"`
	Message *struct {
		Content json.RawMessage `json:"content"`
	} `json:"message"`
}

func (p *Processor) handleEvent(raw []byte) {
	var ev event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return
	}

	if isToolEvent(ev) {
		if p.opts.ShowTools {
			p.writeTool(ev)
		}
		return
	}

	switch {
	case ev.Delta != nil && ev.Delta.Text != "":
		_, _ = p.out.WriteString(Sanitize(ev.Delta.Text))
	case ev.Message != nil:
		if text := ContentText(ev.Message.Content); text != "" {
			p.writeLine(text)
		}
	case ev.Text != "":
		p.writeLine(ev.Text)
	}
}

func (p *Processor) writeTool(ev event) {
	name := firstNonEmpty(ev.Tool, ev.ToolName, ev.Name, "tool")
	output := ev.Output
	if output == "" {
		var s string
		if json.Unmarshal(ev.Result, &s) == nil {
			output = s
		}
	}
	if IsIgnorableToolOutput(name, output) {
		return
	}
	_, _ = p.out.WriteString("[tool] " + Sanitize(name) + "\n")
	if summary := SummarizeToolOutput(Sanitize(output)); summary != "" {
		p.writeLine(summary)
	}
}

func (p *Processor) writeLine(s string) {
	s = Sanitize(s)
	_, _ = p.out.WriteString(s)
	if !strings.HasSuffix(s, "\n") {
		_, _ = p.out.WriteString("\n")
	}
}

func isToolEvent(ev event) bool {
	switch {
	case ev.Type == "tool_use", ev.Type == "tool_result", ev.Type == "tool":
		return true
	case ev.Subtype == "tool_use", ev.Subtype == "tool_result":
		return true
	}
	return ev.Tool != "" || ev.ToolName != ""
}

// ContentText joins the text blocks of a message content value, which may be
// a plain string or an array of typed blocks.
func ContentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	}
	if json.Unmarshal(raw, &blocks) != nil {
		return ""
	}
	var sb strings.Builder
	for _, b := range blocks {
		if b.Type == "text" || (b.Type == "" && b.Text != "") {
			sb.WriteString(b.Text)
		}
	}
	return sb.String()
}

// Sanitize removes ANSI escapes and control characters other than
// newline, tab and carriage return.
func Sanitize(s string) string {
	s = ansiCSI.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' && r != '\r' {
			return -1
		}
		return r
	}, s)
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return ""
}
