package assistant

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClaudeOutput(t *testing.T) {
	input := strings.Join([]string{
		`{"type":"system","subtype":"init","session_id":"abc","model":"claude-test"}`,
		`not json`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"Hello "},{"type":"tool_use","name":"Bash"}]}}`,
		`{"type":"assistant","message":{"content":[{"type":"text","text":"world"}]}}`,
		``,
		`{"type":"result","subtype":"success","result":"All done","total_cost_usd":0.01,"num_turns":2}`,
	}, "\n")

	res, err := ParseClaudeOutput(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "abc", res.SessionID)
	assert.Equal(t, "claude-test", res.Model)
	assert.Equal(t, "Hello world", res.StreamText)
	assert.Equal(t, "All done", res.Text())
	assert.Equal(t, 2, res.NumTurns)
	assert.InDelta(t, 0.01, res.TotalCostUSD, 1e-9)
	require.Len(t, res.ParseErrors, 1)
	assert.Contains(t, res.ParseErrors[0], "line 2")
}

func TestParseClaudeOutput_FallsBackToStreamText(t *testing.T) {
	res, err := ParseClaudeOutput(strings.NewReader(`{"type":"assistant","message":{"content":"<promise>COMPLETE</promise>"}}`))
	require.NoError(t, err)
	assert.Equal(t, "<promise>COMPLETE</promise>", res.Text())
}

func TestParseClaudeOutput_NoContent(t *testing.T) {
	_, err := ParseClaudeOutput(strings.NewReader(`{"type":"system","subtype":"init"}`))
	assert.ErrorIs(t, err, errNoResult)
}

func TestParseClaudeOutput_ErrorResult(t *testing.T) {
	res, err := ParseClaudeOutput(strings.NewReader(`{"type":"result","subtype":"error_max_turns","is_error":true,"result":"out of turns"}`))
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "out of turns", res.Text())
}
