package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusCommand_EmptyRepository(t *testing.T) {
	isolate(t)

	out, _, err := executeRoot(t, "status")
	require.NoError(t, err)

	assert.Contains(t, out, "## Status")
	assert.Contains(t, out, "Not generated yet")
	assert.Contains(t, out, "Open issues: unknown (issues.json missing or malformed)")
}

func TestStatusCommand_UsesConfiguredPaths(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "coralph.yaml"), []byte(`files:
  issues: work/issues.json
  generated_tasks: work/tasks.json
`), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "work"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "work", "issues.json"), []byte(`[{"number":1,"title":"a"},{"number":2,"title":"b"}]`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "work", "tasks.json"), []byte(`{"version":1,"tasks":[
  {"id":"issue-1-1","issueNumber":1,"issueTitle":"a","title":"Do a","status":"done","order":1},
  {"id":"issue-2-1","issueNumber":2,"issueTitle":"b","title":"Do b","status":"open","order":2}
]}`), 0o644))

	out, _, err := executeRoot(t, "status")
	require.NoError(t, err)

	assert.Contains(t, out, "File: "+filepath.Join(dir, "work", "tasks.json"))
	assert.Contains(t, out, "Progress: [==========          ] 50%")
	assert.Contains(t, out, "Next Task: Do b (issue-2-1)")
	assert.Contains(t, out, "Open issues: 2 (issues.json)")
}

func TestStatusCommand_AfterRun(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompt.md"), []byte("p\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "issues.json"), []byte(`[{"number":4,"title":"Ship it"}]`), 0o644))
	script := writeAssistant(t, `echo "<promise>ALL_TASKS_COMPLETE</promise>"`)

	_, _, err := executeRoot(t, "--provider", "copilot", "--cli-path", script, "--stream=false", "--pr-mode", "off")
	require.NoError(t, err)

	out, _, err := executeRoot(t, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "### Last Iteration")
	assert.Contains(t, out, "Signal: ALL_TASKS_COMPLETE")
	assert.Contains(t, out, "### Last Run")
	assert.Contains(t, out, "Exit code: 0")
}
