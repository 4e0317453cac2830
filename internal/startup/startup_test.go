package startup

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidatePromptFile_Missing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.md")

	err := ValidatePromptFile(path)

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPromptFileNotFound)
	assert.Equal(t, "Prompt file not found: "+path+". Run 'coralph --init' in this repository to create it.", err.Error())
}

func TestValidatePromptFile_RelativePathReportedAbsolute(t *testing.T) {
	t.Chdir(t.TempDir())

	err := ValidatePromptFile("prompt.md")

	var pfErr *PromptFileError
	require.ErrorAs(t, err, &pfErr)
	assert.True(t, filepath.IsAbs(pfErr.Path))
	assert.Equal(t, "prompt.md", filepath.Base(pfErr.Path))
}

func TestValidatePromptFile_Directory(t *testing.T) {
	assert.ErrorIs(t, ValidatePromptFile(t.TempDir()), ErrPromptFileNotFound)
}

func TestLoadPromptTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompt.md")
	require.NoError(t, os.WriteFile(path, []byte("# TASK\nDo it.\n"), 0o644))

	require.NoError(t, ValidatePromptFile(path))
	text, err := LoadPromptTemplate(path)
	require.NoError(t, err)
	assert.Equal(t, "# TASK\nDo it.\n", text)
}
