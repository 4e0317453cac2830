package issues

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseGitHubRemote(t *testing.T) {
	tests := []struct {
		url       string
		wantOwner string
		wantRepo  string
		wantOK    bool
	}{
		{"https://github.com/acme/widgets.git", "acme", "widgets", true},
		{"https://github.com/acme/widgets", "acme", "widgets", true},
		{"https://GitHub.com/acme/widgets/", "acme", "widgets", true},
		{"git@github.com:acme/widgets.git", "acme", "widgets", true},
		{"git@github.com:acme/widgets", "acme", "widgets", true},
		{"https://gitlab.com/acme/widgets.git", "", "", false},
		{"https://github.com/acme", "", "", false},
		{"", "", "", false},
		{"not a url", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			owner, repo, ok := ParseGitHubRemote(tt.url)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantOwner, owner)
			assert.Equal(t, tt.wantRepo, repo)
		})
	}
}

func TestSplitRepo(t *testing.T) {
	owner, repo, ok := SplitRepo("acme/widgets")
	assert.True(t, ok)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "widgets", repo)

	for _, bad := range []string{"", "acme", "/widgets", "acme/", "a/b/c"} {
		_, _, ok := SplitRepo(bad)
		assert.False(t, ok, bad)
	}
}

func TestIsUserInBypassList(t *testing.T) {
	assert.True(t, IsUserInBypassList("Octocat", []string{" octocat "}))
	assert.False(t, IsUserInBypassList("octocat", []string{"someone"}))
	assert.False(t, IsUserInBypassList("", []string{""}))
	assert.False(t, IsUserInBypassList("octocat", nil))
}

func TestBranchForIssue(t *testing.T) {
	assert.Equal(t, "coralph/issue-42", BranchForIssue(42))
}
