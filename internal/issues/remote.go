package issues

import (
	"net/url"
	"regexp"
	"strings"
)

var sshRemote = regexp.MustCompile(`(?i)^git@github\.com:([^/]+)/(.+?)(?:\.git)?$`)

// ParseGitHubRemote extracts owner and repository name from a GitHub remote URL.
// Both https://github.com/owner/repo(.git) and git@github.com:owner/repo(.git) are accepted.
func ParseGitHubRemote(remote string) (owner, repo string, ok bool) {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return "", "", false
	}

	if u, err := url.Parse(remote); err == nil && u.IsAbs() && strings.EqualFold(u.Hostname(), "github.com") {
		segments := strings.FieldsFunc(strings.Trim(u.Path, "/"), func(r rune) bool { return r == '/' })
		if len(segments) >= 2 {
			name := segments[1]
			if strings.HasSuffix(strings.ToLower(name), ".git") {
				name = name[:len(name)-4]
			}
			return segments[0], name, true
		}
		return "", "", false
	}

	if m := sshRemote.FindStringSubmatch(remote); m != nil {
		return m[1], m[2], true
	}
	return "", "", false
}

// SplitRepo splits "owner/repo".
func SplitRepo(slug string) (owner, repo string, ok bool) {
	owner, repo, found := strings.Cut(strings.TrimSpace(slug), "/")
	if !found || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", false
	}
	return owner, repo, true
}

// IsUserInBypassList reports whether login appears in bypass, ignoring case.
func IsUserInBypassList(login string, bypass []string) bool {
	login = strings.TrimSpace(login)
	if login == "" {
		return false
	}
	for _, u := range bypass {
		if strings.TrimSpace(u) != "" && strings.EqualFold(strings.TrimSpace(u), login) {
			return true
		}
	}
	return false
}
