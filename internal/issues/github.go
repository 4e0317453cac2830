package issues

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	gogithub "github.com/google/go-github/v68/github"
	"github.com/rs/zerolog/log"
)

const perPage = 100

// mentionMarker selects PR conversation comments addressed to the loop.
const mentionMarker = "@coralph"

// GitHub reads issues, pull request feedback and permissions for one repository.
type GitHub struct {
	client *gogithub.Client
	owner  string
	repo   string
}

// NewGitHubClient builds a go-github client. An empty token gives an
// unauthenticated client; baseURL overrides the API endpoint (GitHub Enterprise, tests).
func NewGitHubClient(token, baseURL string) (*gogithub.Client, error) {
	client := gogithub.NewClient(nil)
	if token != "" {
		client = client.WithAuthToken(token)
	}
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, fmt.Errorf("parsing GitHub API url: %w", err)
		}
		client.BaseURL = u
	}
	return client, nil
}

// NewGitHub binds a client to owner/repo.
func NewGitHub(client *gogithub.Client, owner, repo string) *GitHub {
	return &GitHub{client: client, owner: owner, repo: repo}
}

// Repo returns "owner/repo".
func (g *GitHub) Repo() string {
	return g.owner + "/" + g.repo
}

// FetchOpenIssues lists every open issue (pull requests excluded) with its comments.
func (g *GitHub) FetchOpenIssues(ctx context.Context) ([]Issue, error) {
	opts := &gogithub.IssueListByRepoOptions{
		State:       "open",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gogithub.ListOptions{PerPage: perPage},
	}

	var out []Issue
	for {
		page, resp, err := g.client.Issues.ListByRepo(ctx, g.owner, g.repo, opts)
		if err != nil {
			return nil, fmt.Errorf("listing issues for %s: %w", g.Repo(), err)
		}

		for _, gi := range page {
			if gi.IsPullRequest() {
				continue
			}
			issue := Issue{
				Number: gi.GetNumber(),
				Title:  gi.GetTitle(),
				Body:   gi.GetBody(),
				State:  gi.GetState(),
				URL:    gi.GetHTMLURL(),
			}
			for _, l := range gi.Labels {
				issue.Labels = append(issue.Labels, Label{Name: l.GetName()})
			}
			if gi.GetComments() > 0 {
				comments, err := g.issueComments(ctx, gi.GetNumber())
				if err != nil {
					return nil, err
				}
				issue.Comments = comments
			}
			out = append(out, issue)
		}

		if resp == nil || resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	log.Debug().Str("repo", g.Repo()).Int("count", len(out)).Msg("fetched open issues")
	return out, nil
}

func (g *GitHub) issueComments(ctx context.Context, number int) ([]Comment, error) {
	raw, err := g.listIssueComments(ctx, number)
	if err != nil {
		return nil, err
	}
	out := make([]Comment, 0, len(raw))
	for _, c := range raw {
		out = append(out, Comment{Author: c.GetUser().GetLogin(), Body: c.GetBody()})
	}
	return out, nil
}

func (g *GitHub) listIssueComments(ctx context.Context, number int) ([]*gogithub.IssueComment, error) {
	opts := &gogithub.IssueListCommentsOptions{ListOptions: gogithub.ListOptions{PerPage: perPage}}
	var out []*gogithub.IssueComment
	for {
		page, resp, err := g.client.Issues.ListComments(ctx, g.owner, g.repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing comments for #%d: %w", number, err)
		}
		out = append(out, page...)
		if resp == nil || resp.NextPage == 0 {
			return out, nil
		}
		opts.Page = resp.NextPage
	}
}

// FetchPRFeedback collects reviewer feedback from the open pull request of
// each issue. Issues without an open pull request or without feedback are omitted.
func (g *GitHub) FetchPRFeedback(ctx context.Context, issueNumbers []int) (map[int]PRFeedback, error) {
	out := make(map[int]PRFeedback)
	for _, n := range issueNumbers {
		branch := BranchForIssue(n)
		prs, _, err := g.client.PullRequests.List(ctx, g.owner, g.repo, &gogithub.PullRequestListOptions{
			State:       "open",
			Head:        g.owner + ":" + branch,
			ListOptions: gogithub.ListOptions{PerPage: 1},
		})
		if err != nil {
			return nil, fmt.Errorf("listing pull requests for %s: %w", branch, err)
		}
		if len(prs) == 0 {
			continue
		}

		pr := prs[0]
		fb := PRFeedback{IssueNumber: n, PrNumber: pr.GetNumber(), PrBranch: branch}

		review, _, err := g.client.PullRequests.ListComments(ctx, g.owner, g.repo, pr.GetNumber(),
			&gogithub.PullRequestListCommentsOptions{ListOptions: gogithub.ListOptions{PerPage: perPage}})
		if err != nil {
			return nil, fmt.Errorf("listing review comments for PR #%d: %w", pr.GetNumber(), err)
		}
		for _, c := range review {
			fb.Feedback = append(fb.Feedback, PRFeedbackComment{
				Type:   FeedbackReviewComment,
				Author: c.GetUser().GetLogin(),
				Body:   c.GetBody(),
				Path:   c.Path,
				Line:   c.Line,
			})
		}

		conversation, err := g.listIssueComments(ctx, pr.GetNumber())
		if err != nil {
			return nil, err
		}
		for _, c := range conversation {
			if !strings.Contains(strings.ToLower(c.GetBody()), mentionMarker) {
				continue
			}
			fb.Feedback = append(fb.Feedback, PRFeedbackComment{
				Type:   FeedbackMention,
				Author: c.GetUser().GetLogin(),
				Body:   c.GetBody(),
			})
		}

		if len(fb.Feedback) > 0 {
			out[n] = fb
		}
	}
	return out, nil
}

// CurrentUser returns the login of the authenticated user.
func (g *GitHub) CurrentUser(ctx context.Context) (string, error) {
	u, _, err := g.client.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("resolving current user: %w", err)
	}
	return u.GetLogin(), nil
}

// CanPushToDefaultBranch reports whether login may push directly to the
// repository's unprotected default branch.
func (g *GitHub) CanPushToDefaultBranch(ctx context.Context, login string) (bool, error) {
	level, _, err := g.client.Repositories.GetPermissionLevel(ctx, g.owner, g.repo, login)
	if err != nil {
		return false, fmt.Errorf("reading permission level: %w", err)
	}
	switch level.GetPermission() {
	case "admin", "maintain", "write":
	default:
		return false, nil
	}

	repo, _, err := g.client.Repositories.Get(ctx, g.owner, g.repo)
	if err != nil {
		return false, fmt.Errorf("reading repository: %w", err)
	}
	branch := repo.GetDefaultBranch()
	if branch == "" {
		return false, nil
	}

	b, resp, err := g.client.Repositories.GetBranch(ctx, g.owner, g.repo, branch, 1)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("reading branch %s: %w", branch, err)
	}
	return !b.GetProtected(), nil
}

// DetectPRMode decides whether the loop should work through pull requests.
// Users on the bypass list always push directly. Any lookup failure selects PR mode.
func (g *GitHub) DetectPRMode(ctx context.Context, bypass []string) (bool, error) {
	login, err := g.CurrentUser(ctx)
	if err != nil {
		return true, err
	}
	if IsUserInBypassList(login, bypass) {
		return false, nil
	}

	canPush, err := g.CanPushToDefaultBranch(ctx, login)
	if err != nil {
		var rateErr *gogithub.RateLimitError
		if errors.As(err, &rateErr) {
			return true, fmt.Errorf("rate limited: %w", err)
		}
		return true, err
	}
	return !canPush, nil
}
