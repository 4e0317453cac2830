package issues

import "strconv"

// Feedback comment types.
const (
	FeedbackMention       = "mention"
	FeedbackReviewComment = "review_comment"
)

// PRFeedback groups reviewer feedback on the pull request opened for an issue.
// Field names are serialised as-is into the prompt.
type PRFeedback struct {
	IssueNumber int
	PrNumber    int
	PrBranch    string
	Feedback    []PRFeedbackComment
}

// PRFeedbackComment is one piece of reviewer feedback.
type PRFeedbackComment struct {
	Type       string
	Author     string
	Body       string
	Path       *string
	Line       *int
	IsResolved bool
}

// BranchForIssue is the head branch used for an issue in PR mode.
func BranchForIssue(number int) string {
	return "coralph/issue-" + strconv.Itoa(number)
}
