package model

import (
	"fmt"
	"strings"
	"time"
)

// CIStatus is the aggregated CI state of a pull request's last commit.
type CIStatus string

// CIStatus values.
const (
	CISuccess CIStatus = "success"
	CIFailure CIStatus = "failure"
	CIPending CIStatus = "pending"
	CIUnknown CIStatus = "unknown"
)

// ReviewState is the aggregated review state across all reviewers.
type ReviewState string

// ReviewState values.
const (
	ReviewApproved         ReviewState = "approved"
	ReviewChangesRequested ReviewState = "changes_requested"
	ReviewPending          ReviewState = "pending"
	ReviewUnknown          ReviewState = "unknown"
)

// Filter names a computed view over the pull request collection.
type Filter string

// Filter values.
const (
	FilterInbox     Filter = "inbox"
	FilterReview    Filter = "review"
	FilterDiscussed Filter = "discussed"
	FilterMine      Filter = "mine"
	FilterDrafts    Filter = "drafts"
)

// Filters returns all filters in display order.
func Filters() []Filter {
	return []Filter{FilterInbox, FilterReview, FilterDiscussed, FilterMine, FilterDrafts}
}

// PullRequest is one tracked pull request, rebuilt from the API on every
// fetch cycle and never mutated after publication.
type PullRequest struct {
	ID           string
	Number       int
	RepoFullName string
	Title        string
	Author       string
	HTMLURL      string
	UpdatedAt    time.Time

	IsDraft             bool
	HasConflicts        bool
	IsRequestedReviewer bool
	IsReviewedByMe      bool
	HasMyComment        bool

	CIStatus     CIStatus
	FailedChecks []string
	ReviewState  ReviewState

	RecentComments []PRComment
	ReviewThreads  []PRCommentThread
	RecentReviews  []PRReview
}

// Key returns the composite identity used to deduplicate pull requests
// across the two source queries.
func (pr *PullRequest) Key() string {
	return fmt.Sprintf("%s#%d", pr.RepoFullName, pr.Number)
}

// PRComment is a single top-level or review-thread comment.
type PRComment struct {
	ID        string
	Author    string
	Body      string
	CreatedAt time.Time
	HTMLURL   string
}

const previewLimit = 100

// Preview returns a single-line summary of the comment body, truncated to
// roughly previewLimit characters with an ellipsis.
func (c PRComment) Preview() string {
	s := strings.Join(strings.Fields(c.Body), " ")
	runes := []rune(s)
	if len(runes) <= previewLimit {
		return s
	}
	return strings.TrimRight(string(runes[:previewLimit]), " ") + "…"
}

// PRCommentThread is a review conversation anchored to a line or file in the
// diff, with its comments ordered newest-first.
type PRCommentThread struct {
	ID       string
	Comments []PRComment
}

// LatestComment returns the most recent comment in the thread, or nil if the
// thread is empty.
func (t PRCommentThread) LatestComment() *PRComment {
	var latest *PRComment
	for i := range t.Comments {
		if latest == nil || t.Comments[i].CreatedAt.After(latest.CreatedAt) {
			latest = &t.Comments[i]
		}
	}
	return latest
}

// PRReview is one non-comment review (approval, change request, dismissal).
type PRReview struct {
	Author      string
	State       ReviewState
	SubmittedAt time.Time
}
