// Package classify derives attention flags and filtered views from a pull
// request collection. Everything here is a pure function of the collection
// and the viewer's login; filters are views, not stored partitions.
package classify

import (
	"strings"

	"prwatch/internal/model"
)

// Health summarizes the whole collection for the consumer surface.
type Health string

// Health values.
const (
	HealthSuccess Health = "success"
	HealthFailure Health = "failure"
	HealthPending Health = "pending"
	HealthUnknown Health = "unknown"
)

// IsMine reports whether the viewer authored the pull request. Logins
// compare case-insensitively; an unknown viewer owns nothing.
func IsMine(pr *model.PullRequest, viewer string) bool {
	return viewer != "" && strings.EqualFold(pr.Author, viewer)
}

// NeedsAttention reports whether a pull request is blocked: failing CI,
// merge conflicts, or requested changes. Drafts never need attention.
func NeedsAttention(pr *model.PullRequest) bool {
	if pr.IsDraft {
		return false
	}
	return pr.CIStatus == model.CIFailure || pr.HasConflicts || pr.ReviewState == model.ReviewChangesRequested
}

// Apply returns the subset of the collection selected by the filter.
// Filters that need the viewer's login degrade to empty (inbox degrades to
// the reviewer-pending condition alone) when it is unknown.
func Apply(f model.Filter, prs []*model.PullRequest, viewer string) []*model.PullRequest {
	out := make([]*model.PullRequest, 0, len(prs))
	for _, pr := range prs {
		if matches(f, pr, viewer) {
			out = append(out, pr)
		}
	}
	return out
}

func matches(f model.Filter, pr *model.PullRequest, viewer string) bool {
	reviewPending := pr.IsRequestedReviewer && !pr.IsReviewedByMe

	switch f {
	case model.FilterInbox:
		if reviewPending {
			return true
		}
		return IsMine(pr, viewer) && NeedsAttention(pr)
	case model.FilterReview:
		return reviewPending
	case model.FilterDiscussed:
		// A PR awaiting the viewer's review belongs to the review filter
		// even when the viewer already commented on it.
		if viewer == "" || reviewPending {
			return false
		}
		return pr.IsReviewedByMe || pr.HasMyComment
	case model.FilterMine:
		return IsMine(pr, viewer) && !pr.IsDraft
	case model.FilterDrafts:
		return IsMine(pr, viewer) && pr.IsDraft
	default:
		return false
	}
}

// Counts returns the size of every filter view.
func Counts(prs []*model.PullRequest, viewer string) map[model.Filter]int {
	counts := make(map[model.Filter]int, len(model.Filters()))
	for _, f := range model.Filters() {
		counts[f] = 0
	}
	for _, pr := range prs {
		for _, f := range model.Filters() {
			if matches(f, pr, viewer) {
				counts[f]++
			}
		}
	}
	return counts
}

// AttentionCount counts the viewer's own blocked pull requests.
func AttentionCount(prs []*model.PullRequest, viewer string) int {
	if viewer == "" {
		return 0
	}
	n := 0
	for _, pr := range prs {
		if IsMine(pr, viewer) && NeedsAttention(pr) {
			n++
		}
	}
	return n
}

// OverallHealth reduces the collection to a single state: failure if
// anything is blocked, pending if anything is still running, success only
// when every PR has green CI and an approved review.
func OverallHealth(prs []*model.PullRequest) Health {
	if len(prs) == 0 {
		return HealthUnknown
	}

	allClean := true
	anyPending := false
	for _, pr := range prs {
		if pr.CIStatus == model.CIFailure || pr.HasConflicts || pr.ReviewState == model.ReviewChangesRequested {
			return HealthFailure
		}
		if pr.CIStatus == model.CIPending {
			anyPending = true
		}
		if pr.CIStatus != model.CISuccess || pr.ReviewState != model.ReviewApproved {
			allClean = false
		}
	}
	if anyPending {
		return HealthPending
	}
	if allClean {
		return HealthSuccess
	}
	return HealthPending
}
