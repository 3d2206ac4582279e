package api

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shurcooL/githubv4"

	"prwatch/internal/model"
)

// botAuthors is the fixed blocklist for comment authors, matched
// case-insensitively as substrings of the login.
var botAuthors = []string{
	"github-actions",
	"[bot]",
	"dependabot",
	"renovate",
	"codecov",
	"sonarcloud",
	"vercel",
	"netlify",
}

// failingCheckConclusions are the check-run conclusions that count a check
// as failing.
var failingCheckConclusions = map[string]bool{
	"FAILURE":         true,
	"TIMED_OUT":       true,
	"CANCELLED":       true,
	"ACTION_REQUIRED": true,
	"STARTUP_FAILURE": true,
	"STALE":           true,
}

// mapPullRequest converts one raw search node into a PullRequest, or nil if
// any required scalar field is absent. Partial data never produces a
// partially-populated record; malformed nodes are skipped, not errors.
func mapPullRequest(node *prNode, viewer string, requestedReviewer bool, extraBots []string) *model.PullRequest {
	number := int(node.Number)
	title := string(node.Title)
	url := string(node.URL)
	repo := string(node.Repository.NameWithOwner)
	if number <= 0 || title == "" || url == "" || repo == "" {
		return nil
	}

	pr := &model.PullRequest{
		Number:              number,
		RepoFullName:        repo,
		Title:               title,
		Author:              string(node.Author.Login),
		HTMLURL:             url,
		UpdatedAt:           node.UpdatedAt.Time,
		IsDraft:             bool(node.IsDraft),
		HasConflicts:        node.Mergeable == githubv4.MergeableStateConflicting,
		IsRequestedReviewer: requestedReviewer,
	}

	pr.ID = fmt.Sprintf("%v", node.ID)
	if node.ID == nil || pr.ID == "" {
		pr.ID = pr.Key()
	}

	pr.CIStatus, pr.FailedChecks = mapCIStatus(lastCommitRollup(node))

	reviewState, reviewedByMe, commentedByMe, recentReviews := mapReviews(node.Reviews.Nodes, viewer)
	pr.ReviewState = reviewState
	pr.IsReviewedByMe = reviewedByMe
	pr.RecentReviews = recentReviews

	comments, myComment := mapComments(node.Comments.Nodes, viewer, extraBots)
	pr.RecentComments = comments

	threads, myThreadComment := mapThreads(node.ReviewThreads.Nodes, viewer, extraBots)
	pr.ReviewThreads = threads

	pr.HasMyComment = myComment || myThreadComment || commentedByMe

	return pr
}

// lastCommitRollup returns the status-check rollup of the last commit, or
// nil when the node has no commits or no rollup. Earlier commits are never
// consulted.
func lastCommitRollup(node *prNode) *rollupNode {
	if len(node.Commits.Nodes) == 0 {
		return nil
	}
	return node.Commits.Nodes[len(node.Commits.Nodes)-1].Commit.StatusCheckRollup
}

// mapCIStatus interprets the rollup state and collects the names of failing
// contexts. Unrecognized context variants are ignored.
func mapCIStatus(rollup *rollupNode) (model.CIStatus, []string) {
	if rollup == nil {
		return model.CIUnknown, nil
	}

	var status model.CIStatus
	switch strings.ToUpper(string(rollup.State)) {
	case "SUCCESS":
		status = model.CISuccess
	case "FAILURE", "ERROR":
		status = model.CIFailure
	case "PENDING", "EXPECTED":
		status = model.CIPending
	default:
		status = model.CIUnknown
	}

	seen := make(map[string]bool)
	var failed []string
	for _, ctx := range rollup.Contexts.Nodes {
		var name string
		switch string(ctx.Typename) {
		case "CheckRun":
			if failingCheckConclusions[strings.ToUpper(string(ctx.CheckRun.Conclusion))] {
				name = string(ctx.CheckRun.Name)
			}
		case "StatusContext":
			switch strings.ToUpper(string(ctx.StatusContext.State)) {
			case "FAILURE", "ERROR":
				name = string(ctx.StatusContext.Context)
			}
		}
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		failed = append(failed, name)
	}
	sort.Strings(failed)

	return status, failed
}

// mapReviews aggregates the review list. The viewer's APPROVED or
// CHANGES_REQUESTED reviews set reviewedByMe; the viewer's COMMENTED reviews
// only mark self-activity. The overall state comes from the latest
// non-COMMENTED review per other author, CHANGES_REQUESTED taking precedence
// over APPROVED.
func mapReviews(nodes []reviewNode, viewer string) (model.ReviewState, bool, bool, []model.PRReview) {
	var reviewedByMe, commentedByMe bool
	// Latest non-COMMENTED state per other author; source order is
	// chronological, so later entries overwrite earlier ones.
	latest := make(map[string]string)
	var recent []model.PRReview

	for _, node := range nodes {
		author := string(node.Author.Login)
		state := strings.ToUpper(string(node.State))
		mine := viewer != "" && strings.EqualFold(author, viewer)

		if state == "COMMENTED" {
			if mine {
				commentedByMe = true
			}
			continue
		}

		review := model.PRReview{Author: author, State: reviewStateOf(state)}
		if node.SubmittedAt != nil {
			review.SubmittedAt = node.SubmittedAt.Time
		}
		recent = append(recent, review)

		if mine {
			if state == "APPROVED" || state == "CHANGES_REQUESTED" {
				reviewedByMe = true
			}
			continue
		}
		if author != "" {
			latest[strings.ToLower(author)] = state
		}
	}

	sort.SliceStable(recent, func(i, j int) bool {
		return recent[i].SubmittedAt.After(recent[j].SubmittedAt)
	})

	var anyApproved, anyChangesRequested bool
	for _, state := range latest {
		switch state {
		case "CHANGES_REQUESTED":
			anyChangesRequested = true
		case "APPROVED":
			anyApproved = true
		}
	}

	overall := model.ReviewUnknown
	switch {
	case anyChangesRequested:
		overall = model.ReviewChangesRequested
	case anyApproved:
		overall = model.ReviewApproved
	}

	return overall, reviewedByMe, commentedByMe, recent
}

func reviewStateOf(raw string) model.ReviewState {
	switch raw {
	case "APPROVED":
		return model.ReviewApproved
	case "CHANGES_REQUESTED":
		return model.ReviewChangesRequested
	case "PENDING":
		return model.ReviewPending
	default:
		return model.ReviewUnknown
	}
}

// mapComments filters and converts raw comments, newest-first. It reports
// whether any surviving comment was authored by the viewer.
func mapComments(nodes []commentNode, viewer string, extraBots []string) ([]model.PRComment, bool) {
	var comments []model.PRComment
	var mine bool

	for _, node := range nodes {
		author := string(node.Author.Login)
		body := string(node.Body)
		if author == "" || body == "" || node.CreatedAt.IsZero() {
			continue
		}
		if isBotAuthor(author, viewer, extraBots) {
			continue
		}

		comment := model.PRComment{
			Author:    author,
			Body:      body,
			CreatedAt: node.CreatedAt.Time,
			HTMLURL:   string(node.URL),
		}
		comment.ID = fmt.Sprintf("%v", node.ID)
		if node.ID == nil || comment.ID == "" {
			comment.ID = fmt.Sprintf("%s@%d", author, comment.CreatedAt.Unix())
		}

		if viewer != "" && strings.EqualFold(author, viewer) {
			mine = true
		}
		comments = append(comments, comment)
	}

	sort.SliceStable(comments, func(i, j int) bool {
		return comments[i].CreatedAt.After(comments[j].CreatedAt)
	})

	return comments, mine
}

// mapThreads converts review threads, dropping any thread left empty after
// bot filtering. Threads sort by their latest comment, newest-first.
func mapThreads(nodes []threadNode, viewer string, extraBots []string) ([]model.PRCommentThread, bool) {
	var threads []model.PRCommentThread
	var mine bool

	for _, node := range nodes {
		comments, threadMine := mapComments(node.Comments.Nodes, viewer, extraBots)
		if len(comments) == 0 {
			continue
		}

		thread := model.PRCommentThread{Comments: comments}
		thread.ID = fmt.Sprintf("%v", node.ID)
		if node.ID == nil || thread.ID == "" {
			thread.ID = fmt.Sprintf("thread@%d", comments[0].CreatedAt.Unix())
		}

		mine = mine || threadMine
		threads = append(threads, thread)
	}

	sort.SliceStable(threads, func(i, j int) bool {
		li, lj := threads[i].LatestComment(), threads[j].LatestComment()
		if lj == nil {
			return li != nil
		}
		if li == nil {
			return false
		}
		return li.CreatedAt.After(lj.CreatedAt)
	})

	return threads, mine
}

// isBotAuthor reports whether a login matches the bot blocklist. The viewer
// is never treated as a bot.
func isBotAuthor(login, viewer string, extraBots []string) bool {
	if viewer != "" && strings.EqualFold(login, viewer) {
		return false
	}
	lower := strings.ToLower(login)
	for _, bot := range botAuthors {
		if strings.Contains(lower, bot) {
			return true
		}
	}
	for _, bot := range extraBots {
		if bot != "" && strings.Contains(lower, strings.ToLower(bot)) {
			return true
		}
	}
	return false
}
