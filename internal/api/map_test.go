package api

import (
	"testing"
	"time"

	"github.com/shurcooL/githubv4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prwatch/internal/model"
)

var mapBase = time.Date(2026, 2, 15, 10, 0, 0, 0, time.UTC)

func basePRNode() prNode {
	var n prNode
	n.ID = githubv4.ID("PR_abc123")
	n.Number = 42
	n.Title = "Add request throttling"
	n.URL = "https://github.com/acme/gateway/pull/42"
	n.UpdatedAt = githubv4.DateTime{Time: mapBase}
	n.Author.Login = "bob"
	n.Repository.NameWithOwner = "acme/gateway"
	return n
}

func withRollup(n *prNode, state string, contexts ...rollupContext) {
	rollup := &rollupNode{State: githubv4.StatusState(state)}
	rollup.Contexts.Nodes = contexts
	var edge commitEdge
	edge.Commit.StatusCheckRollup = rollup
	n.Commits.Nodes = append(n.Commits.Nodes, edge)
}

func checkRun(name, conclusion string) rollupContext {
	var c rollupContext
	c.Typename = "CheckRun"
	c.CheckRun.Name = githubv4.String(name)
	c.CheckRun.Conclusion = githubv4.CheckConclusionState(conclusion)
	return c
}

func statusContext(name, state string) rollupContext {
	var c rollupContext
	c.Typename = "StatusContext"
	c.StatusContext.Context = githubv4.String(name)
	c.StatusContext.State = githubv4.StatusState(state)
	return c
}

func unknownContext() rollupContext {
	var c rollupContext
	c.Typename = "SomeFutureVariant"
	return c
}

func review(author, state string, at time.Time) reviewNode {
	var r reviewNode
	r.Author.Login = githubv4.String(author)
	r.State = githubv4.PullRequestReviewState(state)
	r.SubmittedAt = &githubv4.DateTime{Time: at}
	return r
}

func comment(id, author, body string, at time.Time) commentNode {
	var c commentNode
	if id != "" {
		c.ID = githubv4.ID(id)
	}
	c.Author.Login = githubv4.String(author)
	c.Body = githubv4.String(body)
	c.CreatedAt = githubv4.DateTime{Time: at}
	return c
}

func thread(id string, comments ...commentNode) threadNode {
	var t threadNode
	if id != "" {
		t.ID = githubv4.ID(id)
	}
	t.Comments.Nodes = comments
	return t
}

func TestMapPullRequest_RequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*prNode)
	}{
		{"missing number", func(n *prNode) { n.Number = 0 }},
		{"missing title", func(n *prNode) { n.Title = "" }},
		{"missing url", func(n *prNode) { n.URL = "" }},
		{"missing repo", func(n *prNode) { n.Repository.NameWithOwner = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := basePRNode()
			tt.mutate(&node)
			assert.Nil(t, mapPullRequest(&node, "alice", false, nil))
		})
	}
}

func TestMapPullRequest_Basics(t *testing.T) {
	node := basePRNode()
	node.IsDraft = true
	node.Mergeable = githubv4.MergeableStateConflicting

	pr := mapPullRequest(&node, "alice", true, nil)
	require.NotNil(t, pr)
	assert.Equal(t, "PR_abc123", pr.ID)
	assert.Equal(t, 42, pr.Number)
	assert.Equal(t, "acme/gateway", pr.RepoFullName)
	assert.Equal(t, "bob", pr.Author)
	assert.True(t, pr.IsDraft)
	assert.True(t, pr.HasConflicts)
	assert.True(t, pr.IsRequestedReviewer)
	assert.Equal(t, model.CIUnknown, pr.CIStatus)
	assert.Equal(t, model.ReviewUnknown, pr.ReviewState)
}

func TestMapPullRequest_IDFallback(t *testing.T) {
	node := basePRNode()
	node.ID = nil

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	assert.Equal(t, "acme/gateway#42", pr.ID)
}

func TestMapPullRequest_MergeableNonConflicting(t *testing.T) {
	node := basePRNode()
	node.Mergeable = githubv4.MergeableStateMergeable

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	assert.False(t, pr.HasConflicts)
}

func TestMapCIStatus_States(t *testing.T) {
	tests := []struct {
		state    string
		expected model.CIStatus
	}{
		{"SUCCESS", model.CISuccess},
		{"FAILURE", model.CIFailure},
		{"ERROR", model.CIFailure},
		{"PENDING", model.CIPending},
		{"EXPECTED", model.CIPending},
		{"SOMETHING_ELSE", model.CIUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			node := basePRNode()
			withRollup(&node, tt.state)
			pr := mapPullRequest(&node, "alice", false, nil)
			require.NotNil(t, pr)
			assert.Equal(t, tt.expected, pr.CIStatus)
		})
	}
}

func TestMapCIStatus_NoCommits(t *testing.T) {
	node := basePRNode()
	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	assert.Equal(t, model.CIUnknown, pr.CIStatus)
	assert.Empty(t, pr.FailedChecks)
}

func TestMapCIStatus_SuccessRoundTrip(t *testing.T) {
	node := basePRNode()
	withRollup(&node, "SUCCESS", checkRun("build", "SUCCESS"), statusContext("lint", "SUCCESS"))

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	assert.Equal(t, model.CISuccess, pr.CIStatus)
	assert.Empty(t, pr.FailedChecks)
}

func TestMapCIStatus_FailedChecks(t *testing.T) {
	node := basePRNode()
	withRollup(&node, "FAILURE",
		checkRun("unit-tests", "FAILURE"),
		checkRun("e2e", "TIMED_OUT"),
		checkRun("deploy", "CANCELLED"),
		checkRun("approval", "ACTION_REQUIRED"),
		checkRun("build", "SUCCESS"),
		statusContext("ci/legacy", "FAILURE"),
		statusContext("ci/error", "ERROR"),
		statusContext("ci/ok", "SUCCESS"),
		checkRun("unit-tests", "FAILURE"), // duplicate name
		unknownContext(),
	)

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	assert.Equal(t, model.CIFailure, pr.CIStatus)
	assert.Equal(t, []string{"approval", "ci/error", "ci/legacy", "deploy", "e2e", "unit-tests"}, pr.FailedChecks)
}

func TestMapReviews_Precedence(t *testing.T) {
	node := basePRNode()
	node.Reviews.Nodes = []reviewNode{
		review("carol", "APPROVED", mapBase),
		review("dave", "CHANGES_REQUESTED", mapBase.Add(time.Hour)),
	}

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	assert.Equal(t, model.ReviewChangesRequested, pr.ReviewState)
}

func TestMapReviews_LaterReviewOverwrites(t *testing.T) {
	node := basePRNode()
	node.Reviews.Nodes = []reviewNode{
		review("carol", "CHANGES_REQUESTED", mapBase),
		review("carol", "APPROVED", mapBase.Add(time.Hour)),
	}

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	assert.Equal(t, model.ReviewApproved, pr.ReviewState)
}

func TestMapReviews_CommentedNeverUpdatesState(t *testing.T) {
	node := basePRNode()
	node.Reviews.Nodes = []reviewNode{
		review("carol", "APPROVED", mapBase),
		review("carol", "COMMENTED", mapBase.Add(time.Hour)),
	}

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	assert.Equal(t, model.ReviewApproved, pr.ReviewState)
}

func TestMapReviews_ViewerReviews(t *testing.T) {
	tests := []struct {
		name         string
		state        string
		reviewedByMe bool
		hasMyComment bool
	}{
		{"approved sets reviewed", "APPROVED", true, false},
		{"changes requested sets reviewed", "CHANGES_REQUESTED", true, false},
		{"commented only marks activity", "COMMENTED", false, true},
		{"dismissed sets neither", "DISMISSED", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := basePRNode()
			node.Reviews.Nodes = []reviewNode{review("Alice", tt.state, mapBase)}

			pr := mapPullRequest(&node, "alice", false, nil)
			require.NotNil(t, pr)
			assert.Equal(t, tt.reviewedByMe, pr.IsReviewedByMe)
			assert.Equal(t, tt.hasMyComment, pr.HasMyComment)
		})
	}
}

func TestMapReviews_ViewerDoesNotEnterOthersMap(t *testing.T) {
	// The viewer approving must not make the overall state approved.
	node := basePRNode()
	node.Reviews.Nodes = []reviewNode{review("alice", "APPROVED", mapBase)}

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	assert.True(t, pr.IsReviewedByMe)
	assert.Equal(t, model.ReviewUnknown, pr.ReviewState)
}

func TestMapReviews_RecentReviewsNewestFirstExcludingCommented(t *testing.T) {
	node := basePRNode()
	node.Reviews.Nodes = []reviewNode{
		review("carol", "APPROVED", mapBase),
		review("dave", "COMMENTED", mapBase.Add(time.Hour)),
		review("erin", "CHANGES_REQUESTED", mapBase.Add(2*time.Hour)),
	}

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	require.Len(t, pr.RecentReviews, 2)
	assert.Equal(t, "erin", pr.RecentReviews[0].Author)
	assert.Equal(t, "carol", pr.RecentReviews[1].Author)
}

func TestMapComments_BotFiltering(t *testing.T) {
	node := basePRNode()
	node.Comments.Nodes = []commentNode{
		comment("c1", "github-actions[bot]", "build failed", mapBase),
		comment("c2", "dependabot[bot]", "bump deps", mapBase.Add(time.Minute)),
		comment("c3", "Codecov", "coverage report", mapBase.Add(2*time.Minute)),
		comment("c4", "carol", "real comment", mapBase.Add(3*time.Minute)),
	}

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	require.Len(t, pr.RecentComments, 1)
	assert.Equal(t, "carol", pr.RecentComments[0].Author)
}

func TestMapComments_ExtraBotsFromConfig(t *testing.T) {
	node := basePRNode()
	node.Comments.Nodes = []commentNode{
		comment("c1", "acme-release-bot", "released", mapBase),
		comment("c2", "carol", "nice", mapBase.Add(time.Minute)),
	}

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	assert.Len(t, pr.RecentComments, 2)

	pr = mapPullRequest(&node, "alice", false, []string{"acme-release-bot"})
	require.NotNil(t, pr)
	require.Len(t, pr.RecentComments, 1)
	assert.Equal(t, "carol", pr.RecentComments[0].Author)
}

func TestMapComments_ViewerNeverFilteredAsBot(t *testing.T) {
	node := basePRNode()
	node.Comments.Nodes = []commentNode{
		comment("c1", "renovate-helper", "I am the viewer", mapBase),
	}

	pr := mapPullRequest(&node, "renovate-helper", false, nil)
	require.NotNil(t, pr)
	require.Len(t, pr.RecentComments, 1)
	assert.True(t, pr.HasMyComment)
}

func TestMapComments_MalformedDropped(t *testing.T) {
	node := basePRNode()
	node.Comments.Nodes = []commentNode{
		comment("c1", "", "missing author", mapBase),
		comment("c2", "carol", "", mapBase),
		comment("c3", "carol", "missing date", time.Time{}),
		comment("c4", "carol", "kept", mapBase),
	}

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	require.Len(t, pr.RecentComments, 1)
	assert.Equal(t, "kept", pr.RecentComments[0].Body)
}

func TestMapComments_NewestFirstAndIDFallback(t *testing.T) {
	node := basePRNode()
	node.Comments.Nodes = []commentNode{
		comment("", "carol", "oldest", mapBase),
		comment("c2", "dave", "newest", mapBase.Add(time.Hour)),
	}

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	require.Len(t, pr.RecentComments, 2)
	assert.Equal(t, "newest", pr.RecentComments[0].Body)
	assert.Equal(t, "c2", pr.RecentComments[0].ID)
	// Generated fallback identity for the comment without a provider id.
	assert.NotEmpty(t, pr.RecentComments[1].ID)
	assert.Contains(t, pr.RecentComments[1].ID, "carol")
}

func TestMapThreads_EmptyAfterFilteringDropped(t *testing.T) {
	node := basePRNode()
	node.ReviewThreads.Nodes = []threadNode{
		thread("t1", comment("c1", "github-actions[bot]", "noise", mapBase)),
		thread("t2", comment("c2", "carol", "question", mapBase)),
	}

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	require.Len(t, pr.ReviewThreads, 1)
	assert.Equal(t, "t2", pr.ReviewThreads[0].ID)
}

func TestMapThreads_SortedByLatestCommentNewestFirst(t *testing.T) {
	node := basePRNode()
	node.ReviewThreads.Nodes = []threadNode{
		thread("older",
			comment("c1", "carol", "a", mapBase),
		),
		thread("newer",
			comment("c2", "dave", "b", mapBase.Add(-time.Hour)),
			comment("c3", "dave", "c", mapBase.Add(2*time.Hour)),
		),
	}

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	require.Len(t, pr.ReviewThreads, 2)
	assert.Equal(t, "newer", pr.ReviewThreads[0].ID)
	// Comments within a thread sort newest-first too.
	assert.Equal(t, "c3", pr.ReviewThreads[0].Comments[0].ID)
}

func TestMapPullRequest_HasMyCommentFromThread(t *testing.T) {
	node := basePRNode()
	node.ReviewThreads.Nodes = []threadNode{
		thread("t1", comment("c1", "ALICE", "thread reply", mapBase)),
	}

	pr := mapPullRequest(&node, "alice", false, nil)
	require.NotNil(t, pr)
	assert.True(t, pr.HasMyComment)
}

func TestMapPullRequest_NoViewerNoSelfActivity(t *testing.T) {
	node := basePRNode()
	node.Comments.Nodes = []commentNode{comment("c1", "carol", "hi", mapBase)}
	node.Reviews.Nodes = []reviewNode{review("carol", "COMMENTED", mapBase)}

	pr := mapPullRequest(&node, "", false, nil)
	require.NotNil(t, pr)
	assert.False(t, pr.HasMyComment)
	assert.False(t, pr.IsReviewedByMe)
}
