package api

import (
	"github.com/shurcooL/githubv4"
)

// Search filters for the two fixed documents. Each fetch cycle runs both and
// merges the results; "involved" is broad, "review-requested" is the narrow
// set awaiting the viewer's review.
const (
	searchInvolved        = "is:pr is:open involves:@me sort:updated-desc"
	searchReviewRequested = "is:pr is:open review-requested:@me sort:updated-desc"

	searchPageSize = 50
)

// searchQuery is the shared shape of both documents: the viewer login plus a
// page of pull request nodes with enough fields to reconstruct full state.
type searchQuery struct {
	Viewer struct {
		Login githubv4.String
	}
	Search struct {
		Nodes []struct {
			PullRequest prNode `graphql:"... on PullRequest"`
		}
	} `graphql:"search(query: $searchQuery, type: ISSUE, first: $pageSize)"`
}

type prNode struct {
	ID        githubv4.ID
	Number    githubv4.Int
	Title     githubv4.String
	URL       githubv4.String
	UpdatedAt githubv4.DateTime
	IsDraft   githubv4.Boolean
	Mergeable githubv4.MergeableState
	Author    struct {
		Login githubv4.String
	}
	Repository struct {
		NameWithOwner githubv4.String
	}
	Comments struct {
		Nodes []commentNode
	} `graphql:"comments(last: 20)"`
	Reviews struct {
		Nodes []reviewNode
	} `graphql:"reviews(last: 20)"`
	ReviewThreads struct {
		Nodes []threadNode
	} `graphql:"reviewThreads(last: 20)"`
	// Only the last commit's rollup matters for CI state.
	Commits struct {
		Nodes []commitEdge
	} `graphql:"commits(last: 1)"`
}

type commitEdge struct {
	Commit struct {
		StatusCheckRollup *rollupNode
	}
}

type commentNode struct {
	ID     githubv4.ID
	Author struct {
		Login githubv4.String
	}
	Body      githubv4.String
	CreatedAt githubv4.DateTime
	URL       githubv4.String
}

type reviewNode struct {
	Author struct {
		Login githubv4.String
	}
	State       githubv4.PullRequestReviewState
	SubmittedAt *githubv4.DateTime
}

type threadNode struct {
	ID       githubv4.ID
	Comments struct {
		Nodes []commentNode
	} `graphql:"comments(last: 20)"`
}

// rollupNode is the aggregated status-check result for one commit. Contexts
// come in two polymorphic shapes, selected via inline fragments; variants
// that are neither are ignored.
type rollupNode struct {
	State    githubv4.StatusState
	Contexts struct {
		Nodes []rollupContext
	} `graphql:"contexts(first: 100)"`
}

type rollupContext struct {
	Typename githubv4.String `graphql:"__typename"`
	CheckRun struct {
		Name       githubv4.String
		Conclusion githubv4.CheckConclusionState
	} `graphql:"... on CheckRun"`
	StatusContext struct {
		Context githubv4.String
		State   githubv4.StatusState
	} `graphql:"... on StatusContext"`
}

// probePullRequestsQuery checks that the token can read the viewer's pull
// requests at all.
type probePullRequestsQuery struct {
	Viewer struct {
		PullRequests struct {
			TotalCount githubv4.Int
		} `graphql:"pullRequests(first: 1)"`
	}
}

// probeCommitStatusesQuery checks read access to commit status rollups via
// the viewer's most recently updated pull request.
type probeCommitStatusesQuery struct {
	Viewer struct {
		PullRequests struct {
			Nodes []struct {
				Commits struct {
					Nodes []struct {
						Commit struct {
							StatusCheckRollup *struct {
								State githubv4.StatusState
							}
						}
					}
				} `graphql:"commits(last: 1)"`
			}
		} `graphql:"pullRequests(first: 1, orderBy: {field: UPDATED_AT, direction: DESC})"`
	}
}

// probeReviewsQuery checks read access to pull request reviews.
type probeReviewsQuery struct {
	Viewer struct {
		PullRequests struct {
			Nodes []struct {
				Reviews struct {
					TotalCount githubv4.Int
				} `graphql:"reviews(first: 1)"`
			}
		} `graphql:"pullRequests(first: 1, orderBy: {field: UPDATED_AT, direction: DESC})"`
	}
}

// probeCommentsQuery checks read access to issue comments on pull requests.
type probeCommentsQuery struct {
	Viewer struct {
		PullRequests struct {
			Nodes []struct {
				Comments struct {
					TotalCount githubv4.Int
				} `graphql:"comments(first: 1)"`
			}
		} `graphql:"pullRequests(first: 1, orderBy: {field: UPDATED_AT, direction: DESC})"`
	}
}
