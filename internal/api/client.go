package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/go-github/v57/github"
	"github.com/hashicorp/go-hclog"
	"github.com/shurcooL/githubv4"
	"golang.org/x/oauth2"

	"prwatch/internal/model"
)

// DefaultEndpoint is the public GitHub GraphQL endpoint.
const DefaultEndpoint = "https://api.github.com/graphql"

// Sentinel errors surfaced by the transport so callers can distinguish
// credential problems from generic network failures.
var (
	// ErrBadCredentials reports an HTTP 401: the token is invalid or expired.
	ErrBadCredentials = errors.New("github: bad credentials (401)")
	// ErrForbidden reports an HTTP 403: the token lacks the required scopes.
	ErrForbidden = errors.New("github: insufficient token scope (403)")
	// ErrMissingData reports a probe response missing an expected field.
	ErrMissingData = errors.New("github: expected data missing from response")
)

// Options configures optional client behavior.
type Options struct {
	// Endpoint overrides the GraphQL endpoint; empty means DefaultEndpoint.
	Endpoint string
	// ExtraBotAuthors extends the built-in bot blocklist.
	ExtraBotAuthors []string
	Logger          hclog.Logger
}

// Client talks to the GitHub GraphQL API on behalf of one token. The REST
// client is only used for the viewer lookup in token checks.
type Client struct {
	gql       *githubv4.Client
	rest      *github.Client
	extraBots []string
	log       hclog.Logger
}

// FetchResult is the outcome of one search document: the viewer's login and
// the mapped pull request nodes.
type FetchResult struct {
	Viewer string
	PRs    []*model.PullRequest
}

// NewClient creates an authenticated client.
func NewClient(token string, opts Options) *Client {
	src := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	httpClient := oauth2.NewClient(context.Background(), src)
	httpClient.Transport = &authStatusTransport{base: httpClient.Transport}

	var gql *githubv4.Client
	if opts.Endpoint == "" || opts.Endpoint == DefaultEndpoint {
		gql = githubv4.NewClient(httpClient)
	} else {
		gql = githubv4.NewEnterpriseClient(opts.Endpoint, httpClient)
	}

	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	return &Client{
		gql:       gql,
		rest:      github.NewClient(httpClient),
		extraBots: opts.ExtraBotAuthors,
		log:       logger.Named("api"),
	}
}

// FetchInvolved runs the broad "involves:@me" document. Nodes fetched under
// this document carry isRequestedReviewer=false.
func (c *Client) FetchInvolved(ctx context.Context) (*FetchResult, error) {
	return c.search(ctx, "involved", searchInvolved, false)
}

// FetchReviewRequested runs the narrow "review-requested:@me" document.
// Nodes fetched under it carry isRequestedReviewer=true.
func (c *Client) FetchReviewRequested(ctx context.Context) (*FetchResult, error) {
	return c.search(ctx, "review-requested", searchReviewRequested, true)
}

func (c *Client) search(ctx context.Context, name, filter string, requestedReviewer bool) (*FetchResult, error) {
	var query searchQuery
	variables := map[string]interface{}{
		"searchQuery": githubv4.String(filter),
		"pageSize":    githubv4.Int(searchPageSize),
	}

	if err := c.gql.Query(ctx, &query, variables); err != nil {
		return nil, fmt.Errorf("%s query failed: %w", name, err)
	}

	viewer := string(query.Viewer.Login)
	prs := make([]*model.PullRequest, 0, len(query.Search.Nodes))
	skipped := 0
	for i := range query.Search.Nodes {
		pr := mapPullRequest(&query.Search.Nodes[i].PullRequest, viewer, requestedReviewer, c.extraBots)
		if pr == nil {
			skipped++
			continue
		}
		prs = append(prs, pr)
	}

	c.log.Debug("search complete", "query", name, "nodes", len(query.Search.Nodes), "mapped", len(prs), "skipped", skipped)
	return &FetchResult{Viewer: viewer, PRs: prs}, nil
}

// Viewer returns the authenticated user's login via the REST API. Used by
// token checks; the fetch path takes the login from the GraphQL documents.
func (c *Client) Viewer(ctx context.Context) (string, error) {
	user, _, err := c.rest.Users.Get(ctx, "")
	if err != nil {
		return "", fmt.Errorf("viewer lookup failed: %w", err)
	}
	return user.GetLogin(), nil
}

// ProbePullRequests reports whether the token can read the viewer's pull
// requests.
func (c *Client) ProbePullRequests(ctx context.Context) error {
	var query probePullRequestsQuery
	if err := c.gql.Query(ctx, &query, nil); err != nil {
		return fmt.Errorf("pull requests probe failed: %w", err)
	}
	return nil
}

// ProbeCommitStatuses reports whether the token can read commit status
// rollups.
func (c *Client) ProbeCommitStatuses(ctx context.Context) error {
	var query probeCommitStatusesQuery
	if err := c.gql.Query(ctx, &query, nil); err != nil {
		return fmt.Errorf("commit statuses probe failed: %w", err)
	}
	// A PR with its commit connection stripped means the status scope is
	// filtered, not that the viewer has no PRs.
	for _, node := range query.Viewer.PullRequests.Nodes {
		if len(node.Commits.Nodes) == 0 {
			return fmt.Errorf("commit statuses probe: %w", ErrMissingData)
		}
	}
	return nil
}

// ProbeReviews reports whether the token can read pull request reviews.
func (c *Client) ProbeReviews(ctx context.Context) error {
	var query probeReviewsQuery
	if err := c.gql.Query(ctx, &query, nil); err != nil {
		return fmt.Errorf("reviews probe failed: %w", err)
	}
	return nil
}

// ProbeComments reports whether the token can read pull request comments.
func (c *Client) ProbeComments(ctx context.Context) error {
	var query probeCommentsQuery
	if err := c.gql.Query(ctx, &query, nil); err != nil {
		return fmt.Errorf("comments probe failed: %w", err)
	}
	return nil
}

// authStatusTransport converts credential-related HTTP statuses into typed
// errors before the GraphQL layer sees the response.
type authStatusTransport struct {
	base http.RoundTripper
}

func (t *authStatusTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	switch resp.StatusCode {
	case http.StatusUnauthorized:
		resp.Body.Close()
		return nil, ErrBadCredentials
	case http.StatusForbidden:
		resp.Body.Close()
		return nil, ErrForbidden
	}
	return resp, nil
}
