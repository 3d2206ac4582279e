package sync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"prwatch/internal/api"
	"prwatch/internal/classify"
	"prwatch/internal/credentials"
	"prwatch/internal/model"
)

// ErrNoCredentials is set as the snapshot error when a fetch is attempted
// without a configured token. No network activity happens in that case.
var ErrNoCredentials = errors.New("no GitHub token configured")

// Defaults for the poll loop.
const (
	DefaultInterval = 300 * time.Second
	DefaultTimeout  = 10 * time.Second
)

// Fetcher runs the two search documents. *api.Client implements it.
type Fetcher interface {
	FetchInvolved(ctx context.Context) (*api.FetchResult, error)
	FetchReviewRequested(ctx context.Context) (*api.FetchResult, error)
}

// Snapshot is the immutable published state: the merged collection plus
// fetch metadata. Readers never observe a partially-updated collection.
type Snapshot struct {
	PRs         []*model.PullRequest
	Viewer      string
	Loading     bool
	LastError   string
	LastUpdated time.Time
}

// Options configures a Poller.
type Options struct {
	Interval time.Duration
	Timeout  time.Duration
	Logger   hclog.Logger
}

// Poller owns the pull request collection and its refresh lifecycle. Both
// search documents run concurrently each cycle; the merge publishes
// atomically, and a slow stale fetch never overwrites a newer result.
type Poller struct {
	creds      credentials.Store
	newFetcher func(token string) Fetcher
	interval   time.Duration
	timeout    time.Duration
	log        hclog.Logger

	mu        sync.RWMutex
	snap      Snapshot
	published uint64

	seq    atomic.Uint64
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Poller. The fetcher factory is invoked per cycle so token
// changes take effect without restarting the poller.
func New(creds credentials.Store, newFetcher func(token string) Fetcher, opts Options) *Poller {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Poller{
		creds:      creds,
		newFetcher: newFetcher,
		interval:   opts.Interval,
		timeout:    opts.Timeout,
		log:        logger.Named("poller"),
	}
}

// Start triggers an immediate fetch and then refetches on the configured
// interval until Stop or context cancellation.
func (p *Poller) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.done = make(chan struct{})
	go p.run(ctx)
}

// Stop cancels the poll loop and waits for it to exit. In-flight HTTP calls
// are cancelled through the context.
func (p *Poller) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	p.Refresh(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Refresh(ctx)
		}
	}
}

// Refresh runs one fetch cycle: both documents, merge, atomic publish.
// Manual and timer-triggered refreshes share this path; if they race, the
// later-started fetch wins the publish.
func (p *Poller) Refresh(ctx context.Context) {
	token, err := p.creds.Get()
	if err != nil || token == "" {
		p.log.Warn("refresh skipped", "error", ErrNoCredentials)
		p.publishError(p.seq.Add(1), ErrNoCredentials)
		return
	}

	seq := p.seq.Add(1)
	p.setLoading()

	fctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	fetcher := p.newFetcher(token)

	var involved, reviewRequested *api.FetchResult
	var involvedErr, reviewRequestedErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		involved, involvedErr = fetcher.FetchInvolved(fctx)
	}()
	go func() {
		defer wg.Done()
		reviewRequested, reviewRequestedErr = fetcher.FetchReviewRequested(fctx)
	}()
	wg.Wait()

	if err := firstError(involvedErr, reviewRequestedErr); err != nil {
		p.log.Error("fetch failed", "error", err)
		p.publishError(seq, err)
		return
	}

	merged := Merge(involved.PRs, reviewRequested.PRs)
	viewer := involved.Viewer
	if viewer == "" {
		viewer = reviewRequested.Viewer
	}

	p.publish(seq, merged, viewer)
	p.log.Info("fetch complete", "viewer", viewer, "pull_requests", len(merged),
		"attention", classify.AttentionCount(merged, viewer))
}

// Snapshot returns the current published state.
func (p *Poller) Snapshot() Snapshot {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.snap
}

// Filtered returns the named view over the current collection.
func (p *Poller) Filtered(f model.Filter) []*model.PullRequest {
	snap := p.Snapshot()
	return classify.Apply(f, snap.PRs, snap.Viewer)
}

// Counts returns the per-filter counts for the current collection.
func (p *Poller) Counts() map[model.Filter]int {
	snap := p.Snapshot()
	return classify.Counts(snap.PRs, snap.Viewer)
}

// AttentionCount returns the number of the viewer's own PRs that are
// currently blocked.
func (p *Poller) AttentionCount() int {
	snap := p.Snapshot()
	return classify.AttentionCount(snap.PRs, snap.Viewer)
}

// Health returns the overall health of the current collection.
func (p *Poller) Health() classify.Health {
	return classify.OverallHealth(p.Snapshot().PRs)
}

func (p *Poller) setLoading() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snap.Loading = true
}

func (p *Poller) publish(seq uint64, prs []*model.PullRequest, viewer string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq < p.published {
		return
	}
	p.published = seq
	p.snap = Snapshot{PRs: prs, Viewer: viewer, LastUpdated: time.Now()}
}

// publishError records a failure but keeps the previously published
// collection; stale data beats no data.
func (p *Poller) publishError(seq uint64, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if seq < p.published {
		return
	}
	p.published = seq
	p.snap.Loading = false
	p.snap.LastError = humanizeError(err)
}

func firstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

// humanizeError maps transport-level failures to messages fit for the
// consumer surface.
func humanizeError(err error) string {
	switch {
	case errors.Is(err, api.ErrBadCredentials):
		return "GitHub token is invalid or has expired"
	case errors.Is(err, api.ErrForbidden):
		return "GitHub token is missing required scopes"
	case errors.Is(err, context.DeadlineExceeded):
		return "GitHub request timed out"
	default:
		return err.Error()
	}
}
