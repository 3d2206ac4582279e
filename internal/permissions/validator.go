// Package permissions probes which read capabilities a token grants. Each
// probe runs independently; one denied capability never blocks the others.
package permissions

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"prwatch/internal/api"
)

// Result classifies a single probe.
type Result string

// Result values.
const (
	Granted Result = "granted"
	Denied  Result = "denied"
	Unknown Result = "unknown"
)

// State is the outcome of one validation run. It replaces any prior state
// wholesale.
type State struct {
	PullRequests   Result
	CommitStatuses Result
	Reviews        Result
	Comments       Result
	CheckedAt      time.Time
}

// HasAllPermissions reports whether every probe was granted.
func (s State) HasAllPermissions() bool {
	return s.PullRequests == Granted &&
		s.CommitStatuses == Granted &&
		s.Reviews == Granted &&
		s.Comments == Granted
}

// HasMinimumPermissions reports whether the token can drive the fetch cycle.
// Commit status access is optional; CI state degrades to unknown without it.
func (s State) HasMinimumPermissions() bool {
	return s.PullRequests == Granted &&
		s.Reviews == Granted &&
		s.Comments == Granted
}

// Prober issues the four capability probes. *api.Client implements it.
type Prober interface {
	ProbePullRequests(ctx context.Context) error
	ProbeCommitStatuses(ctx context.Context) error
	ProbeReviews(ctx context.Context) error
	ProbeComments(ctx context.Context) error
}

// DefaultProbeTimeout bounds each individual probe call.
const DefaultProbeTimeout = 10 * time.Second

// Validator runs the probes and classifies their outcomes.
type Validator struct {
	prober  Prober
	timeout time.Duration
	log     hclog.Logger
}

// NewValidator creates a Validator. A nil logger and zero timeout fall back
// to defaults.
func NewValidator(prober Prober, timeout time.Duration, logger hclog.Logger) *Validator {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Validator{prober: prober, timeout: timeout, log: logger.Named("permissions")}
}

// Validate runs all four probes concurrently and returns the new state.
func (v *Validator) Validate(ctx context.Context) State {
	probes := []struct {
		name   string
		run    func(context.Context) error
		result *Result
	}{
		{"pull_requests", v.prober.ProbePullRequests, nil},
		{"commit_statuses", v.prober.ProbeCommitStatuses, nil},
		{"reviews", v.prober.ProbeReviews, nil},
		{"comments", v.prober.ProbeComments, nil},
	}

	state := State{CheckedAt: time.Now()}
	probes[0].result = &state.PullRequests
	probes[1].result = &state.CommitStatuses
	probes[2].result = &state.Reviews
	probes[3].result = &state.Comments

	var wg sync.WaitGroup
	wg.Add(len(probes))
	for i := range probes {
		probe := &probes[i]
		go func() {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, v.timeout)
			defer cancel()
			err := probe.run(pctx)
			*probe.result = classify(err)
			if err != nil {
				v.log.Warn("probe failed", "probe", probe.name, "result", *probe.result, "error", err)
			}
		}()
	}
	wg.Wait()

	return state
}

// classify maps a probe error to a Result. Credential rejections and
// protocol errors are denials; timeouts and network failures are ambiguous.
func classify(err error) Result {
	if err == nil {
		return Granted
	}
	if errors.Is(err, api.ErrBadCredentials) || errors.Is(err, api.ErrForbidden) {
		return Denied
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return Unknown
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return Unknown
	}
	return Denied
}
