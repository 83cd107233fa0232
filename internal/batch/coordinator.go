// Package batch drives a host-session operation across a set of hostnames
// and aggregates the per-host outcomes.
package batch

import (
	"context"
	"sort"
	"sync"

	"github.com/pterm/pterm"

	"github.com/melih-ucgun/saucier/internal/session"
)

// Runner is one host-session operation (test, untest, ...).
type Runner func(ctx context.Context, host string) session.Outcome

// Result aggregates a batch by set membership, independent of completion
// order. Succeeded is always a subset of Requested.
type Result struct {
	Requested []string
	Succeeded []string
	Conflicts map[string]string // host -> current lock owner
	Failures  map[string]error  // host -> hard failure
}

// AllSucceeded reports whether every requested host completed.
func (r *Result) AllSucceeded() bool {
	return len(r.Succeeded) == len(r.Requested)
}

// ExitCode maps the result to the test command's exit taxonomy:
// 0 when every host succeeded, 3 when none did and all were lock conflicts
// (someone else owns every target), 2 for any other mix. A hard, non-lock
// failure is an unexpected batch-wide problem and maps to 1.
func (r *Result) ExitCode() int {
	switch {
	case len(r.Failures) > 0:
		return 1
	case r.AllSucceeded():
		return 0
	case len(r.Succeeded) == 0:
		return 3
	default:
		return 2
	}
}

// Coordinator runs the per-host loop. Hosts are independent; concurrency
// only changes wall time, never the aggregate.
type Coordinator struct {
	Concurrency int
}

func NewCoordinator(concurrency int) *Coordinator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Coordinator{Concurrency: concurrency}
}

// Run invokes fn for each host and summarizes per-host outcomes. A lock
// conflict excludes the host from the success set but never aborts the
// rest of the batch.
func (c *Coordinator) Run(ctx context.Context, hosts []string, fn Runner) *Result {
	var wg sync.WaitGroup
	sem := make(chan struct{}, c.Concurrency)
	outcomes := make(chan session.Outcome, len(hosts))

	for _, host := range hosts {
		wg.Add(1)
		go func(h string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			outcomes <- fn(ctx, h)
		}(host)
	}

	wg.Wait()
	close(outcomes)

	res := &Result{
		Requested: append([]string(nil), hosts...),
		Conflicts: make(map[string]string),
		Failures:  make(map[string]error),
	}

	for out := range outcomes {
		switch out.Status {
		case session.StatusOK:
			res.Succeeded = append(res.Succeeded, out.Host)
			pterm.Success.Printf("[%s] done\n", out.Host)
		case session.StatusConflict:
			res.Conflicts[out.Host] = out.Owner
			pterm.Warning.Printf("[%s] already being tested by %s, skipping\n", out.Host, out.Owner)
		case session.StatusFailed:
			res.Failures[out.Host] = out.Err
			pterm.Error.Printf("[%s] failed: %v\n", out.Host, out.Err)
		}
	}

	sort.Strings(res.Succeeded)
	return res
}
