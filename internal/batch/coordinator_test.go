package batch

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/melih-ucgun/saucier/internal/session"
)

// outcomesFor builds a Runner from a fixed host -> outcome table.
func outcomesFor(table map[string]session.Outcome) Runner {
	return func(_ context.Context, host string) session.Outcome {
		return table[host]
	}
}

func TestRunAllSucceed(t *testing.T) {
	c := NewCoordinator(2)
	res := c.Run(context.Background(), []string{"h1", "h2"}, outcomesFor(map[string]session.Outcome{
		"h1": {Host: "h1", Status: session.StatusOK},
		"h2": {Host: "h2", Status: session.StatusOK},
	}))

	assert.True(t, res.AllSucceeded())
	assert.ElementsMatch(t, []string{"h1", "h2"}, res.Succeeded)
	assert.Empty(t, res.Conflicts)
	assert.Empty(t, res.Failures)
	assert.Equal(t, 0, res.ExitCode())
}

func TestRunPartialConflict(t *testing.T) {
	// h2 is already being tested by someone else. The batch carries on and
	// the exit code flags the partial result.
	c := NewCoordinator(2)
	res := c.Run(context.Background(), []string{"h1", "h2"}, outcomesFor(map[string]session.Outcome{
		"h1": {Host: "h1", Status: session.StatusOK},
		"h2": {Host: "h2", Status: session.StatusConflict, Owner: "bob"},
	}))

	assert.False(t, res.AllSucceeded())
	assert.Equal(t, []string{"h1"}, res.Succeeded)
	assert.Equal(t, map[string]string{"h2": "bob"}, res.Conflicts)
	assert.Equal(t, 2, res.ExitCode())
}

func TestRunAllConflicts(t *testing.T) {
	c := NewCoordinator(1)
	res := c.Run(context.Background(), []string{"h1"}, outcomesFor(map[string]session.Outcome{
		"h1": {Host: "h1", Status: session.StatusConflict, Owner: "bob"},
	}))

	assert.Empty(t, res.Succeeded)
	assert.Equal(t, 3, res.ExitCode())
}

func TestRunHardFailureWinsExitCode(t *testing.T) {
	// A non-lock failure is an unexpected problem and outranks the
	// conflict taxonomy.
	c := NewCoordinator(2)
	res := c.Run(context.Background(), []string{"h1", "h2", "h3"}, outcomesFor(map[string]session.Outcome{
		"h1": {Host: "h1", Status: session.StatusOK},
		"h2": {Host: "h2", Status: session.StatusConflict, Owner: "bob"},
		"h3": {Host: "h3", Status: session.StatusFailed, Err: errors.New("ssh: connect refused")},
	}))

	assert.Equal(t, 1, res.ExitCode())
	assert.Len(t, res.Failures, 1)
	assert.Error(t, res.Failures["h3"])
}

func TestRunSucceededIsSubsetOfRequested(t *testing.T) {
	hosts := []string{"h1", "h2", "h3", "h4", "h5"}
	c := NewCoordinator(3)
	res := c.Run(context.Background(), hosts, func(_ context.Context, host string) session.Outcome {
		if host == "h3" {
			return session.Outcome{Host: host, Status: session.StatusConflict, Owner: "carol"}
		}
		return session.Outcome{Host: host, Status: session.StatusOK}
	})

	requested := make(map[string]bool)
	for _, h := range res.Requested {
		requested[h] = true
	}
	for _, h := range res.Succeeded {
		assert.True(t, requested[h], "succeeded host %s was never requested", h)
	}
	assert.Len(t, res.Succeeded, 4)
	assert.Equal(t, 2, res.ExitCode())
}

func TestRunBoundsConcurrency(t *testing.T) {
	var mu sync.Mutex
	active, peak := 0, 0

	c := NewCoordinator(2)
	res := c.Run(context.Background(), []string{"h1", "h2", "h3", "h4"}, func(_ context.Context, host string) session.Outcome {
		mu.Lock()
		active++
		if active > peak {
			peak = active
		}
		mu.Unlock()

		defer func() {
			mu.Lock()
			active--
			mu.Unlock()
		}()
		return session.Outcome{Host: host, Status: session.StatusOK}
	})

	assert.True(t, res.AllSucceeded())
	assert.LessOrEqual(t, peak, 2)
}

func TestNewCoordinatorClampsConcurrency(t *testing.T) {
	assert.Equal(t, 1, NewCoordinator(0).Concurrency)
	assert.Equal(t, 1, NewCoordinator(-5).Concurrency)
	assert.Equal(t, 8, NewCoordinator(8).Concurrency)
}
