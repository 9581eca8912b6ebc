package evidence

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Collector gathers evidence for one source domain. Implementations own
// their provider-specific query construction and must return best-effort
// Evidence with Errors populated for ordinary upstream trouble; an error
// return means the collector produced nothing usable at all.
type Collector interface {
	Source() Source
	Collect(ctx context.Context, req Request) (*Evidence, error)
}

// Gather runs every collector concurrently under one shared deadline and
// returns exactly one Outcome per collector. A collector that errors or
// panics never affects its siblings; a collector still in flight when the
// deadline elapses is cancelled via its context and recorded as TimedOut.
// Retry policy, if any, lives inside the collectors and is invisible here.
func Gather(ctx context.Context, collectors map[Source]Collector, req Request, deadline time.Duration) map[Source]Outcome {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var mu sync.Mutex
	outcomes := make(map[Source]Outcome, len(collectors))

	// Plain Group, not WithContext: one failure must not cancel the batch.
	var g errgroup.Group
	for src, c := range collectors {
		g.Go(func() error {
			o := collectOne(ctx, c, req)
			mu.Lock()
			outcomes[src] = o
			mu.Unlock()
			return nil
		})
	}
	g.Wait()
	return outcomes
}

func collectOne(ctx context.Context, c Collector, req Request) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Outcome{Status: StatusFailed, Err: fmt.Sprintf("collector panic: %v", r)}
		}
	}()

	ev, err := c.Collect(ctx, req)
	switch {
	case errors.Is(err, context.DeadlineExceeded) || (err != nil && ctx.Err() != nil):
		return Outcome{Status: StatusTimedOut}
	case err != nil:
		return Outcome{Status: StatusFailed, Err: err.Error()}
	case ev == nil:
		return Outcome{Status: StatusFailed, Err: "collector returned no evidence"}
	default:
		return Outcome{Status: StatusSuccess, Evidence: ev}
	}
}
