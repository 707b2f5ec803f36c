package conjunction

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/kvsankar/sattosat/internal/tle"
)

// PairRequest is one independent search in a SearchPairs batch.
type PairRequest struct {
	ID      string
	A, B    []tle.ElementSet
	Start   time.Time
	End     time.Time
	Options Options
}

// PairResult is the outcome of one PairRequest.
type PairResult struct {
	ID           string        `json:"id"`
	Conjunctions []Conjunction `json:"conjunctions"`
	Error        string        `json:"error,omitempty"`
}

// SearchPairs runs independent searches on a fixed pool of workers (default
// runtime.NumCPU()). Each search builds its own tracks. Results are returned
// in request order; a request not started before ctx is done reports the
// context error.
func (e *Engine) SearchPairs(ctx context.Context, reqs []PairRequest, workers int) []PairResult {
	results := make([]PairResult, len(reqs))
	if len(reqs) == 0 {
		return results
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > len(reqs) {
		workers = len(reqs)
	}

	jobs := make(chan int, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				results[idx] = e.searchPair(ctx, reqs[idx])
			}
		}()
	}

	// Feed jobs; anything not handed out before cancellation is marked here.
	next := 0
feed:
	for ; next < len(reqs); next++ {
		select {
		case jobs <- next:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	for i := next; i < len(reqs); i++ {
		results[i] = PairResult{ID: reqs[i].ID, Error: ctx.Err().Error()}
	}
	return results
}

func (e *Engine) searchPair(ctx context.Context, req PairRequest) PairResult {
	if err := ctx.Err(); err != nil {
		return PairResult{ID: req.ID, Error: err.Error()}
	}
	conjs, err := e.FindConjunctions(ctx, req.A, req.B, req.Start, req.End, req.Options)
	if err != nil {
		e.logger.Warn("pair search aborted", "id", req.ID, "error", err)
		return PairResult{ID: req.ID, Error: err.Error()}
	}
	return PairResult{ID: req.ID, Conjunctions: conjs}
}
