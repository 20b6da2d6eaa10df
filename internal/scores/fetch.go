package scores

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FetchRequest identifies one fetch of region scores.
type FetchRequest struct {
	DataSourceID string
	Window       Window
	From         time.Time // zero means unbounded
	To           time.Time
}

// Fetcher produces region scores for a request. Implementations must honour
// ctx cancellation.
type Fetcher interface {
	Fetch(ctx context.Context, req FetchRequest) ([]RegionScore, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, req FetchRequest) ([]RegionScore, error)

func (f FetcherFunc) Fetch(ctx context.Context, req FetchRequest) ([]RegionScore, error) {
	return f(ctx, req)
}

// FetchError wraps a failed or timed-out fetch.
type FetchError struct {
	DataSourceID string
	Token        uint64
	Err          error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching scores for %q: %v", e.DataSourceID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the fetch ran out of time.
func (e *FetchError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// NewRequest resolves the window bounds at now.
func NewRequest(dataSourceID string, w Window, now time.Time) FetchRequest {
	from, to := w.Bounds(now)
	return FetchRequest{DataSourceID: dataSourceID, Window: w, From: from, To: to}
}
