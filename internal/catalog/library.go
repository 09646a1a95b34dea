// Package catalog keeps the exercise library page a therapist is browsing
// while arranging a course. Fetches run in the background; a newer query
// cancels the one still in flight.
package catalog

import (
	"context"
	"errors"
	"sync"

	"rehabclinic/course-builder/internal/arrangement"

	"go.uber.org/zap"
)

// Query selects one page of the exercise catalog.
type Query struct {
	Text        string `json:"q,omitempty"`
	Category    string `json:"category,omitempty"`
	MuscleGroup string `json:"muscleGroup,omitempty"`
	Page        int    `json:"page"` // 1-based
	PageSize    int    `json:"pageSize"`
}

// Hit is one catalog exercise as shown in the library panel.
type Hit struct {
	ExerciseID      string `json:"exerciseId"`
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	ImageURL        string `json:"imageUrl,omitempty"`
	DurationMinutes int    `json:"durationMinutes,omitempty"`
	Category        string `json:"category,omitempty"`
}

// Page is one page of search results.
type Page struct {
	Items    []Hit `json:"items"`
	Page     int   `json:"page"`
	PageSize int   `json:"pageSize"`
	Total    int64 `json:"total"`
}

// Searcher runs a catalog query.
type Searcher interface {
	Search(ctx context.Context, q Query) (Page, error)
}

// DisplayFieldsFromHit copies the fields a placement shows from a catalog hit.
func DisplayFieldsFromHit(h Hit) arrangement.DisplayFields {
	return arrangement.DisplayFields{
		Title:           h.Title,
		ImageURL:        h.ImageURL,
		DurationMinutes: h.DurationMinutes,
	}
}

// Snapshot is what the library currently shows.
type Snapshot struct {
	Query   Query
	Page    Page
	Err     error // Failure of the latest completed fetch, if any
	Loading bool
}

// Library caches the latest completed catalog page.
type Library struct {
	searcher Searcher
	logger   *zap.Logger

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	done    chan struct{}
	current Snapshot
}

// NewLibrary creates a Library reading from searcher.
func NewLibrary(searcher Searcher, logger *zap.Logger) *Library {
	if logger == nil {
		logger = zap.NewNop()
	}
	done := make(chan struct{})
	close(done)
	return &Library{searcher: searcher, logger: logger, done: done}
}

// Load starts fetching q in the background. Any fetch still running is
// cancelled and its result, should it arrive anyway, is dropped.
func (l *Library) Load(ctx context.Context, q Query) {
	l.mu.Lock()
	if l.cancel != nil {
		l.cancel()
	}
	l.gen++
	gen := l.gen
	fetchCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done
	l.current.Query = q
	l.current.Loading = true
	l.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()

		page, err := l.searcher.Search(fetchCtx, q)

		l.mu.Lock()
		defer l.mu.Unlock()
		if gen != l.gen {
			l.logger.Debug("Dropping superseded catalog page", zap.String("q", q.Text), zap.Int("page", q.Page))
			return
		}
		l.current.Loading = false
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			l.logger.Warn("Catalog fetch failed", zap.String("q", q.Text), zap.Error(err))
			l.current.Err = err
			return
		}
		l.current.Page = page
		l.current.Err = nil
	}()
}

// Wait blocks until the most recent fetch has settled or ctx is done.
func (l *Library) Wait(ctx context.Context) error {
	l.mu.Lock()
	done := l.done
	l.mu.Unlock()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Current returns what the library shows right now.
func (l *Library) Current() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := l.current
	snap.Page.Items = append([]Hit(nil), l.current.Page.Items...)
	return snap
}

// Lookup finds a hit on the current page by exercise id.
func (l *Library) Lookup(exerciseID string) (Hit, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, h := range l.current.Page.Items {
		if h.ExerciseID == exerciseID {
			return h, true
		}
	}
	return Hit{}, false
}

// Close cancels any fetch in flight.
func (l *Library) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		l.cancel()
		l.cancel = nil
	}
}
