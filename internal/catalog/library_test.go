package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gatedSearcher answers a query only once its gate channel is released.
type gatedSearcher struct {
	gates   map[string]chan struct{}
	results map[string]Page
	errs    map[string]error
	started chan string
}

func newGatedSearcher() *gatedSearcher {
	return &gatedSearcher{
		gates:   map[string]chan struct{}{},
		results: map[string]Page{},
		errs:    map[string]error{},
		started: make(chan string, 8),
	}
}

func (g *gatedSearcher) gate(text string) chan struct{} {
	ch := make(chan struct{})
	g.gates[text] = ch
	return ch
}

func (g *gatedSearcher) Search(ctx context.Context, q Query) (Page, error) {
	g.started <- q.Text
	if ch, ok := g.gates[q.Text]; ok {
		select {
		case <-ch:
		case <-ctx.Done():
			// Answer anyway so the test can check that stale pages are dropped.
			<-ch
		}
	}
	if err := g.errs[q.Text]; err != nil {
		return Page{}, err
	}
	return g.results[q.Text], nil
}

func waitCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestLibrary_LoadsPage(t *testing.T) {
	s := newGatedSearcher()
	s.results["knee"] = Page{Items: []Hit{{ExerciseID: "1", Title: "Knee extension"}}, Page: 1, PageSize: 20, Total: 1}

	lib := NewLibrary(s, nil)
	lib.Load(context.Background(), Query{Text: "knee", Page: 1, PageSize: 20})
	require.NoError(t, lib.Wait(waitCtx(t)))

	snap := lib.Current()
	assert.False(t, snap.Loading)
	assert.NoError(t, snap.Err)
	assert.Equal(t, "knee", snap.Query.Text)
	require.Len(t, snap.Page.Items, 1)

	hit, ok := lib.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, "Knee extension", DisplayFieldsFromHit(hit).Title)
}

func TestLibrary_NewerQuerySupersedesOlder(t *testing.T) {
	s := newGatedSearcher()
	oldGate := s.gate("old")
	s.results["old"] = Page{Items: []Hit{{ExerciseID: "stale"}}}
	s.results["new"] = Page{Items: []Hit{{ExerciseID: "fresh"}}}

	lib := NewLibrary(s, nil)
	lib.Load(context.Background(), Query{Text: "old"})
	assert.Equal(t, "old", <-s.started)

	lib.Load(context.Background(), Query{Text: "new"})
	require.NoError(t, lib.Wait(waitCtx(t)))

	// Let the superseded fetch finish late; its page must not replace the new one.
	close(oldGate)
	time.Sleep(20 * time.Millisecond)

	snap := lib.Current()
	assert.Equal(t, "new", snap.Query.Text)
	require.Len(t, snap.Page.Items, 1)
	assert.Equal(t, "fresh", snap.Page.Items[0].ExerciseID)
	_, ok := lib.Lookup("stale")
	assert.False(t, ok)
}

func TestLibrary_SurfacesFetchError(t *testing.T) {
	s := newGatedSearcher()
	s.results["ok"] = Page{Items: []Hit{{ExerciseID: "1"}}}
	s.errs["broken"] = errors.New("catalog unavailable")

	lib := NewLibrary(s, nil)
	lib.Load(context.Background(), Query{Text: "ok"})
	require.NoError(t, lib.Wait(waitCtx(t)))

	lib.Load(context.Background(), Query{Text: "broken"})
	require.NoError(t, lib.Wait(waitCtx(t)))

	snap := lib.Current()
	assert.EqualError(t, snap.Err, "catalog unavailable")
	// The last good page stays visible.
	assert.Len(t, snap.Page.Items, 1)
}

func TestLibrary_WaitHonoursContext(t *testing.T) {
	s := newGatedSearcher()
	gate := s.gate("slow")
	defer close(gate)

	lib := NewLibrary(s, nil)
	lib.Load(context.Background(), Query{Text: "slow"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, lib.Wait(ctx), context.DeadlineExceeded)
	assert.True(t, lib.Current().Loading)
}
