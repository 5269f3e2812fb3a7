package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
)

// call is one request seen by fakeTransport. It doubles as the handle
// returned to the service.
type call[T any] struct {
	url      string
	ctx      context.Context
	done     func(T, error)
	progress func(types.Progress)
	cancels  atomic.Int32
}

func (c *call[T]) Cancel() { c.cancels.Add(1) }

// fakeTransport records every issued request. Tests finish requests by
// calling done on the recorded call.
type fakeTransport struct {
	mu        sync.Mutex
	searches  []*call[*types.SearchResults]
	coords    []*call[*types.OCRCoordinates]
	downloads []*call[string]

	// inline completes searches inside IssueSearch with these results
	inline *types.SearchResults
}

func (f *fakeTransport) IssueSearch(ctx context.Context, url string, done func(*types.SearchResults, error)) types.Handle {
	c := &call[*types.SearchResults]{url: url, ctx: ctx, done: done}
	f.mu.Lock()
	f.searches = append(f.searches, c)
	inline := f.inline
	f.mu.Unlock()

	if inline != nil {
		done(inline, nil)
	}
	return c
}

func (f *fakeTransport) IssueCoordinates(ctx context.Context, url string, done func(*types.OCRCoordinates, error)) types.Handle {
	c := &call[*types.OCRCoordinates]{url: url, ctx: ctx, done: done}
	f.mu.Lock()
	f.coords = append(f.coords, c)
	f.mu.Unlock()
	return c
}

func (f *fakeTransport) IssueDownload(ctx context.Context, url string, progress func(types.Progress), done func(string, error)) types.Handle {
	c := &call[string]{url: url, ctx: ctx, done: done, progress: progress}
	f.mu.Lock()
	f.downloads = append(f.downloads, c)
	f.mu.Unlock()
	return c
}

func (f *fakeTransport) searchCalls() []*call[*types.SearchResults] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*call[*types.SearchResults](nil), f.searches...)
}

func (f *fakeTransport) coordCalls() []*call[*types.OCRCoordinates] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*call[*types.OCRCoordinates](nil), f.coords...)
}

func (f *fakeTransport) downloadCalls() []*call[string] {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*call[string](nil), f.downloads...)
}

func (f *fakeTransport) lastSearch(t *testing.T) *call[*types.SearchResults] {
	t.Helper()
	calls := f.searchCalls()
	require.NotEmpty(t, calls, "no search issued")
	return calls[len(calls)-1]
}

func (f *fakeTransport) lastDownload(t *testing.T) *call[string] {
	t.Helper()
	calls := f.downloadCalls()
	require.NotEmpty(t, calls, "no download issued")
	return calls[len(calls)-1]
}

// recorder collects completion calls
type recorder[T any] struct {
	mu      sync.Mutex
	results []T
	errs    []error
}

func (r *recorder[T]) complete(result T, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	r.errs = append(r.errs, err)
}

func (r *recorder[T]) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs)
}

func (r *recorder[T]) last(t *testing.T) (T, error) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.errs, "completion never called")
	return r.results[len(r.results)-1], r.errs[len(r.errs)-1]
}

func cancelledError(url string) error {
	return &types.TransportError{Op: "test", URL: url, Err: context.Canceled}
}
