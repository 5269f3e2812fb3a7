// Package transport issues archive requests. Every Issue call returns a
// cancellable handle at once and reports exactly one terminal result on
// done, from a worker goroutine.
package transport

import (
	"context"

	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
)

// SearchTransport issues archive search requests
type SearchTransport interface {
	IssueSearch(ctx context.Context, url string, done func(*types.SearchResults, error)) types.Handle
}

// CoordinatesTransport fetches OCR word coordinates for a page
type CoordinatesTransport interface {
	IssueCoordinates(ctx context.Context, url string, done func(*types.OCRCoordinates, error)) types.Handle
}

// DownloadTransport downloads page files. progress may be called any number
// of times before done; path is the local file written on success.
type DownloadTransport interface {
	IssueDownload(ctx context.Context, url string, progress func(types.Progress), done func(path string, err error)) types.Handle
}
