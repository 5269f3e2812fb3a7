package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/lk2023060901/american-chronicle/internal/chronam/query"
	"github.com/lk2023060901/american-chronicle/internal/chronam/registry"
	"github.com/lk2023060901/american-chronicle/internal/chronam/transport"
	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
)

// SearchCompletion receives the terminal result of a search. Exactly one of
// results and err is non-nil.
type SearchCompletion func(results *types.SearchResults, err error)

// CoordinatesCompletion receives the terminal result of a coordinates fetch
type CoordinatesCompletion func(coords *types.OCRCoordinates, err error)

// SearchOutcome is the value delivered by Search
type SearchOutcome struct {
	Results *types.SearchResults
	Err     error
}

// SearchService runs archive searches and OCR coordinate fetches. At most
// one request per (query, page, context) is in flight at a time.
type SearchService struct {
	encoder    query.Encoder
	baseURL    string
	searchPath string

	search transport.SearchTransport
	coords transport.CoordinatesTransport

	searches    *registry.Registry[registry.SearchKey]
	coordinates *registry.Registry[string]

	logger *zap.Logger
}

// NewSearchService creates a search service. coords may be nil when
// coordinate fetches are not needed.
func NewSearchService(cfg types.ArchiveConfig, search transport.SearchTransport, coords transport.CoordinatesTransport, logger *zap.Logger) *SearchService {
	if logger == nil {
		logger = zap.NewNop()
	}

	path := cfg.SearchPath
	if path == "" {
		path = types.DefaultSearchPath
	}

	return &SearchService{
		encoder:     query.Encoder{PageSize: cfg.PageSize},
		baseURL:     cfg.BaseURL,
		searchPath:  path,
		search:      search,
		coords:      coords,
		searches:    registry.New[registry.SearchKey](),
		coordinates: registry.New[string](),
		logger:      logger.Named("search"),
	}
}

// StartSearch issues a search for one page of results. Invalid parameters
// and duplicates of an in-flight search are reported through completion
// before StartSearch returns; nothing is sent in that case. Otherwise
// completion runs once from a transport goroutine.
func (s *SearchService) StartSearch(ctx context.Context, params types.SearchParameters, page int, contextID string, completion SearchCompletion) {
	if completion == nil {
		completion = func(*types.SearchResults, error) {}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	q := types.PageQuery{Parameters: params.Normalized(), Page: page, ContextID: contextID}
	if err := q.Validate(); err != nil {
		s.logger.Info("search rejected", zap.Error(err))
		completion(nil, err)
		return
	}

	key := registry.KeyFor(q)
	searchURL := s.encoder.SearchURL(s.baseURL, s.searchPath, q.Parameters, q.Page)

	entry, err := track(s.searches, key,
		func(done func(*types.SearchResults, error)) types.Handle {
			return s.search.IssueSearch(ctx, searchURL, done)
		},
		func(results *types.SearchResults, err error) {
			if err == nil && results == nil {
				err = &types.TransportError{Op: "search", URL: searchURL, Err: types.ErrInvalidResponse}
			}
			if err != nil {
				s.logger.Debug("search failed", zap.String("key", key.String()), zap.Error(err))
			} else {
				s.logger.Debug("search completed",
					zap.String("key", key.String()),
					zap.Int("total", results.TotalItems),
					zap.Int("items", len(results.Items)))
			}
			completion(results, err)
		})
	if err != nil {
		s.logger.Info("duplicate search rejected", zap.String("key", key.String()))
		completion(nil, err)
		return
	}

	s.logger.Debug("search issued",
		zap.String("id", entry.ID),
		zap.String("url", searchURL),
		zap.String("context_id", contextID))
}

// Search is StartSearch delivering its outcome on a channel. The channel
// receives exactly one value and is never closed.
func (s *SearchService) Search(ctx context.Context, params types.SearchParameters, page int, contextID string) <-chan SearchOutcome {
	ch := make(chan SearchOutcome, 1)
	s.StartSearch(ctx, params, page, contextID, func(results *types.SearchResults, err error) {
		ch <- SearchOutcome{Results: results, Err: err}
	})
	return ch
}

// CancelSearch cancels the matching in-flight search, if any. Its
// completion still runs once with a cancellation error.
func (s *SearchService) CancelSearch(params types.SearchParameters, page int, contextID string) {
	key := registry.KeyFor(types.PageQuery{Parameters: params.Normalized(), Page: page, ContextID: contextID})
	if s.searches.CancelAndRemove(key) {
		s.logger.Debug("search cancelled", zap.String("key", key.String()))
	}
}

// IsSearchInProgress reports whether the matching search is in flight
func (s *SearchService) IsSearchInProgress(params types.SearchParameters, page int, contextID string) bool {
	key := registry.KeyFor(types.PageQuery{Parameters: params.Normalized(), Page: page, ContextID: contextID})
	return s.searches.Contains(key)
}

// FetchCoordinates loads the OCR word boxes for the page at pageURL. The
// same duplicate and completion rules as StartSearch apply, keyed by the
// coordinates URL.
func (s *SearchService) FetchCoordinates(ctx context.Context, pageURL string, completion CoordinatesCompletion) {
	if completion == nil {
		completion = func(*types.OCRCoordinates, error) {}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	coordsURL, err := query.CoordinatesURL(pageURL)
	if err != nil {
		completion(nil, err)
		return
	}
	if s.coords == nil {
		completion(nil, &types.TransportError{Op: "coordinates", URL: coordsURL, Err: types.ErrNoTransport})
		return
	}

	_, err = track(s.coordinates, coordsURL,
		func(done func(*types.OCRCoordinates, error)) types.Handle {
			return s.coords.IssueCoordinates(ctx, coordsURL, done)
		},
		func(coords *types.OCRCoordinates, err error) {
			if err == nil && coords == nil {
				err = &types.TransportError{Op: "coordinates", URL: coordsURL, Err: types.ErrInvalidResponse}
			}
			s.logger.Debug("coordinates completed", zap.String("url", coordsURL), zap.Error(err))
			completion(coords, err)
		})
	if err != nil {
		s.logger.Info("duplicate coordinates fetch rejected", zap.String("url", coordsURL))
		completion(nil, err)
		return
	}

	s.logger.Debug("coordinates issued", zap.String("url", coordsURL))
}

// CancelCoordinates cancels the in-flight coordinates fetch for pageURL
func (s *SearchService) CancelCoordinates(pageURL string) {
	coordsURL, err := query.CoordinatesURL(pageURL)
	if err != nil {
		return
	}
	s.coordinates.CancelAndRemove(coordsURL)
}

// IsCoordinatesInProgress reports whether coordinates for pageURL are being fetched
func (s *SearchService) IsCoordinatesInProgress(pageURL string) bool {
	coordsURL, err := query.CoordinatesURL(pageURL)
	if err != nil {
		return false
	}
	return s.coordinates.Contains(coordsURL)
}

// Close cancels every in-flight request
func (s *SearchService) Close() {
	n := s.searches.CancelAll() + s.coordinates.CancelAll()
	if n > 0 {
		s.logger.Debug("cancelled in-flight requests", zap.Int("count", n))
	}
}
