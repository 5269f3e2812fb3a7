package service

import (
	"context"
	"net/url"

	"go.uber.org/zap"

	"github.com/lk2023060901/american-chronicle/internal/chronam/registry"
	"github.com/lk2023060901/american-chronicle/internal/chronam/transport"
	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
)

// DownloadCompletion receives the local path of a finished download, or the
// error that ended it.
type DownloadCompletion func(path string, err error)

// ProgressFunc receives transfer progress while a download runs
type ProgressFunc func(types.Progress)

// DownloadOutcome is the value delivered by Download
type DownloadOutcome struct {
	Path string
	Err  error
}

// PageDownloadService downloads page files, one transfer per URL at a time
type PageDownloadService struct {
	transport transport.DownloadTransport
	downloads *registry.Registry[string]
	logger    *zap.Logger
}

// NewPageDownloadService creates a download service
func NewPageDownloadService(t transport.DownloadTransport, logger *zap.Logger) *PageDownloadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageDownloadService{
		transport: t,
		downloads: registry.New[string](),
		logger:    logger.Named("download"),
	}
}

// DownloadPage starts downloading rawURL. An invalid URL or a URL that is
// already downloading is reported through completion before DownloadPage
// returns. progress may be nil.
func (s *PageDownloadService) DownloadPage(ctx context.Context, rawURL string, progress ProgressFunc, completion DownloadCompletion) {
	if completion == nil {
		completion = func(string, error) {}
	}
	if progress == nil {
		progress = func(types.Progress) {}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if err := validateDownloadURL(rawURL); err != nil {
		s.logger.Info("download rejected", zap.String("url", rawURL), zap.Error(err))
		completion("", err)
		return
	}

	entry, err := track(s.downloads, rawURL,
		func(done func(string, error)) types.Handle {
			return s.transport.IssueDownload(ctx, rawURL, progress, done)
		},
		func(path string, err error) {
			if err == nil && path == "" {
				err = &types.TransportError{Op: "download", URL: rawURL, Err: types.ErrInvalidResponse}
			}
			if err != nil {
				s.logger.Debug("download failed", zap.String("url", rawURL), zap.Error(err))
			} else {
				s.logger.Debug("download completed", zap.String("url", rawURL), zap.String("path", path))
			}
			completion(path, err)
		})
	if err != nil {
		s.logger.Info("duplicate download rejected", zap.String("url", rawURL))
		completion("", err)
		return
	}

	s.logger.Debug("download issued", zap.String("id", entry.ID), zap.String("url", rawURL))
}

// Download is DownloadPage delivering its outcome on a channel. The channel
// receives exactly one value and is never closed.
func (s *PageDownloadService) Download(ctx context.Context, rawURL string, progress ProgressFunc) <-chan DownloadOutcome {
	ch := make(chan DownloadOutcome, 1)
	s.DownloadPage(ctx, rawURL, progress, func(path string, err error) {
		ch <- DownloadOutcome{Path: path, Err: err}
	})
	return ch
}

// CancelDownload cancels the in-flight download of rawURL, if any
func (s *PageDownloadService) CancelDownload(rawURL string) {
	if s.downloads.CancelAndRemove(rawURL) {
		s.logger.Debug("download cancelled", zap.String("url", rawURL))
	}
}

// IsDownloadInProgress reports whether rawURL is downloading. It is already
// false when the completion for that download runs.
func (s *PageDownloadService) IsDownloadInProgress(rawURL string) bool {
	return s.downloads.Contains(rawURL)
}

// Close cancels every in-flight download
func (s *PageDownloadService) Close() {
	if n := s.downloads.CancelAll(); n > 0 {
		s.logger.Debug("cancelled in-flight downloads", zap.Int("count", n))
	}
}

func validateDownloadURL(rawURL string) error {
	if rawURL == "" {
		return &types.ParameterError{Field: "url", Reason: "must not be empty"}
	}
	u, err := url.Parse(rawURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return &types.ParameterError{Field: "url", Reason: "must be an absolute URL"}
	}
	return nil
}
