// Package client assembles the archive client from configuration: worker
// pool, transports and the search and download services.
package client

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/lk2023060901/american-chronicle/internal/chronam/service"
	"github.com/lk2023060901/american-chronicle/internal/chronam/transport"
	"github.com/lk2023060901/american-chronicle/internal/conf"
	"github.com/lk2023060901/american-chronicle/internal/pkg/logger"
	"github.com/lk2023060901/american-chronicle/internal/pkg/workerpool"
)

// Client owns every long-lived component of the archive client
type Client struct {
	config *conf.Config
	logger *logger.Logger
	pool   *workerpool.Pool

	search *service.SearchService
	pages  *service.PageDownloadService

	closeOnce sync.Once
}

// Options overrides the transports built by New. Nil fields use the HTTP
// and grab transports.
type Options struct {
	Search      transport.SearchTransport
	Coordinates transport.CoordinatesTransport
	Download    transport.DownloadTransport
}

// New creates a client. A nil cfg uses conf.DefaultConfig and a nil log
// discards output.
func New(cfg *conf.Config, log *logger.Logger) (*Client, error) {
	return NewWithOptions(cfg, log, Options{})
}

// NewWithOptions creates a client with substitute transports
func NewWithOptions(cfg *conf.Config, log *logger.Logger, opts Options) (*Client, error) {
	if cfg == nil {
		cfg = conf.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if log == nil {
		log = logger.Nop()
	}

	pool, err := workerpool.New(&cfg.Pool, log.Named("pool").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker pool: %w", err)
	}

	if opts.Search == nil || opts.Coordinates == nil {
		httpClient := transport.NewHTTPClient(cfg.Timeout())
		ht := transport.NewHTTPTransport(cfg.Archive, httpClient, pool, log.Named("http").Logger)
		if opts.Search == nil {
			opts.Search = ht
		}
		if opts.Coordinates == nil {
			opts.Coordinates = ht
		}
	}
	if opts.Download == nil {
		// nil client: transfers must not inherit the search timeout
		opts.Download = transport.NewGrabTransport(cfg.Archive, nil, pool, log.Named("grab").Logger)
	}

	c := &Client{
		config: cfg,
		logger: log,
		pool:   pool,
		search: service.NewSearchService(cfg.Archive, opts.Search, opts.Coordinates, log.Logger),
		pages:  service.NewPageDownloadService(opts.Download, log.Logger),
	}

	log.Debug("archive client ready",
		zap.String("base_url", cfg.Archive.BaseURL),
		zap.Int("workers", cfg.Pool.Workers),
		zap.String("download_dir", cfg.Archive.DownloadDir))

	return c, nil
}

// Search returns the search service
func (c *Client) Search() *service.SearchService {
	return c.search
}

// Pages returns the page download service
func (c *Client) Pages() *service.PageDownloadService {
	return c.pages
}

// Config returns the configuration the client was built from
func (c *Client) Config() *conf.Config {
	return c.config
}

// Stats reports worker pool counters
func (c *Client) Stats() workerpool.Statistics {
	return c.pool.Stats()
}

// Close cancels all in-flight requests and stops the worker pool. Every
// outstanding completion still runs once. Close is idempotent.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.search.Close()
		c.pages.Close()
		c.pool.Shutdown()
		_ = c.logger.Sync()
	})
}
