package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cavaliergopher/grab/v3"
	"go.uber.org/zap"

	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
	"github.com/lk2023060901/american-chronicle/internal/pkg/workerpool"
)

const defaultProgressInterval = 250 * time.Millisecond

// GrabTransport downloads page files into a local directory. Transfers run
// on the worker pool at low priority so searches are not starved.
type GrabTransport struct {
	client           *grab.Client
	pool             *workerpool.Pool
	downloadPath     string
	progressInterval time.Duration
	logger           *zap.Logger
}

// NewDownloadHTTPClient creates a client for file transfers. It has no
// overall deadline, since a large page may take longer than any search;
// headerTimeout bounds only the wait for the response headers.
func NewDownloadHTTPClient(headerTimeout time.Duration) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			ResponseHeaderTimeout: headerTimeout,
			MaxIdleConns:          100,
			MaxIdleConnsPerHost:   10,
			IdleConnTimeout:       90 * time.Second,
		},
	}
}

// NewGrabTransport creates a download transport writing under
// cfg.DownloadDir. A nil httpClient gets one from NewDownloadHTTPClient.
func NewGrabTransport(cfg types.ArchiveConfig, httpClient *http.Client, pool *workerpool.Pool, logger *zap.Logger) *GrabTransport {
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = NewDownloadHTTPClient(timeout)
	}
	client := grab.NewClient()
	client.HTTPClient = httpClient
	if cfg.UserAgent != "" {
		client.UserAgent = cfg.UserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	dir := cfg.DownloadDir
	if dir == "" {
		dir = "."
	}

	return &GrabTransport{
		client:           client,
		pool:             pool,
		downloadPath:     dir,
		progressInterval: defaultProgressInterval,
		logger:           logger,
	}
}

// SetProgressInterval changes how often progress is sampled
func (t *GrabTransport) SetProgressInterval(d time.Duration) {
	if d > 0 {
		t.progressInterval = d
	}
}

// IssueDownload implements DownloadTransport
func (t *GrabTransport) IssueDownload(ctx context.Context, rawURL string, progress func(types.Progress), done func(string, error)) types.Handle {
	ctx, cancel := context.WithCancel(ctx)

	dst, err := t.LocalPath(rawURL)
	if err != nil {
		cancel()
		done("", &types.TransportError{Op: "download", URL: rawURL, Err: err})
		return types.HandleFunc(cancel)
	}

	req, err := grab.NewRequest(dst, rawURL)
	if err != nil {
		cancel()
		done("", &types.TransportError{Op: "download", URL: rawURL, Err: err})
		return types.HandleFunc(cancel)
	}
	req.NoResume = true
	req = req.WithContext(ctx)

	err = t.pool.SubmitWithPriority(workerpool.PriorityLow, func() {
		defer cancel()
		t.run(ctx, req, rawURL, progress, done)
	})
	if err != nil {
		cancel()
		done("", &types.TransportError{Op: "download", URL: rawURL, Err: err})
	}

	return types.HandleFunc(cancel)
}

func (t *GrabTransport) run(ctx context.Context, req *grab.Request, rawURL string, progress func(types.Progress), done func(string, error)) {
	if err := ctx.Err(); err != nil {
		done("", &types.TransportError{Op: "download", URL: rawURL, Err: err})
		return
	}

	// grab treats a same-sized local file as complete, so a leftover file
	// from an earlier or interrupted transfer has to go first
	if err := os.Remove(req.Filename); err != nil && !errors.Is(err, os.ErrNotExist) {
		done("", &types.TransportError{Op: "download", URL: rawURL, Err: err})
		return
	}

	t.logger.Debug("starting download", zap.String("url", rawURL), zap.String("path", req.Filename))
	resp := t.client.Do(req)

	ticker := time.NewTicker(t.progressInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			progress(types.Progress{BytesComplete: resp.BytesComplete(), BytesTotal: resp.Size()})

		case <-resp.Done:
			if err := resp.Err(); err != nil {
				done("", downloadError(rawURL, err))
				return
			}

			progress(types.Progress{BytesComplete: resp.BytesComplete(), BytesTotal: resp.Size()})
			t.logger.Debug("file downloaded",
				zap.String("path", resp.Filename),
				zap.Int64("size", resp.Size()),
				zap.Duration("duration", resp.Duration()))
			done(resp.Filename, nil)
			return
		}
	}
}

// LocalPath maps rawURL to the file it is downloaded to. The URL host and
// path are mirrored under the download directory, so pages sharing a file
// name such as seq-1.pdf never collide.
func (t *GrabTransport) LocalPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}

	p := path.Clean("/" + u.Path)
	if p == "/" || strings.HasSuffix(u.Path, "/") {
		p = path.Join(p, "index")
	}
	if u.RawQuery != "" {
		p += "_" + url.QueryEscape(u.RawQuery)
	}

	host := strings.ReplaceAll(u.Host, ":", "_")
	return filepath.Join(t.downloadPath, host, filepath.FromSlash(p)), nil
}

func downloadError(rawURL string, err error) error {
	terr := &types.TransportError{Op: "download", URL: rawURL, Err: err}
	var status grab.StatusCodeError
	if errors.As(err, &status) {
		terr.StatusCode = int(status)
	}
	return terr
}
