package transport

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
	"github.com/lk2023060901/american-chronicle/internal/pkg/workerpool"
)

const searchPayload = `{
  "totalItems": 42,
  "endIndex": 20,
  "startIndex": 1,
  "itemsPerPage": 20,
  "items": [
    {
      "id": "/lccn/sn83030214/1913-01-01/ed-1/seq-3/",
      "title": "New-York tribune.",
      "date": "19130101",
      "sequence": 3,
      "lccn": "sn83030214",
      "edition": 1,
      "state": ["New York"],
      "city": ["New York"],
      "ocr_eng": "a great tsunami wave"
    }
  ]
}`

const coordinatesPayload = `{
  "width": "5000",
  "height": "7000",
  "coords": {
    "tsunami": [["100", "200", "50", "20"], ["300", "400", "55", "21"]],
    "wave": [["160", "200", "40", "20"]]
  }
}`

func newTestPool(t *testing.T) *workerpool.Pool {
	t.Helper()
	pool, err := workerpool.New(&workerpool.Config{Workers: 4, QueueSize: 16, EnablePriority: true}, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(pool.Shutdown)
	return pool
}

type searchResult struct {
	results *types.SearchResults
	err     error
}

func TestHTTPTransport_IssueSearch(t *testing.T) {
	seen := make(chan *http.Request, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Clone(context.Background())
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(searchPayload))
	}))
	defer server.Close()

	cfg := types.DefaultArchiveConfig()
	tr := NewHTTPTransport(cfg, nil, newTestPool(t), zap.NewNop())

	ch := make(chan searchResult, 1)
	tr.IssueSearch(context.Background(), server.URL+"/search/pages/results/?format=json&proxtext=tsunami&page=1",
		func(r *types.SearchResults, err error) { ch <- searchResult{r, err} })

	res := <-ch
	require.NoError(t, res.err)
	req := <-seen
	assert.Equal(t, "format=json&proxtext=tsunami&page=1", req.URL.RawQuery)
	assert.Equal(t, cfg.UserAgent, req.Header.Get("User-Agent"))

	assert.Equal(t, 42, res.results.TotalItems)
	assert.Equal(t, 20, res.results.ItemsPerPage)
	assert.True(t, res.results.HasMore())
	require.Len(t, res.results.Items, 1)

	hit := res.results.Items[0]
	assert.Equal(t, "New-York tribune.", hit.Title)
	assert.Equal(t, 3, hit.Sequence)
	assert.Equal(t, []string{"New York"}, hit.States)
	assert.Equal(t, server.URL+"/lccn/sn83030214/1913-01-01/ed-1/seq-3/", hit.URL)
	assert.Equal(t, server.URL+"/lccn/sn83030214/1913-01-01/ed-1/seq-3.pdf", hit.PDFURL)
}

func TestHTTPTransport_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	tr := NewHTTPTransport(types.DefaultArchiveConfig(), nil, newTestPool(t), nil)

	ch := make(chan searchResult, 1)
	tr.IssueSearch(context.Background(), server.URL, func(r *types.SearchResults, err error) { ch <- searchResult{r, err} })

	res := <-ch
	var terr *types.TransportError
	require.ErrorAs(t, res.err, &terr)
	assert.Equal(t, http.StatusServiceUnavailable, terr.StatusCode)
	assert.Equal(t, "search", terr.Op)
	assert.Nil(t, res.results)
}

func TestHTTPTransport_InvalidJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer server.Close()

	tr := NewHTTPTransport(types.DefaultArchiveConfig(), nil, newTestPool(t), nil)

	ch := make(chan searchResult, 1)
	tr.IssueSearch(context.Background(), server.URL, func(r *types.SearchResults, err error) { ch <- searchResult{r, err} })

	res := <-ch
	assert.ErrorIs(t, res.err, types.ErrInvalidResponse)
}

func TestHTTPTransport_Cancel(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	tr := NewHTTPTransport(types.DefaultArchiveConfig(), nil, newTestPool(t), nil)

	ch := make(chan searchResult, 1)
	h := tr.IssueSearch(context.Background(), server.URL, func(r *types.SearchResults, err error) { ch <- searchResult{r, err} })

	<-started
	h.Cancel()
	h.Cancel()

	select {
	case res := <-ch:
		assert.True(t, types.IsCancelled(res.err), "got %v", res.err)
	case <-time.After(5 * time.Second):
		t.Fatal("cancelled request never completed")
	}
}

func TestHTTPTransport_IssueCoordinates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(coordinatesPayload))
	}))
	defer server.Close()

	tr := NewHTTPTransport(types.DefaultArchiveConfig(), nil, newTestPool(t), nil)

	type result struct {
		coords *types.OCRCoordinates
		err    error
	}
	ch := make(chan result, 1)
	tr.IssueCoordinates(context.Background(), server.URL+"/seq-3/coordinates/",
		func(c *types.OCRCoordinates, err error) { ch <- result{c, err} })

	res := <-ch
	require.NoError(t, res.err)
	assert.Equal(t, 5000.0, res.coords.Width)
	assert.Equal(t, 7000.0, res.coords.Height)
	assert.Equal(t, [][4]float64{{100, 200, 50, 20}, {300, 400, 55, 21}}, res.coords.Boxes("tsunami"))
	assert.Len(t, res.coords.Boxes("wave"), 1)
	assert.Nil(t, res.coords.Boxes("absent"))
}

func TestGrabTransport_IssueDownload(t *testing.T) {
	content := make([]byte, 64*1024)
	for i := range content {
		content[i] = byte(i)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		http.ServeContent(w, r, "seq-3.pdf", time.Time{}, bytes.NewReader(content))
	}))
	defer server.Close()

	cfg := types.DefaultArchiveConfig()
	cfg.DownloadDir = t.TempDir()
	tr := NewGrabTransport(cfg, nil, newTestPool(t), zap.NewNop())
	tr.SetProgressInterval(time.Millisecond)

	type result struct {
		path string
		err  error
	}
	ch := make(chan result, 1)
	var last types.Progress
	pageURL := server.URL + "/lccn/sn1/1913-01-01/ed-1/seq-3.pdf"
	tr.IssueDownload(context.Background(), pageURL,
		func(p types.Progress) { last = p },
		func(path string, err error) { ch <- result{path, err} })

	res := <-ch
	require.NoError(t, res.err)
	want, err := tr.LocalPath(pageURL)
	require.NoError(t, err)
	assert.Equal(t, want, res.path)
	assert.Equal(t, int64(len(content)), last.BytesComplete)

	data, err := os.ReadFile(res.path)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func download(t *testing.T, tr *GrabTransport, rawURL string) string {
	t.Helper()
	type result struct {
		path string
		err  error
	}
	ch := make(chan result, 1)
	tr.IssueDownload(context.Background(), rawURL,
		func(types.Progress) {},
		func(path string, err error) { ch <- result{path, err} })

	select {
	case res := <-ch:
		require.NoError(t, res.err)
		return res.path
	case <-time.After(5 * time.Second):
		t.Fatal("download never completed")
		return ""
	}
}

func TestGrabTransport_SharedBasename(t *testing.T) {
	pageA := bytes.Repeat([]byte("A"), 4096)
	pageB := bytes.Repeat([]byte("B"), 4096)
	mux := http.NewServeMux()
	mux.HandleFunc("/lccn/sn1/1913-01-01/ed-1/seq-1.pdf", func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "seq-1.pdf", time.Time{}, bytes.NewReader(pageA))
	})
	mux.HandleFunc("/lccn/sn2/1913-01-01/ed-1/seq-1.pdf", func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "seq-1.pdf", time.Time{}, bytes.NewReader(pageB))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := types.DefaultArchiveConfig()
	cfg.DownloadDir = t.TempDir()
	tr := NewGrabTransport(cfg, nil, newTestPool(t), nil)

	pathA := download(t, tr, server.URL+"/lccn/sn1/1913-01-01/ed-1/seq-1.pdf")
	pathB := download(t, tr, server.URL+"/lccn/sn2/1913-01-01/ed-1/seq-1.pdf")
	assert.NotEqual(t, pathA, pathB)

	dataA, err := os.ReadFile(pathA)
	require.NoError(t, err)
	dataB, err := os.ReadFile(pathB)
	require.NoError(t, err)
	assert.Equal(t, pageA, dataA)
	assert.Equal(t, pageB, dataB)
}

func TestGrabTransport_ReplacesStaleFile(t *testing.T) {
	content := bytes.Repeat([]byte("N"), 2048)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "seq-2.pdf", time.Time{}, bytes.NewReader(content))
	}))
	defer server.Close()

	cfg := types.DefaultArchiveConfig()
	cfg.DownloadDir = t.TempDir()
	tr := NewGrabTransport(cfg, nil, newTestPool(t), nil)
	pageURL := server.URL + "/lccn/sn1/1913-01-01/ed-1/seq-2.pdf"

	// same size as the remote file, different bytes
	stale, err := tr.LocalPath(pageURL)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, bytes.Repeat([]byte("O"), len(content)), 0o644))

	path := download(t, tr, pageURL)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, data)

	// a shorter leftover must not be resumed either
	require.NoError(t, os.WriteFile(stale, []byte("OO"), 0o644))
	path = download(t, tr, pageURL)
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, content, data)
}

func TestGrabTransport_SlowTransferOutlivesTimeout(t *testing.T) {
	chunk := bytes.Repeat([]byte("z"), 1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10240")
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 10; i++ {
			_, _ = w.Write(chunk)
			w.(http.Flusher).Flush()
			time.Sleep(50 * time.Millisecond)
		}
	}))
	defer server.Close()

	cfg := types.DefaultArchiveConfig()
	cfg.Timeout = 200 * time.Millisecond
	cfg.DownloadDir = t.TempDir()
	tr := NewGrabTransport(cfg, nil, newTestPool(t), nil)

	path := download(t, tr, server.URL+"/slow/seq-1.pdf")
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(10240), info.Size())
}

func TestGrabTransport_LocalPath(t *testing.T) {
	tr := NewGrabTransport(types.ArchiveConfig{DownloadDir: "/data"}, nil, nil, nil)

	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{
			url:  "https://chroniclingamerica.loc.gov/lccn/sn83030214/1913-01-01/ed-1/seq-3.pdf",
			want: "/data/chroniclingamerica.loc.gov/lccn/sn83030214/1913-01-01/ed-1/seq-3.pdf",
		},
		{url: "http://127.0.0.1:8080/a/seq-1.pdf", want: "/data/127.0.0.1_8080/a/seq-1.pdf"},
		{url: "https://example.org/../../etc/passwd", want: "/data/example.org/etc/passwd"},
		{url: "https://example.org/lccn/sn1/", want: "/data/example.org/lccn/sn1/index"},
		{url: "https://example.org/page.pdf?rev=2", want: "/data/example.org/page.pdf_rev%3D2"},
		{url: "/no/host.pdf", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := tr.LocalPath(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, filepath.FromSlash(tt.want), got)
		})
	}
}

func TestGrabTransport_NotFound(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	cfg := types.DefaultArchiveConfig()
	cfg.DownloadDir = t.TempDir()
	tr := NewGrabTransport(cfg, nil, newTestPool(t), nil)

	ch := make(chan error, 1)
	tr.IssueDownload(context.Background(), server.URL+"/missing.pdf",
		func(types.Progress) {},
		func(_ string, err error) { ch <- err })

	err := <-ch
	var terr *types.TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, http.StatusNotFound, terr.StatusCode)
}
