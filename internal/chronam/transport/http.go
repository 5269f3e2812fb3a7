package transport

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
	"github.com/lk2023060901/american-chronicle/internal/pkg/workerpool"
)

const maxBodySize = 16 << 20

// HTTPTransport issues JSON requests against the archive on a worker pool
type HTTPTransport struct {
	client    *http.Client
	pool      *workerpool.Pool
	userAgent string
	logger    *zap.Logger
}

// NewHTTPClient creates an HTTP client with the specified timeout
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// NewHTTPTransport creates a transport. A nil client gets one sized from cfg.
func NewHTTPTransport(cfg types.ArchiveConfig, client *http.Client, pool *workerpool.Pool, logger *zap.Logger) *HTTPTransport {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = NewHTTPClient(timeout)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPTransport{
		client:    client,
		pool:      pool,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// IssueSearch implements SearchTransport
func (t *HTTPTransport) IssueSearch(ctx context.Context, rawURL string, done func(*types.SearchResults, error)) types.Handle {
	return t.issue(ctx, "search", rawURL, workerpool.PriorityHigh, func(body []byte) {
		done(decodeSearchResults(body, rawURL))
	}, func(err error) { done(nil, err) })
}

// IssueCoordinates implements CoordinatesTransport
func (t *HTTPTransport) IssueCoordinates(ctx context.Context, rawURL string, done func(*types.OCRCoordinates, error)) types.Handle {
	return t.issue(ctx, "coordinates", rawURL, workerpool.PriorityNormal, func(body []byte) {
		done(decodeCoordinates(body, rawURL))
	}, func(err error) { done(nil, err) })
}

func (t *HTTPTransport) issue(ctx context.Context, op, rawURL string, priority workerpool.Priority,
	onBody func([]byte), onErr func(error)) types.Handle {
	ctx, cancel := context.WithCancel(ctx)

	err := t.pool.SubmitWithPriority(priority, func() {
		defer cancel()

		body, err := t.get(ctx, op, rawURL)
		if err != nil {
			onErr(err)
			return
		}
		onBody(body)
	})
	if err != nil {
		cancel()
		onErr(&types.TransportError{Op: op, URL: rawURL, Err: err})
	}

	return types.HandleFunc(cancel)
}

func (t *HTTPTransport) get(ctx context.Context, op, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &types.TransportError{Op: op, URL: rawURL, Err: err}
	}

	startTime := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &types.TransportError{Op: op, URL: rawURL, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, &types.TransportError{Op: op, URL: rawURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &types.TransportError{Op: op, URL: rawURL, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, &types.TransportError{Op: op, URL: rawURL, Err: err}
	}

	t.logger.Debug("archive request completed",
		zap.String("op", op),
		zap.String("url", rawURL),
		zap.Int("bytes", len(body)),
		zap.Duration("took", time.Since(startTime)))

	return body, nil
}

// decodeSearchResults maps the archive's JSON page listing. Only the
// pagination fields and hit summaries are read; the rest is ignored.
func decodeSearchResults(body []byte, requestURL string) (*types.SearchResults, error) {
	if !gjson.ValidBytes(body) {
		return nil, &types.TransportError{Op: "search", URL: requestURL, Err: types.ErrInvalidResponse}
	}
	doc := gjson.ParseBytes(body)
	origin := originOf(requestURL)

	results := &types.SearchResults{
		TotalItems:   int(doc.Get("totalItems").Int()),
		StartIndex:   int(doc.Get("startIndex").Int()),
		EndIndex:     int(doc.Get("endIndex").Int()),
		ItemsPerPage: int(doc.Get("itemsPerPage").Int()),
	}

	items := doc.Get("items").Array()
	results.Items = make([]*types.PageHit, 0, len(items))
	for _, item := range items {
		id := item.Get("id").String()
		hit := &types.PageHit{
			ID:       id,
			Title:    item.Get("title").String(),
			Date:     item.Get("date").String(),
			Sequence: int(item.Get("sequence").Int()),
			LCCN:     item.Get("lccn").String(),
			Edition:  int(item.Get("edition").Int()),
			States:   stringArray(item.Get("state")),
			Cities:   stringArray(item.Get("city")),
			OCRText:  item.Get("ocr_eng").String(),
		}
		if id != "" {
			hit.URL = origin + id
			hit.PDFURL = origin + strings.TrimSuffix(id, "/") + ".pdf"
		} else {
			hit.URL = item.Get("url").String()
		}
		results.Items = append(results.Items, hit)
	}

	return results, nil
}

// decodeCoordinates maps the archive's OCR coordinates document, whose
// numbers are served as strings.
func decodeCoordinates(body []byte, requestURL string) (*types.OCRCoordinates, error) {
	if !gjson.ValidBytes(body) {
		return nil, &types.TransportError{Op: "coordinates", URL: requestURL, Err: types.ErrInvalidResponse}
	}
	doc := gjson.ParseBytes(body)

	coords := &types.OCRCoordinates{
		Width:  doc.Get("width").Float(),
		Height: doc.Get("height").Float(),
		Words:  make(map[string][][4]float64),
	}

	doc.Get("coords").ForEach(func(word, boxes gjson.Result) bool {
		for _, box := range boxes.Array() {
			v := box.Array()
			if len(v) < 4 {
				continue
			}
			coords.Words[word.String()] = append(coords.Words[word.String()],
				[4]float64{v[0].Float(), v[1].Float(), v[2].Float(), v[3].Float()})
		}
		return true
	})

	return coords, nil
}

func stringArray(r gjson.Result) []string {
	if !r.Exists() {
		return nil
	}
	if !r.IsArray() {
		return []string{r.String()}
	}
	arr := r.Array()
	out := make([]string, 0, len(arr))
	for _, v := range arr {
		out = append(out, v.String())
	}
	return out
}

func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}
