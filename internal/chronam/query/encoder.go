// Package query builds the canonical archive request strings.
//
// Parameter names (proxtext, state, date1, date2) are the upstream
// Chronicling America wire contract and must not be renamed.
package query

import (
	"net/url"
	"strconv"
	"strings"

	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
)

const dateLayout = "20060102"

// Encoder renders search parameters as a query string
type Encoder struct {
	PageSize int // rows per page; omitted when <= 0
}

// DefaultEncoder uses the archive's default page size
var DefaultEncoder = Encoder{PageSize: types.DefaultPageSize}

// Encode renders params and page with the default encoder.
func Encode(params types.SearchParameters, page int) string {
	return DefaultEncoder.Encode(params, page)
}

// Encode renders params and page. The result is deterministic; states are
// always emitted last and in input order.
func (e Encoder) Encode(params types.SearchParameters, page int) string {
	params = params.Normalized()

	var b strings.Builder
	b.WriteString("format=json")
	if e.PageSize > 0 {
		b.WriteString("&rows=")
		b.WriteString(strconv.Itoa(e.PageSize))
	}

	b.WriteString("&proxtext=")
	b.WriteString(encodeTerm(params.Term))

	b.WriteString("&page=")
	b.WriteString(strconv.Itoa(page))

	if !params.EarliestDate.Equal(types.EarliestPossibleDate) ||
		!params.LatestDate.Equal(types.LatestPossibleDate) {
		b.WriteString("&dateFilterType=range&date1=")
		b.WriteString(params.EarliestDate.Format(dateLayout))
		b.WriteString("&date2=")
		b.WriteString(params.LatestDate.Format(dateLayout))
	}

	for _, state := range params.States {
		b.WriteString("&state=")
		b.WriteString(url.QueryEscape(state))
	}

	return b.String()
}

// SearchURL joins the archive base URL, search path and encoded query.
func (e Encoder) SearchURL(baseURL, path string, params types.SearchParameters, page int) string {
	return strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/") + "?" + e.Encode(params, page)
}

// CoordinatesURL derives the OCR word coordinates endpoint for a page URL,
// e.g. .../ed-1/seq-3/ or .../ed-1/seq-3.pdf becomes .../ed-1/seq-3/coordinates/.
func CoordinatesURL(pageURL string) (string, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return "", &types.ParameterError{Field: "url", Reason: "is not a valid URL"}
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &types.ParameterError{Field: "url", Reason: "must be absolute"}
	}

	p := strings.TrimRight(u.Path, "/")
	for _, ext := range []string{".pdf", ".jp2", ".json", ".txt", ".xml"} {
		p = strings.TrimSuffix(p, ext)
	}
	p = strings.TrimSuffix(p, "/ocr")
	u.Path = p + "/coordinates/"
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

func encodeTerm(term string) string {
	tokens := strings.Fields(term)
	for i, tok := range tokens {
		tokens[i] = url.QueryEscape(tok)
	}
	return strings.Join(tokens, "+")
}
