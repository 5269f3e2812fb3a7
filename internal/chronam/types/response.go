package types

import "slices"

// SearchResults represents one page of archive search results
type SearchResults struct {
	TotalItems   int        `json:"total_items"`
	StartIndex   int        `json:"start_index"`
	EndIndex     int        `json:"end_index"`
	ItemsPerPage int        `json:"items_per_page"`
	Items        []*PageHit `json:"items"`
}

// PageHit represents a single digitized newspaper page matching a search
type PageHit struct {
	ID       string   `json:"id"`
	URL      string   `json:"url"`
	PDFURL   string   `json:"pdf_url,omitempty"`
	Title    string   `json:"title"`
	Date     string   `json:"date"` // YYYYMMDD, as served by the archive
	Sequence int      `json:"sequence"`
	LCCN     string   `json:"lccn,omitempty"`
	Edition  int      `json:"edition,omitempty"`
	States   []string `json:"states,omitempty"`
	Cities   []string `json:"cities,omitempty"`
	OCRText  string   `json:"ocr_text,omitempty"`
}

// HasMore reports whether the archive holds results past this page
func (r *SearchResults) HasMore() bool {
	return r != nil && r.EndIndex < r.TotalItems
}

// NextPage returns the page number following the one these results cover,
// or 0 when there is none.
func (r *SearchResults) NextPage() int {
	if !r.HasMore() || r.ItemsPerPage <= 0 {
		return 0
	}
	return r.EndIndex/r.ItemsPerPage + 1
}

// Equal compares results by value
func (r *SearchResults) Equal(o *SearchResults) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.TotalItems != o.TotalItems || r.StartIndex != o.StartIndex ||
		r.EndIndex != o.EndIndex || r.ItemsPerPage != o.ItemsPerPage {
		return false
	}
	return slices.EqualFunc(r.Items, o.Items, func(a, b *PageHit) bool {
		return a.Equal(b)
	})
}

// Equal compares hits by value
func (h *PageHit) Equal(o *PageHit) bool {
	if h == nil || o == nil {
		return h == o
	}
	return h.ID == o.ID && h.URL == o.URL && h.PDFURL == o.PDFURL &&
		h.Title == o.Title && h.Date == o.Date && h.Sequence == o.Sequence &&
		h.LCCN == o.LCCN && h.Edition == o.Edition && h.OCRText == o.OCRText &&
		slices.Equal(h.States, o.States) && slices.Equal(h.Cities, o.Cities)
}

// OCRCoordinates holds word bounding boxes for a page, in page units.
// Each box is x, y, width, height.
type OCRCoordinates struct {
	Width  float64                 `json:"width"`
	Height float64                 `json:"height"`
	Words  map[string][][4]float64 `json:"words"`
}

// Boxes returns the boxes recorded for word, or nil
func (c *OCRCoordinates) Boxes(word string) [][4]float64 {
	if c == nil {
		return nil
	}
	return c.Words[word]
}

// Progress reports download progress
type Progress struct {
	BytesComplete int64 `json:"bytes_complete"`
	BytesTotal    int64 `json:"bytes_total"` // -1 when the server sent no length
}

// Fraction returns completion in [0, 1], or 0 when the size is unknown
func (p Progress) Fraction() float64 {
	if p.BytesTotal <= 0 {
		return 0
	}
	return float64(p.BytesComplete) / float64(p.BytesTotal)
}
