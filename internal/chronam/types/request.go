package types

import (
	"strings"
	"time"
)

// Archive-wide date bounds. Searches without explicit bounds cover this range.
var (
	EarliestPossibleDate = time.Date(1836, time.January, 1, 0, 0, 0, 0, time.UTC)
	LatestPossibleDate   = time.Date(1922, time.December, 31, 0, 0, 0, 0, time.UTC)
)

// SearchParameters represents a structured archive search
type SearchParameters struct {
	Term         string    `json:"term"`
	States       []string  `json:"states,omitempty"`
	EarliestDate time.Time `json:"earliest_date,omitempty"` // zero means archive minimum
	LatestDate   time.Time `json:"latest_date,omitempty"`   // zero means archive maximum
}

// Normalized returns a copy with date bounds truncated to calendar days and
// clamped to the archive range. Unset bounds take the archive defaults.
func (p SearchParameters) Normalized() SearchParameters {
	out := p
	out.States = append([]string(nil), p.States...)
	out.EarliestDate = clampDate(p.EarliestDate, EarliestPossibleDate)
	out.LatestDate = clampDate(p.LatestDate, LatestPossibleDate)
	return out
}

// Validate validates the search parameters
func (p SearchParameters) Validate() error {
	if strings.TrimSpace(p.Term) == "" {
		return &ParameterError{Field: "term", Reason: "must not be empty"}
	}

	n := p.Normalized()
	if n.EarliestDate.After(n.LatestDate) {
		return &ParameterError{Field: "earliest_date", Reason: "must not be after latest_date"}
	}

	return nil
}

// Equal reports whether two parameter sets describe the same search
func (p SearchParameters) Equal(o SearchParameters) bool {
	if p.Term != o.Term || len(p.States) != len(o.States) {
		return false
	}
	for i := range p.States {
		if p.States[i] != o.States[i] {
			return false
		}
	}
	a, b := p.Normalized(), o.Normalized()
	return a.EarliestDate.Equal(b.EarliestDate) && a.LatestDate.Equal(b.LatestDate)
}

// PageQuery scopes a search to one result page and one caller context
type PageQuery struct {
	Parameters SearchParameters `json:"parameters"`
	Page       int              `json:"page"`
	ContextID  string           `json:"context_id"`
}

// Validate validates the query
func (q PageQuery) Validate() error {
	if err := q.Parameters.Validate(); err != nil {
		return err
	}
	if q.Page < 1 {
		return &ParameterError{Field: "page", Reason: "must be at least 1"}
	}
	return nil
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func clampDate(t, fallback time.Time) time.Time {
	if t.IsZero() {
		return fallback
	}
	t = Day(t)
	if t.Before(EarliestPossibleDate) {
		return EarliestPossibleDate
	}
	if t.After(LatestPossibleDate) {
		return LatestPossibleDate
	}
	return t
}
