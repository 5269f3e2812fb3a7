package registry

import (
	"github.com/lk2023060901/american-chronicle/internal/chronam/query"
	"github.com/lk2023060901/american-chronicle/internal/chronam/types"
)

// SearchKey identifies a search by its canonical wire encoding and the
// caller context that issued it. It is comparable, so structurally equal
// queries collapse to the same key.
type SearchKey struct {
	Query     string
	ContextID string
}

// KeyFor derives the key for q
func KeyFor(q types.PageQuery) SearchKey {
	return SearchKey{
		Query:     query.Encode(q.Parameters, q.Page),
		ContextID: q.ContextID,
	}
}

func (k SearchKey) String() string {
	return k.ContextID + "|" + k.Query
}
