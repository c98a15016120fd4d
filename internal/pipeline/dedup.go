package pipeline

import (
	"time"
)

// Lookup is the persistence surface the deduplicator needs.
type Lookup interface {
	ExistsURL(url string) (bool, error)
	ExistsURLSince(url string, cutoff time.Time) (bool, error)
}

// Deduper checks candidate URLs against the persisted store. A zero
// window means full-history dedup; a positive window only rejects URLs
// seen within that window, so forced refreshes can re-surface older
// unseen content.
type Deduper struct {
	lookup Lookup
	window time.Duration
}

// NewDeduper creates a Deduper. window <= 0 checks the full history.
func NewDeduper(lookup Lookup, window time.Duration) *Deduper {
	return &Deduper{lookup: lookup, window: window}
}

// Seen reports whether the URL already exists in the store.
func (d *Deduper) Seen(url string) (bool, error) {
	if d.window > 0 {
		return d.lookup.ExistsURLSince(url, time.Now().Add(-d.window))
	}
	return d.lookup.ExistsURL(url)
}
