// Package metadata deduplicates and caches per-instrument trading-hours
// metadata requests. Across one subscription lifetime at most one request
// is outstanding per instrument, and a cache hit suppresses all future
// requests for that instrument.
package metadata

import (
	"PortView/internal/hours"
	"PortView/internal/tws"
)

// Request describes a metadata request the caller should issue upstream.
type Request struct {
	ReqID    int64
	Contract tws.Contract
}

// Resolved is the outcome of a metadata response mapped back to the
// instrument it answers.
type Resolved struct {
	ConID int64
	Meta  *hours.Metadata
}

// Tracker owns the metadata cache and in-flight bookkeeping for one
// subscription. Not safe for concurrent use; the feed confines it to its
// dispatch goroutine.
type Tracker struct {
	nextID   func() int64
	cache    map[int64]*hours.Metadata // conID → metadata
	inflight map[int64]bool            // conID → request outstanding
	byReq    map[int64]int64           // reqID → conID
}

// NewTracker creates a tracker drawing request ids from nextID. Metadata
// and quote requests share the feed's single id space because upstream
// routes error events by request id alone.
func NewTracker(nextID func() int64) *Tracker {
	return &Tracker{
		nextID:   nextID,
		cache:    make(map[int64]*hours.Metadata),
		inflight: make(map[int64]bool),
		byReq:    make(map[int64]int64),
	}
}

// NextRequest returns a request descriptor for the instrument, or nil when
// its metadata is already cached or a request is already in flight.
func (t *Tracker) NextRequest(c tws.Contract) *Request {
	if c.ConID == 0 {
		return nil
	}
	if _, ok := t.cache[c.ConID]; ok {
		return nil
	}
	if t.inflight[c.ConID] {
		return nil
	}

	reqID := t.nextID()
	t.inflight[c.ConID] = true
	t.byReq[reqID] = c.ConID

	return &Request{ReqID: reqID, Contract: c}
}

// OnMetadataReceived resolves a response back to its instrument and caches
// the metadata. Returns nil for an unrecognized request id.
func (t *Tracker) OnMetadataReceived(reqID int64, d tws.ContractDetails) *Resolved {
	conID, ok := t.byReq[reqID]
	if !ok {
		return nil
	}

	meta := &hours.Metadata{
		TimeZoneID:   d.TimeZoneID,
		LiquidHours:  d.LiquidHours,
		TradingHours: d.TradingHours,
	}
	t.cache[conID] = meta

	return &Resolved{ConID: conID, Meta: meta}
}

// OnMetadataRequestEnd clears the in-flight marker for the request's
// instrument. Idempotent; safe without a matching OnMetadataReceived, in
// which case the instrument becomes requestable again.
func (t *Tracker) OnMetadataRequestEnd(reqID int64) {
	conID, ok := t.byReq[reqID]
	if !ok {
		return
	}
	delete(t.byReq, reqID)
	delete(t.inflight, conID)
}

// GetCached returns the cached metadata for an instrument, or nil.
func (t *Tracker) GetCached(conID int64) *hours.Metadata {
	return t.cache[conID]
}
