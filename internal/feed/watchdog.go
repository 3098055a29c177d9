package feed

import "time"

// requestKind distinguishes the two outstanding-request flavors the
// watchdog observes.
type requestKind int32

const (
	requestMetadata requestKind = iota
	requestFXQuote
)

func (k requestKind) String() string {
	if k == requestFXQuote {
		return "fx_quote"
	}
	return "metadata"
}

// pendingRequest is the watchdog's record of one outstanding upstream
// request. Created when the request is issued, destroyed on its terminal
// event or on teardown.
type pendingRequest struct {
	kind         requestKind
	reqID        int64
	target       string
	requestedAt  time.Time
	lastWarnedAt time.Time
}

// WatchdogConfig controls staleness detection for outstanding requests.
type WatchdogConfig struct {
	// Interval between staleness sweeps.
	Interval time.Duration
	// MetadataTimeout is how long a metadata request may stay
	// unanswered before it is considered stale.
	MetadataTimeout time.Duration
	// FXTimeout is how long an FX quote subscription may go without a
	// first usable rate.
	FXTimeout time.Duration
	// WarnCooldown throttles repeat warnings per request.
	WarnCooldown time.Duration
}

// DefaultWatchdogConfig returns the production defaults.
func DefaultWatchdogConfig() WatchdogConfig {
	return WatchdogConfig{
		Interval:        10 * time.Second,
		MetadataTimeout: 30 * time.Second,
		FXTimeout:       30 * time.Second,
		WarnCooldown:    60 * time.Second,
	}
}

func (s *Subscription) trackRequest(reqID int64, kind requestKind, target string) {
	s.pending[reqID] = &pendingRequest{
		kind:        kind,
		reqID:       reqID,
		target:      target,
		requestedAt: s.clock(),
	}
	if s.metrics != nil {
		s.metrics.OutstandingRequests.WithLabelValues(kind.String()).Inc()
	}
}

func (s *Subscription) untrackRequest(reqID int64) {
	pr, ok := s.pending[reqID]
	if !ok {
		return
	}
	delete(s.pending, reqID)
	if s.metrics != nil {
		s.metrics.OutstandingRequests.WithLabelValues(pr.kind.String()).Dec()
	}
}

// checkStale emits one observational warning per overdue request, subject
// to the per-request cooldown. No retry, no cancellation: the snapshot's
// pending-FX fields are the consumer-visible signal, this is for
// operators.
func (s *Subscription) checkStale() {
	now := s.clock()

	for _, pr := range s.pending {
		timeout := s.wd.MetadataTimeout
		if pr.kind == requestFXQuote {
			timeout = s.wd.FXTimeout
		}
		if now.Sub(pr.requestedAt) < timeout {
			continue
		}
		if !pr.lastWarnedAt.IsZero() && now.Sub(pr.lastWarnedAt) < s.wd.WarnCooldown {
			continue
		}

		pr.lastWarnedAt = now
		if s.metrics != nil {
			s.metrics.StaleWarnings.WithLabelValues(pr.kind.String()).Inc()
		}
		s.log.Warn().Str("kind", pr.kind.String()).Int64("req_id", pr.reqID).
			Str("target", pr.target).Dur("age", now.Sub(pr.requestedAt)).
			Msg("request stale")
	}
}
