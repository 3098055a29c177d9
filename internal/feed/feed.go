// Package feed binds the upstream terminal event stream to the portfolio
// projection. Each Subscribe call owns a projection, a metadata tracker,
// and all request bookkeeping; everything is discarded on Unsubscribe.
//
// All upstream events and the watchdog tick run as discrete turns on one
// goroutine, so no state in this package is locked: mutation and snapshot
// emission for one event complete before the next event is taken.
package feed

import (
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"PortView/internal/event"
	"PortView/internal/metadata"
	"PortView/internal/observability"
	"PortView/internal/projection"
	"PortView/internal/tws"
)

// SnapshotFunc receives one immutable snapshot per state-affecting event.
type SnapshotFunc func(*projection.PortfolioSnapshot)

// defaultEventBuffer sizes the inbound event channel. The terminal bursts
// on initial load; the buffer absorbs it without blocking the transport.
const defaultEventBuffer = 512

// Option configures a subscription.
type Option func(*Subscription)

// WithAccountID filters events to a fixed account id.
func WithAccountID(id string) Option {
	return func(s *Subscription) { s.accountFn = func() string { return id } }
}

// WithAccountFunc filters events through a late-resolving account getter;
// the account id may only become known after the caller subscribes.
func WithAccountFunc(fn func() string) Option {
	return func(s *Subscription) { s.accountFn = fn }
}

// WithClock overrides the wall clock. Tests pin it.
func WithClock(fn func() time.Time) Option {
	return func(s *Subscription) { s.clock = fn }
}

// WithWatchdogConfig overrides staleness detection parameters.
func WithWatchdogConfig(cfg WatchdogConfig) Option {
	return func(s *Subscription) { s.wd = cfg }
}

// WithFXTolerance sets the minimum rate change that triggers a projection
// recompute. Smaller ticks are absorbed.
func WithFXTolerance(tol float64) Option {
	return func(s *Subscription) { s.fxTolerance = tol }
}

// WithLogger replaces the default component logger.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Subscription) { s.log = log }
}

// WithMetrics attaches prometheus metrics. Nil is fine; every use is
// guarded.
func WithMetrics(m *observability.Metrics) Option {
	return func(s *Subscription) { s.metrics = m }
}

// Subscription is one live binding of the upstream event stream to a
// consumer callback. It implements event.Sink.
type Subscription struct {
	id      uuid.UUID
	client  tws.Client
	cb      SnapshotFunc
	log     zerolog.Logger
	metrics *observability.Metrics

	clock       func() time.Time
	accountFn   func() string
	wd          WatchdogConfig
	fxTolerance float64

	proj    *projection.Portfolio
	tracker *metadata.Tracker

	// Request-lifecycle state, confined to the dispatch goroutine.
	reqSeq  int64
	pending map[int64]*pendingRequest
	fx      map[string]*fxState
	fxByReq map[int64]string

	events   chan event.Event
	done     chan struct{}
	loopDone chan struct{}
	closed   atomic.Bool
	unsub    sync.Once
}

var _ event.Sink = (*Subscription)(nil)

// Subscribe binds to the upstream client and starts the dispatch loop. The
// initial account-updates request is issued immediately; a transport
// failure there is logged and the subscription stays up, since the event
// stream may still be attached by the session layer later.
func Subscribe(client tws.Client, cb SnapshotFunc, opts ...Option) *Subscription {
	s := &Subscription{
		id:          uuid.New(),
		client:      client,
		cb:          cb,
		clock:       time.Now,
		accountFn:   func() string { return "" },
		wd:          DefaultWatchdogConfig(),
		fxTolerance: 1e-6,
		pending:     make(map[int64]*pendingRequest),
		fx:          make(map[string]*fxState),
		fxByReq:     make(map[int64]string),
		events:      make(chan event.Event, defaultEventBuffer),
		done:        make(chan struct{}),
		loopDone:    make(chan struct{}),
	}
	s.log = observability.NewLogger("feed")

	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With().Str("subscription", s.id.String()).Logger()

	s.proj = projection.NewPortfolio(s.clock)
	s.tracker = metadata.NewTracker(s.nextReqID)

	if err := s.client.SubscribeAccountUpdates(true, s.accountFn()); err != nil {
		s.log.Error().Err(err).Msg("subscribe account updates failed")
	}

	go s.run()

	s.log.Info().Msg("subscription started")
	return s
}

// nextReqID allocates from the subscription's single monotonic id space.
// Metadata and quote requests share it because upstream routes error
// events by request id alone.
func (s *Subscription) nextReqID() int64 {
	s.reqSeq++
	return s.reqSeq
}

// Deliver queues an upstream event for dispatch. A no-op after
// Unsubscribe.
func (s *Subscription) Deliver(ev event.Event) {
	if s.closed.Load() {
		return
	}
	select {
	case s.events <- ev:
	case <-s.done:
	}
}

func (s *Subscription) run() {
	defer close(s.loopDone)

	ticker := time.NewTicker(s.wd.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.done:
			return
		case ev := <-s.events:
			s.dispatch(ev)
		case <-ticker.C:
			s.checkStale()
		}
	}
}

// Unsubscribe tears the subscription down: stops dispatch and the
// watchdog, cancels outstanding FX quote subscriptions, and unsubscribes
// account updates. Idempotent and never fails; individual upstream cancel
// errors are logged and skipped.
func (s *Subscription) Unsubscribe() {
	s.unsub.Do(func() {
		s.closed.Store(true)
		close(s.done)
		<-s.loopDone

		for cur, fxs := range s.fx {
			if err := s.client.CancelQuote(fxs.reqID); err != nil {
				s.log.Warn().Err(err).Str("currency", cur).Int64("req_id", fxs.reqID).
					Msg("cancel fx quote failed")
			}
			if s.metrics != nil {
				s.metrics.FXSubscriptionsActive.Dec()
			}
		}

		if err := s.client.SubscribeAccountUpdates(false, s.accountFn()); err != nil {
			s.log.Warn().Err(err).Msg("unsubscribe account updates failed")
		}

		if s.metrics != nil {
			s.metrics.OutstandingRequests.Reset()
		}

		s.pending = nil
		s.fxByReq = nil

		s.log.Info().Msg("subscription torn down")
	})
}

// accountMatches applies the expected-account predicate. Events without an
// account id pass; an empty expected id (not yet resolved) accepts all.
func (s *Subscription) accountMatches(evAccount string) bool {
	if evAccount == "" {
		return true
	}
	want := s.accountFn()
	return want == "" || want == evAccount
}

// emit recomputes nothing; the projection is already consistent. It
// materializes the snapshot and invokes the consumer callback.
func (s *Subscription) emit() {
	start := time.Now()
	snap := s.proj.Snapshot()
	if s.metrics != nil {
		s.metrics.SnapshotBuildDuration.Observe(time.Since(start).Seconds())
		s.metrics.SnapshotsEmitted.Inc()
	}
	if s.cb != nil {
		s.cb(snap)
	}
}

func (s *Subscription) drop(reason string) {
	if s.metrics != nil {
		s.metrics.EventsDropped.WithLabelValues(reason).Inc()
	}
	s.log.Debug().Str("reason", reason).Msg("event dropped")
}

func parseAccountFloat(v string) (float64, bool) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func finite(vs ...float64) bool {
	for _, v := range vs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
