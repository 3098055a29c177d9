package twssim_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"PortView/internal/event"
	"PortView/internal/feed"
	"PortView/internal/projection"
	"PortView/internal/tws"
	"PortView/internal/twssim"
)

// latest keeps only the newest snapshot; the scripted stream emits
// continuously and tests wait on a predicate rather than a count.
type latest struct {
	mu   sync.Mutex
	snap *projection.PortfolioSnapshot
}

func (l *latest) take(s *projection.PortfolioSnapshot) {
	l.mu.Lock()
	l.snap = s
	l.mu.Unlock()
}

func (l *latest) waitFor(t *testing.T, what string, pred func(*projection.PortfolioSnapshot) bool) *projection.PortfolioSnapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		l.mu.Lock()
		snap := l.snap
		l.mu.Unlock()
		if snap != nil && pred(snap) {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
	return nil
}

// Drives the whole in-process pipeline: scripted account download, base
// currency discovery, metadata round trips, and live FX resolution.
func TestSimulator_DrivesFeedToResolvedPortfolio(t *testing.T) {
	l := &latest{}
	relay := event.NewRelay()
	sim := twssim.New(twssim.Config{
		AccountID:    "DU0000001",
		Seed:         1,
		TickInterval: 10 * time.Millisecond,
	}, relay)

	sub := feed.Subscribe(sim, l.take,
		feed.WithLogger(zerolog.Nop()),
		feed.WithAccountID("DU0000001"))
	relay.Attach(sub)
	t.Cleanup(func() {
		sub.Unsubscribe()
		sim.Stop()
	})

	snap := l.waitFor(t, "initial load complete", func(s *projection.PortfolioSnapshot) bool {
		return s.InitialLoadComplete
	})
	if snap.BaseCurrency != "USD" {
		t.Errorf("base currency = %q, want USD", snap.BaseCurrency)
	}

	snap = l.waitFor(t, "all fx rates resolved", func(s *projection.PortfolioSnapshot) bool {
		return s.PositionCount == 3 && s.PositionsPendingFXCount == 0
	})
	for _, p := range snap.Positions {
		if p.FXPending || p.MarketValueBase == nil || *p.MarketValueBase <= 0 {
			t.Errorf("position %s not resolved: %+v", p.Symbol, p)
		}
	}
	// Positions come back sorted by contract id.
	if snap.Positions[0].Symbol != "7203" || snap.Positions[2].Symbol != "AAPL" {
		t.Errorf("position order: %s, %s, %s",
			snap.Positions[0].Symbol, snap.Positions[1].Symbol, snap.Positions[2].Symbol)
	}
	if snap.TotalEquity <= 0 {
		t.Errorf("total equity = %v", snap.TotalEquity)
	}

	snap = l.waitFor(t, "metadata attached to every position", func(s *projection.PortfolioSnapshot) bool {
		if len(s.Positions) != 3 {
			return false
		}
		for _, p := range s.Positions {
			if p.Hours == nil {
				return false
			}
		}
		return true
	})
	for _, p := range snap.Positions {
		if p.Symbol == "AAPL" && p.Hours.TimeZoneID != "America/New_York" {
			t.Errorf("AAPL timezone = %q", p.Hours.TimeZoneID)
		}
	}
}

type capture struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *capture) Deliver(ev event.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
}

func (c *capture) find(t *testing.T, match func(event.Event) bool) event.Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		for _, ev := range c.events {
			if match(ev) {
				c.mu.Unlock()
				return ev
			}
		}
		c.mu.Unlock()
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for matching event")
	return nil
}

func TestSimulator_UnknownInstrumentErrors(t *testing.T) {
	sink := &capture{}
	sim := twssim.New(twssim.Config{TickInterval: 10 * time.Millisecond}, sink)
	t.Cleanup(sim.Stop)

	unknown := tws.Contract{ConID: 42, Symbol: "NOPE", SecType: "STK", Currency: "USD"}
	if err := sim.RequestMetadata(42, unknown); err != nil {
		t.Fatal(err)
	}

	ev := sink.find(t, func(ev event.Event) bool {
		_, ok := ev.(*event.UpstreamError)
		return ok
	})
	ue := ev.(*event.UpstreamError)
	if ue.ReqID != 42 || ue.Code != 200 {
		t.Errorf("upstream error: %+v", ue)
	}
	sink.find(t, func(ev event.Event) bool {
		end, ok := ev.(*event.MetadataRequestEnd)
		return ok && end.ReqID == 42
	})
}
