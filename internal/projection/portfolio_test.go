package projection_test

import (
	"math"
	"testing"
	"time"

	"PortView/internal/hours"
	"PortView/internal/projection"
)

var testClock = func() time.Time {
	return time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)
}

func newPortfolio() *projection.Portfolio {
	return projection.NewPortfolio(testClock)
}

func fptr(v float64) *float64 { return &v }

func update(conID int64, symbol, currency string, qty, price, mv float64) projection.PositionUpdate {
	return projection.PositionUpdate{
		ConID:       conID,
		Symbol:      symbol,
		Currency:    currency,
		Quantity:    qty,
		Price:       price,
		MarketValue: mv,
	}
}

// checkInvariants verifies the cross-field snapshot invariants that must
// hold for every reachable state.
func checkInvariants(t *testing.T, s *projection.PortfolioSnapshot) {
	t.Helper()

	if got := s.PositionsMarketValue + s.CashBalance; math.Abs(got-s.TotalEquity) > 1e-9 {
		t.Errorf("totalEquity invariant: %v + %v != %v", s.PositionsMarketValue, s.CashBalance, s.TotalEquity)
	}

	pending := 0
	for _, pos := range s.Positions {
		if pos.FXPending != (pos.MarketValueBase == nil) {
			t.Errorf("position %d: fxPending=%v but marketValueBase=%v", pos.ConID, pos.FXPending, pos.MarketValueBase)
		}
		if pos.FXPending {
			pending++
		}
	}
	if pending != s.PositionsPendingFXCount {
		t.Errorf("pending count: got %d, want %d", s.PositionsPendingFXCount, pending)
	}
}

// ============================================================================
// Test: base-currency positions
// ============================================================================

func TestPortfolio_BaseCurrencyPosition(t *testing.T) {
	p := newPortfolio()
	p.SetBaseCurrency("USD")
	p.ApplyPositionUpdate(update(1, "AAPL", "USD", 100, 150.0, 15000))

	s := p.Snapshot()
	checkInvariants(t, s)

	if len(s.Positions) != 1 {
		t.Fatalf("positions: got %d, want 1", len(s.Positions))
	}
	pos := s.Positions[0]
	if pos.FXRateToBase == nil || *pos.FXRateToBase != 1 {
		t.Errorf("fxRateToBase: got %v, want 1", pos.FXRateToBase)
	}
	if pos.MarketValueBase == nil || *pos.MarketValueBase != 15000 {
		t.Errorf("marketValueBase: got %v, want 15000", pos.MarketValueBase)
	}
	if pos.FXPending {
		t.Error("base-currency position should not be fx-pending")
	}
	if s.PositionsMarketValue != 15000 {
		t.Errorf("positionsMarketValue: got %v, want 15000", s.PositionsMarketValue)
	}
}

func TestPortfolio_UnknownBaseUsesRateOne(t *testing.T) {
	p := newPortfolio()
	p.ApplyPositionUpdate(update(1, "SAP", "EUR", 50, 200, 10000))

	s := p.Snapshot()
	checkInvariants(t, s)

	if s.Positions[0].FXPending {
		t.Error("rate is 1 while base unknown, position should be resolved")
	}
	if s.PositionsMarketValue != 10000 {
		t.Errorf("positionsMarketValue: got %v, want 10000", s.PositionsMarketValue)
	}
}

// ============================================================================
// Test: pending FX resolution
// ============================================================================

func TestPortfolio_PendingFXThenRateArrives(t *testing.T) {
	p := newPortfolio()
	p.SetBaseCurrency("USD")
	p.ApplyPositionUpdate(update(100, "SAP", "EUR", 50, 200, 10000))

	s := p.Snapshot()
	checkInvariants(t, s)

	pos := s.Positions[0]
	if !pos.FXPending || pos.MarketValueBase != nil {
		t.Fatalf("expected pending position, got %+v", pos)
	}
	if s.PositionsMarketValue != 0 {
		t.Errorf("positionsMarketValue: got %v, want 0", s.PositionsMarketValue)
	}
	if len(s.PendingFXByCurrency) != 1 || s.PendingFXByCurrency[0].Currency != "EUR" || s.PendingFXByCurrency[0].Amount != 10000 {
		t.Errorf("pendingFxByCurrency: got %+v", s.PendingFXByCurrency)
	}

	p.ApplyExchangeRate("EUR", 1.1)

	s = p.Snapshot()
	checkInvariants(t, s)

	pos = s.Positions[0]
	if pos.FXPending {
		t.Fatal("position should be resolved after rate arrives")
	}
	if math.Abs(*pos.MarketValueBase-11000) > 1e-9 {
		t.Errorf("marketValueBase: got %v, want 11000", *pos.MarketValueBase)
	}
	if math.Abs(s.PositionsMarketValue-11000) > 1e-9 {
		t.Errorf("positionsMarketValue: got %v, want 11000", s.PositionsMarketValue)
	}
	if s.PositionsPendingFXCount != 0 {
		t.Errorf("pending count: got %d, want 0", s.PositionsPendingFXCount)
	}
	if len(s.PendingFXByCurrency) != 0 {
		t.Errorf("pendingFxByCurrency should be empty, got %+v", s.PendingFXByCurrency)
	}
}

func TestPortfolio_RateIdempotence(t *testing.T) {
	p := newPortfolio()
	p.SetBaseCurrency("USD")
	p.ApplyPositionUpdate(update(100, "SAP", "EUR", 50, 200, 10000))
	p.ApplyLocalCashBalance("EUR", 500)
	p.ApplyExchangeRate("EUR", 1.1)

	before := p.Snapshot()
	p.ApplyExchangeRate("EUR", 1.1)
	after := p.Snapshot()

	if before.PositionsMarketValue != after.PositionsMarketValue {
		t.Errorf("positionsMarketValue changed: %v → %v", before.PositionsMarketValue, after.PositionsMarketValue)
	}
	if before.CashBalance != after.CashBalance {
		t.Errorf("cashBalance changed: %v → %v", before.CashBalance, after.CashBalance)
	}
	if before.TotalEquity != after.TotalEquity {
		t.Errorf("totalEquity changed: %v → %v", before.TotalEquity, after.TotalEquity)
	}
}

// ============================================================================
// Test: base-currency switch
// ============================================================================

func TestPortfolio_BaseCurrencySwitchRecomputes(t *testing.T) {
	p := newPortfolio()
	p.ApplyPositionUpdate(update(1, "SAP", "EUR", 50, 200, 10000))

	// Base unknown: resolved at rate 1.
	if s := p.Snapshot(); s.PositionsMarketValue != 10000 {
		t.Fatalf("pre-base positionsMarketValue: got %v", s.PositionsMarketValue)
	}

	// Learning a different base invalidates the rate-1 conversion.
	p.SetBaseCurrency("USD")
	s := p.Snapshot()
	checkInvariants(t, s)
	if !s.Positions[0].FXPending {
		t.Error("EUR position should be pending once USD base is known")
	}

	// No-op when unchanged.
	p.SetBaseCurrency("USD")
	if s2 := p.Snapshot(); s2.PositionsPendingFXCount != s.PositionsPendingFXCount {
		t.Error("re-setting the same base should be a no-op")
	}
}

// ============================================================================
// Test: position removal and metadata retention
// ============================================================================

func TestPortfolio_RemoveAndReAddKeepsHours(t *testing.T) {
	p := newPortfolio()
	p.SetBaseCurrency("USD")
	p.ApplyPositionUpdate(update(1, "AAPL", "USD", 100, 150, 15000))

	meta := &hours.Metadata{TimeZoneID: "America/New_York", LiquidHours: "20260210:0930-1600"}
	p.AttachMetadata(1, meta)

	// Quantity 0 removes the position.
	p.ApplyPositionUpdate(update(1, "AAPL", "USD", 0, 0, 0))
	if s := p.Snapshot(); len(s.Positions) != 0 {
		t.Fatalf("position not removed: %+v", s.Positions)
	}

	// Re-insertion restores the parked metadata.
	p.ApplyPositionUpdate(update(1, "AAPL", "USD", 50, 151, 7550))
	s := p.Snapshot()
	if len(s.Positions) != 1 {
		t.Fatalf("positions: got %d, want 1", len(s.Positions))
	}
	if s.Positions[0].Hours != meta {
		t.Error("trading hours not restored on re-insertion")
	}
}

func TestPortfolio_AttachMetadataMissingPosition(t *testing.T) {
	p := newPortfolio()
	p.AttachMetadata(42, &hours.Metadata{TimeZoneID: "America/New_York"})

	if s := p.Snapshot(); len(s.Positions) != 0 {
		t.Error("attach to missing position should be a no-op")
	}
}

// ============================================================================
// Test: optional-field substitution
// ============================================================================

func TestPortfolio_OptionalFieldsFallBackToPrevious(t *testing.T) {
	p := newPortfolio()
	p.SetBaseCurrency("USD")

	first := update(1, "AAPL", "USD", 100, 150, 15000)
	first.AvgCost = fptr(140)
	first.UnrealizedPnL = fptr(1000)
	first.RealizedPnL = fptr(250)
	p.ApplyPositionUpdate(first)

	// Second update omits the optionals; previous values survive.
	p.ApplyPositionUpdate(update(1, "AAPL", "USD", 120, 151, 18120))

	pos := p.Snapshot().Positions[0]
	if pos.AvgCost != 140 {
		t.Errorf("avgCost: got %v, want 140", pos.AvgCost)
	}
	if pos.UnrealizedPnL != 1000 {
		t.Errorf("unrealizedPnL: got %v, want 1000", pos.UnrealizedPnL)
	}
	if pos.RealizedPnL != 250 {
		t.Errorf("realizedPnL: got %v, want 250", pos.RealizedPnL)
	}
}

func TestPortfolio_OptionalFieldsZeroForNewPosition(t *testing.T) {
	p := newPortfolio()
	p.ApplyPositionUpdate(update(1, "AAPL", "USD", 100, 150, 15000))

	pos := p.Snapshot().Positions[0]
	if pos.AvgCost != 0 || pos.UnrealizedPnL != 0 || pos.RealizedPnL != 0 {
		t.Errorf("new position optionals should default to zero: %+v", pos)
	}
}

// ============================================================================
// Test: cash ledger
// ============================================================================

func TestPortfolio_CashBaseMarkerAndLocal(t *testing.T) {
	p := newPortfolio()
	p.SetBaseCurrency("USD")
	p.ApplyLocalCashBalance("USD", 5000)
	p.ApplyLocalCashBalance("EUR", 1000)
	p.ApplyLocalCashBalance("BASE", 6200)

	s := p.Snapshot()
	checkInvariants(t, s)

	// Reported base total wins as the headline balance.
	if s.CashBalance != 6200 {
		t.Errorf("cashBalance: got %v, want reported 6200", s.CashBalance)
	}
	// EUR has no rate yet: only USD appears in base equivalents.
	if len(s.CashBalancesByCurrency) != 1 || s.CashBalancesByCurrency[0].Currency != "USD" {
		t.Errorf("cashBalancesByCurrency: got %+v", s.CashBalancesByCurrency)
	}

	p.ApplyExchangeRate("EUR", 1.1)
	s = p.Snapshot()
	if len(s.CashBalancesByCurrency) != 2 {
		t.Fatalf("cashBalancesByCurrency: got %+v", s.CashBalancesByCurrency)
	}
	// Lexicographic order: EUR before USD. Raw conversion, no rescaling
	// against the reported total.
	if s.CashBalancesByCurrency[0].Currency != "EUR" || math.Abs(s.CashBalancesByCurrency[0].Amount-1100) > 1e-9 {
		t.Errorf("EUR base equivalent: got %+v", s.CashBalancesByCurrency[0])
	}
	if s.CashBalance != 6200 {
		t.Errorf("cashBalance should stay the reported total: got %v", s.CashBalance)
	}
}

func TestPortfolio_CashSumWhenNoReportedTotal(t *testing.T) {
	p := newPortfolio()
	p.SetBaseCurrency("USD")
	p.ApplyLocalCashBalance("USD", 5000)
	p.ApplyLocalCashBalance("EUR", 1000)
	p.ApplyExchangeRate("EUR", 1.1)

	s := p.Snapshot()
	checkInvariants(t, s)
	if math.Abs(s.CashBalance-6100) > 1e-9 {
		t.Errorf("cashBalance: got %v, want 6100", s.CashBalance)
	}
}

// ============================================================================
// Test: snapshot shape
// ============================================================================

func TestPortfolio_SnapshotOrdering(t *testing.T) {
	p := newPortfolio()
	p.SetBaseCurrency("USD")
	p.ApplyPositionUpdate(update(30, "C", "USD", 1, 1, 1))
	p.ApplyPositionUpdate(update(10, "A", "USD", 1, 1, 1))
	p.ApplyPositionUpdate(update(20, "B", "USD", 1, 1, 1))
	p.ApplyExchangeRate("JPY", 0.0067)
	p.ApplyExchangeRate("EUR", 1.1)
	p.ApplyExchangeRate("CHF", 1.2)

	s := p.Snapshot()

	for i := 1; i < len(s.Positions); i++ {
		if s.Positions[i-1].ConID >= s.Positions[i].ConID {
			t.Errorf("positions not sorted by conID: %+v", s.Positions)
		}
	}
	for i := 1; i < len(s.CashExchangeRates); i++ {
		if s.CashExchangeRates[i-1].Currency >= s.CashExchangeRates[i].Currency {
			t.Errorf("rates not sorted: %+v", s.CashExchangeRates)
		}
	}
}

func TestPortfolio_LoadCompleteIsMonotonic(t *testing.T) {
	p := newPortfolio()
	if p.Snapshot().InitialLoadComplete {
		t.Fatal("fresh portfolio should not be load-complete")
	}
	p.MarkInitialLoadComplete()
	p.MarkInitialLoadComplete()
	if !p.Snapshot().InitialLoadComplete {
		t.Error("load-complete flag lost")
	}
}

func TestPortfolio_SnapshotIsDetached(t *testing.T) {
	p := newPortfolio()
	p.SetBaseCurrency("USD")
	p.ApplyPositionUpdate(update(1, "SAP", "EUR", 50, 200, 10000))

	s := p.Snapshot()
	wasPending := s.Positions[0].FXPending

	// Later mutations must not reach into an already emitted snapshot.
	p.ApplyExchangeRate("EUR", 1.1)

	if s.Positions[0].FXPending != wasPending {
		t.Error("emitted snapshot mutated by later event")
	}
	if s.Positions[0].MarketValueBase != nil {
		t.Error("emitted snapshot gained a base value retroactively")
	}
}

func TestPortfolio_Currencies(t *testing.T) {
	p := newPortfolio()
	p.ApplyLocalCashBalance("EUR", 100)
	p.ApplyLocalCashBalance("USD", 100)
	p.ApplyPositionUpdate(update(1, "7203", "JPY", 100, 2000, 200000))

	got := p.Currencies()
	want := []string{"EUR", "JPY", "USD"}
	if len(got) != len(want) {
		t.Fatalf("currencies: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("currencies: got %v, want %v", got, want)
		}
	}
}

func TestPortfolio_LastUpdateFromClock(t *testing.T) {
	p := newPortfolio()
	p.ApplyLocalCashBalance("USD", 1)

	if got := p.Snapshot().LastUpdateAt; !got.Equal(testClock()) {
		t.Errorf("lastUpdateAt: got %v, want %v", got, testClock())
	}
}
