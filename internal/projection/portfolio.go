// Package projection maintains the multi-currency materialized view of one
// account's holdings and cash. It is the single-owner state machine behind
// every emitted PortfolioSnapshot: transport-independent, synchronous, and
// confined to the feed's dispatch goroutine.
package projection

import (
	"sort"
	"time"

	"PortView/internal/hours"
)

// PositionUpdate is one position fact from the upstream account stream.
// Nil optionals mean the field was not reported; the previously stored
// value (or zero for a new position) is kept.
type PositionUpdate struct {
	ConID         int64
	Symbol        string
	Currency      string
	Quantity      float64
	Price         float64
	MarketValue   float64
	AvgCost       *float64
	UnrealizedPnL *float64
	RealizedPnL   *float64
}

// positionState is the mutable book entry behind a snapshot Position.
type positionState struct {
	conID         int64
	symbol        string
	currency      string
	quantity      float64
	avgCost       float64
	price         float64
	marketValue   float64
	unrealizedPnL float64
	realizedPnL   float64
	hours         *hours.Metadata

	// Derived on every recompute.
	fxRate     float64
	fxResolved bool
}

// Portfolio owns all projection state for one subscription. Methods mutate
// synchronously and never block; Snapshot is a pure read.
type Portfolio struct {
	now func() time.Time

	positions   map[int64]*positionState
	parkedHours map[int64]*hours.Metadata

	cashLocal map[string]float64 // currency → reported local amount
	rates     map[string]float64 // currency → rate to base

	baseCurrency      string
	reportedBaseTotal float64
	hasReportedTotal  bool
	loadComplete      bool
	lastUpdate        time.Time

	// Aggregates, recomputed after every state-affecting mutation.
	positionsMarketValue   float64
	positionsUnrealizedPnL float64
	pendingCount           int
	pendingByCurrency      map[string]float64
	cashBase               map[string]float64
}

// NewPortfolio creates an empty projection. now supplies the LastUpdateAt
// timestamp; tests pin it.
func NewPortfolio(now func() time.Time) *Portfolio {
	if now == nil {
		now = time.Now
	}
	return &Portfolio{
		now:               now,
		positions:         make(map[int64]*positionState),
		parkedHours:       make(map[int64]*hours.Metadata),
		cashLocal:         make(map[string]float64),
		rates:             make(map[string]float64),
		pendingByCurrency: make(map[string]float64),
		cashBase:          make(map[string]float64),
	}
}

// ApplyPositionUpdate inserts, replaces, or (quantity 0) removes a
// position. Every position's base fields are recomputed, not just the
// changed one: an earlier update may have become resolvable meanwhile.
func (p *Portfolio) ApplyPositionUpdate(u PositionUpdate) {
	if u.Quantity == 0 {
		if prev, ok := p.positions[u.ConID]; ok {
			// Park trading hours so re-insertion of the same
			// instrument restores them without a new request.
			if prev.hours != nil {
				p.parkedHours[u.ConID] = prev.hours
			}
			delete(p.positions, u.ConID)
			p.touch()
			p.recomputePositions()
		}
		return
	}

	prev := p.positions[u.ConID]

	pos := &positionState{
		conID:       u.ConID,
		symbol:      u.Symbol,
		currency:    u.Currency,
		quantity:    u.Quantity,
		price:       u.Price,
		marketValue: u.MarketValue,
	}

	if u.AvgCost != nil {
		pos.avgCost = *u.AvgCost
	} else if prev != nil {
		pos.avgCost = prev.avgCost
	}
	if u.UnrealizedPnL != nil {
		pos.unrealizedPnL = *u.UnrealizedPnL
	} else if prev != nil {
		pos.unrealizedPnL = prev.unrealizedPnL
	}
	if u.RealizedPnL != nil {
		pos.realizedPnL = *u.RealizedPnL
	} else if prev != nil {
		pos.realizedPnL = prev.realizedPnL
	}

	if prev != nil && prev.hours != nil {
		pos.hours = prev.hours
	} else if parked, ok := p.parkedHours[u.ConID]; ok {
		pos.hours = parked
		delete(p.parkedHours, u.ConID)
	}

	p.positions[u.ConID] = pos
	p.touch()
	p.recomputePositions()
}

// ApplyLocalCashBalance records a cash balance fact. The "BASE" pseudo
// currency carries the externally reported base-currency total; any other
// code updates that currency's local balance.
func (p *Portfolio) ApplyLocalCashBalance(currency string, value float64) {
	if currency == "BASE" {
		p.reportedBaseTotal = value
		p.hasReportedTotal = true
	} else {
		p.cashLocal[currency] = value
	}
	p.touch()
	p.recomputeCash()
}

// ApplyExchangeRate updates the rate-to-base for a currency. Both cash and
// positions are recomputed: a late rate can resolve pending positions.
func (p *Portfolio) ApplyExchangeRate(currency string, rate float64) {
	p.rates[currency] = rate
	p.touch()
	p.recomputePositions()
	p.recomputeCash()
}

// SetBaseCurrency records the account's reporting currency. A change
// invalidates every conversion done under the old (or unknown) base.
func (p *Portfolio) SetBaseCurrency(code string) {
	if code == p.baseCurrency {
		return
	}
	p.baseCurrency = code
	p.touch()
	p.recomputePositions()
	p.recomputeCash()
}

// MarkInitialLoadComplete latches the load-complete flag. One-way.
func (p *Portfolio) MarkInitialLoadComplete() {
	if p.loadComplete {
		return
	}
	p.loadComplete = true
	p.touch()
}

// AttachMetadata merges trading hours into an existing position. No-op if
// the position no longer exists.
func (p *Portfolio) AttachMetadata(conID int64, meta *hours.Metadata) {
	pos, ok := p.positions[conID]
	if !ok || meta == nil {
		return
	}
	pos.hours = meta
	p.touch()
}

// BaseCurrency returns the learned base currency, empty if unknown.
func (p *Portfolio) BaseCurrency() string { return p.baseCurrency }

// InitialLoadComplete reports whether the initial download finished.
func (p *Portfolio) InitialLoadComplete() bool { return p.loadComplete }

// Currencies returns every currency observed in cash balances or position
// holdings, deduplicated and sorted. The FX acquisition path uses it to
// decide which quote subscriptions to open.
func (p *Portfolio) Currencies() []string {
	seen := make(map[string]bool)
	for cur := range p.cashLocal {
		seen[cur] = true
	}
	for _, pos := range p.positions {
		seen[pos.currency] = true
	}
	out := make([]string, 0, len(seen))
	for cur := range seen {
		out = append(out, cur)
	}
	sort.Strings(out)
	return out
}

func (p *Portfolio) touch() {
	p.lastUpdate = p.now()
}

// recomputePositions rederives every position's FX fields and the pending
// aggregates. Rate 1 applies when the currency equals the base or the base
// is still unknown.
func (p *Portfolio) recomputePositions() {
	p.positionsMarketValue = 0
	p.positionsUnrealizedPnL = 0
	p.pendingCount = 0
	p.pendingByCurrency = make(map[string]float64)

	for _, pos := range p.positions {
		switch {
		case p.baseCurrency == "" || pos.currency == p.baseCurrency:
			pos.fxRate = 1
			pos.fxResolved = true
		default:
			rate, ok := p.rates[pos.currency]
			pos.fxRate = rate
			pos.fxResolved = ok
		}

		if pos.fxResolved {
			p.positionsMarketValue += pos.marketValue * pos.fxRate
			p.positionsUnrealizedPnL += pos.unrealizedPnL * pos.fxRate
		} else {
			p.pendingCount++
			p.pendingByCurrency[pos.currency] += pos.marketValue
		}
	}
}

// recomputeCash rederives per-currency base equivalents. Amounts are raw
// FX conversions; the externally reported base total is never used to
// rescale them, it only supplies the headline CashBalance when present.
func (p *Portfolio) recomputeCash() {
	p.cashBase = make(map[string]float64)

	for cur, local := range p.cashLocal {
		switch {
		case p.baseCurrency == "" || cur == p.baseCurrency:
			p.cashBase[cur] = local
		default:
			if rate, ok := p.rates[cur]; ok {
				p.cashBase[cur] = local * rate
			}
		}
	}
}

// Snapshot materializes the current state as an immutable snapshot with
// deterministic ordering: positions ascending by conID, currency lists
// lexicographic.
func (p *Portfolio) Snapshot() *PortfolioSnapshot {
	snap := &PortfolioSnapshot{
		PositionsMarketValue:    p.positionsMarketValue,
		PositionsUnrealizedPnL:  p.positionsUnrealizedPnL,
		BaseCurrency:            p.baseCurrency,
		InitialLoadComplete:     p.loadComplete,
		LastUpdateAt:            p.lastUpdate,
		PositionCount:           len(p.positions),
		PositionsPendingFXCount: p.pendingCount,
	}

	conIDs := make([]int64, 0, len(p.positions))
	for id := range p.positions {
		conIDs = append(conIDs, id)
	}
	sort.Slice(conIDs, func(i, j int) bool { return conIDs[i] < conIDs[j] })

	snap.Positions = make([]Position, 0, len(conIDs))
	for _, id := range conIDs {
		pos := p.positions[id]
		out := Position{
			ConID:         pos.conID,
			Symbol:        pos.symbol,
			Currency:      pos.currency,
			Quantity:      pos.quantity,
			AvgCost:       pos.avgCost,
			Price:         pos.price,
			MarketValue:   pos.marketValue,
			UnrealizedPnL: pos.unrealizedPnL,
			RealizedPnL:   pos.realizedPnL,
			FXPending:     !pos.fxResolved,
			Hours:         pos.hours,
		}
		if pos.fxResolved {
			rate := pos.fxRate
			mvBase := pos.marketValue * rate
			upnlBase := pos.unrealizedPnL * rate
			out.FXRateToBase = &rate
			out.MarketValueBase = &mvBase
			out.UnrealizedPnLBase = &upnlBase
		}
		snap.Positions = append(snap.Positions, out)
	}

	var cashSum float64
	snap.CashBalancesByCurrency = sortedAmounts(p.cashBase)
	for _, ca := range snap.CashBalancesByCurrency {
		cashSum += ca.Amount
	}
	if p.hasReportedTotal {
		snap.CashBalance = p.reportedBaseTotal
	} else {
		snap.CashBalance = cashSum
	}

	snap.CashExchangeRates = sortedAmounts(p.rates)
	snap.PendingFXByCurrency = sortedAmounts(p.pendingByCurrency)
	snap.TotalEquity = snap.PositionsMarketValue + snap.CashBalance

	return snap
}

func sortedAmounts(m map[string]float64) []CurrencyAmount {
	out := make([]CurrencyAmount, 0, len(m))
	for cur, v := range m {
		out = append(out, CurrencyAmount{Currency: cur, Amount: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out
}
