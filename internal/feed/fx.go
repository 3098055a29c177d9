package feed

import (
	"math"

	"PortView/internal/tws"
)

// fxState tracks one currency's live quote subscription and the last rate
// pushed into the projection.
type fxState struct {
	reqID    int64
	currency string

	bid  float64
	ask  float64
	mark float64
	last float64

	lastApplied float64
	hasApplied  bool
	// live latches once a live-derived rate has been applied; from then
	// on static exchange-rate facts for this currency are ignored.
	live bool
}

// derive computes a usable rate from the accumulated ticks: mid when both
// sides of the book are positive, else mark, else last trade.
func (f *fxState) derive() (float64, bool) {
	switch {
	case f.bid > 0 && f.ask > 0:
		return (f.bid + f.ask) / 2, true
	case f.mark > 0:
		return f.mark, true
	case f.last > 0:
		return f.last, true
	default:
		return 0, false
	}
}

// maybeSubscribeFX opens a live quote for every non-base currency observed
// in cash or positions. Gated on the base currency being known and the
// initial load being complete, so the candidate set is stable; at most one
// subscription per currency per subscription lifetime.
func (s *Subscription) maybeSubscribeFX() {
	base := s.proj.BaseCurrency()
	if base == "" || !s.proj.InitialLoadComplete() {
		return
	}

	for _, cur := range s.proj.Currencies() {
		if cur == base {
			continue
		}
		if _, ok := s.fx[cur]; ok {
			continue
		}

		reqID := s.nextReqID()
		s.fx[cur] = &fxState{reqID: reqID, currency: cur}
		s.fxByReq[reqID] = cur
		s.trackRequest(reqID, requestFXQuote, cur)

		contract := tws.FXContract(cur, base)
		err := s.client.SubscribeQuote(reqID, contract, tws.QuoteOptions{GenericTicks: "221"})
		if err != nil {
			// Roll back so a later event retriggers the attempt.
			delete(s.fx, cur)
			delete(s.fxByReq, reqID)
			s.untrackRequest(reqID)
			s.log.Warn().Err(err).Str("currency", cur).Msg("fx quote subscribe failed")
			continue
		}

		if s.metrics != nil {
			s.metrics.FXSubscriptionsActive.Inc()
		}
		s.log.Info().Str("currency", cur).Str("base", base).Int64("req_id", reqID).
			Msg("fx quote subscribed")
	}
}

// onFXTick folds one tick into the currency's quote state and forwards a
// derived rate to the projection when it moved beyond the tolerance.
func (s *Subscription) onFXTick(reqID int64, tick tws.TickType, price float64) {
	cur, ok := s.fxByReq[reqID]
	if !ok {
		return
	}
	if !finite(price) {
		s.drop("non_finite")
		return
	}

	fxs := s.fx[cur]
	switch tick.Normalize() {
	case tws.TickBidPrice:
		fxs.bid = price
	case tws.TickAskPrice:
		fxs.ask = price
	case tws.TickMarkPrice:
		fxs.mark = price
	case tws.TickLastPrice:
		fxs.last = price
	default:
		return
	}

	rate, ok := fxs.derive()
	if !ok {
		return
	}

	// The first usable rate answers the outstanding request as far as the
	// watchdog is concerned; the stream itself stays open.
	s.untrackRequest(reqID)

	if fxs.hasApplied && math.Abs(rate-fxs.lastApplied) <= s.fxTolerance {
		return
	}

	fxs.lastApplied = rate
	fxs.hasApplied = true
	fxs.live = true

	s.proj.ApplyExchangeRate(cur, rate)
	if s.metrics != nil {
		s.metrics.FXRatesApplied.WithLabelValues(cur).Inc()
	}
	s.emit()
}
