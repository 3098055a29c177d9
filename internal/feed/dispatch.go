package feed

import (
	"PortView/internal/event"
	"PortView/internal/metadata"
	"PortView/internal/projection"
	"PortView/internal/tws"
)

// dispatch routes one upstream event. Runs only on the subscription's
// dispatch goroutine; every handler finishes (including the consumer
// callback) before the next event is taken.
func (s *Subscription) dispatch(ev event.Event) {
	if s.metrics != nil {
		s.metrics.EventsRouted.WithLabelValues(ev.Kind().String()).Inc()
	}

	switch v := ev.(type) {
	case *event.PositionUpdate:
		s.handlePositionUpdate(v)
	case *event.AccountValue:
		s.handleAccountValue(v)
	case *event.AccountLoadComplete:
		s.handleLoadComplete(v)
	case *event.MetadataReceived:
		s.handleMetadataReceived(v)
	case *event.MetadataRequestEnd:
		s.handleMetadataRequestEnd(v)
	case *event.TickPrice:
		s.onFXTick(v.ReqID, v.Tick, v.Price)
	case *event.TickGeneric:
		s.onFXTick(v.ReqID, v.Tick, v.Value)
	case *event.TickSize, *event.TickString, *event.TickParams, *event.TickSnapshotEnd:
		// Part of the quote stream contract but carries nothing the FX
		// path derives rates from.
	case *event.UpstreamError:
		s.handleUpstreamError(v)
	default:
		s.drop("unknown_event")
	}
}

func (s *Subscription) handlePositionUpdate(v *event.PositionUpdate) {
	if !s.accountMatches(v.AccountID) {
		s.drop("account_mismatch")
		return
	}
	c := v.Contract
	if c.ConID == 0 {
		s.drop("no_conid")
		return
	}
	if !finite(v.Quantity, v.Price, v.MarketValue) {
		s.drop("non_finite")
		return
	}
	for _, opt := range []*float64{v.AvgCost, v.UnrealizedPnL, v.RealizedPnL} {
		if opt != nil && !finite(*opt) {
			s.drop("non_finite")
			return
		}
	}
	if v.Quantity != 0 && c.Currency == "" {
		s.drop("no_currency")
		return
	}

	s.proj.ApplyPositionUpdate(projection.PositionUpdate{
		ConID:         c.ConID,
		Symbol:        c.Symbol,
		Currency:      c.Currency,
		Quantity:      v.Quantity,
		Price:         v.Price,
		MarketValue:   v.MarketValue,
		AvgCost:       v.AvgCost,
		UnrealizedPnL: v.UnrealizedPnL,
		RealizedPnL:   v.RealizedPnL,
	})

	if v.Quantity != 0 {
		if meta := s.tracker.GetCached(c.ConID); meta != nil {
			s.proj.AttachMetadata(c.ConID, meta)
		} else if req := s.tracker.NextRequest(c); req != nil {
			s.issueMetadataRequest(req)
		}
	}

	s.maybeSubscribeFX()
	s.emit()
}

func (s *Subscription) handleAccountValue(v *event.AccountValue) {
	if !s.accountMatches(v.AccountID) {
		s.drop("account_mismatch")
		return
	}

	switch v.Key {
	case tws.KeyTotalCashBalance:
		if v.Currency == "" {
			s.drop("no_currency")
			return
		}
		val, ok := parseAccountFloat(v.Value)
		if !ok {
			s.drop("bad_value")
			return
		}
		s.proj.ApplyLocalCashBalance(v.Currency, val)
		s.maybeSubscribeFX()
		s.emit()

	case tws.KeyExchangeRate:
		if v.Currency == "" || v.Currency == tws.BaseCurrencyMarker {
			s.drop("no_currency")
			return
		}
		// Once a live-derived rate exists for a currency, static
		// exchange-rate facts for it are ignored entirely: the
		// periodic report lags the live stream.
		if fxs, ok := s.fx[v.Currency]; ok && fxs.live {
			s.log.Debug().Str("currency", v.Currency).Msg("static rate shadowed by live rate")
			return
		}
		rate, ok := parseAccountFloat(v.Value)
		if !ok || rate <= 0 {
			s.drop("bad_value")
			return
		}
		s.proj.ApplyExchangeRate(v.Currency, rate)
		s.emit()

	case tws.KeyTotalCashValue, tws.KeyNetLiquidation:
		// Used only to learn the base-currency code, which arrives as
		// the currency of these account-wide totals.
		if v.Currency == "" || v.Currency == tws.BaseCurrencyMarker {
			return
		}
		s.proj.SetBaseCurrency(v.Currency)
		s.maybeSubscribeFX()
		s.emit()

	default:
		// Dozens of other account keys stream by; none affect the
		// projection.
	}
}

func (s *Subscription) handleLoadComplete(v *event.AccountLoadComplete) {
	if !s.accountMatches(v.AccountID) {
		s.drop("account_mismatch")
		return
	}
	s.proj.MarkInitialLoadComplete()
	s.maybeSubscribeFX()
	s.emit()
}

func (s *Subscription) issueMetadataRequest(req *metadata.Request) {
	s.trackRequest(req.ReqID, requestMetadata, req.Contract.Symbol)

	if err := s.client.RequestMetadata(req.ReqID, req.Contract); err != nil {
		// Roll back the bookkeeping created for this request; the
		// instrument becomes requestable again on its next update.
		s.untrackRequest(req.ReqID)
		s.tracker.OnMetadataRequestEnd(req.ReqID)
		s.log.Warn().Err(err).Int64("req_id", req.ReqID).Str("symbol", req.Contract.Symbol).
			Msg("metadata request failed")
		return
	}

	s.log.Debug().Int64("req_id", req.ReqID).Int64("con_id", req.Contract.ConID).
		Str("symbol", req.Contract.Symbol).Msg("metadata requested")
}

func (s *Subscription) handleMetadataReceived(v *event.MetadataReceived) {
	s.untrackRequest(v.ReqID)

	res := s.tracker.OnMetadataReceived(v.ReqID, v.Details)
	if res == nil {
		s.log.Debug().Int64("req_id", v.ReqID).Msg("metadata for unknown request")
		return
	}

	s.proj.AttachMetadata(res.ConID, res.Meta)
	s.emit()
}

func (s *Subscription) handleMetadataRequestEnd(v *event.MetadataRequestEnd) {
	s.untrackRequest(v.ReqID)
	s.tracker.OnMetadataRequestEnd(v.ReqID)
}

func (s *Subscription) handleUpstreamError(v *event.UpstreamError) {
	if v.ReqID <= 0 {
		s.log.Debug().Int("code", v.Code).Err(v.Err).Msg("upstream notice")
		return
	}

	if pr, ok := s.pending[v.ReqID]; ok {
		// Terminal for the request: errored, logged, never retried.
		s.untrackRequest(v.ReqID)
		s.log.Warn().Int64("req_id", v.ReqID).Str("kind", pr.kind.String()).
			Str("target", pr.target).Int("code", v.Code).Err(v.Err).
			Msg("upstream rejected request")
		if pr.kind == requestMetadata {
			s.tracker.OnMetadataRequestEnd(v.ReqID)
		}
		return
	}

	if cur, ok := s.fxByReq[v.ReqID]; ok {
		// Quote error on an established FX stream. The last applied
		// rate stays in the projection.
		s.log.Warn().Int64("req_id", v.ReqID).Str("currency", cur).Int("code", v.Code).
			Err(v.Err).Msg("fx quote stream error")
		return
	}

	s.log.Debug().Int64("req_id", v.ReqID).Int("code", v.Code).Err(v.Err).
		Msg("error for unknown request")
}
