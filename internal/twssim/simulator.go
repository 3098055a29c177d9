// Package twssim is an in-process scripted upstream terminal. It
// implements tws.Client and drives an event.Sink with a multi-currency
// account scenario, so the binary runs end-to-end without a live terminal
// session and feed tests have a realistic double.
package twssim

import (
	"fmt"
	"math/rand"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"PortView/internal/event"
	"PortView/internal/observability"
	"PortView/internal/tws"
)

// Compile-time interface check.
var _ tws.Client = (*Simulator)(nil)

// Config controls the scripted scenario.
type Config struct {
	AccountID    string
	Seed         int64
	TickInterval time.Duration
}

// instrument is one scripted holding.
type instrument struct {
	contract    tws.Contract
	quantity    float64
	price       float64
	timezone    string
	liquidHours string
}

// fxStream is one running quote subscription.
type fxStream struct {
	reqID int64
	pair  tws.Contract
	mid   float64
	stop  chan struct{}
}

// Simulator is a scripted tws.Client. All methods are safe for concurrent
// use; the account script and each quote stream run on their own
// goroutines and deliver through the sink.
type Simulator struct {
	cfg  Config
	sink event.Sink
	log  zerolog.Logger

	mu      sync.Mutex
	rng     *rand.Rand
	streams map[int64]*fxStream
	stopped bool
	done    chan struct{}
	wg      sync.WaitGroup

	instruments []instrument
	fxMids      map[string]float64
}

// New creates a simulator delivering into sink.
func New(cfg Config, sink event.Sink) *Simulator {
	if cfg.AccountID == "" {
		cfg.AccountID = "DU0000001"
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 500 * time.Millisecond
	}

	return &Simulator{
		cfg:     cfg,
		sink:    sink,
		log:     observability.NewLogger("twssim"),
		rng:     rand.New(rand.NewSource(cfg.Seed)),
		streams: make(map[int64]*fxStream),
		done:    make(chan struct{}),
		instruments: []instrument{
			{
				contract:    tws.Contract{ConID: 265598, Symbol: "AAPL", SecType: "STK", Currency: "USD", Exchange: "SMART", PrimaryExchange: "NASDAQ"},
				quantity:    100,
				price:       150.0,
				timezone:    "America/New_York",
				liquidHours: "20260210:0930-1600;20260211:0930-1600",
			},
			{
				contract:    tws.Contract{ConID: 14204, Symbol: "SAP", SecType: "STK", Currency: "EUR", Exchange: "IBIS"},
				quantity:    50,
				price:       200.0,
				timezone:    "CET",
				liquidHours: "20260210:0900-1730;20260211:0900-1730",
			},
			{
				contract:    tws.Contract{ConID: 13870, Symbol: "7203", SecType: "STK", Currency: "JPY", Exchange: "TSEJ"},
				quantity:    300,
				price:       2800.0,
				timezone:    "JST",
				liquidHours: "20260210:0900-1130,1230-1500;20260211:0900-1130,1230-1500",
			},
		},
		fxMids: map[string]float64{
			"EUR": 1.0850,
			"JPY": 0.00672,
		},
	}
}

// SubscribeAccountUpdates starts (or stops) the scripted account download.
func (s *Simulator) SubscribeAccountUpdates(subscribe bool, accountID string) error {
	if !subscribe {
		s.log.Info().Str("account", accountID).Msg("account updates unsubscribed")
		return nil
	}

	s.wg.Add(1)
	go s.runAccountScript()
	return nil
}

// runAccountScript plays the initial download: account values, positions,
// then load complete, followed by periodic account-value refreshes.
func (s *Simulator) runAccountScript() {
	defer s.wg.Done()
	acct := s.cfg.AccountID

	// Base currency is learned from the currency of account-wide totals.
	s.deliver(&event.AccountValue{Key: tws.KeyNetLiquidation, Value: "128500.00", Currency: "USD", AccountID: acct})
	s.deliver(&event.AccountValue{Key: tws.KeyTotalCashValue, Value: "21150.00", Currency: "USD", AccountID: acct})

	// Cash ledger: reported base total plus per-currency locals.
	s.deliver(&event.AccountValue{Key: tws.KeyTotalCashBalance, Value: "21150.00", Currency: tws.BaseCurrencyMarker, AccountID: acct})
	s.deliver(&event.AccountValue{Key: tws.KeyTotalCashBalance, Value: "15000.00", Currency: "USD", AccountID: acct})
	s.deliver(&event.AccountValue{Key: tws.KeyTotalCashBalance, Value: "4200.00", Currency: "EUR", AccountID: acct})
	s.deliver(&event.AccountValue{Key: tws.KeyTotalCashBalance, Value: "250000", Currency: "JPY", AccountID: acct})

	// Static FX facts precede any live stream.
	s.deliver(&event.AccountValue{Key: tws.KeyExchangeRate, Value: "1.0840", Currency: "EUR", AccountID: acct})
	s.deliver(&event.AccountValue{Key: tws.KeyExchangeRate, Value: "0.00671", Currency: "JPY", AccountID: acct})

	for _, inst := range s.instruments {
		mv := inst.quantity * inst.price
		avg := inst.price * 0.92
		upnl := mv - inst.quantity*avg
		s.deliver(&event.PositionUpdate{
			Contract:      inst.contract,
			Quantity:      inst.quantity,
			Price:         inst.price,
			MarketValue:   mv,
			AvgCost:       &avg,
			UnrealizedPnL: &upnl,
			AccountID:     acct,
		})
	}

	s.deliver(&event.AccountLoadComplete{AccountID: acct})

	// Periodic refresh of the reported base total, drifting slightly.
	ticker := time.NewTicker(5 * s.cfg.TickInterval)
	defer ticker.Stop()
	total := 21150.0
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			total += (s.rng.Float64() - 0.5) * 20
			s.mu.Unlock()
			s.deliver(&event.AccountValue{
				Key:       tws.KeyTotalCashBalance,
				Value:     strconv.FormatFloat(total, 'f', 2, 64),
				Currency:  tws.BaseCurrencyMarker,
				AccountID: acct,
			})
		}
	}
}

// RequestMetadata answers with the instrument's scripted contract details,
// then the request end.
func (s *Simulator) RequestMetadata(reqID int64, c tws.Contract) error {
	for _, inst := range s.instruments {
		if inst.contract.ConID != c.ConID {
			continue
		}
		details := tws.ContractDetails{
			Contract:     inst.contract,
			TimeZoneID:   inst.timezone,
			LiquidHours:  inst.liquidHours,
			TradingHours: inst.liquidHours,
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.deliver(&event.MetadataReceived{ReqID: reqID, Details: details})
			s.deliver(&event.MetadataRequestEnd{ReqID: reqID})
		}()
		return nil
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.deliver(&event.UpstreamError{ReqID: reqID, Code: 200, Err: fmt.Errorf("no security definition for conId %d", c.ConID)})
		s.deliver(&event.MetadataRequestEnd{ReqID: reqID})
	}()
	return nil
}

// SubscribeQuote starts a drifting bid/ask stream for a cash pair.
func (s *Simulator) SubscribeQuote(reqID int64, c tws.Contract, opts tws.QuoteOptions) error {
	if c.SecType != "CASH" {
		return fmt.Errorf("simulator only streams CASH pairs, got %s", c.SecType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return fmt.Errorf("simulator stopped")
	}

	mid, ok := s.fxMids[c.Symbol]
	if !ok {
		mid = 1.0
	}

	stream := &fxStream{reqID: reqID, pair: c, mid: mid, stop: make(chan struct{})}
	s.streams[reqID] = stream

	s.wg.Add(1)
	go s.runQuoteStream(stream)
	return nil
}

func (s *Simulator) runQuoteStream(st *fxStream) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	emit := func() {
		spread := st.mid * 0.0002
		s.deliver(&event.TickPrice{ReqID: st.reqID, Tick: tws.TickBidPrice, Price: st.mid - spread/2})
		s.deliver(&event.TickPrice{ReqID: st.reqID, Tick: tws.TickAskPrice, Price: st.mid + spread/2})
	}
	emit()

	for {
		select {
		case <-s.done:
			return
		case <-st.stop:
			return
		case <-ticker.C:
			s.mu.Lock()
			st.mid *= 1 + (s.rng.Float64()-0.5)*0.0004
			s.mu.Unlock()
			emit()
		}
	}
}

// CancelQuote stops a quote stream. Unknown ids are a no-op, matching the
// terminal's behavior.
func (s *Simulator) CancelQuote(reqID int64) error {
	s.mu.Lock()
	st, ok := s.streams[reqID]
	if ok {
		delete(s.streams, reqID)
	}
	s.mu.Unlock()

	if ok {
		close(st.stop)
	}
	return nil
}

// Stop halts every goroutine the simulator started. Used at shutdown and
// in tests.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	streams := s.streams
	s.streams = make(map[int64]*fxStream)
	s.mu.Unlock()

	close(s.done)
	for _, st := range streams {
		close(st.stop)
	}
	s.wg.Wait()
}

func (s *Simulator) deliver(ev event.Event) {
	s.sink.Deliver(ev)
}
