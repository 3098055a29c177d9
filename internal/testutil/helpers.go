// Package testutil provides shared fixtures for feed and projection
// tests: event builders, a scripted fake upstream client, and a pinned
// clock.
package testutil

import (
	"sync"
	"time"

	"PortView/internal/event"
	"PortView/internal/tws"
)

// Clock returns a fixed instant; tests that need advancing time use
// FakeClock instead.
func Clock() time.Time {
	return time.Date(2026, 2, 10, 15, 0, 0, 0, time.UTC)
}

// FakeClock is a manually advanced clock for watchdog tests.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock starts at the shared pinned instant.
func NewFakeClock() *FakeClock {
	return &FakeClock{now: Clock()}
}

// Now is the clock function handed to the component under test.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Float is a literal-pointer helper for optional event fields.
func Float(v float64) *float64 { return &v }

// Stock builds a stock contract with the usual descriptive fields filled.
func Stock(conID int64, symbol, currency string) tws.Contract {
	return tws.Contract{
		ConID:    conID,
		Symbol:   symbol,
		SecType:  "STK",
		Currency: currency,
		Exchange: "SMART",
	}
}

// Position builds a position update with market value = qty * price.
func Position(c tws.Contract, qty, price float64, account string) *event.PositionUpdate {
	return &event.PositionUpdate{
		Contract:    c,
		Quantity:    qty,
		Price:       price,
		MarketValue: qty * price,
		AccountID:   account,
	}
}

// AccountValue builds an account-value fact.
func AccountValue(key, value, currency, account string) *event.AccountValue {
	return &event.AccountValue{Key: key, Value: value, Currency: currency, AccountID: account}
}

// Call records one outgoing request observed by the FakeClient.
type Call struct {
	Method   string
	ReqID    int64
	Contract tws.Contract
	Enable   bool
	Account  string
}

// FakeClient is a scriptable tws.Client that records every outgoing
// request. Errs maps a method name to the error its next call returns.
type FakeClient struct {
	mu    sync.Mutex
	calls []Call
	Errs  map[string]error
}

// NewFakeClient creates an empty fake.
func NewFakeClient() *FakeClient {
	return &FakeClient{Errs: make(map[string]error)}
}

func (f *FakeClient) record(c Call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.Errs[c.Method]
}

func (f *FakeClient) SubscribeAccountUpdates(subscribe bool, accountID string) error {
	return f.record(Call{Method: "SubscribeAccountUpdates", Enable: subscribe, Account: accountID})
}

func (f *FakeClient) RequestMetadata(reqID int64, c tws.Contract) error {
	return f.record(Call{Method: "RequestMetadata", ReqID: reqID, Contract: c})
}

func (f *FakeClient) SubscribeQuote(reqID int64, c tws.Contract, opts tws.QuoteOptions) error {
	return f.record(Call{Method: "SubscribeQuote", ReqID: reqID, Contract: c})
}

func (f *FakeClient) CancelQuote(reqID int64) error {
	return f.record(Call{Method: "CancelQuote", ReqID: reqID})
}

// Calls returns a copy of everything recorded so far.
func (f *FakeClient) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallsTo filters recorded calls by method name.
func (f *FakeClient) CallsTo(method string) []Call {
	var out []Call
	for _, c := range f.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// SetErr scripts the error returned by future calls to method.
func (f *FakeClient) SetErr(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errs[method] = err
}
