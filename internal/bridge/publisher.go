// Package bridge publishes emitted snapshots to NATS for downstream
// consumers. Snapshots are ephemeral materialized state, so plain core
// NATS is used: replaying stale views is meaningless and the projection
// never persists.
package bridge

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"PortView/internal/observability"
	"PortView/internal/projection"
)

// Envelope wraps a published snapshot with routing metadata.
type Envelope struct {
	SubscriptionID string                        `json:"subscription_id"`
	AccountID      string                        `json:"account_id"`
	PublishedAt    time.Time                     `json:"published_at"`
	Snapshot       *projection.PortfolioSnapshot `json:"snapshot"`
}

// Publisher fans snapshots out to <prefix>.<accountID>. Publish errors are
// non-fatal: the snapshot is dropped and the next one supersedes it.
type Publisher struct {
	nc        *nats.Conn
	prefix    string
	subID     uuid.UUID
	accountFn func() string
	log       zerolog.Logger
	metrics   *observability.Metrics
}

// NewPublisher creates a snapshot publisher. nc may be nil, in which case
// every publish is a no-op; accountFn resolves the account id late, since
// it may only be learned from the stream.
func NewPublisher(nc *nats.Conn, prefix string, accountFn func() string, metrics *observability.Metrics) *Publisher {
	if accountFn == nil {
		accountFn = func() string { return "" }
	}
	return &Publisher{
		nc:        nc,
		prefix:    prefix,
		subID:     uuid.New(),
		accountFn: accountFn,
		log:       observability.NewLogger("bridge"),
		metrics:   metrics,
	}
}

// Publish sends one snapshot. Safe to call from the feed callback.
func (p *Publisher) Publish(snap *projection.PortfolioSnapshot) {
	if p.nc == nil || snap == nil {
		return
	}

	env := Envelope{
		SubscriptionID: p.subID.String(),
		AccountID:      p.accountFn(),
		PublishedAt:    time.Now(),
		Snapshot:       snap,
	}

	data, err := json.Marshal(env)
	if err != nil {
		p.log.Error().Err(err).Msg("marshal snapshot failed")
		if p.metrics != nil {
			p.metrics.BridgePublishErrors.Inc()
		}
		return
	}

	if err := p.nc.Publish(p.Subject(), data); err != nil {
		p.log.Warn().Err(err).Msg("snapshot publish failed")
		if p.metrics != nil {
			p.metrics.BridgePublishErrors.Inc()
		}
		return
	}

	if p.metrics != nil {
		p.metrics.BridgePublishes.Inc()
	}
}

// Subject returns the publish subject for the current account id,
// "unknown" while the account has not been learned yet.
func (p *Publisher) Subject() string {
	account := p.accountFn()
	if account == "" {
		account = "unknown"
	}
	return fmt.Sprintf("%s.%s", p.prefix, account)
}

// Connect dials NATS with reconnect handlers that log state changes.
func Connect(url string) (*nats.Conn, error) {
	log := observability.NewLogger("bridge")

	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("nats reconnected")
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats connection closed")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s: %w", url, err)
	}
	return nc, nil
}
