package event

import "sync"

// Relay is a Sink whose destination is attached after construction. It
// breaks the startup cycle between a transport that needs a sink when it
// is created and a subscription that needs the transport client when it
// subscribes. Events delivered before Attach are buffered and replayed in
// order.
type Relay struct {
	mu     sync.Mutex
	target Sink
	queue  []Event
}

// NewRelay creates a relay with no destination.
func NewRelay() *Relay {
	return &Relay{}
}

// Deliver forwards to the attached target, or buffers until one exists.
func (r *Relay) Deliver(ev Event) {
	r.mu.Lock()
	if r.target == nil {
		r.queue = append(r.queue, ev)
		r.mu.Unlock()
		return
	}
	t := r.target
	r.mu.Unlock()
	t.Deliver(ev)
}

// Attach sets the destination, first replaying everything buffered. The
// lock is held across the replay so concurrent deliveries cannot overtake
// the backlog.
func (r *Relay) Attach(target Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.queue {
		target.Deliver(ev)
	}
	r.queue = nil
	r.target = target
}
