package event_test

import (
	"testing"

	"PortView/internal/event"
)

type recordingSink struct {
	events []event.Event
}

func (r *recordingSink) Deliver(ev event.Event) {
	r.events = append(r.events, ev)
}

func TestRelay_BuffersUntilAttach(t *testing.T) {
	relay := event.NewRelay()

	first := &event.AccountLoadComplete{}
	second := &event.MetadataRequestEnd{ReqID: 7}
	relay.Deliver(first)
	relay.Deliver(second)

	sink := &recordingSink{}
	relay.Attach(sink)

	if len(sink.events) != 2 || sink.events[0] != event.Event(first) || sink.events[1] != event.Event(second) {
		t.Fatalf("backlog replay: %+v", sink.events)
	}

	third := &event.MetadataRequestEnd{ReqID: 8}
	relay.Deliver(third)
	if len(sink.events) != 3 || sink.events[2] != event.Event(third) {
		t.Errorf("post-attach delivery: %+v", sink.events)
	}
}
