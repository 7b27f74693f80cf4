package eventing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"marketplace-settlement/internal/eventing/eventbus"
)

type sampleEvent struct {
	BatchID    string
	SellerID   string
	Month      string
	OccurredAt time.Time
}

type memoryOutbox struct {
	mu      sync.Mutex
	records []OutboxRecord
	status  map[string]string
}

func newMemoryOutbox() *memoryOutbox {
	return &memoryOutbox{status: make(map[string]string)}
}

func (m *memoryOutbox) Insert(ctx context.Context, env Envelope) (string, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	id := NewEventID()
	m.records = append(m.records, OutboxRecord{ID: id, Envelope: env})
	m.status[id] = "pending"
	return id, nil
}

func (m *memoryOutbox) ListPending(ctx context.Context, limit int) ([]OutboxRecord, error) {
	_ = ctx
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []OutboxRecord
	for _, rec := range m.records {
		if m.status[rec.ID] == "pending" {
			out = append(out, rec)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memoryOutbox) MarkSent(ctx context.Context, id string) error {
	_ = ctx
	m.mu.Lock()
	m.status[id] = "sent"
	m.mu.Unlock()
	return nil
}

func (m *memoryOutbox) MarkFailed(ctx context.Context, id string) error {
	_ = ctx
	m.mu.Lock()
	m.status[id] = "failed"
	m.mu.Unlock()
	return nil
}

type memoryProcessed struct {
	seen map[string]bool
}

func (m *memoryProcessed) HasProcessed(ctx context.Context, eventID, consumerName string) (bool, error) {
	_ = ctx
	return m.seen[eventID+"|"+consumerName], nil
}

func (m *memoryProcessed) MarkProcessed(ctx context.Context, eventID, consumerName string) error {
	_ = ctx
	m.seen[eventID+"|"+consumerName] = true
	return nil
}

type memoryDLQ struct {
	failures []Envelope
}

func (m *memoryDLQ) RecordFailure(ctx context.Context, env Envelope, err error) error {
	_ = ctx
	_ = err
	m.failures = append(m.failures, env)
	return nil
}

func TestBuildEnvelope_ExtractsSellerAndMonth(t *testing.T) {
	occurred := time.Date(2025, time.August, 1, 9, 0, 0, 0, time.UTC)
	env, err := BuildEnvelope(sampleEvent{BatchID: "b-1", SellerID: "S1", Month: "2025-07", OccurredAt: occurred}, Meta{})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	if env.SellerID != "S1" || env.Month != "2025-07" {
		t.Fatalf("seller/month = %q/%q", env.SellerID, env.Month)
	}
	if !env.OccurredAt.Equal(occurred) {
		t.Fatalf("occurred at = %s", env.OccurredAt)
	}
	if env.EventID == "" || env.CorrelationID != env.EventID {
		t.Fatalf("expected generated event id used as correlation id: %+v", env)
	}
	if env.EventType != "eventing.sampleEvent" {
		t.Fatalf("event type = %q", env.EventType)
	}
}

func TestPublisher_DeliversOnceWithProcessedStore(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	registry := NewRegistry()
	registry.Register(sampleEvent{})
	outbox := newMemoryOutbox()
	dispatcher := NewDispatcher(bus, outbox, registry, &memoryDLQ{})
	publisher := NewPublisher(outbox, dispatcher, bus)
	processed := &memoryProcessed{seen: make(map[string]bool)}

	var got []sampleEvent
	Subscribe(bus, eventbus.EventTypeOf[sampleEvent](), "consumer-a", func(ctx context.Context, event any) error {
		evt, ok := event.(sampleEvent)
		if !ok {
			return eventbus.ErrInvalidEventType
		}
		got = append(got, evt)
		return nil
	}, processed)

	ctx := WithEventID(context.Background(), "evt-dup-001")
	payload := sampleEvent{BatchID: "b-1", SellerID: "S1", Month: "2025-07"}
	if err := publisher.Publish(ctx, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if err := publisher.Publish(ctx, payload); err != nil {
		t.Fatalf("publish duplicate: %v", err)
	}
	if err := dispatcher.Dispatch(ctx, 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	if len(got) != 1 || got[0].BatchID != "b-1" {
		t.Fatalf("expected one delivery, got %+v", got)
	}
}

func TestDispatcher_FailureGoesToDLQ(t *testing.T) {
	bus := eventbus.NewInMemoryBus()
	registry := NewRegistry()
	registry.Register(sampleEvent{})
	outbox := newMemoryOutbox()
	dlq := &memoryDLQ{}
	dispatcher := NewDispatcher(bus, outbox, registry, dlq)

	bus.Subscribe(eventbus.EventTypeOf[sampleEvent](), func(ctx context.Context, event any) error {
		return errors.New("boom")
	})

	env, err := BuildEnvelope(sampleEvent{BatchID: "b-2", SellerID: "S2"}, Meta{})
	if err != nil {
		t.Fatalf("build envelope: %v", err)
	}
	id, _ := outbox.Insert(context.Background(), env)
	if err := dispatcher.Dispatch(context.Background(), 10); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if outbox.status[id] != "failed" {
		t.Fatalf("outbox status = %q", outbox.status[id])
	}
	if len(dlq.failures) != 1 || dlq.failures[0].SellerID != "S2" {
		t.Fatalf("dlq = %+v", dlq.failures)
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	registry := NewRegistry()
	if _, err := registry.DecodePayload(Envelope{EventType: "nope"}); err == nil {
		t.Fatalf("expected unknown event type error")
	}
}
