// Package redisstream relays dispatched outbox events to a Redis stream
// so services outside this process can consume them.
package redisstream

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/rueidis"

	"marketplace-settlement/internal/eventing"
	"marketplace-settlement/internal/observability/metrics"
)

// Relay appends events to a Redis stream with XADD.
type Relay struct {
	client rueidis.Client
	stream string
	maxLen int64
	logger *slog.Logger
}

// NewRelay constructs a relay.
func NewRelay(client rueidis.Client, stream string, maxLen int64, logger *slog.Logger) (*Relay, error) {
	if client == nil {
		return nil, errors.New("redis relay: nil client")
	}
	if stream == "" {
		return nil, errors.New("redis relay: empty stream")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Relay{client: client, stream: stream, maxLen: maxLen, logger: logger}, nil
}

// Handle is an eventbus handler; it needs the envelope the dispatcher
// attaches to the context.
func (r *Relay) Handle(ctx context.Context, event any) error {
	_ = event
	env, ok := eventing.EnvelopeFromContext(ctx)
	if !ok || env.EventID == "" {
		return errors.New("redis relay: missing envelope")
	}
	if err := r.Append(ctx, env); err != nil {
		metrics.IncEventRelay(metrics.ResultError)
		r.logger.Error("redis relay failed", "event_id", env.EventID, "stream", r.stream, "error", err)
		return err
	}
	metrics.IncEventRelay(metrics.ResultSuccess)
	return nil
}

// Append writes one envelope to the stream.
func (r *Relay) Append(ctx context.Context, env eventing.Envelope) error {
	fields := Fields(env)
	builder := r.client.B().Xadd().Key(r.stream)
	var cmd rueidis.Completed
	if r.maxLen > 0 {
		fv := builder.Maxlen().Almost().Threshold(strconv.FormatInt(r.maxLen, 10)).Id("*").FieldValue()
		for _, kv := range fields {
			fv = fv.FieldValue(kv[0], kv[1])
		}
		cmd = fv.Build()
	} else {
		fv := builder.Id("*").FieldValue()
		for _, kv := range fields {
			fv = fv.FieldValue(kv[0], kv[1])
		}
		cmd = fv.Build()
	}
	return r.client.Do(ctx, cmd).Error()
}

// Fields flattens an envelope into ordered stream fields.
func Fields(env eventing.Envelope) [][2]string {
	return [][2]string{
		{"event_id", env.EventID},
		{"event_type", env.EventType},
		{"occurred_at", env.OccurredAt.UTC().Format(time.RFC3339Nano)},
		{"correlation_id", env.CorrelationID},
		{"seller_id", env.SellerID},
		{"month", env.Month},
		{"schema_version", strconv.Itoa(env.SchemaVersion)},
		{"payload", string(env.Payload)},
	}
}
