package router

import (
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/driftdb/driftdb-go/connection"
)

// Record is one datapoint flattened out of a subscription delivery, ready
// for the batch writer.
type Record struct {
	ID         uuid.UUID
	Topic      string
	Timestamp  time.Time
	Value      []byte
	ReceivedAt time.Time
}

// Intake turns subscription deliveries into Records and queues them.
type Intake struct {
	records *Ring[Record]
	logger  *slog.Logger

	dropped int64
}

// NewIntake creates an intake with the given initial queue capacity.
func NewIntake(capacity int, logger *slog.Logger) *Intake {
	if logger == nil {
		logger = slog.Default()
	}
	return &Intake{
		records: NewRing[Record](capacity),
		logger:  logger,
	}
}

// Offer flattens a delivery into Records and queues them. Datapoints whose
// values fail to marshal are logged and skipped.
func (in *Intake) Offer(topic string, data []connection.Datapoint) {
	now := time.Now().UTC()
	for _, dp := range data {
		value, err := json.Marshal(dp.Data)
		if err != nil {
			in.dropped++
			in.logger.Warn("dropping unmarshalable datapoint",
				"topic", topic,
				"error", err)
			continue
		}
		in.records.Push(Record{
			ID:         uuid.New(),
			Topic:      topic,
			Timestamp:  timestampToTime(dp.Timestamp),
			Value:      value,
			ReceivedAt: now,
		})
	}
}

// Handler returns a subscription handler that feeds this intake. With
// autoAck set, downlink deliveries are acknowledged back to the server
// after queueing; otherwise the delivery passes through unanswered.
func (in *Intake) Handler(autoAck bool) connection.Handler {
	return func(topic string, data []connection.Datapoint) connection.AckResult {
		in.Offer(topic, data)
		if autoAck {
			return connection.Acknowledge(nil)
		}
		return connection.PassThrough()
	}
}

// Records exposes the queue for the writer to drain.
func (in *Intake) Records() *Ring[Record] {
	return in.records
}

// Close closes the underlying queue.
func (in *Intake) Close() {
	in.records.Close()
}

// timestampToTime converts a fractional unix-seconds timestamp.
func timestampToTime(t float64) time.Time {
	sec := int64(t)
	nsec := int64((t - float64(sec)) * 1e9)
	return time.Unix(sec, nsec).UTC()
}
