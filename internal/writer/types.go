package writer

import "time"

// WriterConfig controls batching behavior.
type WriterConfig struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultWriterConfig returns sensible defaults.
func DefaultWriterConfig() WriterConfig {
	return WriterConfig{
		BatchSize:     500,
		FlushInterval: 5 * time.Second,
	}
}

// datapointRow is a row destined for the datapoints table.
type datapointRow struct {
	ID         string // UUID
	Topic      string
	Ts         int64 // Microseconds
	ReceivedAt int64 // Microseconds
	Value      []byte
}

// WriterMetrics counts writer activity.
type WriterMetrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}
