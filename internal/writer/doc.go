// Package writer batches datapoint records into PostgreSQL.
//
// The writer drains the router queue, accumulates rows, and flushes on
// either a size threshold or a timer. Inserts are append-only with
// ON CONFLICT DO NOTHING, so a resubscribe replaying recent datapoints
// never duplicates rows.
package writer
