// Package database provides the PostgreSQL connection pool for recorded
// datapoints. driftwatch uses a single database; the datapoints table is the
// only hot path and is written append-only.
package database
