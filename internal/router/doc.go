// Package router moves datapoints from subscription handlers to the batch
// writer. Handlers run on the connection's read loop and must never block,
// so the Intake flattens each delivery into Records and parks them in a
// growable ring buffer the writer drains at its own pace.
package router
