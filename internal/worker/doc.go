// Package worker contains the background loops and ingest surface of the
// engine: the A/B traffic optimizer, the soft bounce retry scheduler and
// the webhook receiver that feeds both.
package worker
