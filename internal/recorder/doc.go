// Package recorder persists subscribed topic traffic to PostgreSQL.
//
// Messages are accumulated into batches and flushed either when the batch
// reaches the configured size or on a periodic ticker, whichever comes
// first. Recording is best effort: when the recorder falls behind,
// incoming messages are dropped and counted rather than blocking the
// gateway read path.
package recorder
