// Package ingest posts normalized documents and file payloads to the
// downstream ingest API
//
// Design choices:
// - Every submission carries an Idempotency-Key derived from
//   (source_type, source_id, content_hash) so unchanged content is a no-op
//   at the boundary, not just locally deduplicated. force perturbs the key
//   with a nonce to punch through downstream dedup on purpose
// - Failures are typed: transient transport and 429/5xx responses classify
//   as retryable via perr.Retryable; 4xx responses are permanent
// - Batch submit is attempted first when the caller has several documents
//   ready; if the endpoint is absent the client falls back transparently to
//   sequential single submissions, preserving per-item granularity
package ingest
