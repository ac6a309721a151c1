// Package work implements the event-driven background processor that turns
// queued experiments into recorded runs.
//
// # Architecture
//
// Work types are registered once with the Registry and describe how to find
// pending subjects and how to execute one. The Processor owns a single worker:
// it wakes on a trigger (bus events, the maintenance queue, or the HTTP API),
// scans work types in priority order and executes the first eligible item.
// One item at a time keeps the state-vector simulator's memory bounded and
// avoids write contention on results.db.
//
// # Work types
//
//   - experiment_run: one subject per experiment with status "queued"; runs
//     the full solver pipeline.
//   - run_evaluation: backfills the comparison report for runs that were
//     recorded without one. Held back while experiment work is pending.
//   - chart_cache_refresh: renders and caches histogram payloads for runs
//     the cache does not hold a fresh row for.
//
// All three are subject-driven: whether work is pending is answered by the
// databases (status columns, missing evaluation blobs, cache expiry), never
// by in-memory bookkeeping, so a restart loses nothing.
//
// # Failure handling
//
// A failed item goes to the retry queue with exponential backoff and is
// retried up to MaxRetries times. After that the item is suppressed until
// restart or a manual execute, so a poisoned subject cannot keep the worker
// busy.
package work
