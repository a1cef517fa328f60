// Package tasks runs bulk repertoire operations with real-time progress reporting.
//
// # Core Operations
//
// [Engine] drives a [Library] (normally the pipeline-backed library client):
//
//  1. [Engine.BulkDelete] : Delete many entities concurrently
//     - Each delete passes through the full request pipeline
//     - A burst of expired-token failures is recovered by a single refresh
//     - Drawer cleanup and cache invalidation happen per successful delete
//
//  2. [Engine.Prefetch] : Warm the cache with every entity collection
//
// # Progress Reporting
//
// All operations use non-blocking channels for progress updates.
//
// The [ProgressUpdate] struct contains phase, step counters, messages, and the [ItemResult] of the finished item.
// Updates use select with default to prevent blocking.
//
// # Implementation
//
// Work is spread over a bounded worker pool fed by a producer throttled with a [rate.Limiter].
// Items not started before the context is cancelled are reported as failed with the context error.
package tasks
