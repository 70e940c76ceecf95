// Package tandang is a resilient request-orchestration layer for talking to
// a remote HTTP API:
//
//   - Retries with steep exponential backoff (4x per attempt)
//   - Request de-duplication (merges concurrent identical in-flight calls)
//   - Concurrency-bounded priority queue for bulk fan-out
//   - Cooperative per-request cancellation with a registry escape hatch
//   - Optional end-to-end payload encryption and request signing
//   - Standard header injection (auth, locale, anti-forgery)
//   - Prometheus metrics and lightweight structured debug logging
//
// Design goals:
//   - Small surface area: functional options configure everything
//   - Safe concurrent use of a single *Client instance
//   - The raw transport is injected, never implemented here
//   - Only final outcomes cross the public surface; intermediate retry
//     attempts stay internal
//
// Typical usage:
//
//	client := tandang.New(
//	    tandang.WithBaseURL("https://api.example.com"),
//	    tandang.WithCredentials(tandang.NewStaticCredentials(apiKey)),
//	    tandang.WithMaxRetries(3),
//	    tandang.WithMaxConcurrent(5),
//	)
//	resp, err := client.Get(ctx, "/health")
//
// Bulk callers submit work through QueueRequest instead, which drains a
// prioritized backlog in bounded concurrent batches. Ad-hoc single calls
// should not go through the queue.
package tandang
