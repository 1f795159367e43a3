// Package resilience provides the concurrency and fault-tolerance
// primitives used by the engines, the scheduler and the downloader:
//
//   - Bulkhead: bounded worker slots, used as the shared transcription pool
//     and the scheduler's execution pool
//   - RateLimiter: token bucket in front of yt-dlp
//   - Retry: exponential backoff for HTTP engine calls
//   - CircuitBreaker: fail fast once a remote engine keeps erroring
package resilience
