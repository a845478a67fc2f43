// Package ratelimit provides per-key sliding-window request limiters.
//
// Limiter enforces a per-minute budget and an optional per-hour budget.
// DailyLimiter enforces a single 24 hour budget. Both keep an in-memory log
// of request timestamps per key that is swept opportunistically on the
// request path, so no background goroutine is required. RedisLimiter applies
// the same algorithm against a shared Redis sorted set for deployments with
// more than one instance.
package ratelimit
