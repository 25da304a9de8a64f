// Package ratelimit throttles sync requests per client with fixed windows.
//
// Two stores implement [Limiter]: [InMemory] keeps one window per key inside
// the process and [Redis] shares windows between server replicas. Both reset a
// window lazily on the first request after it expired.
package ratelimit
