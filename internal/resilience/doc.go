// Package resilience runs one pipeline stage against an ordered ranking of
// providers.
//
// [Execute] walks the ranking in order. Each provider gets up to
// 1+MaxRetries attempts, every attempt bounded by the stage timeout and
// separated by jittered exponential backoff. The first success wins. When the
// ranking is exhausted the caller receives an [*ExhaustedError] holding the
// last error of every provider tried. Cancelling the parent context aborts
// the in-flight call and yields [ErrCancelled], which is distinct from
// exhaustion.
//
// Calls are strictly sequential: at most one provider call is in flight per
// execution, so the order of attempts is deterministic. Providers are
// expected to honour context cancellation; the executor waits for a call to
// return before starting the next one.
//
// A [Candidate] may carry a [CircuitBreaker] that outlives a single
// execution. An open breaker skips its provider without calling it.
package resilience
