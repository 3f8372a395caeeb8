// Package limits throttles job submissions per caller.
//
// Each key (an authenticated principal, or the client address when the API
// is open) owns a token bucket that refills at JobsPerMinute and holds at
// most Burst tokens. A submission takes one token; an empty bucket rejects
// it with the time until the next token.
//
// Buckets unused for IdleTTL are evicted, so a stream of distinct client
// addresses cannot grow the table without bound.
package limits
