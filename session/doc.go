// Package session holds per-session ephemeral state: which specialists are
// enabled, which is active, and when the session was last touched. Sessions
// are created lazily, have no persistence guarantee and are evicted by TTL
// or capacity depending on configuration.
package session
