package client

import "time"

// Config controls the probe scheduler's batching and timing behaviour.
// The zero value is not useful; construct with DefaultConfig and
// override with the With* setters.
type Config struct {
	// MaxCandidates caps the number of addresses offered to a server in a
	// single DialRequest.
	maxCandidates int

	// ProbeInterval is the period between probe ticks.
	probeInterval time.Duration

	// MaxTrackedAddresses bounds the AddressBook. Zero means unbounded,
	// but a large default is still used so a long-running node doesn't
	// accumulate addresses forever.
	maxTrackedAddresses int

	// MaxTrackedNonces bounds the NonceLedger the same way.
	maxTrackedNonces int
}

// DefaultConfig returns reasonable defaults: 10 candidates per batch, a 5
// second probe interval, and generous (but non-zero) table bounds.
func DefaultConfig() Config {
	return Config{
		maxCandidates:       10,
		probeInterval:       5 * time.Second,
		maxTrackedAddresses: 4096,
		maxTrackedNonces:    4096,
	}
}

// WithMaxCandidates overrides the per-probe address batch size.
func (c Config) WithMaxCandidates(n int) Config {
	c.maxCandidates = n
	return c
}

// WithProbeInterval overrides the tick period.
func (c Config) WithProbeInterval(d time.Duration) Config {
	c.probeInterval = d
	return c
}

// WithMaxTrackedAddresses overrides the AddressBook/already-tested bound.
// A value <= 0 disables bounding.
func (c Config) WithMaxTrackedAddresses(n int) Config {
	c.maxTrackedAddresses = n
	return c
}

// WithMaxTrackedNonces overrides the NonceLedger bound. A value <= 0
// disables bounding.
func (c Config) WithMaxTrackedNonces(n int) Config {
	c.maxTrackedNonces = n
	return c
}
