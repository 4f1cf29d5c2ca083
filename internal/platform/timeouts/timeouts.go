// Package timeouts defines shared timeout constants used across the client
// and the reference server. Centralizing these values prevents drift between
// the polling, dispatch, and server surfaces and makes the durations
// discoverable.
package timeouts

import "time"

// HTTPRequest caps a single request to the remote authority. A request that
// exceeds it is classified as a network failure by both the poll loop and
// the command dispatcher.
const HTTPRequest = 10 * time.Second

// ReadHeader limits how long the devserver waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long the devserver waits for in-flight requests
// during graceful shutdown.
const Shutdown = 5 * time.Second
