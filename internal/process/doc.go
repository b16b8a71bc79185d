// Package process provides the building blocks for supervising the worker
// subprocess.
//
// The pieces are used in sequence, with a readiness check (package sidecar)
// reading the channel between Spawn and Relay:
//
// Handle wraps os/exec for a single spawned worker:
//   - stdout and stderr are read line by line into one OutputEvent channel
//   - the channel is closed once both pipes reach EOF (the worker exited)
//   - Terminate sends an interrupt, then force kills after a grace period
//   - the worker runs in its own process group so helpers die with it
//
// Relay takes over the same channel once the worker is ready and drains it
// for the rest of the worker's life so the pipes never fill up:
//
//	done := process.Relay(h.Events(), handler)
//	<-done // worker output ended
//
// Only one consumer reads the channel at any time: the readiness check
// returns before the relay is started.
package process
