// Package scheduler provides the background retry loop shared by every
// periodic subsystem (device polling, MQTT connection management,
// housekeeping).
//
// A Loop repeatedly runs one Iteration. After a successful iteration it
// sleeps SuccessDelay; after a failed one it sleeps ErrorDelay. When
// MaxConsecutiveErrors iterations fail in a row the loop stops for good and
// Run returns ErrStopped. A success resets the count.
//
//	Running ──(success)──▶ Running
//	Running ──(error)────▶ Running (after ErrorDelay)
//	Running ──(threshold)▶ Stopped
//
// Each iteration gets a fresh Scope: a child context plus a list of release
// functions run in reverse order when the iteration returns, so resources
// acquired during one tick never leak into the next.
//
// Cancelling the context passed to Run aborts the sleep and ends the loop
// after the current iteration returns. Iterations are never interrupted
// other than through their context.
package scheduler
