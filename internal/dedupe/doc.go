// Package dedupe remembers recently seen keys for a bounded time window.
//
// The relay route uses it to recognise an editor posting the same reply twice.
// Keys expire after the window and the oldest keys are evicted once the
// capacity is reached.
package dedupe
