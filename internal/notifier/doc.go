// Package notifier fans a reminder event out to every enabled delivery
// channel and reports what happened per channel.
//
// # Isolation
//
// Each enabled channel runs in its own goroutine, bounded by a per-channel
// timeout and token-bucket limiter. A failing, panicking or slow adapter
// only affects its own entry in the Report; Dispatch itself never fails.
//
// # Channel flags
//
// Which channels are enabled is process-wide state. Reads are lock-free;
// writes happen only through Apply (config reload) and SetChannel (admin API).
//
// # Audit
//
// A log line is written for every dispatch regardless of flags. The
// per-channel outcome is also appended to the storage delivery log by a
// background writer, and the last few reports are kept in memory.
package notifier
