// Package scheduler owns the per-user reminder timers.
//
// Every mutation for one user runs under that user's lock, so a firing and a
// Set/Toggle/Remove/RecordManualDrink for the same user never interleave.
// The registry holds at most one pending timer per user; arming replaces the
// previous timer and bumps a version so a callback that already started for
// the old timer sees a stale version and exits.
//
// Lock order is user lock, then registry lock. Dispatch runs after both are
// released.
package scheduler
