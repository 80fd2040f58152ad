// Package reminder holds the per-user water reminder state and the rules
// that are independent of timers and storage: interval validation, the
// calendar-day counter reset and the status snapshot.
package reminder
