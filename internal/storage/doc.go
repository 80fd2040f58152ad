// Package storage persists reminder state, the user directory used for
// channel eligibility, and the per-channel delivery audit log.
//
// Drivers:
//   - "sqlite" (default): embedded modernc SQLite file
//   - "postgres": gorm over DATABASE_URL
//   - "memory": process-local maps, for tests and throwaway runs
package storage
