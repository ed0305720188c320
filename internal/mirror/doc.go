// Package mirror is the SQLite projection of the ledger.
//
// The mirror is derived state. Every ledger entry becomes one row in the
// ledger table, and SUCCESS entries additionally update the projection
// tables (event_profiles, lifecycle_states, snapshots and the event
// registry). Both happen in one transaction per entry, so a mirror is
// always a prefix of the log.
//
// Live appends and rehydration go through the same Apply, which is what
// makes a rebuilt mirror identical to one maintained incrementally.
//
// Deleting the mirror loses nothing; it is rebuilt from the ledger file.
package mirror
