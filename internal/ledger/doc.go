// Package ledger is the append-only JSONL event log that is the single
// source of truth for profiles, lifecycle states, token balances and
// simulation results.
//
// # File Format
//
// One complete JSON object per line, each terminated by '\n':
//
//	{"entry_id":"...","ts":"...","action_type":"TOKENS_SPENT",...}
//
// A line is never rewritten. A file whose last byte is not '\n' is
// corrupted and the ledger refuses to open it.
//
// # Write Path
//
// Append builds the entry, validates it against the entry JSON Schema,
// writes the line, fsyncs, then hands the identical entry to the Sink (the
// relational mirror). All of that happens under one mutex, so the file
// order is the total order of the system. Any I/O failure halts the
// ledger: the failing append and every later one return the same
// PERSISTENCE_FAILURE.
//
// AppendIf runs a guard under the same lock before writing. Callers that
// must check state before acting (profile immutability, lifecycle moves,
// token balance) do the check in the guard so no other append can
// interleave between check and write.
//
// # Read Path
//
// Entries streams and verifies every line. Rehydrate replays them into a
// fresh Sink, stopping at the first bad line with CORRUPTION_DETECTED and
// the 1-based line number.
package ledger
