// Package jobs tracks the lifecycle of every upload.
//
// A Job moves uploading -> processing -> completed, or to failed from either
// non-terminal state. Terminal jobs are immutable, the content hash is set at
// most once, and progress never decreases. Registry enforces those rules and
// publishes lifecycle events; Store abstracts where jobs live. MemoryStore
// keeps them in process for tests and one-shot runs, SQLiteStore persists
// them across invocations.
//
// When adding fields to Job, the SQLite store needs no migration because the
// job body is stored as JSON; only indexed columns live in schema.sql.
package jobs
