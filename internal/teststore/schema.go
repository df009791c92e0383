// Package teststore is a reference, SQLite-backed implementation of
// store.Local, in the style of owning a real DB pool rather than
// faking persistence with plain maps. It exists so cmd/syncdemo and
// integration tests have a Local Store that actually durably tracks
// document base state and query allocations across a process
// lifetime, not to be a production document cache: index maintenance
// and on-disk mutation-queue durability are out of scope here, so the
// pending mutation queue and per-target synced-key sets live in
// memory, guarded by the same mutex as the SQL handle.
package teststore

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	key TEXT PRIMARY KEY,
	document_exists INTEGER NOT NULL,
	version_seconds INTEGER NOT NULL,
	version_logical INTEGER NOT NULL,
	fields_json TEXT,
	has_committed_mutations INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS query_allocations (
	cache_key TEXT PRIMARY KEY,
	collection_path TEXT NOT NULL,
	filters_json TEXT NOT NULL,
	orderby_json TEXT NOT NULL,
	result_limit INTEGER NOT NULL,
	target_id INTEGER NOT NULL,
	sequence_number INTEGER NOT NULL,
	purpose INTEGER NOT NULL
);
`
