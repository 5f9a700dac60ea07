package sqlite

// Schema is the full DDL applied to a freshly opened database. It is
// idempotent (CREATE TABLE/INDEX IF NOT EXISTS) so it can run on every
// startup ahead of any versioned migrations in storage.MigrationManager.
//
// Vectors are stored as little-endian float32 BLOBs (see vector.go) and
// ranked in Go rather than through a native index — see search.go for the
// capped candidate-scan rationale.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	id            TEXT PRIMARY KEY,
	source_url    TEXT,
	content_type  TEXT NOT NULL,
	title         TEXT,
	summary       TEXT,
	status        TEXT NOT NULL DEFAULT 'queued',
	metadata      TEXT,
	container_tag TEXT NOT NULL DEFAULT '',
	created_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at    TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_documents_container_tag ON documents(container_tag);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);

CREATE TABLE IF NOT EXISTS chunks (
	id          TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	chunk_index INTEGER NOT NULL,
	content     TEXT NOT NULL,
	token_count INTEGER NOT NULL DEFAULT 0,
	embedding   BLOB,
	metadata    TEXT,
	created_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(document_id, chunk_index)
);
CREATE INDEX IF NOT EXISTS idx_chunks_document_id ON chunks(document_id);

CREATE TABLE IF NOT EXISTS memories (
	id                TEXT PRIMARY KEY,
	content           TEXT NOT NULL,
	container_tag     TEXT NOT NULL DEFAULT '',
	space_id          TEXT NOT NULL DEFAULT '',
	classification    TEXT NOT NULL,
	version           INTEGER NOT NULL DEFAULT 1,
	is_latest         INTEGER NOT NULL DEFAULT 1,
	parent_memory_id  TEXT,
	root_memory_id    TEXT,
	memory_relations  TEXT,
	source_count      INTEGER NOT NULL DEFAULT 1,
	is_inference      INTEGER NOT NULL DEFAULT 0,
	is_static         INTEGER NOT NULL DEFAULT 0,
	is_forgotten      INTEGER NOT NULL DEFAULT 0,
	confidence        REAL NOT NULL DEFAULT 1.0,
	forget_after      TIMESTAMP,
	forget_reason     TEXT,
	last_accessed     TIMESTAMP,
	embedding         BLOB,
	embedding_model   TEXT,
	metadata          TEXT,
	content_hash      TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at        TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_memories_latest_lookup ON memories(container_tag, is_latest, is_forgotten);
CREATE INDEX IF NOT EXISTS idx_memories_forget_after ON memories(forget_after);
CREATE INDEX IF NOT EXISTS idx_memories_content_hash ON memories(container_tag, content_hash);
CREATE INDEX IF NOT EXISTS idx_memories_root ON memories(root_memory_id);
CREATE INDEX IF NOT EXISTS idx_memories_parent ON memories(parent_memory_id);

CREATE TABLE IF NOT EXISTS memory_sources (
	memory_id   TEXT NOT NULL,
	document_id TEXT,
	chunk_id    TEXT,
	PRIMARY KEY (memory_id, document_id, chunk_id)
);
CREATE INDEX IF NOT EXISTS idx_memory_sources_document ON memory_sources(document_id);
CREATE INDEX IF NOT EXISTS idx_memory_sources_chunk ON memory_sources(chunk_id);

CREATE TABLE IF NOT EXISTS system_metadata (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE VIRTUAL TABLE IF NOT EXISTS memories_fts USING fts5(
	content,
	content='memories',
	content_rowid='rowid',
	tokenize='porter unicode61'
);

CREATE TRIGGER IF NOT EXISTS memories_fts_insert AFTER INSERT ON memories BEGIN
	INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;
CREATE TRIGGER IF NOT EXISTS memories_fts_delete AFTER DELETE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
END;
CREATE TRIGGER IF NOT EXISTS memories_fts_update AFTER UPDATE ON memories BEGIN
	INSERT INTO memories_fts(memories_fts, rowid, content) VALUES ('delete', old.rowid, old.content);
	INSERT INTO memories_fts(rowid, content) VALUES (new.rowid, new.content);
END;
`
