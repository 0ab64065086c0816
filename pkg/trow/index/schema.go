package index

// schema is the DDL applied on open via sqlx.MustExec, idempotent thanks to
// IF NOT EXISTS. SQLite collation "NOCASE" backs case-insensitive tag
// ordering, matching the registry's List Tags contract.
const schema = `
CREATE TABLE IF NOT EXISTS blob (
	digest        TEXT PRIMARY KEY,
	size          INTEGER NOT NULL,
	last_accessed INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS manifest (
	digest TEXT PRIMARY KEY REFERENCES blob(digest),
	json   TEXT NOT NULL,
	blob   BLOB NOT NULL
);

CREATE TABLE IF NOT EXISTS tag (
	repo            TEXT NOT NULL,
	tag             TEXT NOT NULL COLLATE NOCASE,
	manifest_digest TEXT NOT NULL REFERENCES manifest(digest),
	PRIMARY KEY (repo, tag)
);

CREATE TABLE IF NOT EXISTS tag_history (
	repo            TEXT NOT NULL,
	tag             TEXT NOT NULL COLLATE NOCASE,
	manifest_digest TEXT NOT NULL,
	recorded_at     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tag_history_repo_tag ON tag_history(repo, tag, recorded_at);

CREATE TABLE IF NOT EXISTS repo_blob_assoc (
	repo_name   TEXT NOT NULL,
	blob_digest TEXT NOT NULL REFERENCES blob(digest),
	PRIMARY KEY (repo_name, blob_digest)
);
CREATE INDEX IF NOT EXISTS idx_repo_blob_assoc_repo ON repo_blob_assoc(repo_name);

CREATE TABLE IF NOT EXISTS repo_manifest_assoc (
	repo_name       TEXT NOT NULL,
	manifest_digest TEXT NOT NULL REFERENCES manifest(digest),
	PRIMARY KEY (repo_name, manifest_digest)
);
CREATE INDEX IF NOT EXISTS idx_repo_manifest_assoc_repo ON repo_manifest_assoc(repo_name);

CREATE TABLE IF NOT EXISTS upload_session (
	id         TEXT PRIMARY KEY,
	repo       TEXT NOT NULL,
	offset     INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
`
