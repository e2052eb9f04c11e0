package registrydb

const schema = `
CREATE TABLE IF NOT EXISTS directives (
	id             TEXT PRIMARY KEY,
	name           TEXT NOT NULL UNIQUE,
	category       TEXT NOT NULL,
	subcategory    TEXT NOT NULL DEFAULT '',
	description    TEXT NOT NULL DEFAULT '',
	tech_stack     TEXT NOT NULL DEFAULT '[]',
	tags           TEXT NOT NULL DEFAULT '[]',
	is_official    INTEGER NOT NULL DEFAULT 0,
	download_count INTEGER NOT NULL DEFAULT 0,
	quality_score  REAL NOT NULL DEFAULT 0,
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_directives_category ON directives(category);

CREATE TABLE IF NOT EXISTS directive_versions (
	id           TEXT PRIMARY KEY,
	directive_id TEXT NOT NULL REFERENCES directives(id),
	version      TEXT NOT NULL,
	content      TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	changelog    TEXT NOT NULL DEFAULT '',
	is_latest    INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL,
	UNIQUE (directive_id, version)
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_versions_one_latest
	ON directive_versions(directive_id) WHERE is_latest = 1;
`
