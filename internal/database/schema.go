package database

// schema is idempotent. The partial unique index enforces one non-terminal
// job per asset across every API instance.
const schema = `
CREATE TABLE IF NOT EXISTS assets (
	id               TEXT PRIMARY KEY,
	source_key       TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL DEFAULT '',
	duration_seconds DOUBLE PRECISION NOT NULL DEFAULT 0,
	poster_key       TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transcode_jobs (
	id               TEXT PRIMARY KEY,
	asset_id         TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
	requested_ladder TEXT[] NOT NULL,
	status           TEXT NOT NULL,
	external_job_id  TEXT NOT NULL DEFAULT '',
	attempts         INTEGER NOT NULL DEFAULT 0,
	last_error       TEXT NOT NULL DEFAULT '',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE UNIQUE INDEX IF NOT EXISTS transcode_jobs_one_active_per_asset
	ON transcode_jobs (asset_id)
	WHERE status NOT IN ('complete', 'failed');

CREATE TABLE IF NOT EXISTS renditions (
	asset_id    TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
	quality_id  TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	ready       BOOLEAN NOT NULL DEFAULT false,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (asset_id, quality_id)
);

CREATE TABLE IF NOT EXISTS subtitles (
	asset_id    TEXT NOT NULL REFERENCES assets(id) ON DELETE CASCADE,
	language    TEXT NOT NULL,
	label       TEXT NOT NULL DEFAULT '',
	format      TEXT NOT NULL,
	storage_key TEXT NOT NULL,
	is_default  BOOLEAN NOT NULL DEFAULT false,
	PRIMARY KEY (asset_id, language)
);
`
