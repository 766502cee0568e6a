package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// Schema notes:
//   - payments: one row per charge request; the partial unique index keeps
//     at most one confirmed payment per (email, index_number, category).
//   - qualification_results: one row per key, written once. The unique
//     constraint is what makes the upsert first-writer-wins.
//   - catalog_entries: the externally maintained course catalog, loaded by
//     the import job. Requirements are stored as JSONB.
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_payments",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_qualification_results",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
		{
			Version: 3,
			Name:    "create_catalog_entries",
			UpSQL:   migration003Up,
			DownSQL: migration003Down,
		},
	}
}

const migration001Up = `
CREATE TABLE IF NOT EXISTS payments (
	id                  UUID PRIMARY KEY,
	email               TEXT NOT NULL,
	index_number        TEXT NOT NULL,
	category            TEXT NOT NULL,
	phone               TEXT NOT NULL,
	amount              NUMERIC(10, 2) NOT NULL CHECK (amount > 0),
	merchant_request_id TEXT NOT NULL DEFAULT '',
	checkout_request_id TEXT NOT NULL DEFAULT '',
	state               TEXT NOT NULL DEFAULT 'initiated'
	                    CHECK (state IN ('initiated', 'confirmed', 'failed')),
	failure_reason      TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
	confirmed_at        TIMESTAMP WITH TIME ZONE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_checkout_reference
	ON payments (checkout_request_id)
	WHERE checkout_request_id <> '';

CREATE UNIQUE INDEX IF NOT EXISTS idx_payments_one_confirmed_per_key
	ON payments (email, index_number, category)
	WHERE state = 'confirmed';

CREATE INDEX IF NOT EXISTS idx_payments_key
	ON payments (email, index_number, category, created_at DESC);

CREATE INDEX IF NOT EXISTS idx_payments_stale_initiated
	ON payments (created_at)
	WHERE state = 'initiated';
`

const migration001Down = `
DROP TABLE IF EXISTS payments;
`

const migration002Up = `
CREATE TABLE IF NOT EXISTS qualification_results (
	email        TEXT NOT NULL,
	index_number TEXT NOT NULL,
	category     TEXT NOT NULL,
	groups       JSONB NOT NULL,
	match_count  INTEGER NOT NULL CHECK (match_count >= 0),
	ready        BOOLEAN NOT NULL DEFAULT TRUE,
	computed_at  TIMESTAMP WITH TIME ZONE NOT NULL,
	created_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

	PRIMARY KEY (email, index_number, category)
);
`

const migration002Down = `
DROP TABLE IF EXISTS qualification_results;
`

const migration003Up = `
CREATE TABLE IF NOT EXISTS catalog_entries (
	id               BIGSERIAL PRIMARY KEY,
	category         TEXT NOT NULL,
	partition        TEXT NOT NULL,
	programme_code   TEXT NOT NULL,
	programme_name   TEXT NOT NULL,
	institution      TEXT NOT NULL,
	min_requirements JSONB NOT NULL DEFAULT '{}'::jsonb,
	min_mean_grade   TEXT NOT NULL DEFAULT '',
	cutoff_points    DOUBLE PRECISION NOT NULL DEFAULT 0,
	position         INTEGER NOT NULL DEFAULT 0,

	UNIQUE (category, partition, programme_code)
);

CREATE INDEX IF NOT EXISTS idx_catalog_entries_partition
	ON catalog_entries (category, partition, position);
`

const migration003Down = `
DROP TABLE IF EXISTS catalog_entries;
`
