package store

type migration struct {
	version int
	sql     string
}

// migrations run in ascending version order; the runner records each
// version after its SQL succeeds.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS notifications (
	id               TEXT PRIMARY KEY,
	recipient        TEXT NOT NULL,
	sender           TEXT NOT NULL DEFAULT '',
	type             TEXT NOT NULL,
	title            TEXT NOT NULL,
	message          TEXT NOT NULL DEFAULT '',
	status           TEXT NOT NULL DEFAULT 'delivered',
	read_at          DATETIME,
	read_from_device TEXT NOT NULL DEFAULT '',
	action_taken     INTEGER NOT NULL DEFAULT 0,
	action_taken_at  DATETIME,
	action_type      TEXT NOT NULL DEFAULT '',
	priority         TEXT NOT NULL DEFAULT 'medium',
	action_url       TEXT NOT NULL DEFAULT '',
	is_actionable    INTEGER NOT NULL DEFAULT 0,
	refs             TEXT NOT NULL DEFAULT '{}',
	in_app           INTEGER NOT NULL DEFAULT 1,
	email            INTEGER NOT NULL DEFAULT 0,
	created_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_notifications_recipient_created
	ON notifications(recipient, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_notifications_recipient_status
	ON notifications(recipient, status);
`,
	},
}
