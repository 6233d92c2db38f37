package observability

import "database/sql"

// Schema holds the DDL of the import audit trail. It lives in the chapter
// store's database; imports are infrequent enough not to contend with it.
const Schema = `
CREATE TABLE IF NOT EXISTS import_audit (
    entry_id       TEXT PRIMARY KEY,
    timestamp      INTEGER NOT NULL,
    operation      TEXT NOT NULL,
    user_id        TEXT NOT NULL DEFAULT '',
    request_id     TEXT NOT NULL DEFAULT '',
    file_name      TEXT NOT NULL DEFAULT '',
    format         TEXT NOT NULL DEFAULT '',
    strategy       TEXT NOT NULL DEFAULT '',
    chapters       INTEGER NOT NULL DEFAULT 0,
    degraded       INTEGER NOT NULL DEFAULT 0,
    duration_ms    INTEGER NOT NULL DEFAULT 0,
    status         TEXT NOT NULL,
    error_message  TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_import_audit_user ON import_audit(user_id, timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_import_audit_time ON import_audit(timestamp DESC);
`

// Init applies Schema to db.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
