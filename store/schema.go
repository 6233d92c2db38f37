package store

// Schema creates the record tables.
const Schema = `
CREATE TABLE IF NOT EXISTS ebooks (
    id          TEXT PRIMARY KEY,
    owner_id    TEXT NOT NULL,
    title       TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS chapters (
    id             TEXT PRIMARY KEY,
    ebook_id       TEXT NOT NULL REFERENCES ebooks(id) ON DELETE CASCADE,
    title          TEXT NOT NULL,
    content        TEXT NOT NULL,
    chapter_order  INTEGER NOT NULL,
    created_at     TEXT NOT NULL,
    UNIQUE (ebook_id, chapter_order)
);

CREATE INDEX IF NOT EXISTS idx_ebooks_owner ON ebooks(owner_id);
`
