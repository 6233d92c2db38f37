package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hazyhaar/ebookimport/dbopen"
	"github.com/hazyhaar/ebookimport/idgen"
)

// Audit statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// AuditEntry records one import or commit.
type AuditEntry struct {
	EntryID      string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Operation    string    `json:"operation"` // "import", "commit"
	UserID       string    `json:"-"`
	RequestID    string    `json:"request_id,omitempty"`
	FileName     string    `json:"file_name,omitempty"`
	Format       string    `json:"format,omitempty"`
	Strategy     string    `json:"strategy,omitempty"`
	Chapters     int       `json:"chapters"`
	Degraded     bool      `json:"degraded"`
	DurationMs   int64     `json:"duration_ms"`
	Status       string    `json:"status"`
	ErrorMessage string    `json:"error,omitempty"`
}

// AuditFilter controls Query results.
type AuditFilter struct {
	UserID    string
	Operation string
	Status    string
	Since     *time.Time
	Limit     int // default 50
}

// Batching bounds for the background writer.
const (
	flushInterval = 2 * time.Second
	flushSize     = 64
)

// AuditLogger writes audit entries to the import_audit table. LogAsync
// hands entries to a background writer that commits them in batches.
type AuditLogger struct {
	db      *sql.DB
	newID   idgen.Generator
	queue   chan *AuditEntry
	closing chan struct{}
	done    chan struct{}
	once    sync.Once
}

// AuditOption configures an AuditLogger.
type AuditOption func(*AuditLogger)

// WithAuditIDGenerator sets the generator for entry ids.
func WithAuditIDGenerator(gen idgen.Generator) AuditOption {
	return func(a *AuditLogger) { a.newID = gen }
}

// NewAuditLogger starts the background writer. bufferSize bounds the
// number of queued entries; serve uses 1000.
func NewAuditLogger(db *sql.DB, bufferSize int, opts ...AuditOption) *AuditLogger {
	a := &AuditLogger{
		db:      db,
		newID:   idgen.For(idgen.Audit),
		queue:   make(chan *AuditEntry, bufferSize),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	go a.run()
	return a
}

// Log writes entry immediately.
func (a *AuditLogger) Log(ctx context.Context, entry *AuditEntry) error {
	a.complete(entry)
	return insertEntry(ctx, a.db, entry)
}

// LogAsync queues entry. When the queue is full the entry is written
// synchronously instead of dropped.
func (a *AuditLogger) LogAsync(entry *AuditEntry) {
	a.complete(entry)
	select {
	case a.queue <- entry:
		return
	default:
	}
	slog.Warn("audit queue full, writing inline", "operation", entry.Operation)
	if err := insertEntry(context.Background(), a.db, entry); err != nil {
		slog.Error("audit inline write", "error", err, "entry_id", entry.EntryID)
	}
}

const auditColumns = `entry_id, timestamp, operation, user_id, request_id, file_name,
	format, strategy, chapters, degraded, duration_ms, status, error_message`

// Query returns entries matching f, newest first.
func (a *AuditLogger) Query(ctx context.Context, f AuditFilter) ([]*AuditEntry, error) {
	var where []string
	var args []any
	add := func(cond string, v any) {
		where = append(where, cond)
		args = append(args, v)
	}
	if f.UserID != "" {
		add("user_id = ?", f.UserID)
	}
	if f.Operation != "" {
		add("operation = ?", f.Operation)
	}
	if f.Status != "" {
		add("status = ?", f.Status)
	}
	if f.Since != nil {
		add("timestamp >= ?", f.Since.Unix())
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}

	q := "SELECT " + auditColumns + " FROM import_audit"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY timestamp DESC, entry_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := a.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	entries := []*AuditEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func scanEntry(rows *sql.Rows) (*AuditEntry, error) {
	var e AuditEntry
	var ts int64
	if err := rows.Scan(&e.EntryID, &ts, &e.Operation, &e.UserID, &e.RequestID, &e.FileName,
		&e.Format, &e.Strategy, &e.Chapters, &e.Degraded, &e.DurationMs, &e.Status, &e.ErrorMessage); err != nil {
		return nil, fmt.Errorf("scan audit entry: %w", err)
	}
	e.Timestamp = time.Unix(ts, 0)
	return &e, nil
}

// Cleanup deletes entries older than retentionDays and reports how many.
func (a *AuditLogger) Cleanup(ctx context.Context, retentionDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	res, err := a.db.ExecContext(ctx, "DELETE FROM import_audit WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup audit log: %w", err)
	}
	return res.RowsAffected()
}

// Close writes every queued entry and stops the writer. It is safe to call
// more than once.
func (a *AuditLogger) Close() error {
	a.once.Do(func() { close(a.closing) })
	<-a.done
	return nil
}

func (a *AuditLogger) complete(e *AuditEntry) {
	if e.EntryID == "" {
		e.EntryID = a.newID()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Status != "" {
		return
	}
	e.Status = StatusSuccess
	if e.ErrorMessage != "" {
		e.Status = StatusError
	}
}

func (a *AuditLogger) run() {
	defer close(a.done)
	tick := time.NewTicker(flushInterval)
	defer tick.Stop()

	pending := make([]*AuditEntry, 0, flushSize)
	for {
		select {
		case e := <-a.queue:
			if pending = append(pending, e); len(pending) >= flushSize {
				pending = a.flush(pending)
			}
		case <-tick.C:
			pending = a.flush(pending)
		case <-a.closing:
			for {
				select {
				case e := <-a.queue:
					pending = append(pending, e)
				default:
					a.flush(pending)
					return
				}
			}
		}
	}
}

// flush commits batch in one transaction and returns it emptied. A failed
// batch is logged and discarded.
func (a *AuditLogger) flush(batch []*AuditEntry) []*AuditEntry {
	if len(batch) == 0 {
		return batch
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := dbopen.RunTx(ctx, a.db, func(tx *sql.Tx) error {
		for _, e := range batch {
			if err := insertEntry(ctx, tx, e); err != nil {
				return fmt.Errorf("entry %s: %w", e.EntryID, err)
			}
		}
		return nil
	})
	if err != nil {
		slog.Error("audit flush", "error", err, "entries", len(batch))
	}
	return batch[:0]
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertEntry(ctx context.Context, db execer, e *AuditEntry) error {
	_, err := db.ExecContext(ctx,
		"INSERT INTO import_audit ("+auditColumns+") VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)",
		e.EntryID, e.Timestamp.Unix(), e.Operation, e.UserID, e.RequestID, e.FileName,
		e.Format, e.Strategy, e.Chapters, e.Degraded, e.DurationMs, e.Status, e.ErrorMessage)
	return err
}
