// Package journal persists dispatch failures to SQLite. The default
// exception handler reports every funneled failure here, giving
// operators a queryable record (time, request id, method, path, status,
// code, error text) that survives restarts.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"meridian-hq/vesta/pkg/dispatch"
	"meridian-hq/vesta/pkg/dispatch/middleware"
	"meridian-hq/vesta/pkg/telemetry/logging"
)

// Entry is one recorded dispatch failure.
type Entry struct {
	ID        int64     `json:"id"`
	Time      time.Time `json:"time"`
	RequestID string    `json:"request_id,omitempty"`
	Method    string    `json:"method"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	Code      string    `json:"code"`
	Error     string    `json:"error"`
}

// Config configures the journal.
type Config struct {
	// Path is the SQLite database file. Parent directories are created.
	Path string

	// RetentionDays prunes entries older than this many days on the daily
	// schedule; zero keeps everything.
	RetentionDays int

	// BufferSize is the async write buffer. Default: 1024.
	BufferSize int
}

// Journal is a SQLite-backed failure store. Writes are buffered through a
// single writer goroutine so a slow disk never blocks a dispatch flow;
// when the buffer is full the entry is dropped and counted.
type Journal struct {
	db     *sql.DB
	logger *logging.Logger

	entries chan Entry
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once

	mu      sync.Mutex
	dropped int64

	retention *cron.Cron
}

// Open opens (creating if needed) the journal database and starts the
// async writer and the daily retention job.
func Open(cfg Config, logger *logging.Logger) (*Journal, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("journal path must not be empty")
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1024
	}
	if logger == nil {
		logger = logging.Default()
	}

	if dir := filepath.Dir(cfg.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create journal directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}
	// SQLite supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS failures (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			at         INTEGER NOT NULL,
			request_id TEXT,
			method     TEXT NOT NULL,
			path       TEXT NOT NULL,
			status     INTEGER NOT NULL,
			code       TEXT NOT NULL,
			error      TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_failures_at ON failures(at);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create journal schema: %w", err)
	}

	j := &Journal{
		db:      db,
		logger:  logger,
		entries: make(chan Entry, cfg.BufferSize),
		done:    make(chan struct{}),
	}

	j.wg.Add(1)
	go j.runWriter()

	if cfg.RetentionDays > 0 {
		days := cfg.RetentionDays
		j.retention = cron.New()
		_, _ = j.retention.AddFunc("@daily", func() { j.prune(days) })
		j.retention.Start()
	}

	return j, nil
}

// ReportFailure implements dispatch.Reporter: it enqueues the failure for
// persistence. Never blocks; a full buffer drops the entry.
func (j *Journal) ReportFailure(c *dispatch.Context, status int, code string, err error) {
	e := Entry{
		Time:      time.Now(),
		RequestID: middleware.GetRequestID(c),
		Method:    c.Request.Method,
		Path:      c.Request.URL.Path,
		Status:    status,
		Code:      code,
		Error:     err.Error(),
	}
	select {
	case j.entries <- e:
	default:
		j.mu.Lock()
		j.dropped++
		j.mu.Unlock()
	}
}

// Recent returns the most recent entries, newest first.
func (j *Journal) Recent(limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := j.db.Query(`
		SELECT id, at, request_id, method, path, status, code, error
		FROM failures ORDER BY at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var at int64
		var reqID sql.NullString
		if err := rows.Scan(&e.ID, &at, &reqID, &e.Method, &e.Path, &e.Status, &e.Code, &e.Error); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		e.Time = time.UnixMilli(at)
		e.RequestID = reqID.String
		out = append(out, e)
	}
	return out, rows.Err()
}

// Dropped returns the number of entries lost to a full buffer.
func (j *Journal) Dropped() int64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.dropped
}

// Close drains pending writes and closes the database.
func (j *Journal) Close() error {
	var err error
	j.once.Do(func() {
		if j.retention != nil {
			j.retention.Stop()
		}
		close(j.done)
		j.wg.Wait()
		err = j.db.Close()
	})
	return err
}

func (j *Journal) runWriter() {
	defer j.wg.Done()
	for {
		select {
		case <-j.done:
			// Drain whatever is still buffered.
			for {
				select {
				case e := <-j.entries:
					j.write(e)
				default:
					return
				}
			}
		case e := <-j.entries:
			j.write(e)
		}
	}
}

func (j *Journal) write(e Entry) {
	_, err := j.db.Exec(`
		INSERT INTO failures (at, request_id, method, path, status, code, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Time.UnixMilli(), e.RequestID, e.Method, e.Path, e.Status, e.Code, e.Error)
	if err != nil {
		j.logger.Warning("failed to persist journal entry", "error", err)
	}
}

func (j *Journal) prune(days int) {
	cutoff := time.Now().AddDate(0, 0, -days).UnixMilli()
	res, err := j.db.Exec(`DELETE FROM failures WHERE at < ?`, cutoff)
	if err != nil {
		j.logger.Warning("journal retention prune failed", "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		j.logger.Info("journal retention pruned entries", "removed", n, "days", days)
	}
}
