package journal

import (
	"errors"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"meridian-hq/vesta/pkg/dispatch"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(Config{Path: filepath.Join(t.TempDir(), "journal.db")}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func reportTestFailure(j *Journal, method, path string, status int, code string) {
	c := dispatch.NewContext(httptest.NewRecorder(), httptest.NewRequest(method, path, nil))
	j.ReportFailure(c, status, code, errors.New("handler failure"))
}

func waitForEntries(t *testing.T, j *Journal, want int) []Entry {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		entries, err := j.Recent(0)
		if err != nil {
			t.Fatalf("Recent() error = %v", err)
		}
		if len(entries) >= want {
			return entries
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("journal never reached %d entries", want)
	return nil
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(Config{}, nil); err == nil {
		t.Error("Open() error = nil for empty path")
	}
}

func TestOpenCreatesParentDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "journal.db")
	j, err := Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := j.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestReportFailureAndRecent(t *testing.T) {
	j := openTestJournal(t)

	reportTestFailure(j, "GET", "/missing", 404, "route_not_found")
	reportTestFailure(j, "POST", "/slow", 500, "request_timeout")

	entries := waitForEntries(t, j, 2)

	// Newest first.
	if entries[0].Path != "/slow" {
		t.Errorf("entries[0].Path = %q, want /slow", entries[0].Path)
	}
	if entries[0].Code != "request_timeout" {
		t.Errorf("entries[0].Code = %q", entries[0].Code)
	}
	if entries[1].Method != "GET" || entries[1].Status != 404 {
		t.Errorf("entries[1] = %+v, want the 404 failure", entries[1])
	}
	if entries[1].Error != "handler failure" {
		t.Errorf("entries[1].Error = %q", entries[1].Error)
	}
}

func TestRecentLimit(t *testing.T) {
	j := openTestJournal(t)
	for i := 0; i < 5; i++ {
		reportTestFailure(j, "GET", "/x", 500, "internal_error")
	}
	waitForEntries(t, j, 5)

	entries, err := j.Recent(2)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 2 {
		t.Errorf("Recent(2) returned %d entries", len(entries))
	}
}

func TestJournalSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")

	j, err := Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	reportTestFailure(j, "GET", "/persisted", 502, "proxy_failure")
	waitForEntries(t, j, 1)
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	j2, err := Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer j2.Close()

	entries, err := j2.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/persisted" {
		t.Errorf("entries = %+v, want the persisted failure", entries)
	}
}

func TestPruneRemovesOldEntries(t *testing.T) {
	j := openTestJournal(t)

	old := time.Now().AddDate(0, 0, -60)
	if _, err := j.db.Exec(`
		INSERT INTO failures (at, request_id, method, path, status, code, error)
		VALUES (?, '', 'GET', '/ancient', 500, 'internal_error', 'old failure')`,
		old.UnixMilli()); err != nil {
		t.Fatalf("seed insert error = %v", err)
	}
	reportTestFailure(j, "GET", "/fresh", 500, "internal_error")
	waitForEntries(t, j, 2)

	j.prune(30)

	entries, err := j.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 1 || entries[0].Path != "/fresh" {
		t.Errorf("entries = %+v, want only the fresh failure", entries)
	}
}

func TestCloseDrainsBufferedEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(Config{Path: path, BufferSize: 64}, nil)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	for i := 0; i < 10; i++ {
		reportTestFailure(j, "GET", "/buffered", 500, "internal_error")
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	j2, err := Open(Config{Path: path}, nil)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer j2.Close()

	entries, err := j2.Recent(0)
	if err != nil {
		t.Fatalf("Recent() error = %v", err)
	}
	if len(entries) != 10 {
		t.Errorf("persisted %d entries, want all 10 drained on close", len(entries))
	}
}
