package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"trendcast/report"
)

func testArchive(t *testing.T, maxHistory int) *Archive {
	t.Helper()
	return NewArchive(filepath.Join(t.TempDir(), "reports.json"), maxHistory)
}

func sampleReport(platform string) report.Report {
	return report.Report{
		GeneratedAt: time.Now().UTC(),
		Entries: []report.Entry{
			{Platform: platform, Status: "succeeded"},
		},
		Succeeded: 1,
	}
}

func TestArchive_SaveAndLoad(t *testing.T) {
	archive := testArchive(t, 10)

	id, err := archive.Save(sampleReport("tiktok"))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	if id == "" {
		t.Fatal("Save() returned empty ID")
	}

	got, err := archive.Get(id)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(got.Report.Entries) != 1 || got.Report.Entries[0].Platform != "tiktok" {
		t.Errorf("Get() returned wrong report: %+v", got.Report)
	}
}

func TestArchive_GetMissing(t *testing.T) {
	archive := testArchive(t, 10)

	if _, err := archive.Get("no-such-id"); err != ErrNotFound {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestArchive_LatestReturnsNewest(t *testing.T) {
	archive := testArchive(t, 10)

	if _, err := archive.Latest(); err != ErrNotFound {
		t.Fatalf("Latest() on empty archive error = %v, want ErrNotFound", err)
	}

	if _, err := archive.Save(sampleReport("youtube-shorts")); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
	id, err := archive.Save(sampleReport("tiktok"))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	latest, err := archive.Latest()
	if err != nil {
		t.Fatalf("Latest() error: %v", err)
	}
	if latest.ID != id {
		t.Errorf("Latest() ID = %s, want %s", latest.ID, id)
	}
}

func TestArchive_TrimsHistory(t *testing.T) {
	archive := testArchive(t, 3)

	var lastID string
	for i := 0; i < 5; i++ {
		id, err := archive.Save(sampleReport("tiktok"))
		if err != nil {
			t.Fatalf("Save() error: %v", err)
		}
		lastID = id
	}

	reports, err := archive.List()
	if err != nil {
		t.Fatalf("List() error: %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("List() returned %d reports, want 3", len(reports))
	}
	if reports[2].ID != lastID {
		t.Errorf("newest report ID = %s, want %s", reports[2].ID, lastID)
	}
}

func TestArchive_PersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.json")

	first := NewArchive(path, 10)
	id, err := first.Save(sampleReport("tiktok"))
	if err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	second := NewArchive(path, 10)
	if _, err := second.Get(id); err != nil {
		t.Errorf("Get() from fresh instance error: %v", err)
	}
}

func TestArchive_CorruptFileReported(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	archive := NewArchive(path, 10)
	if _, err := archive.List(); err == nil {
		t.Error("List() on corrupt file succeeded, want error")
	}
}

func TestWriteAtomic_CreatesParentDirs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "out.json")

	if err := writeAtomic(path, []byte(`{}`)); err != nil {
		t.Fatalf("writeAtomic() error: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile() error: %v", err)
	}
	if string(raw) != `{}` {
		t.Errorf("file content = %q, want {}", raw)
	}
}

func TestWriteAtomic_LeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	if err := writeAtomic(path, []byte("data")); err != nil {
		t.Fatalf("writeAtomic() error: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("directory has %d entries, want 1: %v", len(entries), entries)
	}
}
