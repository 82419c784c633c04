package audit

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"goalrush/matchcore/internal/logging"
)

func makeBundle(t *testing.T, root, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(root, name)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, "events.jsonl.sz"), []byte("data"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	stamp := time.Now().Add(-age)
	if err := os.Chtimes(path, stamp, stamp); err != nil {
		t.Fatalf("chtimes: %v", err)
	}
	return path
}

func TestCleanerRemovesExpiredBundles(t *testing.T) {
	root := t.TempDir()
	old := makeBundle(t, root, "old-20240101T000000Z", 48*time.Hour)
	fresh := makeBundle(t, root, "fresh-20240501T000000Z", time.Hour)

	cleaner := NewCleaner(root, RetentionPolicy{MaxAge: 24 * time.Hour}, logging.NewTestLogger())
	cleaner.RunOnce()

	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatalf("expired bundle not removed: %v", err)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatalf("fresh bundle must survive: %v", err)
	}

	stats := cleaner.Stats()
	if stats.Bundles != 1 || stats.Bytes == 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestCleanerEnforcesBundleLimitNewestFirst(t *testing.T) {
	root := t.TempDir()
	oldest := makeBundle(t, root, "a", 3*time.Hour)
	middle := makeBundle(t, root, "b", 2*time.Hour)
	newest := makeBundle(t, root, "c", time.Hour)

	cleaner := NewCleaner(root, RetentionPolicy{MaxBundles: 2}, logging.NewTestLogger())
	cleaner.RunOnce()

	//1.- Only the oldest bundle falls over the limit.
	if _, err := os.Stat(oldest); !os.IsNotExist(err) {
		t.Fatalf("oldest bundle not removed: %v", err)
	}
	for _, path := range []string{middle, newest} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("recent bundle must survive: %v", err)
		}
	}
}

func TestCleanerIgnoresLooseFiles(t *testing.T) {
	root := t.TempDir()
	loose := filepath.Join(root, "stray.txt")
	if err := os.WriteFile(loose, []byte("keep me"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cleaner := NewCleaner(root, RetentionPolicy{MaxBundles: 1, MaxAge: time.Minute}, logging.NewTestLogger())
	cleaner.RunOnce()

	if _, err := os.Stat(loose); err != nil {
		t.Fatalf("loose file must not be touched: %v", err)
	}
	if stats := cleaner.Stats(); stats.Bundles != 0 {
		t.Fatalf("loose files are not bundles: %+v", stats)
	}
}
