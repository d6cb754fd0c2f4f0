package janitor

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeTemp(t *testing.T, dir, name string, size int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, make([]byte, size), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestRegisterAndCleanupBySession verifies session cleanup deletes files and
// directories and reports the count.
func TestRegisterAndCleanupBySession(t *testing.T) {
	dir := t.TempDir()
	j := New(Limits{})

	sub := filepath.Join(dir, "session-a")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	img := writeTemp(t, sub, "page-1.png", 10)
	other := writeTemp(t, dir, "other.png", 10)

	j.Register(sub, KindDirectory, "a")
	j.Register(img, KindImage, "a")
	j.Register(other, KindImage, "b")

	if got := j.CleanupBySession("a"); got != 2 {
		t.Fatalf("cleaned %d resources, want 2", got)
	}
	if _, err := os.Stat(sub); !os.IsNotExist(err) {
		t.Fatal("session directory should be gone")
	}
	if _, err := os.Stat(other); err != nil {
		t.Fatal("other session's file should survive")
	}
	if got := j.TrackedCount(); got != 1 {
		t.Fatalf("tracked = %d, want 1", got)
	}
}

// TestCleanupToleratesMissingFiles verifies an already-deleted file still
// counts as cleaned.
func TestCleanupToleratesMissingFiles(t *testing.T) {
	dir := t.TempDir()
	j := New(Limits{})

	path := writeTemp(t, dir, "gone.png", 5)
	j.Register(path, KindImage, "s")
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	if got := j.CleanupBySession("s"); got != 1 {
		t.Fatalf("cleaned %d, want 1 (ENOENT tolerated)", got)
	}
	if got := j.TrackedCount(); got != 0 {
		t.Fatalf("tracked = %d, want 0", got)
	}
}

// TestCountCapEvictsOldest verifies registrations beyond the count cap evict
// oldest resources back down to the cap.
func TestCountCapEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	j := New(Limits{MaxResourceCount: 3})

	paths := make([]string, 5)
	for i := range paths {
		paths[i] = writeTemp(t, dir, filepath.Base(dir)+string(rune('a'+i))+".png", 1)
		j.Register(paths[i], KindImage, "s")
	}

	if got := j.TrackedCount(); got != 3 {
		t.Fatalf("tracked = %d, want cap 3", got)
	}
	// The two oldest were evicted and deleted.
	for _, p := range paths[:2] {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("oldest resource %s should be deleted", p)
		}
	}
	for _, p := range paths[2:] {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("newer resource %s should survive: %v", p, err)
		}
	}
}

// TestSizeCapEvictsOldest verifies size-based eviction.
func TestSizeCapEvictsOldest(t *testing.T) {
	dir := t.TempDir()
	j := New(Limits{MaxTotalSize: 250})

	first := writeTemp(t, dir, "first.png", 100)
	j.Register(first, KindImage, "s")
	j.Register(writeTemp(t, dir, "second.png", 100), KindImage, "s")
	j.Register(writeTemp(t, dir, "third.png", 100), KindImage, "s")

	if got := j.TrackedSize(); got > 250 {
		t.Fatalf("tracked size = %d, want <= 250", got)
	}
	if _, err := os.Stat(first); !os.IsNotExist(err) {
		t.Fatal("oldest resource should be evicted for size")
	}
}

// TestSweepReclaimsExpired verifies age-based sweeping with a bounded batch.
func TestSweepReclaimsExpired(t *testing.T) {
	dir := t.TempDir()
	j := New(Limits{MaxResourceAge: time.Minute})

	old := time.Now().Add(-time.Hour)
	j.now = func() time.Time { return old }
	for i := 0; i < 4; i++ {
		j.Register(writeTemp(t, dir, filepath.Base(dir)+string(rune('a'+i))+".png", 1), KindImage, "s")
	}
	j.now = time.Now

	// Bounded tick: only two may go.
	if got := j.Sweep(2); got != 2 {
		t.Fatalf("first sweep cleaned %d, want 2", got)
	}
	if got := j.Sweep(10); got != 2 {
		t.Fatalf("second sweep cleaned %d, want remaining 2", got)
	}
	if got := j.TrackedCount(); got != 0 {
		t.Fatalf("tracked = %d, want 0", got)
	}
}

// TestScheduleCleanup verifies delayed cleanup removes the resource.
func TestScheduleCleanup(t *testing.T) {
	dir := t.TempDir()
	j := New(Limits{})

	path := writeTemp(t, dir, "later.png", 1)
	id := j.Register(path, KindImage, "s")
	j.ScheduleCleanup(id, 10*time.Millisecond)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			if got := j.TrackedCount(); got != 0 {
				t.Fatalf("tracked = %d after scheduled cleanup, want 0", got)
			}
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("scheduled cleanup did not run")
}
