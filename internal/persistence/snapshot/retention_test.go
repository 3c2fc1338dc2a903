package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, dir string, tick uint64) {
	t.Helper()
	if err := os.WriteFile(Path(dir, tick), []byte("x"), 0o644); err != nil {
		t.Fatalf("write stub: %v", err)
	}
}

func TestPruneKeepsNewestArchives(t *testing.T) {
	dir := t.TempDir()
	for tick := uint64(100); tick <= 1000; tick += 100 {
		writeStub(t, dir, tick)
	}
	// Non-conforming names must survive a prune.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("keep"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "latest.snap.zst"), []byte("keep"), 0o644); err != nil {
		t.Fatalf("write stray: %v", err)
	}

	removed, err := Prune(dir, 3)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if len(removed) != 7 {
		t.Fatalf("removed %d files, want 7: %v", len(removed), removed)
	}

	for _, tick := range []uint64{800, 900, 1000} {
		if _, err := os.Stat(Path(dir, tick)); err != nil {
			t.Fatalf("tick %d archive should survive: %v", tick, err)
		}
	}
	for _, tick := range []uint64{100, 700} {
		if _, err := os.Stat(Path(dir, tick)); !os.IsNotExist(err) {
			t.Fatalf("tick %d archive should be gone, stat err=%v", tick, err)
		}
	}
	for _, name := range []string{"notes.txt", "latest.snap.zst"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("%s should survive: %v", name, err)
		}
	}

	if got := LatestPath(dir); got != Path(dir, 1000) {
		t.Fatalf("LatestPath = %q, want %q", got, Path(dir, 1000))
	}
}

func TestPruneNoops(t *testing.T) {
	dir := t.TempDir()
	writeStub(t, dir, 600)
	writeStub(t, dir, 1200)

	if removed, err := Prune(dir, 0); err != nil || removed != nil {
		t.Fatalf("keep=0 should be a no-op, got removed=%v err=%v", removed, err)
	}
	if removed, err := Prune(dir, 5); err != nil || removed != nil {
		t.Fatalf("under-threshold prune should be a no-op, got removed=%v err=%v", removed, err)
	}
	if removed, err := Prune(filepath.Join(dir, "missing"), 5); err != nil || removed != nil {
		t.Fatalf("missing dir should be a no-op, got removed=%v err=%v", removed, err)
	}
}
