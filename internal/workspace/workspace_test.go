package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAllocateCreatesSessionTree(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	dir, err := mgr.Allocate("sess_1")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	for _, sub := range []string{"input_files", "outputs", "logs", "checkpoints"} {
		info, err := os.Stat(filepath.Join(dir, sub))
		if err != nil {
			t.Fatalf("expected %s to exist: %v", sub, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %s to be a directory", sub)
		}
	}

	again, err := mgr.Allocate("sess_1")
	if err != nil {
		t.Fatalf("second allocate: %v", err)
	}
	if again != dir {
		t.Fatalf("expected idempotent allocate, got %s vs %s", again, dir)
	}

	inputDir, err := mgr.InputDir("sess_1")
	if err != nil {
		t.Fatalf("input dir: %v", err)
	}
	if inputDir != filepath.Join(dir, "input_files") {
		t.Fatalf("unexpected input dir: %s", inputDir)
	}
}

func TestReclaimRemovesTree(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	dir, err := mgr.Allocate("sess_1")
	if err != nil {
		t.Fatalf("allocate: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "outputs", "report.md"), []byte("done"), 0o644); err != nil {
		t.Fatalf("write artifact: %v", err)
	}

	if err := mgr.Reclaim("sess_1"); err != nil {
		t.Fatalf("reclaim: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected session dir removed, got %v", err)
	}

	// Second reclaim is a no-op.
	if err := mgr.Reclaim("sess_1"); err != nil {
		t.Fatalf("second reclaim: %v", err)
	}
}

func TestRejectsTraversalIDs(t *testing.T) {
	mgr, err := NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	for _, id := range []string{"", "..", "a/../b", `a\b`} {
		if _, err := mgr.Allocate(id); err == nil {
			t.Errorf("expected id %q to be rejected", id)
		}
	}
}
