package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"imgsniff/pkg/logger"
)

func TestCheckpointManager(t *testing.T) {
	dir := t.TempDir()
	target := "https://example.com/gallery"

	t.Run("LoadWithoutFileStartsFresh", func(t *testing.T) {
		mgr := NewManager(dir, logger.NewNopLogger())
		if mgr.Exists() {
			t.Fatal("Expected no checkpoint yet")
		}

		cp, err := mgr.Load(target)
		if err != nil {
			t.Fatalf("Failed to load checkpoint: %v", err)
		}
		if cp.Target != target {
			t.Errorf("Expected target %s, got %s", target, cp.Target)
		}
		if cp.Count() != 0 {
			t.Errorf("Expected empty checkpoint, got %d entries", cp.Count())
		}
	})

	t.Run("SaveAndLoad", func(t *testing.T) {
		mgr := NewManager(dir, logger.NewNopLogger())
		cp := New(target)
		cp.Record("https://example.com/a.jpg", "a.jpg")
		cp.Record("https://example.com/b.png", "b.png")

		if err := mgr.Save(cp); err != nil {
			t.Fatalf("Failed to save checkpoint: %v", err)
		}
		if !mgr.Exists() {
			t.Fatal("Expected checkpoint file to exist")
		}
		if _, err := os.Stat(mgr.Path() + ".tmp"); !os.IsNotExist(err) {
			t.Error("Expected temporary file to be gone")
		}

		loaded, err := mgr.Load(target)
		if err != nil {
			t.Fatalf("Failed to load checkpoint: %v", err)
		}
		if loaded.Count() != 2 {
			t.Errorf("Expected 2 entries, got %d", loaded.Count())
		}
		if name, ok := loaded.Lookup("https://example.com/b.png"); !ok || name != "b.png" {
			t.Errorf("Expected b.png, got %q (%v)", name, ok)
		}
	})

	t.Run("SavedRequiresFileOnDisk", func(t *testing.T) {
		mgr := NewManager(dir, logger.NewNopLogger())
		cp := New(target)
		cp.Record("https://example.com/a.jpg", "a.jpg")
		cp.Record("https://example.com/gone.jpg", "gone.jpg")

		if err := os.WriteFile(filepath.Join(dir, "a.jpg"), []byte("jpeg"), 0644); err != nil {
			t.Fatal(err)
		}

		path, ok := mgr.Saved(cp, "https://example.com/a.jpg")
		if !ok || path != filepath.Join(dir, "a.jpg") {
			t.Errorf("Expected a.jpg to count as saved, got %q (%v)", path, ok)
		}
		if _, ok := mgr.Saved(cp, "https://example.com/gone.jpg"); ok {
			t.Error("Expected a missing file not to count as saved")
		}
		if _, ok := mgr.Saved(cp, "https://example.com/never.jpg"); ok {
			t.Error("Expected an unknown URL not to count as saved")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		mgr := NewManager(dir, logger.NewNopLogger())
		if err := mgr.Delete(); err != nil {
			t.Fatalf("Failed to delete checkpoint: %v", err)
		}
		if mgr.Exists() {
			t.Error("Expected checkpoint to be deleted")
		}
		if err := mgr.Delete(); err != nil {
			t.Errorf("Expected deleting twice to be fine, got %v", err)
		}
	})
}

func TestLoadCorruptCheckpoint(t *testing.T) {
	dir := t.TempDir()
	mgr := NewManager(dir, logger.NewNopLogger())
	if err := os.WriteFile(mgr.Path(), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := mgr.Load("https://example.com"); err == nil {
		t.Error("Expected an error for a corrupt checkpoint")
	}
}
