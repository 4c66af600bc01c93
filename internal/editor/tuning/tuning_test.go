package tuning

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_RepoConfig(t *testing.T) {
	tu, err := Load("../../../configs/tuning.yaml")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.TileSize != 32 {
		t.Fatalf("tile_size=%d want 32", tu.TileSize)
	}
	if tu.Area.Width <= 0 || tu.Area.Height <= 0 {
		t.Fatalf("bad area: %+v", tu.Area)
	}
}

func TestLoad_FillsDefaultsForMissingFields(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(p, []byte("area:\n  width: 10\nsession:\n  out_queue: 99999\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tu, err := Load(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tu.Area.Width != 10 || tu.Area.Height != 400 {
		t.Fatalf("area=%+v", tu.Area)
	}
	if tu.TileSize != 32 {
		t.Fatalf("tile_size=%d", tu.TileSize)
	}
	if tu.Session.OutQueue != 1024 {
		t.Fatalf("out_queue=%d want clamp 1024", tu.Session.OutQueue)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestDigest_ChangesWithValues(t *testing.T) {
	a := Defaults()
	b := Defaults()
	if a.Digest() != b.Digest() || len(a.Digest()) != 64 {
		t.Fatalf("digest not stable: %s", a.Digest())
	}
	b.TileSize = 16
	if a.Digest() == b.Digest() {
		t.Fatalf("digest ignores tile size")
	}
}
