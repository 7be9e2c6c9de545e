package migrate

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadEmbedded(t *testing.T) {
	migrations, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(migrations) == 0 {
		t.Fatal("no embedded migrations")
	}
	seen := make(map[string]bool)
	for i, m := range migrations {
		if seen[m.Version] {
			t.Errorf("duplicate version %s", m.Version)
		}
		seen[m.Version] = true
		if i > 0 && migrations[i-1].Version >= m.Version {
			t.Errorf("migrations out of order: %s before %s", migrations[i-1].Version, m.Version)
		}
		if strings.TrimSpace(m.SQL) == "" {
			t.Errorf("migration %s is empty", m.Version)
		}
	}
	if migrations[0].Version != "0001_catalog" {
		t.Errorf("first migration = %s, want 0001_catalog", migrations[0].Version)
	}
}

func TestLoadSortsAndFilters(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0002_b.sql":   {Data: []byte("SELECT 2;")},
		"m/0001_a.sql":   {Data: []byte("SELECT 1;")},
		"m/README.md":    {Data: []byte("notes")},
		"m/sub/0003.sql": {Data: []byte("SELECT 3;")},
	}
	got, err := load(fsys, "m")
	if err != nil {
		t.Fatalf("load() error = %v", err)
	}
	if len(got) != 2 || got[0].Version != "0001_a" || got[1].Version != "0002_b" {
		t.Fatalf("load() = %+v", got)
	}
}
