package knowledge

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"chatvri/internal/domain"
)

func TestFlatIndexSearchOrder(t *testing.T) {
	ix := NewFlatIndex(&Snapshot{
		Docs: []domain.Document{
			{Title: "far", Embedding: []float32{10, 10}},
			{Title: "near", Embedding: []float32{1, 1}},
			{Title: "mid", Embedding: []float32{3, 3}},
		},
		Dim: 2,
	})

	hits, err := ix.Search([]float32{1, 1}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits[0].Index != 1 || hits[1].Index != 2 || hits[2].Index != 0 {
		t.Fatalf("unexpected order: %v", hits)
	}
	if hits[0].Distance != 0 {
		t.Fatalf("exact match distance = %f, want 0", hits[0].Distance)
	}
}

func TestFlatIndexDimMismatch(t *testing.T) {
	ix := NewFlatIndex(&Snapshot{
		Docs: []domain.Document{{Embedding: []float32{1, 2}}},
		Dim:  2,
	})
	if _, err := ix.Search([]float32{1, 2, 3}, 1); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestFlatIndexCapsK(t *testing.T) {
	ix := NewFlatIndex(&Snapshot{
		Docs: []domain.Document{{Embedding: []float32{0}}, {Embedding: []float32{1}}},
		Dim:  1,
	})
	hits, err := ix.Search([]float32{0}, 100)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("len = %d, want 2", len(hits))
	}
}

func writeSnapshotFile(t *testing.T, docs []domain.Document) string {
	t.Helper()
	data, err := json.Marshal(docs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	path := filepath.Join(t.TempDir(), "kb.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadSnapshot(t *testing.T) {
	path := writeSnapshotFile(t, []domain.Document{
		{Title: "a", Content: "x", Embedding: []float32{1, 2}},
		{Title: "b", Content: "y", Embedding: []float32{3, 4}},
	})

	snap, err := LoadSnapshot(path)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if len(snap.Docs) != 2 || snap.Dim != 2 {
		t.Fatalf("docs=%d dim=%d, want 2/2", len(snap.Docs), snap.Dim)
	}
}

func TestLoadSnapshotRejectsMixedDims(t *testing.T) {
	path := writeSnapshotFile(t, []domain.Document{
		{Title: "a", Embedding: []float32{1, 2}},
		{Title: "b", Embedding: []float32{3}},
	})
	if _, err := LoadSnapshot(path); err == nil {
		t.Fatal("expected error for inconsistent embedding dims")
	}
}

func TestLoadSnapshotMissingFile(t *testing.T) {
	if _, err := LoadSnapshot(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatal("expected error for missing snapshot")
	}
}
