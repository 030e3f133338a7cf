package changelog

import (
	"path/filepath"
	"testing"
)

func TestAppendGeneratesIDAndDate(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "strategy", "changelog.json"))

	err := l.Append(Entry{
		Type:     TypeInitial,
		Category: CategoryModel,
		Title:    "initial model",
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	entries, err := l.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	if entries[0].ID == "" || entries[0].DateUTC == "" {
		t.Errorf("ID/DateUTC not generated: %+v", entries[0])
	}
}

func TestAppendIsAppendOnly(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "changelog.json"))

	for _, title := range []string{"first", "second", "third"} {
		if err := l.Append(Entry{Type: TypeChanged, Category: CategoryModel, Title: title}); err != nil {
			t.Fatalf("Append(%s): %v", title, err)
		}
	}

	entries, err := l.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("got %d entries, want 3", len(entries))
	}
	if entries[0].Title != "first" || entries[2].Title != "third" {
		t.Errorf("entries out of order: %v", entries)
	}
}

func TestAppendRegeneratesDocumentation(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "strategy", "changelog.json"))

	if err := l.Append(Entry{Type: TypeInitial, Category: CategoryModel, Title: "initial model"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := l.Append(Entry{Type: TypeChanged, Category: CategoryConfiguration, Title: "tighten edge"}); err != nil {
		t.Fatalf("Append: %v", err)
	}

	doc, err := l.ReadDocumentation()
	if err != nil {
		t.Fatalf("ReadDocumentation: %v", err)
	}
	if doc == nil {
		t.Fatal("strategy_documentation.json not written")
	}
	if doc.EntryCount != 2 {
		t.Errorf("EntryCount = %d, want 2", doc.EntryCount)
	}
	if doc.ByCategory[CategoryModel] != 1 || doc.ByCategory[CategoryConfiguration] != 1 {
		t.Errorf("ByCategory = %v", doc.ByCategory)
	}
	if doc.Latest == nil || doc.Latest.Title != "tighten edge" {
		t.Errorf("Latest = %+v, want the newest entry", doc.Latest)
	}
	if doc.UpdatedUTC == "" {
		t.Error("UpdatedUTC not set")
	}
}

func TestReadDocumentationMissingIsNil(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "changelog.json"))
	doc, err := l.ReadDocumentation()
	if err != nil {
		t.Fatalf("ReadDocumentation: %v", err)
	}
	if doc != nil {
		t.Errorf("ReadDocumentation = %+v, want nil before any append", doc)
	}
}

func TestReadMissingIsEmpty(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "absent.json"))
	entries, err := l.Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if entries != nil {
		t.Errorf("Read = %v, want nil", entries)
	}
}

func TestAppendConfigDiff(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "changelog.json"))

	old := map[string]string{"edge_min": "0.05", "kelly_cap": "0.25"}
	updated := map[string]string{"edge_min": "0.08", "kelly_cap": "0.25"}
	if err := l.AppendConfigDiff("tighten edge", old, updated); err != nil {
		t.Fatalf("AppendConfigDiff: %v", err)
	}

	entries, _ := l.Read()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	e := entries[0]
	if e.Category != CategoryConfiguration || e.Type != TypeChanged {
		t.Errorf("entry = %+v", e)
	}
	if len(e.Changes) != 1 || e.Changes[0].Component != "edge_min" {
		t.Errorf("Changes = %+v, want only the differing option", e.Changes)
	}
	if e.Changes[0].Old != "0.05" || e.Changes[0].New != "0.08" {
		t.Errorf("diff values = %+v", e.Changes[0])
	}
}

func TestAppendConfigDiffNoChangesNoEntry(t *testing.T) {
	l := New(filepath.Join(t.TempDir(), "changelog.json"))

	same := map[string]string{"edge_min": "0.05"}
	if err := l.AppendConfigDiff("noop", same, same); err != nil {
		t.Fatalf("AppendConfigDiff: %v", err)
	}
	entries, _ := l.Read()
	if len(entries) != 0 {
		t.Errorf("got %d entries for a no-op diff, want 0", len(entries))
	}
}
