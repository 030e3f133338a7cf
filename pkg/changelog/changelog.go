// Package changelog keeps the append-only JSON log of model and
// configuration changes.
package changelog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// Entry types.
const (
	TypeAdded   = "added"
	TypeChanged = "changed"
	TypeRemoved = "removed"
	TypeFixed   = "fixed"
	TypeInitial = "initial"
)

// Entry categories.
const (
	CategoryModel         = "model"
	CategoryConfiguration = "configuration"
	CategoryFeature       = "feature"
	CategoryDocumentation = "documentation"
)

// Change is one before/after pair inside an entry.
type Change struct {
	Component string `json:"component"`
	Old       string `json:"old"`
	New       string `json:"new"`
}

// Entry is a single changelog record.
type Entry struct {
	ID          string   `json:"id"`
	DateUTC     string   `json:"date_utc"`
	Type        string   `json:"type"`
	Category    string   `json:"category"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Affected    []string `json:"affected"`
	Changes     []Change `json:"changes"`
	Author      string   `json:"author,omitempty"`
}

// Documentation is the generated companion file
// (strategy_documentation.json) kept next to the changelog. It is
// rewritten on every append so it always summarizes the current log.
type Documentation struct {
	Title      string         `json:"title"`
	UpdatedUTC string         `json:"updated_utc"`
	EntryCount int            `json:"entry_count"`
	ByCategory map[string]int `json:"by_category"`
	Latest     *Entry         `json:"latest,omitempty"`
}

// Log appends entries to a JSON file holding an array of entries.
type Log struct {
	path string
}

// New creates a changelog backed by path (typically
// data/strategy/changelog.json).
func New(path string) *Log {
	return &Log{path: path}
}

// Append adds an entry, generating its ID and timestamp.
func (l *Log) Append(e Entry) error {
	e.ID = uuid.NewString()
	e.DateUTC = time.Now().UTC().Format(time.RFC3339)

	entries, err := l.Read()
	if err != nil {
		return err
	}
	entries = append(entries, e)

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create changelog dir: %w", err)
	}
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal changelog: %w", err)
	}
	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("write changelog: %w", err)
	}
	return l.writeDocumentation(entries)
}

// documentationPath is the companion file next to the changelog.
func (l *Log) documentationPath() string {
	return filepath.Join(filepath.Dir(l.path), "strategy_documentation.json")
}

func (l *Log) writeDocumentation(entries []Entry) error {
	doc := Documentation{
		Title:      "Strategy change history",
		UpdatedUTC: time.Now().UTC().Format(time.RFC3339),
		EntryCount: len(entries),
		ByCategory: make(map[string]int),
	}
	for _, e := range entries {
		doc.ByCategory[e.Category]++
	}
	if n := len(entries); n > 0 {
		doc.Latest = &entries[n-1]
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal strategy documentation: %w", err)
	}
	if err := os.WriteFile(l.documentationPath(), data, 0o644); err != nil {
		return fmt.Errorf("write strategy documentation: %w", err)
	}
	return nil
}

// ReadDocumentation returns the generated summary, or nil when no entry
// has ever been appended.
func (l *Log) ReadDocumentation() (*Documentation, error) {
	data, err := os.ReadFile(l.documentationPath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read strategy documentation: %w", err)
	}
	var doc Documentation
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse strategy documentation: %w", err)
	}
	return &doc, nil
}

// Read returns all entries, oldest first. A missing file is an empty log.
func (l *Log) Read() ([]Entry, error) {
	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read changelog: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse changelog %s: %w", l.path, err)
	}
	return entries, nil
}

// AppendConfigDiff records a configuration update as one entry, with one
// Change per differing option.
func (l *Log) AppendConfigDiff(title string, old, updated map[string]string) error {
	var changes []Change
	var affected []string
	for key, newVal := range updated {
		oldVal, had := old[key]
		if !had || oldVal != newVal {
			changes = append(changes, Change{Component: key, Old: oldVal, New: newVal})
			affected = append(affected, key)
		}
	}
	for key, oldVal := range old {
		if _, still := updated[key]; !still {
			changes = append(changes, Change{Component: key, Old: oldVal, New: ""})
			affected = append(affected, key)
		}
	}
	if len(changes) == 0 {
		return nil
	}

	return l.Append(Entry{
		Type:        TypeChanged,
		Category:    CategoryConfiguration,
		Title:       title,
		Description: fmt.Sprintf("%d configuration option(s) changed", len(changes)),
		Affected:    affected,
		Changes:     changes,
	})
}
