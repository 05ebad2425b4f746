// Package history keeps the finished sections of one report so later
// sections can review what was already written.
package history

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"deepreport/internal/logging"
)

var (
	// ErrEmptyContent is returned when adding a section without content.
	ErrEmptyContent = errors.New("section content must not be empty")
	// ErrDuplicateID is returned when adding a section under an id already stored.
	ErrDuplicateID = errors.New("section id already stored")
)

// Heading levels.
const (
	LevelTitle      = 0 // "# "
	LevelSection    = 1 // "## "
	LevelSubsection = 2 // "### " or unmarked
)

// Entry is one stored section.
type Entry struct {
	ID        string
	Title     string // heading text without markup
	FullTitle string // heading as given, markup included
	Content   string
	Level     int
	Parent    string
}

// Store is an append-only, in-memory record of finished sections.
// Safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	titles  map[string]string // clean title -> id, last write wins
}

// New creates an empty store.
func New() *Store {
	return &Store{
		entries: make(map[string]*Entry),
		titles:  make(map[string]string),
	}
}

// Add records a finished section and returns its id. When id is empty one
// is derived from the parent and title. Stored entries are never replaced:
// adding an existing id fails with ErrDuplicateID.
func (s *Store) Add(title, content, parent, id string) (string, error) {
	if strings.TrimSpace(content) == "" {
		return "", ErrEmptyContent
	}
	if id == "" {
		id = DeriveID(title, parent)
	}

	e := &Entry{
		ID:        id,
		Title:     CleanTitle(title),
		FullTitle: title,
		Content:   content,
		Level:     LevelOf(title),
		Parent:    parent,
	}

	s.mu.Lock()
	if _, exists := s.entries[id]; exists {
		s.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	s.order = append(s.order, id)
	s.entries[id] = e
	s.titles[e.Title] = id
	s.mu.Unlock()

	logging.HistoryDebug("Added section %q (id=%s, level=%d)", e.Title, id, e.Level)
	return id, nil
}

// Get returns a copy of the entry with id.
func (s *Store) Get(id string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// Content returns the content stored under id.
func (s *Store) Content(id string) (string, bool) {
	e, ok := s.Get(id)
	return e.Content, ok
}

// LookupTitle returns the content of the section last stored under title.
// Markup in title is ignored.
func (s *Store) LookupTitle(title string) (string, bool) {
	s.mu.RLock()
	id, ok := s.titles[CleanTitle(title)]
	s.mu.RUnlock()
	if !ok {
		return "", false
	}
	return s.Content(id)
}

// Contents resolves ids to contents, skipping unknown ids.
func (s *Store) Contents(ids []string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if e, ok := s.entries[id]; ok {
			out = append(out, e.Content)
		}
	}
	return out
}

// Len returns the number of stored sections.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// FormattedTitles renders the stored headings for a model prompt, grouped
// by level in insertion order, each with its id.
func (s *Store) FormattedTitles() string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.order) == 0 {
		return "no history sections"
	}

	var lines []string
	for level := LevelTitle; level <= LevelSubsection; level++ {
		for _, id := range s.order {
			e := s.entries[id]
			if e.Level != level {
				continue
			}
			switch level {
			case LevelTitle:
				lines = append(lines, "# "+e.Title)
			case LevelSection:
				lines = append(lines, fmt.Sprintf("## %s [written] (ID: %s)", e.Title, e.ID))
			default:
				line := fmt.Sprintf("  ### %s [written] (ID: %s)", e.Title, e.ID)
				if e.Parent != "" {
					line += fmt.Sprintf("  (%s)", CleanTitle(e.Parent))
				}
				lines = append(lines, line)
			}
		}
	}
	return strings.Join(lines, "\n")
}

// DeriveID returns the first 12 hex chars of md5(parent_title) or md5(title).
func DeriveID(title, parent string) string {
	key := title
	if parent != "" {
		key = parent + "_" + title
	}
	sum := md5.Sum([]byte(key))
	return hex.EncodeToString(sum[:])[:12]
}

// LevelOf maps heading markup to a level.
func LevelOf(title string) int {
	switch {
	case strings.HasPrefix(title, "###"):
		return LevelSubsection
	case strings.HasPrefix(title, "##"):
		return LevelSection
	case strings.HasPrefix(title, "#"):
		return LevelTitle
	default:
		return LevelSubsection
	}
}

// CleanTitle strips leading heading markup.
func CleanTitle(title string) string {
	return strings.TrimSpace(strings.TrimLeft(title, "#"))
}
