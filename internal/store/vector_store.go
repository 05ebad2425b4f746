// Package store provides the sqlite-backed vector store behind the knowledge
// base and the per-task evidence indexes.
package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"deepreport/internal/embedding"
	"deepreport/internal/logging"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("vector store closed")

// embedBatchSize bounds how many chunks are embedded per backend call.
const embedBatchSize = 32

// Document is one indexed chunk.
type Document struct {
	Content  string
	Title    string
	Source   string
	URL      string
	Filename string
}

// Match is a search hit.
type Match struct {
	Document
	ID        int64
	Distance  float64 // cosine distance in [0, 2]; keyword hits report 1
	Relevance float64 // normalized to [0, 1]
}

// VectorStore stores documents with embeddings in a single sqlite file.
type VectorStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	path   string
	engine embedding.EmbeddingEngine // Optional; nil means keyword search only
	closed bool
}

const schema = `
CREATE TABLE IF NOT EXISTS chunks (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	content TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	url TEXT NOT NULL DEFAULT '',
	filename TEXT NOT NULL DEFAULT '',
	content_hash TEXT NOT NULL UNIQUE,
	embedding BLOB,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_chunks_filename ON chunks(filename);
`

// OpenVectorStore opens (creating if needed) the store at path.
func OpenVectorStore(path string, engine embedding.EmbeddingEngine) (*VectorStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "OpenVectorStore")
	defer timer.Stop()

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open(driverName, path)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", path, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	name := "keyword"
	if engine != nil {
		name = engine.Name()
	}
	logging.Store("Vector store opened: path=%s driver=%s engine=%s", path, driverName, name)

	return &VectorStore{db: db, path: path, engine: engine}, nil
}

// Path returns the database file path.
func (s *VectorStore) Path() string { return s.path }

// AddDocuments embeds and stores documents. Documents whose content and
// source already exist are skipped. Returns the number of new rows.
func (s *VectorStore) AddDocuments(ctx context.Context, docs []Document) (int, error) {
	if len(docs) == 0 {
		return 0, nil
	}

	var vectors [][]float32
	if s.engine != nil {
		texts := make([]string, len(docs))
		for i, d := range docs {
			texts[i] = d.Content
		}
		vectors = make([][]float32, 0, len(docs))
		for start := 0; start < len(texts); start += embedBatchSize {
			end := start + embedBatchSize
			if end > len(texts) {
				end = len(texts)
			}
			batch, err := embedding.EmbedDocuments(ctx, s.engine, texts[start:end])
			if err != nil {
				return 0, fmt.Errorf("failed to embed documents: %w", err)
			}
			if len(batch) != end-start {
				return 0, fmt.Errorf("embedding engine returned %d vectors for %d texts", len(batch), end-start)
			}
			vectors = append(vectors, batch...)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO chunks
		(content, title, source, url, filename, content_hash, embedding) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i, d := range docs {
		var blob []byte
		if vectors != nil {
			blob, err = serializeVector(vectors[i])
			if err != nil {
				return 0, fmt.Errorf("failed to serialize vector: %w", err)
			}
		}
		res, err := stmt.ExecContext(ctx, d.Content, d.Title, d.Source, d.URL, d.Filename, contentHash(d), blob)
		if err != nil {
			return 0, fmt.Errorf("failed to insert chunk: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			inserted++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit: %w", err)
	}

	logging.StoreDebug("AddDocuments: %d/%d new chunks in %s", inserted, len(docs), s.path)
	return inserted, nil
}

// Search returns the k documents closest to query. Without an embedding
// engine, or when the query cannot be embedded, it falls back to keyword
// matching.
func (s *VectorStore) Search(ctx context.Context, query string, k int) ([]Match, error) {
	if k <= 0 {
		k = 5
	}

	if s.engine != nil {
		vec, err := embedding.EmbedQuery(ctx, s.engine, query)
		if err == nil && len(vec) > 0 {
			return s.searchVector(ctx, vec, k)
		}
		logging.StoreWarn("Query embedding failed, falling back to keyword search: %v", err)
	}
	return s.searchKeyword(ctx, query, k)
}

func (s *VectorStore) searchVector(ctx context.Context, vec []float32, k int) ([]Match, error) {
	blob, err := serializeVector(vec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query vector: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, content, title, source, url, filename,
			vec_distance_cosine(embedding, ?) AS distance
		FROM chunks
		WHERE embedding IS NOT NULL AND length(embedding) = ?
		ORDER BY distance ASC, id ASC
		LIMIT ?`, blob, len(blob), k)
	if err != nil {
		return nil, fmt.Errorf("vector query failed: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Content, &m.Title, &m.Source, &m.URL, &m.Filename, &m.Distance); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		m.Relevance = embedding.Relevance(1 - m.Distance)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// searchKeyword ranks rows by the fraction of query words they contain.
// LIKE narrows the candidates; scoring is on whole words, except for CJK
// terms, which have no word boundaries and match as substrings.
func (s *VectorStore) searchKeyword(ctx context.Context, query string, k int) ([]Match, error) {
	terms := keywordTerms(query)
	if len(terms) == 0 {
		return nil, nil
	}

	var clauses []string
	var args []interface{}
	for _, t := range terms {
		clauses = append(clauses, "lower(content) LIKE ?")
		args = append(args, "%"+t+"%")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, content, title, source, url, filename
		FROM chunks WHERE `+strings.Join(clauses, " OR "), args...)
	if err != nil {
		return nil, fmt.Errorf("keyword query failed: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.ID, &m.Content, &m.Title, &m.Source, &m.URL, &m.Filename); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		m.Relevance = keywordRelevance(m.Content, terms)
		if m.Relevance == 0 {
			continue
		}
		m.Distance = 1
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Relevance != matches[j].Relevance {
			return matches[i].Relevance > matches[j].Relevance
		}
		return matches[i].ID < matches[j].ID
	})
	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

// keywordTerms lowercases query and splits it into distinct words.
func keywordTerms(query string) []string {
	seen := make(map[string]bool)
	var terms []string
	for _, w := range splitWords(strings.ToLower(query)) {
		if !seen[w] {
			seen[w] = true
			terms = append(terms, w)
		}
	}
	return terms
}

func splitWords(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func hasCJK(s string) bool {
	for _, r := range s {
		if unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul) {
			return true
		}
	}
	return false
}

// keywordRelevance is the fraction of terms present in content, in [0, 1].
func keywordRelevance(content string, terms []string) float64 {
	lower := strings.ToLower(content)
	words := make(map[string]bool)
	for _, w := range splitWords(lower) {
		words[w] = true
	}

	hit := 0
	for _, t := range terms {
		if words[t] || (hasCJK(t) && strings.Contains(lower, t)) {
			hit++
		}
	}
	return float64(hit) / float64(len(terms))
}

// Count returns the number of stored chunks.
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return 0, ErrClosed
	}
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chunks").Scan(&n)
	return n, err
}

// Sources returns chunk counts per filename (or source when no filename).
func (s *VectorStore) Sources(ctx context.Context) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	rows, err := s.db.QueryContext(ctx, `SELECT CASE WHEN filename != '' THEN filename ELSE source END AS name, COUNT(*)
		FROM chunks GROUP BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int)
	for rows.Next() {
		var name string
		var n int
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}

// DeleteFilename removes every chunk ingested from filename.
func (s *VectorStore) DeleteFilename(ctx context.Context, filename string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM chunks WHERE filename = ?", filename)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Clear removes all chunks.
func (s *VectorStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx, "DELETE FROM chunks")
	return err
}

// Close closes the database. Closing twice is a no-op.
func (s *VectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func contentHash(d Document) string {
	sum := sha256.Sum256([]byte(d.Content + "|" + d.Source + "|" + d.Filename))
	return hex.EncodeToString(sum[:])
}
