package retrieval

import (
	"strings"
	"unicode/utf8"
)

// DefaultSeparators are tried in order, coarsest first.
var DefaultSeparators = []string{"\n\n", "\n", "。", ". ", " ", ""}

// Splitter cuts text into overlapping chunks of at most ChunkSize runes,
// preferring to break on paragraph, line, sentence and word boundaries.
type Splitter struct {
	ChunkSize  int
	Overlap    int
	Separators []string
}

// NewSplitter creates a splitter. Overlap is clamped below chunkSize.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = chunkSize / 5
	}
	return &Splitter{ChunkSize: chunkSize, Overlap: overlap, Separators: DefaultSeparators}
}

// Split returns the chunks of text.
func (s *Splitter) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	return s.split(text, s.Separators)
}

func (s *Splitter) split(text string, separators []string) []string {
	sep := ""
	var rest []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			rest = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		pieces = strings.Split(text, sep)
	}

	var out, small []string
	for _, p := range pieces {
		if p == "" {
			continue
		}
		if runeLen(p) < s.ChunkSize {
			small = append(small, p)
			continue
		}
		if len(small) > 0 {
			out = append(out, s.merge(small, sep)...)
			small = nil
		}
		if len(rest) == 0 {
			out = append(out, p)
		} else {
			out = append(out, s.split(p, rest)...)
		}
	}
	if len(small) > 0 {
		out = append(out, s.merge(small, sep)...)
	}
	return out
}

// merge packs pieces into chunks, carrying up to Overlap runes of trailing
// pieces into the next chunk.
func (s *Splitter) merge(pieces []string, sep string) []string {
	sepLen := runeLen(sep)
	var chunks, current []string
	total := 0

	joinedLen := func(n int) int {
		if len(current) > 0 {
			return total + n + sepLen
		}
		return total + n
	}

	for _, p := range pieces {
		n := runeLen(p)
		if joinedLen(n) > s.ChunkSize && len(current) > 0 {
			if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
				chunks = append(chunks, chunk)
			}
			for total > s.Overlap || (joinedLen(n) > s.ChunkSize && total > 0) {
				drop := runeLen(current[0])
				if len(current) > 1 {
					drop += sepLen
				}
				total -= drop
				current = current[1:]
			}
		}
		if len(current) > 0 {
			total += sepLen
		}
		current = append(current, p)
		total += n
	}
	if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }
