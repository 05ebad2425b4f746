package workflow

import (
	"strings"
	"unicode"
)

// EstimateWordCount counts words in text. When CJK characters make up more
// than half of the non-space characters each of them counts as a word;
// otherwise whitespace-separated tokens are counted.
func EstimateWordCount(text string) int {
	var cjk, nonSpace int
	for _, r := range text {
		if unicode.IsSpace(r) {
			continue
		}
		nonSpace++
		if isCJK(r) {
			cjk++
		}
	}
	if nonSpace == 0 {
		return 0
	}
	if cjk*2 > nonSpace {
		return cjk
	}
	return len(strings.Fields(text))
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) ||
		unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) ||
		unicode.Is(unicode.Hangul, r)
}
