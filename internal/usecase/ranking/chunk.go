// Package ranking selects the document windows most relevant to a query:
// lexical pre-selection followed by an embedding-based re-rank.
package ranking

import "unicode/utf8"

// Window is a slice of a source text. Start and End are byte offsets.
type Window struct {
	Start   int
	End     int
	Content string
}

// Split cuts text into windows of at most size characters, each overlapping the previous
// one by overlap characters. Windows follow rune boundaries and are not trimmed.
func Split(text string, size, overlap int) []Window {
	if text == "" {
		return nil
	}
	n := utf8.RuneCountInString(text)
	if size <= 0 || n <= size {
		return []Window{{Start: 0, End: len(text), Content: text}}
	}
	overlap = min(max(overlap, 0), size-1)

	// offsets[i] is the byte offset of rune i; offsets[n] == len(text).
	offsets := make([]int, 0, n+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	offsets = append(offsets, len(text))

	step := size - overlap
	windows := make([]Window, 0, n/step+1)
	for start := 0; ; start += step {
		end := min(start+size, n)
		lo, hi := offsets[start], offsets[end]
		windows = append(windows, Window{Start: lo, End: hi, Content: text[lo:hi]})
		if end == n {
			break
		}
	}
	return windows
}

// Reconstruct concatenates windows produced by Split, dropping the overlapping prefixes.
func Reconstruct(windows []Window) string {
	if len(windows) == 0 {
		return ""
	}
	size := 0
	for _, w := range windows {
		size = max(size, w.End)
	}
	buf := make([]byte, 0, size)
	covered := 0
	for _, w := range windows {
		if w.End <= covered {
			continue
		}
		skip := max(covered-w.Start, 0)
		buf = append(buf, w.Content[skip:]...)
		covered = w.End
	}
	return string(buf)
}
