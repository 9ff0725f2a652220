package session

import (
	"slices"
	"strings"
)

// mergeOutput folds a new scanner_output value into the accumulated text.
// The backend may send the full cumulative output or only a recent window;
// either way lines already seen are not repeated. Without any overlap the
// chunk is appended.
func mergeOutput(acc, chunk string) string {
	chunk = strings.TrimRight(chunk, "\n")
	switch {
	case chunk == "":
		return acc
	case acc == "":
		return chunk
	case strings.HasPrefix(chunk, acc):
		return chunk
	case strings.HasSuffix(acc, chunk):
		return acc
	}

	a := strings.Split(acc, "\n")
	c := strings.Split(chunk, "\n")
	for k := min(len(a), len(c)); k > 0; k-- {
		if slices.Equal(a[len(a)-k:], c[:k]) {
			return strings.Join(append(a, c[k:]...), "\n")
		}
	}
	return acc + "\n" + chunk
}

// tailLines returns the last n non-empty lines of text.
func tailLines(text string, n int) []string {
	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) != "" {
			lines = append(lines, l)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines
}
