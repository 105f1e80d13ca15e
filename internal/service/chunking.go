package service

import "strings"

// ChunkConfig controls how extracted text is split for embedding. Sizes are in runes.
type ChunkConfig struct {
	Size    int
	Overlap int
}

// DefaultChunkConfig returns 1000-rune chunks overlapping by 200.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{Size: 1000, Overlap: 200}
}

// Span is a half-open rune range [Start, End) of the source text.
type Span struct {
	Start int
	End   int
}

// separators in order of preference; raw rune cuts come last.
var separators = [][]rune{
	[]rune("\n\n"),
	[]rune("\n"),
	[]rune(". "),
	[]rune("! "),
	[]rune("? "),
	[]rune(" "),
}

// SplitText splits text into overlapping chunks of at most cfg.Size runes.
func SplitText(text string, cfg ChunkConfig) []string {
	runes := []rune(text)
	spans := splitRunes(runes, cfg)
	chunks := make([]string, len(spans))
	for i, s := range spans {
		chunks[i] = string(runes[s.Start:s.End])
	}
	return chunks
}

// SplitSpans is SplitText returning rune offsets instead of strings.
func SplitSpans(text string, cfg ChunkConfig) []Span {
	return splitRunes([]rune(text), cfg)
}

func splitRunes(runes []rune, cfg ChunkConfig) []Span {
	if len(runes) == 0 {
		return nil
	}
	if cfg.Size <= 0 {
		cfg = DefaultChunkConfig()
	}
	if cfg.Overlap < 0 {
		cfg.Overlap = 0
	}

	s := splitter{runes: runes, size: cfg.Size}
	ends := s.pieces(0, len(runes), separators, nil)
	return merge(ends, cfg)
}

type splitter struct {
	runes []rune
	size  int
}

// pieces appends the end offsets of pieces covering [lo, hi), each no longer
// than size. Separators stay attached to the piece they terminate.
func (s splitter) pieces(lo, hi int, seps [][]rune, out []int) []int {
	if hi-lo <= s.size {
		return append(out, hi)
	}

	for i, sep := range seps {
		cuts := s.cutsAfter(lo, hi, sep)
		if len(cuts) == 0 {
			continue
		}
		prev := lo
		for _, end := range append(cuts, hi) {
			if end-prev <= s.size {
				out = append(out, end)
			} else {
				out = s.pieces(prev, end, seps[i+1:], out)
			}
			prev = end
		}
		return out
	}

	for end := lo + s.size; end < hi; end += s.size {
		out = append(out, end)
	}
	return append(out, hi)
}

// cutsAfter returns the offsets right after each occurrence of sep inside [lo, hi).
func (s splitter) cutsAfter(lo, hi int, sep []rune) []int {
	var cuts []int
	for i := lo; i+len(sep) <= hi; i++ {
		if !hasPrefix(s.runes[i:hi], sep) {
			continue
		}
		end := i + len(sep)
		if end < hi {
			cuts = append(cuts, end)
		}
		i = end - 1
	}
	return cuts
}

func hasPrefix(runes, prefix []rune) bool {
	if len(runes) < len(prefix) {
		return false
	}
	for i, r := range prefix {
		if runes[i] != r {
			return false
		}
	}
	return true
}

// merge packs consecutive pieces into chunks. When a chunk is emitted, the
// trailing pieces that fit in the overlap budget open the next one.
func merge(ends []int, cfg ChunkConfig) []Span {
	starts := make([]int, len(ends))
	for i := range ends {
		if i > 0 {
			starts[i] = ends[i-1]
		}
	}
	length := func(i int) int { return ends[i] - starts[i] }

	var spans []Span
	first, total := 0, 0
	for i := range ends {
		if total+length(i) > cfg.Size && i > first {
			spans = append(spans, Span{Start: starts[first], End: ends[i-1]})
			for first < i && (total > cfg.Overlap || total+length(i) > cfg.Size) {
				total -= length(first)
				first++
			}
		}
		total += length(i)
	}
	if total > 0 {
		spans = append(spans, Span{Start: starts[first], End: ends[len(ends)-1]})
	}
	return spans
}

// hasText reports whether s holds anything besides whitespace.
func hasText(s string) bool {
	return strings.TrimSpace(s) != ""
}
