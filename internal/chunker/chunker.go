// Package chunker splits an oversized Fragment's content into overlapping,
// semantically aware sub-fragments. It never touches the network or the
// vector store; callers pipe its output into the embedding client.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Mode selects which splitting strategy Split uses.
type Mode string

const (
	// ModeSemantic accumulates whole lines into the current chunk,
	// flushing before the next line would overflow max_chunk_size, and
	// carries the trailing overlap span forward as the next chunk's
	// prefix. The default for source and prose.
	ModeSemantic Mode = "semantic"
	// ModeFixed emits [start, start+max_chunk_size) windows with
	// overlap_size overlap, independent of line boundaries.
	ModeFixed Mode = "fixed"
)

// Options configures a single Split call. Split substitutes
// DefaultMaxChunkSize(Language) when MaxChunkSize <= 0 and treats a
// negative OverlapSize as 0; DefaultOverlapSize supplies a size-based
// overlap for callers that want one.
type Options struct {
	Mode         Mode
	MaxChunkSize int
	OverlapSize  int

	// AddContextInfo prepends the "Package: ... | Chunk: i/N" line to
	// every emitted chunk when true.
	AddContextInfo bool
	Language       string
	Package        string
	Version        string
	FilePath       string
}

// Chunk is one emitted sub-fragment of a larger fragment's content.
type Chunk struct {
	Index   int
	Total   int
	Content string
}

// LanguageClass buckets languages into the four size tiers spec.md §4.3
// names by example. Unrecognized languages fall back to ClassScripting,
// the spec's middle tier.
type LanguageClass string

const (
	ClassCompiled LanguageClass = "compiled"
	ClassScripting LanguageClass = "scripting"
	ClassMarkup    LanguageClass = "markup"
	ClassConfig    LanguageClass = "config"
)

var languageClasses = map[string]LanguageClass{
	"go":     ClassCompiled,
	"rust":   ClassCompiled,
	"c":      ClassCompiled,
	"cpp":    ClassCompiled,
	"java":   ClassCompiled,
	"python": ClassScripting,
	"ruby":   ClassScripting,
	"npm":    ClassScripting,
	"javascript": ClassScripting,
	"typescript": ClassScripting,
	"markdown": ClassMarkup,
	"rst":      ClassMarkup,
	"yaml": ClassConfig,
	"toml": ClassConfig,
	"json": ClassConfig,
}

const (
	compiledMaxChunkSize  = 10 * 1024
	scriptingMaxChunkSize = 8 * 1024
	markupMaxChunkSize    = 6 * 1024
	configMaxChunkSize    = 4 * 1024
)

// DefaultMaxChunkSize returns the §4.3 per-language max_chunk_size for the
// given ecosystem language identifier.
func DefaultMaxChunkSize(language string) int {
	switch languageClasses[strings.ToLower(language)] {
	case ClassCompiled:
		return compiledMaxChunkSize
	case ClassMarkup:
		return markupMaxChunkSize
	case ClassConfig:
		return configMaxChunkSize
	default:
		return scriptingMaxChunkSize
	}
}

// DefaultOverlapSize scales overlap with the content size per spec.md
// §4.3: >=50KiB -> 1KiB overlap; <5KiB -> 256 chars; linear in between.
func DefaultOverlapSize(contentLen int) int {
	const (
		largeThreshold = 50 * 1024
		smallThreshold = 5 * 1024
		largeOverlap   = 1024
		smallOverlap   = 256
	)
	switch {
	case contentLen >= largeThreshold:
		return largeOverlap
	case contentLen < smallThreshold:
		return smallOverlap
	default:
		span := largeThreshold - smallThreshold
		frac := float64(contentLen-smallThreshold) / float64(span)
		return smallOverlap + int(frac*float64(largeOverlap-smallOverlap))
	}
}

// Split applies opt to content, producing at least one Chunk (even for
// empty content). It is deterministic: identical (content, opt) always
// produces an identical sequence.
func Split(content string, opt Options) []Chunk {
	if opt.MaxChunkSize <= 0 {
		opt.MaxChunkSize = DefaultMaxChunkSize(opt.Language)
	}
	if opt.OverlapSize < 0 {
		opt.OverlapSize = 0
	}

	var raw []string
	if content == "" {
		raw = []string{""}
	} else if opt.Mode == ModeFixed {
		raw = splitFixed(content, opt.MaxChunkSize, opt.OverlapSize)
	} else {
		raw = splitSemantic(content, opt.MaxChunkSize, opt.OverlapSize)
	}

	chunks := make([]Chunk, len(raw))
	for i, body := range raw {
		c := Chunk{Index: i, Total: len(raw), Content: body}
		if opt.AddContextInfo {
			c.Content = contextPrefix(opt, i, len(raw)) + body
		}
		chunks[i] = c
	}
	return chunks
}

func contextPrefix(opt Options, i, total int) string {
	return fmt.Sprintf("Package: %s | Version: %s | Language: %s | File: %s | Chunk: %d/%d\n",
		opt.Package, opt.Version, opt.Language, opt.FilePath, i+1, total)
}

// splitFixed emits rune-boundary-safe [start, start+size) windows with
// overlap, matching the teacher's windowed splitter.
func splitFixed(text string, size, overlap int) []string {
	if overlap >= size {
		overlap = size - 1
	}
	if overlap < 0 {
		overlap = 0
	}
	step := size - overlap
	if step <= 0 {
		step = 1
	}

	idxs := make([]int, 0, utf8.RuneCountInString(text)+1)
	idxs = append(idxs, 0)
	for i := 0; i < len(text); {
		_, w := utf8.DecodeRuneInString(text[i:])
		i += w
		idxs = append(idxs, i)
	}

	var chunks []string
	for start := 0; start < len(idxs)-1; start += step {
		end := start + size
		if end >= len(idxs)-1 {
			end = len(idxs) - 1
		}
		if end <= start {
			break
		}
		chunks = append(chunks, text[idxs[start]:idxs[end]])
		if end == len(idxs)-1 {
			break
		}
	}
	if len(chunks) == 0 {
		chunks = []string{text}
	}
	return chunks
}

// splitSemantic accumulates whole lines into the current chunk, flushing
// before the next line would overflow maxSize, then carries the trailing
// overlap bytes of the flushed chunk forward as the next chunk's prefix.
// This preserves line integrity, per spec.md §4.3.
func splitSemantic(text string, maxSize, overlap int) []string {
	lines := strings.SplitAfter(text, "\n")

	var chunks []string
	var buf strings.Builder

	flush := func() string {
		s := buf.String()
		buf.Reset()
		return s
	}

	for _, line := range lines {
		if line == "" {
			continue
		}
		if len(line) > maxSize {
			// A single line longer than maxSize can't preserve line
			// integrity without violating the max-size invariant either
			// way; fall back to fixed-windowing just this line so no
			// chunk it contributes exceeds maxSize.
			if buf.Len() > 0 {
				flushed := flush()
				chunks = append(chunks, flushed)
			}
			sub := splitFixed(line, maxSize, overlap)
			chunks = append(chunks, sub...)
			if len(sub) > 0 {
				buf.WriteString(carryForward(sub[len(sub)-1], overlap))
			}
			continue
		}
		if buf.Len() > 0 && buf.Len()+len(line) > maxSize {
			flushed := flush()
			chunks = append(chunks, flushed)
			buf.WriteString(carryForward(flushed, overlap))
		}
		buf.WriteString(line)
	}
	if buf.Len() > 0 || len(chunks) == 0 {
		chunks = append(chunks, flush())
	}
	return chunks
}

// carryForward returns the trailing span of s no longer than overlap
// bytes, trimmed forward to just after the first newline inside that span
// so it starts at a line start; when the span holds no newline it is
// returned as is, mid-line start included.
func carryForward(s string, overlap int) string {
	if overlap <= 0 || s == "" {
		return ""
	}
	if len(s) <= overlap {
		return s
	}
	tail := s[len(s)-overlap:]
	if i := strings.Index(tail, "\n"); i >= 0 && i+1 < len(tail) {
		return tail[i+1:]
	}
	return tail
}
