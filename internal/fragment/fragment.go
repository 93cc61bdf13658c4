// Package fragment defines the canonical in-memory representation of a
// file-scoped documentation unit. It is pure data: no I/O, no network,
// no knowledge of any particular language adapter or store backend.
package fragment

import (
	"path"
	"strings"
	"time"
	"unicode/utf8"
)

// Kind classifies a Fragment by the role its source file plays within a
// package, inferred from path heuristics at construction time.
type Kind string

const (
	KindSource        Kind = "source"
	KindTest          Kind = "test"
	KindExample       Kind = "example"
	KindDocumentation Kind = "documentation"
	KindConfiguration Kind = "configuration"
	KindOther         Kind = "other"
)

// Fragment represents one logical documentation file within a package
// version. Its id is globally unique and canonical:
// "<language>/<package>/<version>/<file_path>".
type Fragment struct {
	ID       string
	Language string
	Package  string
	Version  string
	FilePath string

	// HierarchyPath is the ordered sequence of path segments from the
	// package root, used for filtered retrieval. After construction,
	// HierarchyPath[0] == Package and HierarchyPath[1] == Version.
	HierarchyPath []string

	Content string
	Kind    Kind

	// OtherTag holds the free-form tag when Kind == KindOther. Unused
	// otherwise; New never produces KindOther on its own (the path
	// heuristics in §4.1 always resolve to one of the other five), but
	// callers constructing fragments from an unrecognized extension by
	// hand may tag them this way.
	OtherTag string

	CreatedAt time.Time
}

// docExtensions and configExtensions implement the path heuristics from
// spec.md §4.1: extension in {md, rst, txt, adoc} -> Documentation;
// {json, yaml, yml, toml, ini, cfg} -> Configuration.
var docExtensions = map[string]bool{
	".md": true, ".rst": true, ".txt": true, ".adoc": true,
}

var configExtensions = map[string]bool{
	".json": true, ".yaml": true, ".yml": true, ".toml": true, ".ini": true, ".cfg": true,
}

// New builds a Fragment, inferring Kind from filePath. content must be
// valid UTF-8; callers are responsible for rejecting invalid input before
// calling New — this constructor performs no I/O and no validation beyond
// the no-op case of an already-invalid string (New never panics, but an
// invalid-UTF-8 content is passed through unchanged since validation is
// the caller's job per spec.md §4.1).
func New(language, pkg, version, filePath, content string) Fragment {
	id := language + "/" + pkg + "/" + version + "/" + filePath
	hierarchy := append([]string{pkg, version}, strings.Split(filePath, "/")...)

	return Fragment{
		ID:            id,
		Language:      language,
		Package:       pkg,
		Version:       version,
		FilePath:      filePath,
		HierarchyPath: hierarchy,
		Content:       content,
		Kind:          inferKind(filePath),
		CreatedAt:     time.Now().UTC(),
	}
}

// ValidUTF8 reports whether content is valid UTF-8; callers reject input
// failing this check before it ever reaches New.
func ValidUTF8(content string) bool {
	return utf8.ValidString(content)
}

func inferKind(filePath string) Kind {
	lower := strings.ToLower(filePath)

	if strings.Contains(lower, "test") || strings.Contains(lower, "spec") {
		return KindTest
	}
	if strings.Contains(lower, "example") || strings.Contains(lower, "demo") {
		return KindExample
	}

	ext := strings.ToLower(path.Ext(filePath))
	if docExtensions[ext] {
		return KindDocumentation
	}
	if configExtensions[ext] {
		return KindConfiguration
	}
	return KindSource
}

// Stem returns the file name without its extension.
func (f Fragment) Stem() string {
	base := path.Base(f.FilePath)
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext)
}

// Extension returns the file's extension, including the leading dot, or
// "" if there is none.
func (f Fragment) Extension() string {
	return path.Ext(f.FilePath)
}

// Directory returns the file's containing directory within the package,
// "." for a file at the package root.
func (f Fragment) Directory() string {
	return path.Dir(f.FilePath)
}
