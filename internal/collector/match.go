package collector

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"genbatch/internal/naming"
)

// Matcher lists files under root that may belong to the job with prefix.
// Returned paths are relative to root and slash separated.
type Matcher interface {
	Match(root, prefix string) ([]string, error)
}

// MatcherFunc adapts a function to Matcher.
type MatcherFunc func(root, prefix string) ([]string, error)

func (f MatcherFunc) Match(root, prefix string) ([]string, error) { return f(root, prefix) }

var defaultExtensions = []string{"png", "jpg", "jpeg", "webp"}

// GlobMatcher finds files named <prefix>_*.<ext> at any depth below root.
// ComfyUI appends "_<counter>_" to the save prefix, so anchoring on the
// separator keeps prefix p_a1 from matching p_a10's files.
type GlobMatcher struct {
	Extensions []string
}

func (g GlobMatcher) Match(root, prefix string) ([]string, error) {
	exts := g.Extensions
	if len(exts) == 0 {
		exts = defaultExtensions
	}
	pattern := fmt.Sprintf("**/%s_*.{%s}", escapeMeta(prefix), strings.Join(exts, ","))
	matches, err := doublestar.Glob(os.DirFS(root), pattern)
	if err != nil {
		return nil, fmt.Errorf("collector: glob %s: %w", pattern, err)
	}
	return matches, nil
}

func escapeMeta(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '{', '}', '\\', ',':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Layout maps a destination name and artifact extension to a storage key.
type Layout interface {
	Key(name, ext string) string
}

// ProductLayout places artifacts at <Subdir>/<slug>_ai_generated<ext>.
type ProductLayout struct {
	Subdir string
}

func (l ProductLayout) Key(name, ext string) string {
	base := naming.Slug(name) + "_ai_generated" + strings.ToLower(ext)
	if l.Subdir == "" {
		return base
	}
	return filepath.ToSlash(filepath.Join(l.Subdir, base))
}
