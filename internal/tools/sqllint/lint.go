package main

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	sqlKeyword    = regexp.MustCompile(`(?i)\b(select|insert|update|delete|with|create|alter|drop)\b`)
	markerPattern = regexp.MustCompile(`^--sql [0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
)

type finding struct {
	file    string
	line    int
	name    string
	message string
}

func (f finding) String() string {
	return fmt.Sprintf("%s:%d %s (%s)", f.file, f.line, f.message, f.name)
}

// linter accumulates findings across files. Markers are tracked globally so a
// query copied into another package is caught.
type linter struct {
	markers  map[string]finding
	findings []finding
}

func newLinter() *linter {
	return &linter{markers: make(map[string]finding)}
}

func (l *linter) lint(target string) error {
	info, err := os.Stat(target)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return l.lintTree(target)
	}
	if filepath.Ext(target) != ".go" {
		return nil
	}
	return l.lintFile(target)
}

func (l *linter) lintTree(root string) error {
	files, err := doublestar.Glob(os.DirFS(root), "**/*.go")
	if err != nil {
		return fmt.Errorf("glob %s: %w", root, err)
	}
	for _, rel := range files {
		if skipped(rel) {
			continue
		}
		if err := l.lintFile(filepath.Join(root, filepath.FromSlash(rel))); err != nil {
			return err
		}
	}
	return nil
}

// skipped reports whether rel sits below a hidden or vendored directory.
func skipped(rel string) bool {
	dirs := strings.Split(rel, "/")
	for _, d := range dirs[:len(dirs)-1] {
		if strings.HasPrefix(d, ".") || d == "vendor" || d == "node_modules" {
			return true
		}
	}
	return false
}

func (l *linter) lintFile(path string) error {
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, path, nil, parser.SkipObjectResolution)
	if err != nil {
		return err
	}
	ast.Inspect(file, func(n ast.Node) bool {
		spec, ok := n.(*ast.ValueSpec)
		if !ok {
			return true
		}
		for i, value := range spec.Values {
			query, ok := stringValue(value)
			if !ok || !sqlKeyword.MatchString(query) {
				continue
			}
			name := "_"
			if i < len(spec.Names) {
				name = spec.Names[i].Name
			}
			l.check(path, fset.Position(value.Pos()).Line, name, query)
		}
		return true
	})
	return nil
}

func (l *linter) check(file string, line int, name, query string) {
	f := finding{file: file, line: line, name: name}
	marker, _, _ := strings.Cut(strings.TrimSpace(query), "\n")
	marker = strings.TrimSpace(marker)
	if !markerPattern.MatchString(marker) {
		f.message = "missing or invalid --sql <uuid> marker"
		l.findings = append(l.findings, f)
		return
	}
	if first, dup := l.markers[marker]; dup {
		f.message = fmt.Sprintf("marker reused from %s:%d (%s)", first.file, first.line, first.name)
		l.findings = append(l.findings, f)
		return
	}
	l.markers[marker] = f
}

// stringValue folds string literals and their concatenations.
func stringValue(expr ast.Expr) (string, bool) {
	switch e := expr.(type) {
	case *ast.BasicLit:
		if e.Kind != token.STRING {
			return "", false
		}
		s, err := strconv.Unquote(e.Value)
		return s, err == nil
	case *ast.ParenExpr:
		return stringValue(e.X)
	case *ast.BinaryExpr:
		if e.Op != token.ADD {
			return "", false
		}
		x, ok := stringValue(e.X)
		if !ok {
			return "", false
		}
		y, ok := stringValue(e.Y)
		return x + y, ok
	}
	return "", false
}
