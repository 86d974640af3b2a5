package infra

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestSplitMarker(t *testing.T) {
	query := "--sql 0b54e1e6-6f0c-4c5c-9d6e-6a1f0e2b9a11\nselect 1;\n"
	marker, stmt, err := SplitMarker(query)
	if err != nil {
		t.Fatalf("SplitMarker error: %v", err)
	}
	if marker != "0b54e1e6-6f0c-4c5c-9d6e-6a1f0e2b9a11" {
		t.Fatalf("marker mismatch: %q", marker)
	}
	if strings.TrimSpace(stmt) != "select 1;" {
		t.Fatalf("statement mismatch: %q", stmt)
	}
}

func TestSplitMarkerRejectsUnmarkedQuery(t *testing.T) {
	_, _, err := SplitMarker("select 1;")
	if !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("expected ErrMissingMarker, got %v", err)
	}
	if _, _, err := SplitMarker("   "); err == nil {
		t.Fatalf("expected error for empty query")
	}
}

func TestErrorRowReturnsMarkerError(t *testing.T) {
	var r SQLRunner
	row := r.QueryRow(context.Background(), "select 1;")
	if err := row.Scan(); !errors.Is(err, ErrMissingMarker) {
		t.Fatalf("expected ErrMissingMarker, got %v", err)
	}
}
