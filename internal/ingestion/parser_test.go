package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
)

func TestParseFileMarkdownPassthrough(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "notes.md")
	if err := os.WriteFile(path, []byte("# Title\r\nbody line\r\n"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	p := NewParser(logger.NewNop())
	result, err := p.ParseFile(context.Background(), path, "text/markdown")
	if err != nil {
		t.Fatalf("ParseFile: %v", err)
	}
	if result.Text != "# Title\nbody line" {
		t.Fatalf("text: got=%q", result.Text)
	}
	if result.PageCount != 1 {
		t.Fatalf("page count: want=1 got=%d", result.PageCount)
	}
}

func TestParseFileMissing(t *testing.T) {
	p := NewParser(logger.NewNop())
	if _, err := p.ParseFile(context.Background(), "/nonexistent/file.md", ""); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestParseEmptyDocument(t *testing.T) {
	p := NewParser(logger.NewNop())
	if _, err := p.Parse(context.Background(), nil, "text"); err == nil {
		t.Fatal("expected error for empty document")
	}
}

func TestDetectKind(t *testing.T) {
	cases := []struct {
		path, mime, want string
	}{
		{"a.pdf", "", "pdf"},
		{"a.bin", "application/pdf", "pdf"},
		{"a.md", "", "markdown"},
		{"a.MARKDOWN", "", "markdown"},
		{"a.txt", "", "text"},
		{"noext", "text/plain", "text"},
	}
	for _, tc := range cases {
		if got := detectKind(tc.path, tc.mime); got != tc.want {
			t.Fatalf("detectKind(%q, %q): want=%q got=%q", tc.path, tc.mime, tc.want, got)
		}
	}
}
