package ingestion

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
)

// ParseResult is the black-box output of document parsing: normalized text,
// a markdown rendering, and page metadata.
type ParseResult struct {
	Text      string
	Markdown  string
	PageCount int
}

type Parser struct {
	log *logger.Logger
}

func NewParser(baseLog *logger.Logger) *Parser {
	return &Parser{log: baseLog.With("service", "DocumentParser")}
}

// ParseFile extracts normalized text from a stored upload. Markdown and
// plain text pass through; PDFs are extracted page by page.
func (p *Parser) ParseFile(ctx context.Context, path, mimeType string) (ParseResult, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return ParseResult{}, fmt.Errorf("read material file: %w", err)
	}
	return p.Parse(ctx, raw, detectKind(path, mimeType))
}

func (p *Parser) Parse(ctx context.Context, raw []byte, kind string) (ParseResult, error) {
	if len(raw) == 0 {
		return ParseResult{}, fmt.Errorf("empty document")
	}
	switch kind {
	case "pdf":
		return parsePDF(raw)
	default:
		text := normalizeNewlines(strings.TrimSpace(string(raw)))
		return ParseResult{
			Text:      text,
			Markdown:  text,
			PageCount: 1,
		}, nil
	}
}

func parsePDF(raw []byte) (ParseResult, error) {
	reader, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return ParseResult{}, fmt.Errorf("open pdf: %w", err)
	}

	var buf bytes.Buffer
	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return ParseResult{}, fmt.Errorf("extract pdf page %d: %w", i, err)
		}
		buf.WriteString(text)
		if i < numPages {
			buf.WriteByte('\n')
		}
	}

	text := normalizeNewlines(strings.TrimSpace(buf.String()))
	return ParseResult{
		Text:      text,
		Markdown:  text,
		PageCount: numPages,
	}, nil
}

func detectKind(path, mimeType string) string {
	if strings.Contains(mimeType, "pdf") {
		return "pdf"
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "pdf"
	case ".md", ".markdown":
		return "markdown"
	default:
		return "text"
	}
}
