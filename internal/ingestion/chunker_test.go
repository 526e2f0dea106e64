package ingestion

import (
	"strings"
	"testing"

	"github.com/coursemate/coursemate-backend/internal/types"
)

func TestChunkSplitsOnHeadings(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxTokensPerChunk: 1000, MinTokensPerChunk: 1})

	text := "intro text\n" +
		"# Alpha\n" +
		"alpha body\n" +
		"## Beta\n" +
		"beta body\n" +
		"# Gamma\n" +
		"gamma body"

	sections := c.Chunk(text)
	if len(sections) != 4 {
		t.Fatalf("sections length: want=4 got=%d", len(sections))
	}

	wantTitles := []string{"", "Alpha", "Beta", "Gamma"}
	wantContents := []string{"intro text", "alpha body", "beta body", "gamma body"}
	wantLevels := []float64{0, 1, 2, 1}
	wantSubs := []bool{true, true, false, false}
	for i, s := range sections {
		if s.Title != wantTitles[i] {
			t.Fatalf("section %d title: want=%q got=%q", i, wantTitles[i], s.Title)
		}
		if s.Content != wantContents[i] {
			t.Fatalf("section %d content: want=%q got=%q", i, wantContents[i], s.Content)
		}
		if s.Metadata["heading_level"].Num != wantLevels[i] {
			t.Fatalf("section %d heading_level: want=%v got=%v", i, wantLevels[i], s.Metadata["heading_level"].Num)
		}
		if s.Metadata["has_subsections"].Bool != wantSubs[i] {
			t.Fatalf("section %d has_subsections: want=%v got=%v", i, wantSubs[i], s.Metadata["has_subsections"].Bool)
		}
	}
}

func TestChunkPreserveContextPrefixesAncestorChain(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxTokensPerChunk: 1000, MinTokensPerChunk: 1, PreserveContext: true})

	sections := c.Chunk("# Alpha\nalpha body\n## Beta\nbeta body")
	if len(sections) != 2 {
		t.Fatalf("sections length: want=2 got=%d", len(sections))
	}
	if sections[0].Content != "Alpha\n\nalpha body" {
		t.Fatalf("top section content: got=%q", sections[0].Content)
	}
	if sections[1].Content != "Alpha > Beta\n\nbeta body" {
		t.Fatalf("nested section content: got=%q", sections[1].Content)
	}
}

func TestChunkSubdividesOversizedSection(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxTokensPerChunk: 10, MinTokensPerChunk: 1})

	p1 := strings.TrimSpace(strings.Repeat("aaaa ", 6))
	p2 := strings.TrimSpace(strings.Repeat("bbbb ", 6))
	p3 := strings.TrimSpace(strings.Repeat("cccc ", 6))
	text := "# Big\n" + p1 + "\n\n" + p2 + "\n\n" + p3

	sections := c.Chunk(text)
	if len(sections) != 3 {
		t.Fatalf("sections length: want=3 got=%d", len(sections))
	}
	wantContents := []string{p1, p2, p3}
	for i, s := range sections {
		// Subdivided pieces keep the parent section's title.
		if s.Title != "Big" {
			t.Fatalf("section %d title: want=%q got=%q", i, "Big", s.Title)
		}
		if s.Content != wantContents[i] {
			t.Fatalf("section %d content: want=%q got=%q", i, wantContents[i], s.Content)
		}
	}
}

func TestChunkMergesTinyTrailingSection(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxTokensPerChunk: 1000, MinTokensPerChunk: 5})

	sections := c.Chunk("# One\nthis is a long enough body for one section\n# Two\ntiny")
	if len(sections) != 1 {
		t.Fatalf("sections length: want=1 got=%d", len(sections))
	}
	if sections[0].Title != "One" {
		t.Fatalf("title: want=%q got=%q", "One", sections[0].Title)
	}
	if !strings.Contains(sections[0].Content, "tiny") {
		t.Fatalf("merged content missing folded section: got=%q", sections[0].Content)
	}
}

func TestChunkLeadingTinySectionAdoptsNextTitle(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxTokensPerChunk: 1000, MinTokensPerChunk: 5})

	sections := c.Chunk("# Tiny\ntiny\n# Big\nthis is a long enough body for the big one")
	if len(sections) != 1 {
		t.Fatalf("sections length: want=1 got=%d", len(sections))
	}
	if sections[0].Title != "Big" {
		t.Fatalf("title: want=%q got=%q", "Big", sections[0].Title)
	}
	if !strings.HasPrefix(sections[0].Content, "tiny") {
		t.Fatalf("merged content must keep document order: got=%q", sections[0].Content)
	}
}

func TestChunkIsDeterministic(t *testing.T) {
	c := NewChunker(DefaultChunkConfig())
	text := "# Entropy\nentropy measures disorder, entropy always grows\n\n# Enthalpy\nenthalpy tracks total heat content"

	first := c.Chunk(text)
	second := c.Chunk(text)
	if len(first) != len(second) {
		t.Fatalf("run lengths differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Title != second[i].Title || first[i].Content != second[i].Content {
			t.Fatalf("section %d differs between runs", i)
		}
		if first[i].Metadata["keywords"].Str != second[i].Metadata["keywords"].Str {
			t.Fatalf("section %d keywords differ between runs", i)
		}
	}
}

func TestChunkEmptyInput(t *testing.T) {
	c := NewChunker(DefaultChunkConfig())
	if got := c.Chunk(""); got != nil {
		t.Fatalf("empty input: want nil got=%v", got)
	}
	if got := c.Chunk("  \n\t "); got != nil {
		t.Fatalf("whitespace input: want nil got=%v", got)
	}
}

func TestChunkKeywordsRankByFrequency(t *testing.T) {
	c := NewChunker(ChunkConfig{MaxTokensPerChunk: 1000, MinTokensPerChunk: 1})

	sections := c.Chunk("# Thermo\nentropy entropy entropy measures disorder in closed systems")
	if len(sections) != 1 {
		t.Fatalf("sections length: want=1 got=%d", len(sections))
	}
	keywords := sections[0].Metadata["keywords"]
	if keywords.Kind != types.MetaString {
		t.Fatalf("keywords kind: got=%v", keywords.Kind)
	}
	if !strings.HasPrefix(keywords.Str, "entropy") {
		t.Fatalf("most frequent word must rank first: got=%q", keywords.Str)
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Fatalf("empty: want=0 got=%d", got)
	}
	if got := EstimateTokens("abcd"); got != 1 {
		t.Fatalf("4 chars: want=1 got=%d", got)
	}
	if got := EstimateTokens("abcde"); got != 2 {
		t.Fatalf("5 chars: want=2 got=%d", got)
	}
}
