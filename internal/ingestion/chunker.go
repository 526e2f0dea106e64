// Package ingestion turns uploaded documents into retrieval-sized chunks.
package ingestion

import (
	"regexp"
	"sort"
	"strings"

	"github.com/coursemate/coursemate-backend/internal/types"
)

const (
	DefaultMaxTokensPerChunk = 3000
	DefaultMinTokensPerChunk = 100
	MethodByHeading          = "by-heading"
)

type ChunkConfig struct {
	MaxTokensPerChunk int
	MinTokensPerChunk int
	Method            string
	PreserveContext   bool
}

// Section is one chunk of a parsed document. The sequence produced for a
// given (text, config) pair is deterministic: chunk indexes and titles must
// be stable across re-embedding runs.
type Section struct {
	Title    string
	Content  string
	Tokens   int
	Metadata types.Metadata
}

type Chunker struct {
	cfg ChunkConfig
}

func NewChunker(cfg ChunkConfig) *Chunker {
	if cfg.MaxTokensPerChunk <= 0 {
		cfg.MaxTokensPerChunk = DefaultMaxTokensPerChunk
	}
	if cfg.MinTokensPerChunk <= 0 {
		cfg.MinTokensPerChunk = DefaultMinTokensPerChunk
	}
	if cfg.MinTokensPerChunk > cfg.MaxTokensPerChunk {
		cfg.MinTokensPerChunk = cfg.MaxTokensPerChunk / 4
	}
	if cfg.Method == "" {
		cfg.Method = MethodByHeading
	}
	return &Chunker{cfg: cfg}
}

// DefaultChunkConfig is the configuration the ingestion pipeline uses.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		MaxTokensPerChunk: DefaultMaxTokensPerChunk,
		MinTokensPerChunk: DefaultMinTokensPerChunk,
		Method:            MethodByHeading,
		PreserveContext:   true,
	}
}

var headingRe = regexp.MustCompile(`^(#{1,6})\s+(.*)$`)

type rawSection struct {
	title    string
	level    int
	chain    []string
	lines    []string
	hasSubs  bool
}

// Chunk splits text on heading boundaries, subdivides oversized sections and
// merges undersized neighbors.
func (c *Chunker) Chunk(text string) []Section {
	text = normalizeNewlines(strings.TrimSpace(text))
	if text == "" {
		return nil
	}

	raw := c.splitByHeadings(text)
	sections := make([]Section, 0, len(raw))
	for _, rs := range raw {
		content := strings.TrimSpace(strings.Join(rs.lines, "\n"))
		if content == "" && rs.title == "" {
			continue
		}
		for _, piece := range c.subdivide(content) {
			sections = append(sections, c.buildSection(rs, piece))
		}
	}

	return c.mergeTiny(sections)
}

func (c *Chunker) splitByHeadings(text string) []rawSection {
	lines := strings.Split(text, "\n")

	var out []rawSection
	var chain []string  // ancestor titles, indexed by depth
	var levels []int    // heading levels parallel to chain
	current := rawSection{level: 0}

	flush := func() {
		if current.title != "" || len(current.lines) > 0 {
			out = append(out, current)
		}
	}

	for _, line := range lines {
		m := headingRe.FindStringSubmatch(line)
		if m == nil {
			current.lines = append(current.lines, line)
			continue
		}
		level := len(m[1])
		title := strings.TrimSpace(m[2])

		flush()

		// Pop siblings and deeper entries, then push this heading.
		for len(levels) > 0 && levels[len(levels)-1] >= level {
			levels = levels[:len(levels)-1]
			chain = chain[:len(chain)-1]
		}
		parentChain := append([]string(nil), chain...)
		chain = append(chain, title)
		levels = append(levels, level)

		current = rawSection{
			title: title,
			level: level,
			chain: parentChain,
		}
	}
	flush()

	// A section has subsections when a deeper heading follows it before the
	// next heading at its own level or above.
	for i := range out {
		for j := i + 1; j < len(out); j++ {
			if out[j].level <= out[i].level {
				break
			}
			out[i].hasSubs = true
			break
		}
	}
	return out
}

// subdivide splits an oversized body on paragraph boundaries, falling back to
// a hard character split for a single paragraph that is still too large.
func (c *Chunker) subdivide(content string) []string {
	if content == "" {
		return []string{""}
	}
	if EstimateTokens(content) <= c.cfg.MaxTokensPerChunk {
		return []string{content}
	}

	paragraphs := strings.Split(content, "\n\n")
	var pieces []string
	var buf strings.Builder
	bufTokens := 0

	flush := func() {
		if buf.Len() > 0 {
			pieces = append(pieces, strings.TrimSpace(buf.String()))
			buf.Reset()
			bufTokens = 0
		}
	}

	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		pTokens := EstimateTokens(p)
		if pTokens > c.cfg.MaxTokensPerChunk {
			flush()
			pieces = append(pieces, hardSplit(p, c.cfg.MaxTokensPerChunk)...)
			continue
		}
		if bufTokens+pTokens > c.cfg.MaxTokensPerChunk {
			flush()
		}
		if buf.Len() > 0 {
			buf.WriteString("\n\n")
		}
		buf.WriteString(p)
		bufTokens += pTokens
	}
	flush()

	if len(pieces) == 0 {
		return []string{content}
	}
	return pieces
}

func hardSplit(text string, maxTokens int) []string {
	runes := []rune(text)
	window := maxTokens * charsPerToken
	if window <= 0 {
		return []string{text}
	}
	out := make([]string, 0, len(runes)/window+1)
	for start := 0; start < len(runes); start += window {
		end := start + window
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			out = append(out, piece)
		}
	}
	return out
}

func (c *Chunker) buildSection(rs rawSection, body string) Section {
	content := body
	if c.cfg.PreserveContext {
		var path []string
		path = append(path, rs.chain...)
		if rs.title != "" {
			path = append(path, rs.title)
		}
		if len(path) > 0 {
			prefix := strings.Join(path, " > ")
			if content == "" {
				content = prefix
			} else {
				content = prefix + "\n\n" + content
			}
		}
	}

	return Section{
		Title:   rs.title,
		Content: content,
		Tokens:  EstimateTokens(content),
		Metadata: types.Metadata{
			"heading_level":   types.MetaNum(float64(rs.level)),
			"has_subsections": types.MetaFlag(rs.hasSubs),
			"keywords":        types.MetaStr(strings.Join(topicKeywords(body, 5), ",")),
		},
	}
}

// mergeTiny folds sections below the minimum into an adjacent section, unless
// the merged result would exceed the maximum.
func (c *Chunker) mergeTiny(sections []Section) []Section {
	if len(sections) < 2 {
		return sections
	}
	out := make([]Section, 0, len(sections))
	for _, s := range sections {
		if len(out) > 0 && s.Tokens < c.cfg.MinTokensPerChunk {
			prev := &out[len(out)-1]
			if prev.Tokens+s.Tokens <= c.cfg.MaxTokensPerChunk {
				prev.Content = prev.Content + "\n\n" + s.Content
				prev.Tokens = EstimateTokens(prev.Content)
				continue
			}
		}
		if len(out) > 0 {
			prev := &out[len(out)-1]
			if prev.Tokens < c.cfg.MinTokensPerChunk && prev.Tokens+s.Tokens <= c.cfg.MaxTokensPerChunk {
				// A leading tiny section adopts the following section's title.
				s.Content = prev.Content + "\n\n" + s.Content
				s.Tokens = EstimateTokens(s.Content)
				out[len(out)-1] = s
				continue
			}
		}
		out = append(out, s)
	}
	return out
}

const charsPerToken = 4

// EstimateTokens is a cheap length heuristic; exact counts are owned by the
// embedding model.
func EstimateTokens(text string) int {
	n := len(text)
	if n == 0 {
		return 0
	}
	return (n + charsPerToken - 1) / charsPerToken
}

var keywordStop = map[string]struct{}{
	"about": {}, "after": {}, "again": {}, "their": {}, "there": {},
	"these": {}, "thing": {}, "those": {}, "under": {}, "until": {},
	"where": {}, "which": {}, "while": {}, "would": {}, "between": {},
	"because": {}, "before": {}, "being": {}, "could": {}, "should": {},
	"through": {}, "other": {}, "every": {},
}

var wordRe = regexp.MustCompile(`[a-zA-Z]{5,}`)

// topicKeywords returns the most frequent content words, most frequent first,
// ties broken alphabetically for determinism.
func topicKeywords(text string, limit int) []string {
	counts := map[string]int{}
	for _, w := range wordRe.FindAllString(strings.ToLower(text), -1) {
		if _, stop := keywordStop[w]; stop {
			continue
		}
		counts[w]++
	}
	words := make([]string, 0, len(counts))
	for w := range counts {
		words = append(words, w)
	}
	sort.Slice(words, func(i, j int) bool {
		if counts[words[i]] != counts[words[j]] {
			return counts[words[i]] > counts[words[j]]
		}
		return words[i] < words[j]
	})
	if len(words) > limit {
		words = words[:limit]
	}
	return words
}

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
