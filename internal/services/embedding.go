package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/coursemate/coursemate-backend/internal/ingestion"
	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
	"github.com/coursemate/coursemate-backend/internal/types"
)

const (
	// embedBatchSize bounds concurrent calls against the inference backend.
	embedBatchSize = 3
	// interBatchPause gives the backend room to breathe between batches.
	interBatchPause = 200 * time.Millisecond
	// maxEmbedChars caps the text sent on every embedding call.
	maxEmbedChars = 8000
)

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type EmbeddingResult struct {
	Embedding  []float32
	TokenCount int
}

// EmbeddedChunk pairs one chunk with its vector. A chunk whose embedding call
// failed is returned with an empty vector instead of aborting the run;
// callers must filter on non-empty vectors before persisting.
type EmbeddedChunk struct {
	Title      string
	Content    string
	Embedding  []float32
	TokenCount int
	Metadata   types.Metadata
}

type ChunkAndEmbedOptions struct {
	Chunking   ingestion.ChunkConfig
	OnProgress func(current, total int)
}

type EmbeddingGateway interface {
	GenerateEmbedding(ctx context.Context, text string) (EmbeddingResult, error)
	ChunkAndEmbed(ctx context.Context, content, unit string, opts ChunkAndEmbedOptions) ([]EmbeddedChunk, error)
}

type embeddingGateway struct {
	log    *logger.Logger
	client EmbeddingClient
}

func NewEmbeddingGateway(baseLog *logger.Logger, client EmbeddingClient) EmbeddingGateway {
	return &embeddingGateway{
		log:    baseLog.With("service", "EmbeddingGateway"),
		client: client,
	}
}

func (g *embeddingGateway) GenerateEmbedding(ctx context.Context, text string) (EmbeddingResult, error) {
	text = truncateForEmbedding(text)
	embedding, err := g.client.Embed(ctx, text)
	if err != nil {
		return EmbeddingResult{}, err
	}
	return EmbeddingResult{
		Embedding:  embedding,
		TokenCount: ingestion.EstimateTokens(text),
	}, nil
}

// ChunkAndEmbed splits content and embeds each chunk. Calls run concurrently
// within a fixed-size batch; batches run strictly sequentially, bounding peak
// load on the inference backend to the batch size.
func (g *embeddingGateway) ChunkAndEmbed(ctx context.Context, content, unit string, opts ChunkAndEmbedOptions) ([]EmbeddedChunk, error) {
	sections := ingestion.NewChunker(opts.Chunking).Chunk(content)
	total := len(sections)

	out := make([]EmbeddedChunk, total)
	for i, section := range sections {
		metadata := types.Metadata{}
		for key, value := range section.Metadata {
			metadata[key] = value
		}
		if unit != "" {
			metadata["unit"] = types.MetaStr(unit)
		}
		out[i] = EmbeddedChunk{
			Title:      section.Title,
			Content:    section.Content,
			TokenCount: section.Tokens,
			Metadata:   metadata,
		}
	}

	var progressMu sync.Mutex
	completed := 0
	reportProgress := func() {
		if opts.OnProgress == nil {
			return
		}
		progressMu.Lock()
		completed++
		current := completed
		progressMu.Unlock()
		opts.OnProgress(current, total)
	}

	for start := 0; start < total; start += embedBatchSize {
		end := start + embedBatchSize
		if end > total {
			end = total
		}

		var group errgroup.Group
		for i := start; i < end; i++ {
			chunk := &out[i]
			index := i
			group.Go(func() error {
				result, err := g.GenerateEmbedding(ctx, chunk.Content)
				if err != nil {
					// Failure isolation: keep the chunk with an empty vector
					// so one bad call does not abort the whole document.
					g.log.Warn("Chunk embedding failed",
						"chunk_index", index,
						"title", chunk.Title,
						"error", err,
					)
					chunk.Embedding = []float32{}
				} else {
					chunk.Embedding = result.Embedding
				}
				reportProgress()
				return nil
			})
		}
		_ = group.Wait()

		if end < total {
			select {
			case <-ctx.Done():
				return out[:end], ctx.Err()
			case <-time.After(interBatchPause):
			}
		}
	}

	return out, nil
}

func truncateForEmbedding(text string) string {
	runes := []rune(text)
	if len(runes) <= maxEmbedChars {
		return text
	}
	return string(runes[:maxEmbedChars])
}
