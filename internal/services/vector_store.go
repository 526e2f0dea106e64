package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	apperrors "github.com/coursemate/coursemate-backend/internal/pkg/errors"
	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
	"github.com/coursemate/coursemate-backend/internal/platform/chroma"
	"github.com/coursemate/coursemate-backend/internal/repos"
	"github.com/coursemate/coursemate-backend/internal/types"
)

// PrimaryStore is the subset of the chroma adapter the vector store depends
// on. *chroma.Store satisfies it.
type PrimaryStore interface {
	Heartbeat(ctx context.Context) error
	Add(ctx context.Context, docs []chroma.Document) error
	Query(ctx context.Context, embedding []float32, limit int, where map[string]any) ([]chroma.QueryResult, error)
	GetIDs(ctx context.Context, where map[string]any, limit int) ([]string, error)
	DeleteWhere(ctx context.Context, where map[string]any) error
}

type ChunkRecord struct {
	MaterialID uuid.UUID
	ChunkIndex int
	Unit       string
	Title      string
	Content    string
	Embedding  []float32
	TokenCount int
	Metadata   types.Metadata
}

// RetrievalResult is one retrieved chunk. Ranked is false when the chunk came
// from the relational fallback, where position stands in for similarity.
type RetrievalResult struct {
	VectorID string
	Content  string
	Title    string
	Metadata types.Metadata
	Distance float64
	Ranked   bool
}

type SearchFilters struct {
	MaterialID uuid.UUID
	Unit       string
}

type VectorStore interface {
	StoreChunks(ctx context.Context, records []ChunkRecord) error
	SearchChunks(ctx context.Context, embedding []float32, filters SearchFilters, limit int) ([]RetrievalResult, error)
	FallbackChunks(ctx context.Context, materialID uuid.UUID, limit int) ([]RetrievalResult, error)
	DeleteMaterialChunks(ctx context.Context, materialID uuid.UUID) error
	GetChunkCount(ctx context.Context, materialID uuid.UUID, unit string) (int, error)
}

type vectorStore struct {
	log       *logger.Logger
	primary   PrimaryStore
	chunkRepo repos.MaterialChunkRepo
}

func NewVectorStore(baseLog *logger.Logger, primary PrimaryStore, chunkRepo repos.MaterialChunkRepo) VectorStore {
	return &vectorStore{
		log:       baseLog.With("service", "VectorStore"),
		primary:   primary,
		chunkRepo: chunkRepo,
	}
}

// StoreChunks writes records to the primary store, falling back to relational
// rows when the primary is unreachable or rejects the write. Records with
// empty embeddings are rejected up front.
func (s *vectorStore) StoreChunks(ctx context.Context, records []ChunkRecord) error {
	if len(records) == 0 {
		return fmt.Errorf("%w: no chunks to store", apperrors.ErrInvalidArgument)
	}
	for _, record := range records {
		if len(record.Embedding) == 0 {
			return fmt.Errorf("%w: chunk %d has no embedding", apperrors.ErrInvalidArgument, record.ChunkIndex)
		}
	}

	if err := s.primary.Heartbeat(ctx); err != nil {
		s.log.Warn("Primary store unreachable, writing chunks to fallback", "error", err)
		return s.storeFallback(ctx, records)
	}

	docs := make([]chroma.Document, 0, len(records))
	for _, record := range records {
		docs = append(docs, chroma.Document{
			ID:        types.ChunkVectorID(record.MaterialID, record.ChunkIndex),
			Content:   record.Content,
			Embedding: record.Embedding,
			Metadata:  s.identityMetadata(record),
		})
	}
	if err := s.primary.Add(ctx, docs); err != nil {
		s.log.Warn("Primary store write failed, writing chunks to fallback", "error", err)
		return s.storeFallback(ctx, records)
	}
	return nil
}

func (s *vectorStore) identityMetadata(record ChunkRecord) types.Metadata {
	metadata := types.Metadata{}
	for key, value := range record.Metadata {
		metadata[key] = value
	}
	metadata["material_id"] = types.MetaStr(record.MaterialID.String())
	metadata["chunk_index"] = types.MetaNum(float64(record.ChunkIndex))
	if record.Unit != "" {
		metadata["unit"] = types.MetaStr(record.Unit)
	}
	if record.Title != "" {
		metadata["title"] = types.MetaStr(record.Title)
	}
	metadata["token_count"] = types.MetaNum(float64(record.TokenCount))
	return metadata
}

func (s *vectorStore) storeFallback(ctx context.Context, records []ChunkRecord) error {
	chunks := make([]*types.MaterialChunk, 0, len(records))
	for _, record := range records {
		embedding, err := json.Marshal(record.Embedding)
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		metadata, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		chunks = append(chunks, &types.MaterialChunk{
			ID:         uuid.New(),
			MaterialID: record.MaterialID,
			ChunkIndex: record.ChunkIndex,
			Unit:       record.Unit,
			Title:      record.Title,
			Content:    record.Content,
			Embedding:  embedding,
			TokenCount: record.TokenCount,
			Metadata:   metadata,
		})
	}
	_, err := s.chunkRepo.Create(ctx, nil, chunks)
	return err
}

// SearchChunks queries the primary store. When the unit filter yields no
// hits, the search is retried once without it before giving up.
func (s *vectorStore) SearchChunks(ctx context.Context, embedding []float32, filters SearchFilters, limit int) ([]RetrievalResult, error) {
	if limit <= 0 {
		limit = 5
	}

	where := map[string]any{}
	if filters.MaterialID != uuid.Nil {
		where["material_id"] = chroma.CoerceFilterValue(filters.MaterialID.String())
	}
	if filters.Unit != "" {
		where["unit"] = chroma.CoerceFilterValue(filters.Unit)
	}

	results, err := s.primary.Query(ctx, embedding, limit, chroma.ComposeWhere(where))
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && filters.Unit != "" {
		delete(where, "unit")
		results, err = s.primary.Query(ctx, embedding, limit, chroma.ComposeWhere(where))
		if err != nil {
			return nil, err
		}
	}

	out := make([]RetrievalResult, 0, len(results))
	for _, result := range results {
		out = append(out, RetrievalResult{
			VectorID: result.ID,
			Content:  result.Content,
			Title:    result.Metadata["title"].Coerce(),
			Metadata: result.Metadata,
			Distance: result.Distance,
			Ranked:   true,
		})
	}
	return out, nil
}

// FallbackChunks reads chunks relationally in document order. No similarity
// ranking applies; position is the only ordering.
func (s *vectorStore) FallbackChunks(ctx context.Context, materialID uuid.UUID, limit int) ([]RetrievalResult, error) {
	chunks, err := s.chunkRepo.GetByMaterialID(ctx, nil, materialID, limit)
	if err != nil {
		return nil, err
	}
	out := make([]RetrievalResult, 0, len(chunks))
	for _, chunk := range chunks {
		metadata := types.Metadata{}
		if len(chunk.Metadata) > 0 {
			if err := json.Unmarshal(chunk.Metadata, &metadata); err != nil {
				s.log.Warn("Skipping unreadable chunk metadata", "chunk_id", chunk.ID, "error", err)
				metadata = types.Metadata{}
			}
		}
		out = append(out, RetrievalResult{
			VectorID: chunk.VectorID(),
			Content:  chunk.Content,
			Title:    chunk.Title,
			Metadata: metadata,
			Ranked:   false,
		})
	}
	return out, nil
}

// DeleteMaterialChunks removes a material's chunks from both stores. Primary
// deletion failures are logged and swallowed so the relational delete always
// runs; the relational error is the one reported.
func (s *vectorStore) DeleteMaterialChunks(ctx context.Context, materialID uuid.UUID) error {
	where := map[string]any{"material_id": chroma.CoerceFilterValue(materialID.String())}
	if err := s.primary.DeleteWhere(ctx, where); err != nil {
		s.log.Warn("Primary store delete failed", "material_id", materialID, "error", err)
	}
	return s.chunkRepo.DeleteByMaterialID(ctx, nil, materialID)
}

// GetChunkCount counts a material's chunks in the primary store, falling back
// to the relational count when the primary cannot answer.
func (s *vectorStore) GetChunkCount(ctx context.Context, materialID uuid.UUID, unit string) (int, error) {
	where := map[string]any{"material_id": chroma.CoerceFilterValue(materialID.String())}
	if unit != "" {
		where["unit"] = chroma.CoerceFilterValue(unit)
	}
	ids, err := s.primary.GetIDs(ctx, chroma.ComposeWhere(where), 0)
	if err == nil {
		return len(ids), nil
	}
	s.log.Warn("Primary store count failed, using fallback count", "material_id", materialID, "error", err)

	count, err := s.chunkRepo.CountByMaterialID(ctx, nil, materialID, unit)
	if err != nil {
		return 0, err
	}
	return int(count), nil
}
