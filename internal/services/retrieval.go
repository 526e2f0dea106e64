package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
)

const defaultRetrievalLimit = 5

// RetrievalService answers "give me the most relevant chunks for this
// question". It degrades instead of failing: when the embedding backend or
// the primary store is down, it falls back to positional relational reads and
// returns whatever it can.
type RetrievalService interface {
	Query(ctx context.Context, materialID uuid.UUID, unit, text string, limit int) ([]string, error)
	QueryResults(ctx context.Context, materialID uuid.UUID, unit, text string, limit int) ([]RetrievalResult, error)
}

type retrievalService struct {
	log     *logger.Logger
	gateway EmbeddingGateway
	store   VectorStore
}

func NewRetrievalService(baseLog *logger.Logger, gateway EmbeddingGateway, store VectorStore) RetrievalService {
	return &retrievalService{
		log:     baseLog.With("service", "RetrievalService"),
		gateway: gateway,
		store:   store,
	}
}

func (s *retrievalService) Query(ctx context.Context, materialID uuid.UUID, unit, text string, limit int) ([]string, error) {
	results, err := s.QueryResults(ctx, materialID, unit, text, limit)
	if err != nil {
		return nil, err
	}
	contents := make([]string, 0, len(results))
	for _, result := range results {
		contents = append(contents, result.Content)
	}
	return contents, nil
}

func (s *retrievalService) QueryResults(ctx context.Context, materialID uuid.UUID, unit, text string, limit int) ([]RetrievalResult, error) {
	if limit <= 0 {
		limit = defaultRetrievalLimit
	}

	embedding, err := s.gateway.GenerateEmbedding(ctx, text)
	if err != nil {
		s.log.Warn("Query embedding failed, using fallback reads", "material_id", materialID, "error", err)
		return s.fallback(ctx, materialID, limit)
	}

	results, err := s.store.SearchChunks(ctx, embedding.Embedding, SearchFilters{
		MaterialID: materialID,
		Unit:       unit,
	}, limit)
	if err != nil {
		s.log.Warn("Semantic search failed, using fallback reads", "material_id", materialID, "error", err)
		return s.fallback(ctx, materialID, limit)
	}
	if len(results) == 0 {
		return s.fallback(ctx, materialID, limit)
	}
	return results, nil
}

// fallback reads twice the requested limit because positional order is a
// weaker signal than similarity.
func (s *retrievalService) fallback(ctx context.Context, materialID uuid.UUID, limit int) ([]RetrievalResult, error) {
	results, err := s.store.FallbackChunks(ctx, materialID, limit*2)
	if err != nil {
		s.log.Error("Fallback reads failed", "material_id", materialID, "error", err)
		return []RetrievalResult{}, nil
	}
	return results, nil
}
