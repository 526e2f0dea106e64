package services

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	apperrors "github.com/coursemate/coursemate-backend/internal/pkg/errors"
	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
	"github.com/coursemate/coursemate-backend/internal/platform/chroma"
	"github.com/coursemate/coursemate-backend/internal/types"
)

type fakePrimaryStore struct {
	heartbeatErr error
	addErr       error
	queryErr     error
	getErr       error
	deleteErr    error

	added        []chroma.Document
	queryWheres  []map[string]any
	queryResults [][]chroma.QueryResult
	getIDs       []string
	deletedWhere []map[string]any
}

func (f *fakePrimaryStore) Heartbeat(ctx context.Context) error { return f.heartbeatErr }

func (f *fakePrimaryStore) Add(ctx context.Context, docs []chroma.Document) error {
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, docs...)
	return nil
}

func (f *fakePrimaryStore) Query(ctx context.Context, embedding []float32, limit int, where map[string]any) ([]chroma.QueryResult, error) {
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	f.queryWheres = append(f.queryWheres, where)
	if len(f.queryResults) == 0 {
		return []chroma.QueryResult{}, nil
	}
	next := f.queryResults[0]
	f.queryResults = f.queryResults[1:]
	return next, nil
}

func (f *fakePrimaryStore) GetIDs(ctx context.Context, where map[string]any, limit int) ([]string, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getIDs, nil
}

func (f *fakePrimaryStore) DeleteWhere(ctx context.Context, where map[string]any) error {
	f.deletedWhere = append(f.deletedWhere, where)
	return f.deleteErr
}

type fakeChunkRepo struct {
	chunks    []*types.MaterialChunk
	createErr error
	getErr    error
	deleteErr error
	deleted   []uuid.UUID
}

func (f *fakeChunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*types.MaterialChunk) ([]*types.MaterialChunk, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.chunks = append(f.chunks, chunks...)
	return chunks, nil
}

func (f *fakeChunkRepo) GetByMaterialID(ctx context.Context, tx *gorm.DB, materialID uuid.UUID, limit int) ([]*types.MaterialChunk, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	var out []*types.MaterialChunk
	for _, c := range f.chunks {
		if c.MaterialID == materialID {
			out = append(out, c)
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeChunkRepo) CountByMaterialID(ctx context.Context, tx *gorm.DB, materialID uuid.UUID, unit string) (int64, error) {
	var count int64
	for _, c := range f.chunks {
		if c.MaterialID == materialID && (unit == "" || c.Unit == unit) {
			count++
		}
	}
	return count, nil
}

func (f *fakeChunkRepo) DeleteByMaterialID(ctx context.Context, tx *gorm.DB, materialID uuid.UUID) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, materialID)
	var kept []*types.MaterialChunk
	for _, c := range f.chunks {
		if c.MaterialID != materialID {
			kept = append(kept, c)
		}
	}
	f.chunks = kept
	return nil
}

func newTestRecords(materialID uuid.UUID) []ChunkRecord {
	return []ChunkRecord{
		{
			MaterialID: materialID,
			ChunkIndex: 0,
			Unit:       "week-1",
			Title:      "Intro",
			Content:    "first chunk",
			Embedding:  []float32{1, 2, 3},
			TokenCount: 3,
			Metadata:   types.Metadata{"keywords": types.MetaStr("chunk")},
		},
		{
			MaterialID: materialID,
			ChunkIndex: 2,
			Unit:       "week-1",
			Title:      "Detail",
			Content:    "third chunk",
			Embedding:  []float32{4, 5, 6},
			TokenCount: 3,
		},
	}
}

func TestStoreChunksWritesPrimary(t *testing.T) {
	materialID := uuid.New()
	primary := &fakePrimaryStore{}
	repo := &fakeChunkRepo{}
	store := NewVectorStore(logger.NewNop(), primary, repo)

	err := store.StoreChunks(context.Background(), newTestRecords(materialID))
	require.NoError(t, err)
	require.Len(t, primary.added, 2)
	require.Empty(t, repo.chunks)

	first := primary.added[0]
	require.Equal(t, materialID.String()+"_0", first.ID)
	require.Equal(t, materialID.String(), first.Metadata["material_id"].Str)
	require.Equal(t, float64(0), first.Metadata["chunk_index"].Num)
	require.Equal(t, "week-1", first.Metadata["unit"].Str)
	require.Equal(t, "Intro", first.Metadata["title"].Str)
	require.Equal(t, "chunk", first.Metadata["keywords"].Str)

	// Sparse chunk indexes are preserved as-is.
	require.Equal(t, materialID.String()+"_2", primary.added[1].ID)
}

func TestStoreChunksFallsBackWhenPrimaryUnreachable(t *testing.T) {
	materialID := uuid.New()
	primary := &fakePrimaryStore{heartbeatErr: errors.New("connection refused")}
	repo := &fakeChunkRepo{}
	store := NewVectorStore(logger.NewNop(), primary, repo)

	err := store.StoreChunks(context.Background(), newTestRecords(materialID))
	require.NoError(t, err)
	require.Empty(t, primary.added)
	require.Len(t, repo.chunks, 2)
	require.Equal(t, 0, repo.chunks[0].ChunkIndex)
	require.Equal(t, 2, repo.chunks[1].ChunkIndex)

	var embedding []float32
	require.NoError(t, json.Unmarshal(repo.chunks[0].Embedding, &embedding))
	require.Equal(t, []float32{1, 2, 3}, embedding)
}

func TestStoreChunksFallsBackWhenAddFails(t *testing.T) {
	materialID := uuid.New()
	primary := &fakePrimaryStore{addErr: errors.New("dimension mismatch")}
	repo := &fakeChunkRepo{}
	store := NewVectorStore(logger.NewNop(), primary, repo)

	err := store.StoreChunks(context.Background(), newTestRecords(materialID))
	require.NoError(t, err)
	require.Len(t, repo.chunks, 2)
}

func TestStoreChunksRejectsEmptyInput(t *testing.T) {
	store := NewVectorStore(logger.NewNop(), &fakePrimaryStore{}, &fakeChunkRepo{})

	err := store.StoreChunks(context.Background(), nil)
	require.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	err = store.StoreChunks(context.Background(), []ChunkRecord{{MaterialID: uuid.New()}})
	require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
}

func TestSearchChunksRetriesWithoutUnit(t *testing.T) {
	materialID := uuid.New()
	primary := &fakePrimaryStore{
		queryResults: [][]chroma.QueryResult{
			{}, // unit-filtered query finds nothing
			{{ID: materialID.String() + "_0", Content: "hit", Distance: 0.2}},
		},
	}
	store := NewVectorStore(logger.NewNop(), primary, &fakeChunkRepo{})

	results, err := store.SearchChunks(context.Background(), []float32{1, 2, 3}, SearchFilters{
		MaterialID: materialID,
		Unit:       "week-9",
	}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "hit", results[0].Content)
	require.True(t, results[0].Ranked)

	require.Len(t, primary.queryWheres, 2)
	// First query carries both filters under $and, the retry only material_id.
	require.Contains(t, primary.queryWheres[0], "$and")
	require.Equal(t, map[string]any{"material_id": materialID.String()}, primary.queryWheres[1])
}

func TestSearchChunksPropagatesQueryError(t *testing.T) {
	primary := &fakePrimaryStore{queryErr: errors.New("store down")}
	store := NewVectorStore(logger.NewNop(), primary, &fakeChunkRepo{})

	_, err := store.SearchChunks(context.Background(), []float32{1, 2, 3}, SearchFilters{MaterialID: uuid.New()}, 5)
	require.Error(t, err)
}

func TestFallbackChunksAreUnranked(t *testing.T) {
	materialID := uuid.New()
	metadata, _ := json.Marshal(types.Metadata{"unit": types.MetaStr("week-1")})
	repo := &fakeChunkRepo{chunks: []*types.MaterialChunk{
		{ID: uuid.New(), MaterialID: materialID, ChunkIndex: 0, Title: "Intro", Content: "first", Metadata: metadata},
		{ID: uuid.New(), MaterialID: materialID, ChunkIndex: 1, Title: "More", Content: "second"},
		{ID: uuid.New(), MaterialID: uuid.New(), ChunkIndex: 0, Content: "other material"},
	}}
	store := NewVectorStore(logger.NewNop(), &fakePrimaryStore{}, repo)

	results, err := store.FallbackChunks(context.Background(), materialID, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, materialID.String()+"_0", results[0].VectorID)
	require.False(t, results[0].Ranked)
	require.Equal(t, "week-1", results[0].Metadata["unit"].Str)
	require.Equal(t, "second", results[1].Content)
}

func TestGetChunkCountPrefersPrimary(t *testing.T) {
	materialID := uuid.New()
	primary := &fakePrimaryStore{getIDs: []string{"a", "b", "c"}}
	repo := &fakeChunkRepo{chunks: []*types.MaterialChunk{
		{ID: uuid.New(), MaterialID: materialID},
	}}
	store := NewVectorStore(logger.NewNop(), primary, repo)

	count, err := store.GetChunkCount(context.Background(), materialID, "")
	require.NoError(t, err)
	require.Equal(t, 3, count)
}

func TestGetChunkCountFallsBack(t *testing.T) {
	materialID := uuid.New()
	primary := &fakePrimaryStore{getErr: errors.New("store down")}
	repo := &fakeChunkRepo{chunks: []*types.MaterialChunk{
		{ID: uuid.New(), MaterialID: materialID, Unit: "week-1"},
		{ID: uuid.New(), MaterialID: materialID, Unit: "week-2"},
	}}
	store := NewVectorStore(logger.NewNop(), primary, repo)

	count, err := store.GetChunkCount(context.Background(), materialID, "week-1")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestDeleteMaterialChunksSwallowsPrimaryError(t *testing.T) {
	materialID := uuid.New()
	primary := &fakePrimaryStore{deleteErr: errors.New("store down")}
	repo := &fakeChunkRepo{chunks: []*types.MaterialChunk{
		{ID: uuid.New(), MaterialID: materialID},
	}}
	store := NewVectorStore(logger.NewNop(), primary, repo)

	err := store.DeleteMaterialChunks(context.Background(), materialID)
	require.NoError(t, err)
	require.Empty(t, repo.chunks)
}

func TestDeleteMaterialChunksReportsRelationalError(t *testing.T) {
	repo := &fakeChunkRepo{deleteErr: errors.New("db down")}
	store := NewVectorStore(logger.NewNop(), &fakePrimaryStore{}, repo)

	err := store.DeleteMaterialChunks(context.Background(), uuid.New())
	require.Error(t, err)
}
