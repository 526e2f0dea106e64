package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
	"github.com/coursemate/coursemate-backend/internal/types"
)

type MaterialChunkRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chunks []*types.MaterialChunk) ([]*types.MaterialChunk, error)
	GetByMaterialID(ctx context.Context, tx *gorm.DB, materialID uuid.UUID, limit int) ([]*types.MaterialChunk, error)
	CountByMaterialID(ctx context.Context, tx *gorm.DB, materialID uuid.UUID, unit string) (int64, error)
	DeleteByMaterialID(ctx context.Context, tx *gorm.DB, materialID uuid.UUID) error
}

type materialChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMaterialChunkRepo(db *gorm.DB, baseLog *logger.Logger) MaterialChunkRepo {
	return &materialChunkRepo{db: db, log: baseLog.With("repo", "MaterialChunkRepo")}
}

func (r *materialChunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*types.MaterialChunk) ([]*types.MaterialChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return []*types.MaterialChunk{}, nil
	}

	// Keep batches small because Content is large. Re-embedding deletes and
	// recreates the chunk set, so a concurrent writer racing on the same
	// (material_id, chunk_index) is skipped rather than erroring out.
	const batchSize = 100

	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "material_id"}, {Name: "chunk_index"}},
			DoNothing: true,
		}).
		CreateInBatches(chunks, batchSize).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *materialChunkRepo) GetByMaterialID(ctx context.Context, tx *gorm.DB, materialID uuid.UUID, limit int) ([]*types.MaterialChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.MaterialChunk
	q := transaction.WithContext(ctx).
		Where("material_id = ?", materialID).
		Order("chunk_index ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *materialChunkRepo) CountByMaterialID(ctx context.Context, tx *gorm.DB, materialID uuid.UUID, unit string) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	q := transaction.WithContext(ctx).
		Model(&types.MaterialChunk{}).
		Where("material_id = ?", materialID)
	if unit != "" {
		q = q.Where("unit = ?", unit)
	}
	if err := q.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *materialChunkRepo) DeleteByMaterialID(ctx context.Context, tx *gorm.DB, materialID uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	return transaction.WithContext(ctx).
		Where("material_id = ?", materialID).
		Delete(&types.MaterialChunk{}).Error
}
