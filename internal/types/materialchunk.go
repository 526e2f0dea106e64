package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type MaterialChunk struct {
	ID         uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	MaterialID uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_material_chunk_pos,priority:1" json:"material_id"`
	Material   *Material      `gorm:"constraint:OnDelete:CASCADE;foreignKey:MaterialID;references:ID" json:"material,omitempty"`
	ChunkIndex int            `gorm:"column:chunk_index;not null;uniqueIndex:idx_material_chunk_pos,priority:2" json:"chunk_index"`
	Unit       string         `gorm:"column:unit;index" json:"unit"`
	Title      string         `gorm:"column:title" json:"title"`
	Content    string         `gorm:"column:content;type:text;not null" json:"content"`
	Embedding  datatypes.JSON `gorm:"type:jsonb;column:embedding" json:"embedding"`
	TokenCount int            `gorm:"column:token_count" json:"token_count"`
	Metadata   datatypes.JSON `gorm:"type:jsonb;column:metadata" json:"metadata"`
	CreatedAt  time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt  time.Time      `gorm:"not null;default:now()" json:"updated_at"`
}

func (MaterialChunk) TableName() string { return "material_chunk" }

// VectorID is the primary-store document key for this chunk.
func (c *MaterialChunk) VectorID() string {
	return ChunkVectorID(c.MaterialID, c.ChunkIndex)
}

func ChunkVectorID(materialID uuid.UUID, chunkIndex int) string {
	return fmt.Sprintf("%s_%d", materialID.String(), chunkIndex)
}
