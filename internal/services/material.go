package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	apperrors "github.com/coursemate/coursemate-backend/internal/pkg/errors"
	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
	"github.com/coursemate/coursemate-backend/internal/repos"
	"github.com/coursemate/coursemate-backend/internal/types"
	"github.com/coursemate/coursemate-backend/internal/utils"
)

const maxUploadBytes = 50 << 20

type CreateMaterialInput struct {
	CourseID     uuid.UUID
	Unit         string
	OriginalName string
	MimeType     string
	Data         []byte
}

// MaterialView is a material row plus its live chunk count.
type MaterialView struct {
	Material   *types.Material `json:"material"`
	ChunkCount int             `json:"chunk_count"`
}

type MaterialService interface {
	CreateFromUpload(ctx context.Context, input CreateMaterialInput) (*types.Material, error)
	Get(ctx context.Context, materialID uuid.UUID) (*MaterialView, error)
}

type materialService struct {
	log          *logger.Logger
	materialRepo repos.MaterialRepo
	store        VectorStore
	materialsDir string
}

func NewMaterialService(baseLog *logger.Logger, materialRepo repos.MaterialRepo, store VectorStore) MaterialService {
	log := baseLog.With("service", "MaterialService")
	return &materialService{
		log:          log,
		materialRepo: materialRepo,
		store:        store,
		materialsDir: utils.GetEnv("MATERIALS_DIR", "./data/materials", log),
	}
}

// CreateFromUpload persists the raw file and its material row. Parsing and
// embedding are not started here; the caller schedules the pipeline.
func (s *materialService) CreateFromUpload(ctx context.Context, input CreateMaterialInput) (*types.Material, error) {
	if input.CourseID == uuid.Nil {
		return nil, fmt.Errorf("%w: course_id is required", apperrors.ErrInvalidArgument)
	}
	if input.OriginalName == "" {
		return nil, fmt.Errorf("%w: file name is required", apperrors.ErrInvalidArgument)
	}
	if len(input.Data) == 0 {
		return nil, fmt.Errorf("%w: file is empty", apperrors.ErrInvalidArgument)
	}
	if len(input.Data) > maxUploadBytes {
		return nil, fmt.Errorf("%w: file exceeds %d bytes", apperrors.ErrInvalidArgument, maxUploadBytes)
	}

	if err := os.MkdirAll(s.materialsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create materials dir: %w", err)
	}

	materialID := uuid.New()
	storagePath := filepath.Join(s.materialsDir, materialID.String()+filepath.Ext(input.OriginalName))
	if err := os.WriteFile(storagePath, input.Data, 0o644); err != nil {
		return nil, fmt.Errorf("write upload: %w", err)
	}

	material := &types.Material{
		ID:            materialID,
		CourseID:      input.CourseID,
		Unit:          input.Unit,
		OriginalName:  input.OriginalName,
		MimeType:      input.MimeType,
		SizeBytes:     int64(len(input.Data)),
		StoragePath:   storagePath,
		ParsingStatus: types.StatusPending,
	}
	created, err := s.materialRepo.Create(ctx, nil, material)
	if err != nil {
		if removeErr := os.Remove(storagePath); removeErr != nil {
			s.log.Warn("Orphaned upload cleanup failed", "path", storagePath, "error", removeErr)
		}
		return nil, err
	}
	return created, nil
}

func (s *materialService) Get(ctx context.Context, materialID uuid.UUID) (*MaterialView, error) {
	material, err := s.materialRepo.GetByID(ctx, nil, materialID)
	if err != nil {
		return nil, err
	}
	count, err := s.store.GetChunkCount(ctx, materialID, "")
	if err != nil {
		s.log.Warn("Chunk count lookup failed", "material_id", materialID, "error", err)
		count = 0
	}
	return &MaterialView{Material: material, ChunkCount: count}, nil
}
