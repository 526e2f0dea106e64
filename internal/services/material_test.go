package services

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	apperrors "github.com/coursemate/coursemate-backend/internal/pkg/errors"
	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
	"github.com/coursemate/coursemate-backend/internal/types"
)

func TestCreateFromUploadPersistsFileAndRow(t *testing.T) {
	t.Setenv("MATERIALS_DIR", t.TempDir())
	repo := &fakeMaterialRepo{}
	svc := NewMaterialService(logger.NewNop(), repo, &fakeVectorStore{})

	material, err := svc.CreateFromUpload(context.Background(), CreateMaterialInput{
		CourseID:     uuid.New(),
		Unit:         "week-1",
		OriginalName: "lecture.pdf",
		MimeType:     "application/pdf",
		Data:         []byte("%PDF-1.4 raw bytes"),
	})
	require.NoError(t, err)
	require.Equal(t, types.StatusPending, material.ParsingStatus)
	require.Empty(t, material.EmbeddingStatus)
	require.Equal(t, int64(18), material.SizeBytes)

	raw, err := os.ReadFile(material.StoragePath)
	require.NoError(t, err)
	require.Equal(t, []byte("%PDF-1.4 raw bytes"), raw)
}

func TestCreateFromUploadValidation(t *testing.T) {
	t.Setenv("MATERIALS_DIR", t.TempDir())
	svc := NewMaterialService(logger.NewNop(), &fakeMaterialRepo{}, &fakeVectorStore{})

	cases := []struct {
		name  string
		input CreateMaterialInput
	}{
		{"missing course", CreateMaterialInput{OriginalName: "a.md", Data: []byte("x")}},
		{"missing name", CreateMaterialInput{CourseID: uuid.New(), Data: []byte("x")}},
		{"empty file", CreateMaterialInput{CourseID: uuid.New(), OriginalName: "a.md"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateFromUpload(context.Background(), tc.input)
			require.ErrorIs(t, err, apperrors.ErrInvalidArgument)
		})
	}
}

func TestGetIncludesChunkCount(t *testing.T) {
	t.Setenv("MATERIALS_DIR", t.TempDir())
	materialID := uuid.New()
	repo := &fakeMaterialRepo{material: &types.Material{ID: materialID, ParsingStatus: types.StatusCompleted}}
	svc := NewMaterialService(logger.NewNop(), repo, &fakeVectorStore{count: 7})

	view, err := svc.Get(context.Background(), materialID)
	require.NoError(t, err)
	require.Equal(t, 7, view.ChunkCount)
	require.Equal(t, materialID, view.Material.ID)
}

func TestGetUnknownMaterial(t *testing.T) {
	t.Setenv("MATERIALS_DIR", t.TempDir())
	svc := NewMaterialService(logger.NewNop(), &fakeMaterialRepo{}, &fakeVectorStore{})

	_, err := svc.Get(context.Background(), uuid.New())
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}
