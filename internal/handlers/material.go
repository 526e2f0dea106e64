package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
	"github.com/coursemate/coursemate-backend/internal/services"
)

type MaterialHandler struct {
	log             *logger.Logger
	materialService services.MaterialService
	pipeline        services.IngestionPipeline
}

func NewMaterialHandler(log *logger.Logger, msvc services.MaterialService, pipeline services.IngestionPipeline) *MaterialHandler {
	return &MaterialHandler{
		log:             log.With("handler", "MaterialHandler"),
		materialService: msvc,
		pipeline:        pipeline,
	}
}

// POST /api/materials
// Multipart upload. Responds as soon as the row exists; parsing and embedding
// run in the background and are observable on the status fields.
func (h *MaterialHandler) Upload(c *gin.Context) {
	courseID, err := uuid.Parse(c.PostForm("course_id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("course_id must be a uuid"))
		return
	}
	unit := c.PostForm("unit")

	fileHeader, err := c.FormFile("file")
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}

	material, err := h.materialService.CreateFromUpload(c.Request.Context(), services.CreateMaterialInput{
		CourseID:     courseID,
		Unit:         unit,
		OriginalName: fileHeader.Filename,
		MimeType:     fileHeader.Header.Get("Content-Type"),
		Data:         data,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}

	if err := h.pipeline.Start(c.Request.Context(), material.ID); err != nil {
		h.log.Warn("Pipeline scheduling failed", "material_id", material.ID, "error", err)
		RespondError(c, http.StatusServiceUnavailable, "queue_full", errors.New("ingestion queue is full, retry later"))
		return
	}

	c.JSON(http.StatusAccepted, material)
}

// GET /api/materials/:id
func (h *MaterialHandler) Get(c *gin.Context) {
	materialID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("id must be a uuid"))
		return
	}
	view, err := h.materialService.Get(c.Request.Context(), materialID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, view)
}

// GET /api/materials/:id/status
// Lightweight polling endpoint for upload UIs.
func (h *MaterialHandler) GetStatus(c *gin.Context) {
	materialID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("id must be a uuid"))
		return
	}
	view, err := h.materialService.Get(c.Request.Context(), materialID)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{
		"material_id":      view.Material.ID,
		"parsing_status":   view.Material.ParsingStatus,
		"parsing_error":    view.Material.ParsingError,
		"embedding_status": view.Material.EmbeddingStatus,
		"embedding_error":  view.Material.EmbeddingError,
		"chunk_count":      view.ChunkCount,
	})
}

// POST /api/materials/:id/reembed
func (h *MaterialHandler) Reembed(c *gin.Context) {
	materialID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("id must be a uuid"))
		return
	}
	if err := h.pipeline.Reembed(c.Request.Context(), materialID); err != nil {
		RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

// DELETE /api/materials/:id
func (h *MaterialHandler) Delete(c *gin.Context) {
	materialID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("id must be a uuid"))
		return
	}
	if err := h.pipeline.Teardown(c.Request.Context(), materialID); err != nil {
		RespondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
