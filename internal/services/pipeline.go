package services

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	redisclient "github.com/coursemate/coursemate-backend/internal/clients/redis"
	"github.com/coursemate/coursemate-backend/internal/ingestion"
	"github.com/coursemate/coursemate-backend/internal/jobs"
	apperrors "github.com/coursemate/coursemate-backend/internal/pkg/errors"
	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
	"github.com/coursemate/coursemate-backend/internal/repos"
	"github.com/coursemate/coursemate-backend/internal/types"
)

const (
	StageParsing   = "parsing"
	StageEmbedding = "embedding"
)

// IngestionPipeline drives a material through parse and embed in the
// background. Every outcome lands on the material row's status columns; the
// request that scheduled the work never sees a pipeline error.
type IngestionPipeline interface {
	Start(ctx context.Context, materialID uuid.UUID) error
	Reembed(ctx context.Context, materialID uuid.UUID) error
	Teardown(ctx context.Context, materialID uuid.UUID) error
}

type ingestionPipeline struct {
	log          *logger.Logger
	queue        *jobs.Queue
	parser       *ingestion.Parser
	gateway      EmbeddingGateway
	store        VectorStore
	materialRepo repos.MaterialRepo
	bus          redisclient.StatusBus
}

func NewIngestionPipeline(
	baseLog *logger.Logger,
	queue *jobs.Queue,
	parser *ingestion.Parser,
	gateway EmbeddingGateway,
	store VectorStore,
	materialRepo repos.MaterialRepo,
	bus redisclient.StatusBus,
) IngestionPipeline {
	return &ingestionPipeline{
		log:          baseLog.With("service", "IngestionPipeline"),
		queue:        queue,
		parser:       parser,
		gateway:      gateway,
		store:        store,
		materialRepo: materialRepo,
		bus:          bus,
	}
}

func (p *ingestionPipeline) Start(ctx context.Context, materialID uuid.UUID) error {
	err := p.queue.Submit(jobs.Task{
		Name: fmt.Sprintf("ingest:%s", materialID),
		Run: func(taskCtx context.Context) error {
			return p.processMaterial(taskCtx, materialID)
		},
	})
	if err != nil {
		// Without this the row would sit in pending forever.
		p.setParsing(ctx, materialID, types.StatusFailed, "ingestion could not be scheduled")
		return err
	}
	return nil
}

// Reembed re-runs the embedding stage for an already-parsed material. A
// material whose embedding already completed is a no-op success. Parsing must
// have completed with non-empty content, and a run already in flight is
// rejected.
func (p *ingestionPipeline) Reembed(ctx context.Context, materialID uuid.UUID) error {
	material, err := p.materialRepo.GetByID(ctx, nil, materialID)
	if err != nil {
		return err
	}
	if material.EmbeddingStatus == types.StatusCompleted {
		return nil
	}
	if material.ParsingStatus != types.StatusCompleted {
		return fmt.Errorf("%w: material is not parsed yet", apperrors.ErrInvalidArgument)
	}
	if strings.TrimSpace(material.ParsedContent) == "" {
		return fmt.Errorf("%w: material has no parsed content", apperrors.ErrInvalidArgument)
	}
	if material.EmbeddingStatus == types.StatusProcessing {
		return fmt.Errorf("%w: embedding already in progress", apperrors.ErrInvalidArgument)
	}

	return p.queue.Submit(jobs.Task{
		Name: fmt.Sprintf("reembed:%s", materialID),
		Run: func(taskCtx context.Context) error {
			return p.runEmbedding(taskCtx, materialID, material.ParsedContent, material.Unit)
		},
	})
}

// Teardown removes everything belonging to a material. Chunk and file cleanup
// are best effort; only the material row delete decides the return value.
func (p *ingestionPipeline) Teardown(ctx context.Context, materialID uuid.UUID) error {
	material, err := p.materialRepo.GetByID(ctx, nil, materialID)
	if err != nil {
		return err
	}

	if err := p.store.DeleteMaterialChunks(ctx, materialID); err != nil {
		p.log.Warn("Chunk cleanup failed during teardown", "material_id", materialID, "error", err)
	}
	if material.StoragePath != "" {
		if err := os.Remove(material.StoragePath); err != nil && !os.IsNotExist(err) {
			p.log.Warn("File cleanup failed during teardown", "path", material.StoragePath, "error", err)
		}
	}
	return p.materialRepo.FullDeleteByID(ctx, nil, materialID)
}

func (p *ingestionPipeline) processMaterial(ctx context.Context, materialID uuid.UUID) error {
	material, err := p.materialRepo.GetByID(ctx, nil, materialID)
	if err != nil {
		return fmt.Errorf("load material: %w", err)
	}

	p.setParsing(ctx, materialID, types.StatusProcessing, "")

	result, err := p.parser.ParseFile(ctx, material.StoragePath, material.MimeType)
	if err != nil {
		p.log.Error("Parsing failed", "material_id", materialID, "error", err)
		p.setParsing(ctx, materialID, types.StatusFailed, err.Error())
		return nil
	}

	if err := p.materialRepo.UpdateFields(ctx, nil, materialID, map[string]interface{}{
		"parsed_content": result.Text,
		"page_count":     result.PageCount,
		"parsing_status": types.StatusCompleted,
		"parsing_error":  "",
	}); err != nil {
		p.log.Error("Persisting parsed content failed", "material_id", materialID, "error", err)
		p.setParsing(ctx, materialID, types.StatusFailed, "failed to persist parsed content")
		return nil
	}
	p.publish(ctx, materialID, StageParsing, types.StatusCompleted, "")

	if strings.TrimSpace(result.Text) == "" {
		p.log.Warn("Parsed content is empty, skipping embedding", "material_id", materialID)
		return nil
	}

	return p.runEmbedding(ctx, materialID, result.Text, material.Unit)
}

func (p *ingestionPipeline) runEmbedding(ctx context.Context, materialID uuid.UUID, content, unit string) error {
	p.setEmbedding(ctx, materialID, types.StatusProcessing, "")

	// Delete-then-recreate keeps re-embedding idempotent in both stores.
	if err := p.store.DeleteMaterialChunks(ctx, materialID); err != nil {
		p.log.Warn("Stale chunk cleanup failed", "material_id", materialID, "error", err)
	}

	started := time.Now()
	embedded, err := p.gateway.ChunkAndEmbed(ctx, content, unit, ChunkAndEmbedOptions{
		Chunking: ingestion.DefaultChunkConfig(),
		OnProgress: func(current, total int) {
			if current == total || current%10 == 0 {
				p.log.Info("Embedding progress", "material_id", materialID, "current", current, "total", total)
			}
		},
	})
	if err != nil {
		p.log.Error("Embedding run aborted", "material_id", materialID, "error", err)
		p.setEmbedding(ctx, materialID, types.StatusFailed, err.Error())
		return nil
	}

	records := make([]ChunkRecord, 0, len(embedded))
	for i, chunk := range embedded {
		if len(chunk.Embedding) == 0 {
			continue
		}
		records = append(records, ChunkRecord{
			MaterialID: materialID,
			ChunkIndex: i,
			Unit:       unit,
			Title:      chunk.Title,
			Content:    chunk.Content,
			Embedding:  chunk.Embedding,
			TokenCount: chunk.TokenCount,
			Metadata:   chunk.Metadata,
		})
	}

	if len(records) == 0 {
		p.log.Error("No chunks survived embedding", "material_id", materialID, "attempted", len(embedded))
		p.setEmbedding(ctx, materialID, types.StatusFailed, "no chunks could be embedded, material is not searchable")
		return nil
	}

	if err := p.store.StoreChunks(ctx, records); err != nil {
		p.log.Error("Storing chunks failed", "material_id", materialID, "error", err)
		p.setEmbedding(ctx, materialID, types.StatusFailed, err.Error())
		return nil
	}

	p.setEmbedding(ctx, materialID, types.StatusCompleted, "")
	p.log.Info("Embedding completed",
		"material_id", materialID,
		"chunks", len(records),
		"dropped", len(embedded)-len(records),
		"elapsed", time.Since(started),
	)
	return nil
}

func (p *ingestionPipeline) setParsing(ctx context.Context, materialID uuid.UUID, status, errMsg string) {
	if err := p.materialRepo.UpdateFields(ctx, nil, materialID, map[string]interface{}{
		"parsing_status": status,
		"parsing_error":  errMsg,
	}); err != nil {
		p.log.Error("Parsing status update failed", "material_id", materialID, "status", status, "error", err)
		return
	}
	p.publish(ctx, materialID, StageParsing, status, errMsg)
}

func (p *ingestionPipeline) setEmbedding(ctx context.Context, materialID uuid.UUID, status, errMsg string) {
	if err := p.materialRepo.UpdateFields(ctx, nil, materialID, map[string]interface{}{
		"embedding_status": status,
		"embedding_error":  errMsg,
	}); err != nil {
		p.log.Error("Embedding status update failed", "material_id", materialID, "status", status, "error", err)
		return
	}
	p.publish(ctx, materialID, StageEmbedding, status, errMsg)
}

func (p *ingestionPipeline) publish(ctx context.Context, materialID uuid.UUID, stage, status, errMsg string) {
	if p.bus == nil {
		return
	}
	event := redisclient.StatusEvent{
		MaterialID: materialID,
		Stage:      stage,
		Status:     status,
		Error:      errMsg,
	}
	if err := p.bus.Publish(ctx, event); err != nil {
		p.log.Warn("Status event publish failed", "material_id", materialID, "stage", stage, "error", err)
	}
}
