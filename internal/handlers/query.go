package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/coursemate/coursemate-backend/internal/pkg/logger"
	"github.com/coursemate/coursemate-backend/internal/services"
)

type QueryHandler struct {
	log       *logger.Logger
	retrieval services.RetrievalService
	router    services.QueryRouter
}

func NewQueryHandler(log *logger.Logger, retrieval services.RetrievalService, router services.QueryRouter) *QueryHandler {
	return &QueryHandler{
		log:       log.With("handler", "QueryHandler"),
		retrieval: retrieval,
		router:    router,
	}
}

type queryRequest struct {
	MaterialID string `json:"material_id" binding:"required"`
	Unit       string `json:"unit"`
	Query      string `json:"query" binding:"required"`
	Limit      int    `json:"limit"`
}

// POST /api/query
func (h *QueryHandler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	materialID, err := uuid.Parse(req.MaterialID)
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", errors.New("material_id must be a uuid"))
		return
	}

	results, err := h.retrieval.QueryResults(c.Request.Context(), materialID, req.Unit, req.Query, req.Limit)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"results": results})
}

type routeRequest struct {
	Message string `json:"message" binding:"required"`
}

// POST /api/query/route
// Classifies a chat message without running retrieval.
func (h *QueryHandler) Route(c *gin.Context) {
	var req routeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_argument", err)
		return
	}
	decision := h.router.Route(c.Request.Context(), req.Message)
	RespondOK(c, decision)
}
