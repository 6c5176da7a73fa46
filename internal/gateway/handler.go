// Package gateway is the HTTP surface: request validation, the NDJSON
// generation stream, and the models listing.
package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/gravixlayer/llm-wars/internal/arena"
	"github.com/gravixlayer/llm-wars/internal/models"
	"github.com/gravixlayer/llm-wars/internal/upstream"
	"github.com/gravixlayer/llm-wars/internal/validator"
)

// Catalog is the slice of the upstream client the listing endpoint needs.
type Catalog interface {
	Models(ctx context.Context) ([]upstream.CatalogModel, error)
}

// Handler wires the arena and the upstream catalog into gin routes.
type Handler struct {
	arena             *arena.Orchestrator
	catalog           Catalog
	keepaliveInterval time.Duration
	keepaliveStale    time.Duration
}

// NewHandler creates a Handler.
func NewHandler(orc *arena.Orchestrator, catalog Catalog, keepaliveInterval, keepaliveStale time.Duration) *Handler {
	return &Handler{
		arena:             orc,
		catalog:           catalog,
		keepaliveInterval: keepaliveInterval,
		keepaliveStale:    keepaliveStale,
	}
}

// Register mounts all routes on the engine.
func (h *Handler) Register(r *gin.Engine) {
	r.POST("/api/generate", h.Generate)
	r.GET("/api/models", h.Models)
	r.GET("/health", h.Health)
}

// Generate handles POST /api/generate: validate, then stream the merged
// arena events as NDJSON until end.
func (h *Handler) Generate(c *gin.Context) {
	requestID := c.GetString(requestIDKey)

	var req models.GenerationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
			"event":      "parse_error",
		}).Warn("Failed to parse request body")
		c.JSON(http.StatusBadRequest, models.ErrorBody{Error: models.ErrorDetail{
			Type:    "invalid_request",
			Message: "Failed to parse request body: " + err.Error(),
		}})
		return
	}

	vreq, err := validator.ValidateRequest(&req)
	if err != nil {
		log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
			"event":      "validation_failed",
		}).Warn("Request validation failed")

		detail := models.ErrorDetail{Type: "validation_error", Message: "Request validation failed"}
		var verrs *validator.ValidationErrors
		if errors.As(err, &verrs) {
			detail.Details = verrs.Errors
		} else {
			detail.Message = err.Error()
		}
		c.JSON(http.StatusBadRequest, models.ErrorBody{Error: detail})
		return
	}

	log.WithFields(log.Fields{
		"request_id":  requestID,
		"models":      vreq.Models,
		"temperature": vreq.Temperature,
		"event":       "generation_started",
	}).Info("Starting generation")

	c.Header("Content-Type", "application/x-ndjson")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sw := newStreamWriter(c.Writer)
	stopKeepalive := sw.startKeepalive(c.Request.Context(), h.keepaliveInterval, h.keepaliveStale)
	defer stopKeepalive()

	h.arena.Run(c.Request.Context(), vreq, sw.Emit)
}

// Models handles GET /api/models: the upstream catalog normalized to
// {id, name} pairs, with embeddings-only models filtered out.
func (h *Handler) Models(c *gin.Context) {
	requestID := c.GetString(requestIDKey)

	catalog, err := h.catalog.Models(c.Request.Context())
	if err != nil {
		log.WithFields(log.Fields{
			"request_id": requestID,
			"error":      err.Error(),
			"event":      "catalog_error",
		}).Error("Failed to list upstream models")
		c.JSON(http.StatusBadGateway, models.ErrorBody{Error: models.ErrorDetail{
			Type:    "upstream_error",
			Message: "Failed to list models: " + err.Error(),
		}})
		return
	}

	listing := models.ModelsResponse{Models: []models.ModelInfo{}}
	for _, m := range catalog {
		if embeddingsOnly(m) {
			continue
		}
		name := m.Name
		if name == "" {
			name = m.ID
		}
		listing.Models = append(listing.Models, models.ModelInfo{ID: m.ID, Name: name})
	}
	c.JSON(http.StatusOK, listing)
}

// embeddingsOnly reports whether a catalog entry can only produce
// embeddings. When the upstream declares no modalities the model id is
// the only signal available.
func embeddingsOnly(m upstream.CatalogModel) bool {
	if len(m.OutputModalities) > 0 {
		for _, mod := range m.OutputModalities {
			if !strings.EqualFold(mod, "embedding") {
				return false
			}
		}
		return true
	}
	return strings.Contains(strings.ToLower(m.ID), "embedding")
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
