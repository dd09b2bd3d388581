package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/session"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config   *config.Config
	registry *session.Registry
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config, registry *session.Registry) *ConfigHandler {
	return &ConfigHandler{
		config:   cfg,
		registry: registry,
	}
}

// ConfigResponse represents the configuration response
type ConfigResponse struct {
	DefaultSection      string   `json:"default_section"`
	Sections            []string `json:"sections"`
	ConfidenceThreshold float64  `json:"confidence_threshold"`
	EmbeddingDim        int      `json:"embedding_dim"`
	Extensions          []string `json:"extensions"`
}

// Get returns the effective recognition configuration and the known sections
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	sections, err := h.registry.Sections()
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, ConfigResponse{
		DefaultSection:      h.config.Gallery.DefaultSection,
		Sections:            sections,
		ConfidenceThreshold: h.config.Recognition.ConfidenceThreshold,
		EmbeddingDim:        h.config.Embedding.Dim,
		Extensions:          h.config.Dataset.Extensions,
	})
}
