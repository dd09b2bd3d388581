package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"image"
	"log"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-gallery/internal/config"
	"github.com/kozaktomas/face-gallery/internal/constants"
	"github.com/kozaktomas/face-gallery/internal/dataset"
	"github.com/kozaktomas/face-gallery/internal/facematch"
	"github.com/kozaktomas/face-gallery/internal/matcher"
	"github.com/kozaktomas/face-gallery/internal/session"
)

// GalleryHandler serves recognition and identity management for gallery sections.
type GalleryHandler struct {
	config    *config.Config
	registry  *session.Registry
	extractor dataset.Extractor
}

// NewGalleryHandler creates a new gallery handler.
func NewGalleryHandler(cfg *config.Config, registry *session.Registry, extractor dataset.Extractor) *GalleryHandler {
	return &GalleryHandler{
		config:    cfg,
		registry:  registry,
		extractor: extractor,
	}
}

// ImageResult holds the verdicts of one uploaded image.
type ImageResult struct {
	Filename string            `json:"filename"`
	Width    int               `json:"width"`
	Height   int               `json:"height"`
	Faces    []matcher.Verdict `json:"faces"`
	// RelativeBoxes holds the face boxes of Faces scaled to 0-1 image coordinates.
	RelativeBoxes []facematch.BBox `json:"relative_boxes"`
	Known         int              `json:"known"`
	Unknown       int              `json:"unknown"`
}

// RecognizeTiming reports where a recognize request spent its time.
type RecognizeTiming struct {
	StartedAt time.Time `json:"started_at"`
	ExtractMs int64     `json:"extract_ms"`
	MatchMs   int64     `json:"match_ms"`
	TotalMs   int64     `json:"total_ms"`
}

// RecognizeResponse is the response of the recognize endpoint.
type RecognizeResponse struct {
	Section   string          `json:"section"`
	Threshold float64         `json:"threshold"`
	Images    []ImageResult   `json:"images"`
	Known     int             `json:"known"`
	Unknown   int             `json:"unknown"`
	Names     []string        `json:"names"`
	Timing    RecognizeTiming `json:"timing"`
}

// decodeUpload opens and decodes one multipart image.
func decodeUpload(fh *multipart.FileHeader) (image.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %s", fh.Filename)
	}
	defer f.Close()

	img, err := dataset.DecodeImage(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %s", filepath.Base(fh.Filename))
	}
	return img, nil
}

// parseThreshold reads the optional threshold form value.
func (h *GalleryHandler) parseThreshold(r *http.Request) (float64, error) {
	threshold := h.config.Recognition.ConfidenceThreshold
	if s := r.FormValue("threshold"); s != "" {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", matcher.ErrInvalidThreshold, s)
		}
		threshold = v
	}
	return threshold, matcher.ValidateThreshold(threshold)
}

// Recognize identifies the faces in one or more uploaded images against a section.
func (h *GalleryHandler) Recognize(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	files := r.MultipartForm.File["image"]
	if len(files) == 0 {
		respondError(w, http.StatusBadRequest, "no images provided")
		return
	}
	if len(files) > constants.MaxRecognizeImages {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("at most %d images per request", constants.MaxRecognizeImages))
		return
	}

	threshold, err := h.parseThreshold(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	section := resolveSection(h.config, r.FormValue("section"))
	sess, err := h.registry.Get(r.Context(), section)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	resp := RecognizeResponse{
		Section:   section,
		Threshold: threshold,
		Images:    make([]ImageResult, 0, len(files)),
	}
	results := make([]*matcher.Result, 0, len(files))
	var extractTime, matchTime time.Duration

	for _, fh := range files {
		img, err := decodeUpload(fh)
		if err != nil {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}

		t := time.Now()
		faces, err := h.extractor.Extract(r.Context(), img)
		extractTime += time.Since(t)
		if err != nil {
			log.Printf("Face extraction failed for %s: %v", sanitizeForLog(fh.Filename), err)
			respondError(w, http.StatusBadGateway, "face extraction failed")
			return
		}

		queries := make([][]float32, len(faces))
		boxes := make([]facematch.BBox, len(faces))
		for i, f := range faces {
			queries[i] = f.Embedding
			boxes[i] = f.BBox
		}

		t = time.Now()
		result, err := sess.Recognize(queries, boxes, threshold)
		matchTime += time.Since(t)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		results = append(results, result)

		bounds := img.Bounds()
		relative := make([]facematch.BBox, len(result.Verdicts))
		for i, v := range result.Verdicts {
			relative[i] = v.BBox.Relative(bounds.Dx(), bounds.Dy())
		}
		resp.Images = append(resp.Images, ImageResult{
			Filename:      filepath.Base(fh.Filename),
			Width:         bounds.Dx(),
			Height:        bounds.Dy(),
			Faces:         result.Verdicts,
			RelativeBoxes: relative,
			Known:         result.Known,
			Unknown:       result.Unknown,
		})
		resp.Known += result.Known
		resp.Unknown += result.Unknown
	}

	resp.Names = matcher.RecognizedNames(results...)
	resp.Timing = RecognizeTiming{
		StartedAt: start,
		ExtractMs: extractTime.Milliseconds(),
		MatchMs:   matchTime.Milliseconds(),
		TotalMs:   time.Since(start).Milliseconds(),
	}
	respondJSON(w, http.StatusOK, resp)
}

// AddPersonResponse is the response of the add person endpoint.
type AddPersonResponse struct {
	Name       string          `json:"name"`
	Section    string          `json:"section"`
	Photo      string          `json:"photo"`
	Registered bool            `json:"registered"`
	Report     *dataset.Report `json:"report"`
}

// AddPerson stores an uploaded photo under the person's dataset directory and syncs the
// section. Persons already in the gallery keep their embedding until resynced.
func (h *GalleryHandler) AddPerson(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(constants.MaxUploadSize); err != nil {
		respondError(w, http.StatusBadRequest, "failed to parse multipart form")
		return
	}

	name := facematch.NormalizePersonName(r.FormValue("name"))
	if !facematch.ValidPersonName(name) {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	files := r.MultipartForm.File["image"]
	if len(files) != 1 {
		respondError(w, http.StatusBadRequest, "exactly one image is required")
		return
	}
	img, err := decodeUpload(files[0])
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	section := resolveSection(h.config, r.FormValue("section"))
	sess, err := h.registry.Get(r.Context(), section)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	path, err := dataset.SavePhoto(h.config.Dataset.Path, name, img)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	log.Printf("Saved photo of %s to %s", sanitizeForLog(name), path)

	report, err := sess.Sync(r.Context(), h.config.Dataset.Path, newSynchronizer(h.config, h.extractor, nil))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, AddPersonResponse{
		Name:       name,
		Section:    section,
		Photo:      filepath.Base(path),
		Registered: sess.Has(name),
		Report:     report,
	})
}

// IdentitiesResponse lists the identities of a section.
type IdentitiesResponse struct {
	Section    string   `json:"section"`
	Identities []string `json:"identities"`
	Count      int      `json:"count"`
}

func (h *GalleryHandler) respondIdentities(ctx context.Context, w http.ResponseWriter, section string) {
	sess, err := h.registry.Get(ctx, section)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	names := sess.ListIdentities()
	slices.Sort(names)
	respondJSON(w, http.StatusOK, IdentitiesResponse{
		Section:    section,
		Identities: names,
		Count:      len(names),
	})
}

// ListSection lists the identities of the section named in the URL.
func (h *GalleryHandler) ListSection(w http.ResponseWriter, r *http.Request) {
	h.respondIdentities(r.Context(), w, chi.URLParam(r, "section"))
}

// ListIdentitiesRequest names the section to list; empty selects the default section.
type ListIdentitiesRequest struct {
	Section string `json:"section"`
}

// ListIdentities lists the identities of the section named in the JSON body.
func (h *GalleryHandler) ListIdentities(w http.ResponseWriter, r *http.Request) {
	var req ListIdentitiesRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	h.respondIdentities(r.Context(), w, resolveSection(h.config, req.Section))
}

// LookalikesResponse lists identity pairs of a section that are easily confused.
type LookalikesResponse struct {
	Section    string              `json:"section"`
	Threshold  float64             `json:"threshold"`
	Lookalikes []session.Lookalike `json:"lookalikes"`
}

// Lookalikes lists identity pairs of a section whose embeddings are closer than the
// recognition threshold (or the threshold query parameter).
func (h *GalleryHandler) Lookalikes(w http.ResponseWriter, r *http.Request) {
	threshold, err := h.parseThreshold(r)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	section := chi.URLParam(r, "section")
	sess, err := h.registry.Get(r.Context(), section)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	pairs, err := sess.Lookalikes(threshold)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, LookalikesResponse{
		Section:    section,
		Threshold:  threshold,
		Lookalikes: pairs,
	})
}

// Evict removes one identity from a section. It is added again by the next sync.
func (h *GalleryHandler) Evict(w http.ResponseWriter, r *http.Request) {
	sess, err := h.registry.Get(r.Context(), chi.URLParam(r, "section"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	name := chi.URLParam(r, "name")
	removed, err := sess.Evict(r.Context(), name)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if len(removed) == 0 {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"evicted": removed})
}

// Resync re-extracts one identity of a section from the dataset.
func (h *GalleryHandler) Resync(w http.ResponseWriter, r *http.Request) {
	sess, err := h.registry.Get(r.Context(), chi.URLParam(r, "section"))
	if err != nil {
		respondServiceError(w, err)
		return
	}

	name := chi.URLParam(r, "name")
	report, err := sess.Resync(r.Context(), h.config.Dataset.Path, newSynchronizer(h.config, h.extractor, nil), name)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"name":       name,
		"registered": sess.Has(name),
		"report":     report,
	})
}
