// Package extractor is the HTTP client for the face embedding server (InsightFace).
// It implements dataset.Extractor.
package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/kozaktomas/face-gallery/internal/constants"
	"github.com/kozaktomas/face-gallery/internal/dataset"
	"github.com/kozaktomas/face-gallery/internal/facematch"
)

const (
	defaultBaseURL = "http://localhost:8000"
	defaultTimeout = 60 * time.Second
	faceEndpoint   = "/embed/face"
)

var _ dataset.Extractor = (*Client)(nil)

// Client sends images to the embedding server and returns the detected faces.
type Client struct {
	baseURL string
	client  *http.Client

	// MaxSize is the largest side of uploaded images; bigger images are downscaled.
	MaxSize int
	// Quality is the JPEG quality of uploaded images.
	Quality int
}

// NewClient creates a client for the embedding server at baseURL.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: defaultTimeout},
		MaxSize: constants.MaxImageSize,
		Quality: constants.JPEGQuality,
	}
}

// BaseURL returns the embedding server address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// faceDetection is a single face in the server response.
type faceDetection struct {
	FaceIndex int       `json:"face_index"`
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	BBox      []float64 `json:"bbox"` // [x1, y1, x2, y2]
	DetScore  float64   `json:"det_score"`
}

// faceResponse is the response of the face embedding endpoint.
type faceResponse struct {
	FacesCount int             `json:"faces_count"`
	Faces      []faceDetection `json:"faces"`
	Model      string          `json:"model"`
}

// Extract detects faces in img. Bounding boxes are returned in img's pixel coordinates
// even when a downscaled copy was uploaded. No faces is not an error.
func (c *Client) Extract(ctx context.Context, img image.Image) ([]dataset.Face, error) {
	data, factor, err := encodeForUpload(img, c.MaxSize, c.Quality)
	if err != nil {
		return nil, err
	}

	body, err := c.postMultipartImage(ctx, faceEndpoint, data)
	if err != nil {
		return nil, err
	}

	var resp faceResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	faces := make([]dataset.Face, 0, len(resp.Faces))
	for i, det := range resp.Faces {
		if len(det.Embedding) == 0 {
			return nil, fmt.Errorf("face %d: empty embedding returned", i)
		}
		box, ok := facematch.NewBBox(det.BBox)
		if !ok {
			return nil, fmt.Errorf("face %d: invalid bbox %v", i, det.BBox)
		}
		faces = append(faces, dataset.Face{Embedding: det.Embedding, BBox: box.Scale(factor)})
	}
	return faces, nil
}

// postMultipartImage posts imageData as the "file" form field to endpoint and returns the
// response body.
func (c *Client) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}
