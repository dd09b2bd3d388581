// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Recognition constants
const (
	// DefaultConfidenceThreshold is the minimum confidence for a face to be labeled as a
	// known identity. Confidence is (cosine similarity + 1) / 2.
	DefaultConfidenceThreshold = 0.7

	// EmbeddingDim is the dimension of face embeddings produced by the InsightFace model
	EmbeddingDim = 512

	// SearchK is the number of neighbors requested per query. Only the top hit is used;
	// the second is kept as headroom for an ambiguity check.
	SearchK = 2

	// UnknownLabel is the label reported for faces below the threshold
	UnknownLabel = "Unknown"
)

// HNSW index parameters for 512-dim face embeddings
const (
	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	// Higher values improve recall but increase memory and build time.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	// Higher values improve recall but slow down search.
	HNSWEfSearch = 100

	// HNSWSearchMultiplier is the factor to request more candidates from HNSW
	// before exact re-scoring.
	HNSWSearchMultiplier = 3

	// HNSWMinSize is the gallery size below which the flat index is always used
	HNSWMinSize = 256
)

// Processing constants
const (
	// DefaultSyncConcurrency is the default number of images decoded and sent to the
	// embedding server in parallel per identity
	DefaultSyncConcurrency = 4

	// MaxImageSize is the maximum dimension (width or height) of images sent to the
	// embedding server; larger images are downscaled first
	MaxImageSize = 1920

	// JPEGQuality is used when re-encoding images for the embedding server and the dataset
	JPEGQuality = 90

	// WatchDebounceMillis is how long the dataset watcher waits for more events before syncing
	WatchDebounceMillis = 2000
)
