package constants

import "time"

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// Job constants
const (
	// JobRetention is how long finished sync jobs stay queryable
	JobRetention = time.Hour
)

// File upload constants
const (
	// MaxUploadSize is the maximum multipart upload size in bytes (100MB)
	MaxUploadSize = 100 << 20

	// MaxRecognizeImages is the maximum number of images accepted by one recognize request
	MaxRecognizeImages = 32
)
