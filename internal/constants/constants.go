// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

// Capture constants
const (
	// FallbackFrameWidth is the raster width used when a stream does not report its size
	FallbackFrameWidth = 640

	// FallbackFrameHeight is the raster height used when a stream does not report its size
	FallbackFrameHeight = 480

	// CaptureFileName is the multipart file name used for captured frames
	CaptureFileName = "capture.png"
)

// Analysis constants
const (
	// DetectImageEndpoint is the path of the remote analysis endpoint
	DetectImageEndpoint = "api/detect-image"

	// ImageFormField is the multipart field carrying the image
	ImageFormField = "image"

	// MaxResponseSize caps how much of an analysis response body is read (8MB)
	MaxResponseSize = 8 << 20

	// MaxResultImageSize caps the size of a downloaded result image (50MB)
	MaxResultImageSize = 50 << 20
)

// Confidence bounds reported by the analysis backend
const (
	// MaxBoxCoordinate bounds a box coordinate in natural image pixels
	MaxBoxCoordinate = 1 << 20

	MinConfidence = 0
	MaxConfidence = 100
)
