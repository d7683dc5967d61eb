// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Capture constants
const (
	// MaxStreamWidth is the maximum width of annotated frames sent to clients;
	// wider camera frames are scaled down
	MaxStreamWidth = 960

	// StreamJPEGQuality is the JPEG quality of streamed frames
	StreamJPEGQuality = 80

	// FrameReadRetryDelay is the pause after a failed camera read
	FrameReadRetryDelay = 100 * time.Millisecond
)

// Detection constants
const (
	// DefaultDetectorMinScore is the minimum detection score of faces reported
	// by the embedding server
	DefaultDetectorMinScore = 0.5

	// DedupeIoUThreshold is the IoU above which two detected boxes are the same face
	DedupeIoUThreshold = 0.5
)

// Processing constants
const (
	// WorkerPoolSize is the default number of parallel workers for gallery builds
	WorkerPoolSize = 4
)

// EnrollDuplicateDistance is the dHash distance at or below which two
// enrollment photos of a student count as the same shot.
const EnrollDuplicateDistance = 4
