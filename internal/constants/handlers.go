// Package constants provides shared constants used across the codebase.
package constants

// Handler constants
const (
	// DefaultAttendanceLimit is the number of records shown on the dashboard
	DefaultAttendanceLimit = 500

	// DefaultGallerySearchLimit is the default number of gallery matches returned
	DefaultGallerySearchLimit = 5

	// MaxGallerySearchLimit caps the gallery search limit parameter
	MaxGallerySearchLimit = 50
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// File upload constants
const (
	// MaxUploadSize is the maximum image upload size in bytes (20MB)
	MaxUploadSize = 20 << 20
)
