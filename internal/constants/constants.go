// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// DefaultMatchThreshold is the maximum Euclidean distance between two signatures
	// for them to be considered the same person. Lower values = stricter matching
	DefaultMatchThreshold = 0.6

	// DefaultMinConfidence is the detector score floor used when capturing a face
	DefaultMinConfidence = 0.5

	// DefaultSignatureDim is the descriptor length produced by the face engine
	DefaultSignatureDim = 128

	// UnknownLabel is reported for faces that do not match any gallery entry
	UnknownLabel = "unknown"
)

// Recognition loop constants
const (
	// DefaultTickPeriod is the polling period of the recognition session
	DefaultTickPeriod = 100 * time.Millisecond

	// DefaultFastInputSize is the longest frame side sent to the engine while polling
	DefaultFastInputSize = 224

	// DefaultAccurateInputSize is the longest frame side sent to the engine when capturing
	DefaultAccurateInputSize = 608
)

// Storage constants
const (
	// DefaultGalleryKey is the key the gallery is persisted under
	DefaultGalleryKey = "face-gallery"
)

// Event channel constants
const (
	// EventChannelBuffer is the buffer size for event channels
	EventChannelBuffer = 100
)

// HNSW parameters for the matcher candidate index
const (
	// HNSWMinReferences is the number of gallery signatures from which the matcher
	// builds an HNSW graph to bound its exhaustive scan.
	HNSWMinReferences = 256

	// HNSWMaxNeighbors (M) is the maximum number of neighbors per node.
	HNSWMaxNeighbors = 16

	// HNSWEfSearch is the search candidate pool size.
	HNSWEfSearch = 100

	// HNSWCandidates is the number of graph neighbors used to seed the scan bound.
	HNSWCandidates = 8

	// HNSWSeed seeds HNSW level generation.
	HNSWSeed = 42
)
