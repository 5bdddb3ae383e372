// Package frame owns the bus frame model and frame log sources.
//
// Ownership boundary:
// - frame shape and limits
// - binary frame log codec
// - lazy source contract consumed by the decoder
//
// Text log formats live in subpackages.
package frame
