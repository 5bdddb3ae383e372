// Package validate is the diagnostic end of the pipeline: it diffs signal
// sets between adjacent stages and profiles signal quality.
//
// Ownership boundary:
// - order-insensitive schema diffs
// - per-signal quality profiles and classification
// - allowlist and report rendering
//
// Nothing downstream consumes its output.
package validate
