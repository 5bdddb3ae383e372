// Package decode turns raw bus frames into wide signal tables using one
// catalog at a time.
//
// Ownership boundary:
// - bit extraction for Intel and Motorola layouts
// - scale and offset application
// - per-frame result tagging into a Summary
//
// Enumerated values leave this package as numeric codes; labels are
// applied later by package quality.
package decode
