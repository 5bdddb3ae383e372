// Package catalog owns bus message catalogs and the signal registry built
// from them.
//
// Ownership boundary:
// - message and signal definitions
// - enum normalization policy
// - registry aggregation across catalog files
// - metadata and enum map export
//
// Catalog file grammar lives behind Parser; see package dbcfile.
package catalog
