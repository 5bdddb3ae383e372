// Package pipeline runs the decode stages over directories of files.
//
// Ownership boundary:
// - stage ordering and file naming between stages
// - bounded parallelism across files of one stage
// - per-file outcomes and the run summary
//
// A failing file is recorded and skipped; it never aborts its siblings.
package pipeline
