// Package formats maps frame log files to the reader that understands them.
//
// Ownership boundary:
// - format registration by name and file extension
// - opening a log path as a frame.Source
//
// Built-in formats are candump text and binary frame records.
package formats
