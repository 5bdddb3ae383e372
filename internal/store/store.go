// Package store persists stage tables.
//
// Ownership boundary:
// - table write/read with schema-preserving round trip
// - source tag persistence alongside the rows
// - stage directory listing
//
// DuckDBStore writes Parquet files; MemStore keeps tables in memory.
package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/danmuck/busdecode/internal/table"
)

const Ext = ".parquet"

// SourceKey is the Parquet key/value metadata key holding Table.Source.
const SourceKey = "busdecode_source"

var ErrNotFound = errors.New("store: table not found")

// TableStore reads and writes stage tables by path.
type TableStore interface {
	Write(ctx context.Context, path string, t *table.Table) error
	Read(ctx context.Context, path string) (*table.Table, error)
	Columns(ctx context.Context, path string) ([]string, error)
	// List returns the table paths directly under dir, sorted.
	List(ctx context.Context, dir string) ([]string, error)
	Close() error
}

// Stem returns the table name for path: its base name without extension.
func Stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
