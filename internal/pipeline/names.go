package pipeline

import (
	"path/filepath"
	"strings"

	"github.com/danmuck/busdecode/internal/store"
)

const (
	downsampledSuffix = "_downsampled"
	filteredSuffix    = "_filtered"
)

// decodedPath names the table decoded from log with catalog tag.
func decodedPath(dir, logPath, tag string) string {
	return filepath.Join(dir, store.Stem(logPath)+"_"+tag+store.Ext)
}

func downsampledPath(dir, stem string) string {
	return filepath.Join(dir, stem+downsampledSuffix+store.Ext)
}

func filteredPath(dir, stem string) string {
	return filepath.Join(dir, stem+filteredSuffix+store.Ext)
}

func mergedPath(dir, source string) string {
	return filepath.Join(dir, source+store.Ext)
}

// baseStem strips stage suffixes so one log/catalog pair keeps the same
// key through every stage.
func baseStem(path string) string {
	stem := store.Stem(path)
	stem = strings.TrimSuffix(stem, filteredSuffix)
	return strings.TrimSuffix(stem, downsampledSuffix)
}
