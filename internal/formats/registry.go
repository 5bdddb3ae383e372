package formats

import (
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/danmuck/busdecode/internal/frame"
	"github.com/danmuck/busdecode/internal/frame/candump"
)

var ErrUnknownFormat = errors.New("formats: unknown frame log format")

// Format opens one kind of frame log.
type Format interface {
	Name() string
	Extensions() []string
	Open(path string) (frame.Source, error)
}

var (
	mu       sync.RWMutex
	registry = map[string]Format{}
	byExt    = map[string]string{}
)

func init() {
	Register(funcFormat{name: "candump", exts: []string{".log", ".candump", ".txt"}, open: candump.Open})
	Register(funcFormat{name: "binary", exts: []string{".bin", ".frames"}, open: frame.OpenBinary})
}

// Register adds f, replacing any format of the same name. The last format
// registered for an extension claims it.
func Register(f Format) {
	mu.Lock()
	defer mu.Unlock()
	registry[f.Name()] = f
	for _, ext := range f.Extensions() {
		byExt[strings.ToLower(ext)] = f.Name()
	}
}

// Names lists registered formats, sorted.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func Get(name string) (Format, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registry[name]
	return f, ok
}

// ForPath resolves the format registered for the extension of path.
func ForPath(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	mu.RLock()
	defer mu.RUnlock()
	name, ok := byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: %q (%s)", ErrUnknownFormat, ext, path)
	}
	return registry[name], nil
}

// Open opens path with the format its extension selects. It satisfies
// frame.Opener.
func Open(path string) (frame.Source, error) {
	f, err := ForPath(path)
	if err != nil {
		return nil, err
	}
	return f.Open(path)
}

var _ frame.Opener = Open

type funcFormat struct {
	name string
	exts []string
	open frame.Opener
}

func (f funcFormat) Name() string                           { return f.name }
func (f funcFormat) Extensions() []string                   { return f.exts }
func (f funcFormat) Open(path string) (frame.Source, error) { return f.open(path) }
