package ingest

import (
	"fmt"
	"io"
	"os"

	"github.com/coopfin/bankintake/internal/parser"
	"github.com/coopfin/bankintake/internal/parsers/csv"
	"github.com/coopfin/bankintake/internal/parsers/ofx"
)

// Registry holds all registered statement sources
type Registry struct {
	sources []parser.Source
}

// NewRegistry creates a registry with all built-in sources
func NewRegistry() *Registry {
	return &Registry{
		sources: []parser.Source{
			csv.NewSource(),
			ofx.NewSource(),
		},
	}
}

// Register adds a custom source (for extensibility)
func (r *Registry) Register(s parser.Source) {
	r.sources = append(r.sources, s)
}

// FindSource returns the best source for this file.
// Reads the first 512 bytes for format detection via header inspection.
func (r *Registry) FindSource(path string) (parser.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	header := make([]byte, 512)
	n, err := f.Read(header)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read header from %s: %w", path, err)
	}
	// EOF is OK, small files get whatever was read.
	header = header[:n]

	for _, s := range r.sources {
		if s.CanParse(path, header) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("no source found for file: %s", path)
}

// ListSources returns the names of all registered sources
func (r *Registry) ListSources() []string {
	names := make([]string, len(r.sources))
	for i, s := range r.sources {
		names[i] = s.Name()
	}
	return names
}
