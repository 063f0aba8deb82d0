package synode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/aixgo-dev/synode/internal/graph"
	"github.com/aixgo-dev/synode/pkg/security"
)

// DocumentPrefix and DocumentExt frame the file name of a graph document:
// a reference "a.b.c" lives in a/b/synod.c.yaml.
const (
	DocumentPrefix = "synod."
	DocumentExt    = ".yaml"
)

// FileReader interface for reading files (testable)
type FileReader interface {
	ReadFile(path string) ([]byte, error)
}

// OSFileReader implements FileReader using os.ReadFile
type OSFileReader struct{}

func (r *OSFileReader) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path) // #nosec G304 - path is a graph document chosen by the operator
}

// Loader reads and validates graph documents.
type Loader struct {
	files  FileReader
	parser *security.SafeYAMLParser
}

// NewLoader creates a loader with default YAML security limits
func NewLoader(fr FileReader) *Loader {
	return NewLoaderWithLimits(fr, security.DefaultYAMLLimits())
}

// NewLoaderWithLimits creates a loader with custom YAML security limits
func NewLoaderWithLimits(fr FileReader, limits security.YAMLLimits) *Loader {
	if fr == nil {
		fr = &OSFileReader{}
	}
	return &Loader{
		files:  fr,
		parser: security.NewSafeYAMLParser(limits),
	}
}

// Load reads the document at path.
func (l *Loader) Load(path string) (*graph.Definition, error) {
	data, err := l.files.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read graph %s: %w", path, err)
	}
	def, err := l.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("graph %s: %w", path, err)
	}
	return def, nil
}

// Parse decodes and validates a document.
func (l *Loader) Parse(data []byte) (*graph.Definition, error) {
	var def graph.Definition
	if err := l.parser.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("failed to parse graph: %w", err)
	}
	if err := graph.Validate(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// ResolvePath maps a graph reference to a file below base. References that
// already name a .yaml or .yml file are only joined with base.
func ResolvePath(base, ref string) string {
	var rel string
	switch ext := filepath.Ext(ref); ext {
	case ".yaml", ".yml":
		rel = ref
	default:
		parts := strings.Split(ref, ".")
		last := len(parts) - 1
		parts[last] = DocumentPrefix + parts[last] + DocumentExt
		rel = filepath.Join(parts...)
	}
	if base == "" || filepath.IsAbs(rel) {
		return rel
	}
	return filepath.Join(base, rel)
}

// refName returns the graph name encoded in a document file name, or "".
func refName(file string) string {
	name := filepath.Base(file)
	if !strings.HasPrefix(name, DocumentPrefix) || !strings.HasSuffix(name, DocumentExt) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(name, DocumentPrefix), DocumentExt)
}
