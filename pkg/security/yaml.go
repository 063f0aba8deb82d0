// Package security guards the parsing of untrusted graph and supervisor
// documents.
package security

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// ErrLimitExceeded is returned when a document breaks one of the YAMLLimits.
var ErrLimitExceeded = errors.New("yaml limit exceeded")

// YAMLLimits bounds the resources a document may consume.
type YAMLLimits struct {
	MaxFileSize  int64 // bytes
	MaxDepth     int
	MaxNodes     int
	MaxKeyLength int
	MaxValueSize int64 // bytes per scalar
	// MaxAliases caps alias expansions, defusing "billion laughs" documents.
	MaxAliases int
}

// DefaultYAMLLimits returns limits sized for graph definitions.
func DefaultYAMLLimits() YAMLLimits {
	return YAMLLimits{
		MaxFileSize:  4 * 1024 * 1024,
		MaxDepth:     32,
		MaxNodes:     50000,
		MaxKeyLength: 1024,
		MaxValueSize: 1024 * 1024,
		MaxAliases:   100,
	}
}

// SafeYAMLParser decodes YAML after checking it against limits.
type SafeYAMLParser struct {
	limits YAMLLimits
}

// NewSafeYAMLParser creates a parser enforcing limits.
func NewSafeYAMLParser(limits YAMLLimits) *SafeYAMLParser {
	return &SafeYAMLParser{limits: limits}
}

// Parse checks data and returns its document node. Custom tags are kept on
// the node so that types with their own UnmarshalYAML can interpret them.
func (p *SafeYAMLParser) Parse(data []byte) (*yaml.Node, error) {
	if int64(len(data)) > p.limits.MaxFileSize {
		return nil, fmt.Errorf("%w: size %d bytes exceeds %d", ErrLimitExceeded, len(data), p.limits.MaxFileSize)
	}

	var root yaml.Node
	if err := yaml.NewDecoder(bytes.NewReader(data)).Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("empty yaml document")
		}
		return nil, fmt.Errorf("yaml parse error: %w", err)
	}

	w := &walker{limits: p.limits}
	if err := w.walk(&root, 0); err != nil {
		return nil, err
	}
	return &root, nil
}

// Unmarshal checks data and decodes it into v.
func (p *SafeYAMLParser) Unmarshal(data []byte, v any) error {
	root, err := p.Parse(data)
	if err != nil {
		return err
	}
	return root.Decode(v)
}

// UnmarshalFrom reads at most MaxFileSize bytes from r and decodes them into v.
func (p *SafeYAMLParser) UnmarshalFrom(r io.Reader, v any) error {
	data, err := io.ReadAll(io.LimitReader(r, p.limits.MaxFileSize+1))
	if err != nil {
		return fmt.Errorf("read yaml: %w", err)
	}
	return p.Unmarshal(data, v)
}

type walker struct {
	limits  YAMLLimits
	nodes   int
	aliases int
}

func (w *walker) walk(n *yaml.Node, depth int) error {
	if depth > w.limits.MaxDepth {
		return fmt.Errorf("%w: depth %d exceeds %d", ErrLimitExceeded, depth, w.limits.MaxDepth)
	}
	w.nodes++
	if w.nodes > w.limits.MaxNodes {
		return fmt.Errorf("%w: more than %d nodes", ErrLimitExceeded, w.limits.MaxNodes)
	}

	switch n.Kind {
	case yaml.DocumentNode:
		for _, c := range n.Content {
			if err := w.walk(c, depth); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		for i := 0; i+1 < len(n.Content); i += 2 {
			if k := n.Content[i].Value; len(k) > w.limits.MaxKeyLength {
				return fmt.Errorf("%w: key of %d bytes at line %d", ErrLimitExceeded, len(k), n.Content[i].Line)
			}
			if err := w.walk(n.Content[i+1], depth+1); err != nil {
				return err
			}
		}
	case yaml.SequenceNode:
		for _, c := range n.Content {
			if err := w.walk(c, depth+1); err != nil {
				return err
			}
		}
	case yaml.ScalarNode:
		if int64(len(n.Value)) > w.limits.MaxValueSize {
			return fmt.Errorf("%w: value of %d bytes at line %d", ErrLimitExceeded, len(n.Value), n.Line)
		}
	case yaml.AliasNode:
		w.aliases++
		if w.aliases > w.limits.MaxAliases {
			return fmt.Errorf("%w: more than %d aliases", ErrLimitExceeded, w.limits.MaxAliases)
		}
		if n.Alias != nil {
			return w.walk(n.Alias, depth+1)
		}
	}
	return nil
}
