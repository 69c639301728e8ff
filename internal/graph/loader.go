package graph

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Definition is the on-disk form of a transition graph:
//
//	name: reconciliation
//	path: [ingestion, mapping, reconciliation, review, export, completed]
//	edges:
//	  ingestion: [mapping, failed]
//	  mapping: [reconciliation, ingestion]
type Definition struct {
	Name  string              `yaml:"name"`
	Path  []string            `yaml:"path"`
	Edges map[string][]string `yaml:"edges"`
}

// ParseYAML decodes and validates a graph definition from YAML/JSON bytes.
func ParseYAML(data []byte) (*Graph, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("graph: definition payload is empty")
	}
	var def Definition
	if err := yaml.Unmarshal(data, &def); err != nil {
		return nil, fmt.Errorf("graph: decode definition: %w", err)
	}
	return New(def.Name, def.Path, def.Edges)
}

// LoadReader reads a graph definition from r.
func LoadReader(r io.Reader) (*Graph, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("graph: read definition: %w", err)
	}
	return ParseYAML(content)
}

// LoadFile loads a graph definition from path.
func LoadFile(path string) (*Graph, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graph: read %s: %w", path, err)
	}
	g, err := ParseYAML(content)
	if err != nil {
		return nil, fmt.Errorf("graph: %s: %w", path, err)
	}
	return g, nil
}

// Definition returns the serializable form of g.
func (g *Graph) Definition() Definition {
	edges := make(map[string][]string, len(g.edges))
	for from, targets := range g.edges {
		edges[from] = append([]string(nil), targets...)
	}
	return Definition{Name: g.name, Path: g.Path(), Edges: edges}
}
