// Package graph implements the transition validator: a static directed graph
// of permitted stage moves plus the canonical forward path used to compute
// progress.
package graph

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
)

// Stage names of the default reconciliation graph.
const (
	StageIngestion      = "ingestion"
	StageMapping        = "mapping"
	StageReconciliation = "reconciliation"
	StageReview         = "review"
	StageExport         = "export"
	StageCompleted      = "completed"
	StageFailed         = "failed"
)

// Graph is an immutable transition graph. It is safe for concurrent use.
type Graph struct {
	name  string
	path  []string
	index map[string]int
	edges map[string][]string
}

// New builds a Graph from the canonical forward path and the adjacency
// table. Edges may reference stages that are not on the path (for example
// a "failed" sink); such stages report zero progress. Every consecutive
// pair on the path must also be an edge so the path can be walked.
func New(name string, path []string, edges map[string][]string) (*Graph, error) {
	if len(path) == 0 {
		return nil, errors.New("graph: path must list at least one stage")
	}

	g := &Graph{
		name:  name,
		path:  slices.Clone(path),
		index: make(map[string]int, len(path)),
		edges: make(map[string][]string, len(edges)),
	}

	for i, stage := range path {
		if stage == "" {
			return nil, fmt.Errorf("graph: path entry %d is empty", i)
		}
		if _, dup := g.index[stage]; dup {
			return nil, fmt.Errorf("graph: stage %q appears twice in path", stage)
		}
		g.index[stage] = i
	}

	for from, targets := range edges {
		if from == "" {
			return nil, errors.New("graph: edge source is empty")
		}
		seen := make(map[string]bool, len(targets))
		for _, to := range targets {
			if to == "" {
				return nil, fmt.Errorf("graph: edge from %q has an empty target", from)
			}
			if to == from {
				return nil, fmt.Errorf("graph: self-loop on %q", from)
			}
			if seen[to] {
				continue
			}
			seen[to] = true
			g.edges[from] = append(g.edges[from], to)
		}
	}

	for i := 0; i+1 < len(path); i++ {
		if !slices.Contains(g.edges[path[i]], path[i+1]) {
			return nil, fmt.Errorf("graph: path step %q -> %q is not an edge", path[i], path[i+1])
		}
	}

	return g, nil
}

// Default returns the built-in reconciliation workflow graph.
func Default() *Graph {
	g, err := New("reconciliation",
		[]string{StageIngestion, StageMapping, StageReconciliation, StageReview, StageExport, StageCompleted},
		map[string][]string{
			StageIngestion:      {StageMapping, StageFailed},
			StageMapping:        {StageReconciliation, StageIngestion},
			StageReconciliation: {StageReview, StageMapping},
			StageReview:         {StageExport, StageReconciliation},
			StageExport:         {StageCompleted, StageReview},
		},
	)
	if err != nil {
		panic(err)
	}
	return g
}

// Name returns the workflow type this graph describes.
func (g *Graph) Name() string { return g.name }

// IsValidTransition reports whether current → target is a permitted edge.
// An unknown source stage is never valid.
func (g *Graph) IsValidTransition(current, target string) bool {
	targets, ok := g.edges[current]
	if !ok {
		return false
	}
	return slices.Contains(targets, target)
}

// Targets returns the stages reachable in one move from stage.
func (g *Graph) Targets(stage string) []string {
	return slices.Clone(g.edges[stage])
}

// HasStage reports whether stage appears anywhere in the graph.
func (g *Graph) HasStage(stage string) bool {
	if _, ok := g.index[stage]; ok {
		return true
	}
	if _, ok := g.edges[stage]; ok {
		return true
	}
	for _, targets := range g.edges {
		if slices.Contains(targets, stage) {
			return true
		}
	}
	return false
}

// Stages returns every stage in the graph, sorted.
func (g *Graph) Stages() []string {
	set := make(map[string]struct{})
	for _, s := range g.path {
		set[s] = struct{}{}
	}
	for from, targets := range g.edges {
		set[from] = struct{}{}
		for _, to := range targets {
			set[to] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Path returns the canonical forward path.
func (g *Graph) Path() []string { return slices.Clone(g.path) }

// Terminal returns the last stage of the canonical path.
func (g *Graph) Terminal() string { return g.path[len(g.path)-1] }

// Progress returns round(index(stage) / (len(path)-1) * 100). Stages off
// the canonical path report 0.
func (g *Graph) Progress(stage string) int {
	i, ok := g.index[stage]
	if !ok {
		return 0
	}
	if len(g.path) == 1 {
		return 100
	}
	return int(math.Round(float64(i) / float64(len(g.path)-1) * 100))
}
