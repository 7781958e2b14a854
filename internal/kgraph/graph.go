// Package kgraph models the accumulated knowledge graph: typed entity nodes
// and labeled relationship edges extracted from run summaries.
package kgraph

import (
	"strings"
)

const (
	maxNodes    = 50
	maxEdges    = 100
	nodeScanCap = 100
	edgeScanCap = 200
)

// Node is one entity. ID is normalized (lower-case, hyphen-separated).
type Node struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Type  string `json:"type"`
}

// Edge is one labeled relationship between two node ids.
type Edge struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Label  string `json:"label"`
}

// Counts summarises graph size for history records and dashboards.
type Counts struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// Graph is an immutable node/edge set. Mutating operations return new
// values; edges always reference ids present in Nodes.
type Graph struct {
	Nodes  []Node `json:"nodes"`
	Edges  []Edge `json:"edges"`
	Counts Counts `json:"counts"`
}

// Empty returns a zero-size graph value.
func Empty() Graph {
	return Graph{Nodes: []Node{}, Edges: []Edge{}}
}

// IsEmpty reports whether the graph carries no nodes and no edges.
func (g Graph) IsEmpty() bool {
	return len(g.Nodes) == 0 && len(g.Edges) == 0
}

// NormalizeID folds an entity name into the canonical id form: lower-cased,
// whitespace replaced by hyphens, colons stripped.
func NormalizeID(text string) string {
	s := strings.TrimSpace(strings.ToLower(text))
	s = strings.Join(strings.Fields(s), "-")
	return strings.ReplaceAll(s, ":", "")
}

type edgeKey struct {
	source, target, label string
}

// finalize deduplicates and sanitizes raw extractor output: node ids are
// normalized, caps applied for cost control, and edges referencing unknown
// endpoints dropped.
func finalize(rawNodes []Node, rawEdges []Edge) Graph {
	nodeIndex := make(map[string]int)
	nodes := make([]Node, 0, len(rawNodes))

	scanN := rawNodes
	if len(scanN) > nodeScanCap {
		scanN = scanN[:nodeScanCap]
	}
	for _, n := range scanN {
		id := NormalizeID(n.ID)
		if id == "" {
			continue
		}
		if _, ok := nodeIndex[id]; ok {
			continue
		}
		label := n.Label
		if label == "" {
			label = n.ID
		}
		typ := n.Type
		if typ == "" {
			typ = "UNKNOWN"
		}
		nodeIndex[id] = len(nodes)
		nodes = append(nodes, Node{ID: id, Label: label, Type: typ})
		if len(nodes) >= maxNodes {
			break
		}
	}

	edgeSet := make(map[edgeKey]bool)
	edges := make([]Edge, 0, len(rawEdges))

	scanE := rawEdges
	if len(scanE) > edgeScanCap {
		scanE = scanE[:edgeScanCap]
	}
	for _, e := range scanE {
		src := NormalizeID(e.Source)
		tgt := NormalizeID(e.Target)
		label := strings.TrimSpace(e.Label)
		if src == "" || tgt == "" || label == "" {
			continue
		}
		if _, ok := nodeIndex[src]; !ok {
			continue
		}
		if _, ok := nodeIndex[tgt]; !ok {
			continue
		}
		key := edgeKey{src, tgt, label}
		if edgeSet[key] {
			continue
		}
		edgeSet[key] = true
		edges = append(edges, Edge{Source: src, Target: tgt, Label: label})
		if len(edges) >= maxEdges {
			break
		}
	}

	return Graph{
		Nodes:  nodes,
		Edges:  edges,
		Counts: Counts{Nodes: len(nodes), Edges: len(edges)},
	}
}

// Merge produces the deduplicated union of two graphs. Nodes are keyed by
// normalized id with entries from next overwriting prev (last-write-wins on
// label/type); edges are keyed by (source, target, label) with first-seen
// kept. Merging the same graph twice does not grow the result. An empty
// input returns the other graph unchanged.
func Merge(prev, next Graph) Graph {
	if prev.IsEmpty() {
		return withCounts(next)
	}
	if next.IsEmpty() {
		return withCounts(prev)
	}

	nodeIndex := make(map[string]int, len(prev.Nodes)+len(next.Nodes))
	nodes := make([]Node, 0, len(prev.Nodes)+len(next.Nodes))
	for _, n := range prev.Nodes {
		id := NormalizeID(n.ID)
		if id == "" {
			continue
		}
		if _, ok := nodeIndex[id]; ok {
			continue
		}
		n.ID = id
		nodeIndex[id] = len(nodes)
		nodes = append(nodes, n)
	}
	for _, n := range next.Nodes {
		id := NormalizeID(n.ID)
		if id == "" {
			continue
		}
		n.ID = id
		if i, ok := nodeIndex[id]; ok {
			nodes[i] = n
			continue
		}
		nodeIndex[id] = len(nodes)
		nodes = append(nodes, n)
	}

	edgeSet := make(map[edgeKey]bool, len(prev.Edges)+len(next.Edges))
	edges := make([]Edge, 0, len(prev.Edges)+len(next.Edges))
	appendEdges := func(src []Edge) {
		for _, e := range src {
			key := edgeKey{NormalizeID(e.Source), NormalizeID(e.Target), strings.TrimSpace(e.Label)}
			if key.source == "" || key.target == "" || key.label == "" {
				continue
			}
			if _, ok := nodeIndex[key.source]; !ok {
				continue
			}
			if _, ok := nodeIndex[key.target]; !ok {
				continue
			}
			if edgeSet[key] {
				continue
			}
			edgeSet[key] = true
			edges = append(edges, Edge{Source: key.source, Target: key.target, Label: key.label})
		}
	}
	appendEdges(prev.Edges)
	appendEdges(next.Edges)

	return Graph{
		Nodes:  nodes,
		Edges:  edges,
		Counts: Counts{Nodes: len(nodes), Edges: len(edges)},
	}
}

func withCounts(g Graph) Graph {
	g.Counts = Counts{Nodes: len(g.Nodes), Edges: len(g.Edges)}
	return g
}
