package story

import "math"

// Metrics summarizes a tree's shape for reports.
type Metrics struct {
	Nodes           int     `json:"nodes"`
	Edges           int     `json:"edges"`
	MaxDepth        int     `json:"max_depth"`
	BranchingFactor float64 `json:"branching_factor"`
	Choices         int     `json:"choices"`
	Options         int     `json:"options"`
}

// Measure computes metrics. Depth is the number of nodes on the longest
// shortest path from the root; the branching factor is the mean number of
// links leaving nodes that have any.
func Measure(t *Tree) Metrics {
	m := Metrics{Nodes: len(t.Nodes), Edges: len(t.Edges)}

	for _, n := range t.Nodes {
		if n.Kind == KindChoice {
			m.Choices++
			m.Options += len(n.Options)
		}
	}

	links, branching := 0, 0
	for id := range t.Nodes {
		if out := len(t.links(id)); out > 0 {
			links += out
			branching++
		}
	}
	if branching > 0 {
		m.BranchingFactor = math.Round(float64(links)/float64(branching)*100) / 100
	}

	if _, ok := t.Nodes[t.RootID]; !ok {
		return m
	}
	depth := map[string]int{t.RootID: 1}
	queue := []string{t.RootID}
	m.MaxDepth = 1
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for _, next := range t.links(id) {
			if _, seen := depth[next]; seen {
				continue
			}
			depth[next] = depth[id] + 1
			if depth[next] > m.MaxDepth {
				m.MaxDepth = depth[next]
			}
			queue = append(queue, next)
		}
	}
	return m
}
