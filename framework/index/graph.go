package index

import "sort"

// EdgeKind classifies document dependencies.
type EdgeKind uint8

const (
	// EdgeInherits extends the resolution chain into the target document.
	EdgeInherits EdgeKind = iota
	// EdgeReferences only schedules re-analysis; lookups never follow it.
	EdgeReferences
)

func (k EdgeKind) String() string {
	if k == EdgeReferences {
		return "references"
	}
	return "inherits"
}

// Edge is an outgoing dependency of a document.
type Edge struct {
	To   string
	Kind EdgeKind
}

type graphEdge struct {
	to   int
	kind EdgeKind
}

type graphNode struct {
	uri string
	out []graphEdge
}

// Graph is the document dependency graph. Nodes live in an arena and edges
// are arena indices, so walks carry explicit visited sets instead of
// chasing pointers. Graph is not safe for concurrent use; Index guards it.
type Graph struct {
	ids   map[string]int
	nodes []graphNode

	// component and cyclic are recomputed after every edge change.
	component []int
	cyclic    []bool
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{ids: make(map[string]int)}
}

func (g *Graph) node(uri string) int {
	if id, ok := g.ids[uri]; ok {
		return id
	}
	id := len(g.nodes)
	g.ids[uri] = id
	g.nodes = append(g.nodes, graphNode{uri: uri})
	g.component = append(g.component, id)
	g.cyclic = append(g.cyclic, false)
	return id
}

// SetEdges replaces all outgoing edges of from. Duplicate targets of the
// same kind keep their first position.
func (g *Graph) SetEdges(from string, edges []Edge) {
	id := g.node(from)
	out := make([]graphEdge, 0, len(edges))
	for _, e := range edges {
		ge := graphEdge{to: g.node(e.To), kind: e.Kind}
		if !containsEdge(out, ge) {
			out = append(out, ge)
		}
	}
	g.nodes[id].out = out
	g.recompute()
}

// SetEdge adds or removes a single edge.
func (g *Graph) SetEdge(from, to string, kind EdgeKind, present bool) {
	id := g.node(from)
	ge := graphEdge{to: g.node(to), kind: kind}
	out := g.nodes[id].out
	if present {
		if containsEdge(out, ge) {
			return
		}
		g.nodes[id].out = append(out, ge)
	} else {
		kept := out[:0]
		for _, e := range out {
			if e != ge {
				kept = append(kept, e)
			}
		}
		g.nodes[id].out = kept
	}
	g.recompute()
}

func containsEdge(edges []graphEdge, e graphEdge) bool {
	for _, have := range edges {
		if have == e {
			return true
		}
	}
	return false
}

// ClearEdges drops the outgoing edges of uri. Incoming edges stay until
// their owners are re-analysed.
func (g *Graph) ClearEdges(uri string) {
	id, ok := g.ids[uri]
	if !ok || len(g.nodes[id].out) == 0 {
		return
	}
	g.nodes[id].out = nil
	g.recompute()
}

// Edges returns the outgoing edges of uri in insertion order.
func (g *Graph) Edges(uri string) []Edge {
	id, ok := g.ids[uri]
	if !ok {
		return nil
	}
	out := make([]Edge, 0, len(g.nodes[id].out))
	for _, e := range g.nodes[id].out {
		out = append(out, Edge{To: g.nodes[e.to].uri, Kind: e.kind})
	}
	return out
}

// Targets returns the targets of edges of the given kind, in order.
func (g *Graph) Targets(uri string, kind EdgeKind) []string {
	var out []string
	for _, e := range g.Edges(uri) {
		if e.Kind == kind {
			out = append(out, e.To)
		}
	}
	return out
}

// EdgeCount returns the number of edges in the graph.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, node := range g.nodes {
		n += len(node.out)
	}
	return n
}

// Dependents returns every document that reaches uri by following edges of
// any kind, nearest first. Documents at the same distance are ordered by
// URI. uri itself is excluded even when it lies on a cycle.
func (g *Graph) Dependents(uri string) []string {
	start, ok := g.ids[uri]
	if !ok {
		return nil
	}
	reverse := make([][]int, len(g.nodes))
	for from, node := range g.nodes {
		for _, e := range node.out {
			reverse[e.to] = append(reverse[e.to], from)
		}
	}
	visited := make([]bool, len(g.nodes))
	visited[start] = true
	var out []string
	frontier := []int{start}
	for len(frontier) > 0 {
		var next []int
		for _, id := range frontier {
			for _, from := range reverse[id] {
				if visited[from] {
					continue
				}
				visited[from] = true
				next = append(next, from)
			}
		}
		sort.Slice(next, func(i, j int) bool { return g.nodes[next[i]].uri < g.nodes[next[j]].uri })
		for _, id := range next {
			out = append(out, g.nodes[id].uri)
		}
		frontier = next
	}
	return out
}

// Reaches reports whether to is reachable from from over inherits edges.
func (g *Graph) Reaches(from, to string) bool {
	src, ok := g.ids[from]
	if !ok {
		return false
	}
	dst, ok := g.ids[to]
	if !ok {
		return false
	}
	visited := make([]bool, len(g.nodes))
	stack := []int{src}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == dst {
			return true
		}
		if visited[id] {
			continue
		}
		visited[id] = true
		for _, e := range g.nodes[id].out {
			if e.kind == EdgeInherits && !visited[e.to] {
				stack = append(stack, e.to)
			}
		}
	}
	return false
}

// Cyclic reports whether uri lies on an inherits cycle.
func (g *Graph) Cyclic(uri string) bool {
	id, ok := g.ids[uri]
	return ok && g.cyclic[id]
}

// EdgeCyclic reports whether the inherits edge from -> to closes a cycle.
func (g *Graph) EdgeCyclic(from, to string) bool {
	a, ok := g.ids[from]
	if !ok {
		return false
	}
	b, ok := g.ids[to]
	if !ok {
		return false
	}
	return g.cyclic[a] && g.component[a] == g.component[b]
}

// Cycle returns the members of the inherits cycle through uri, sorted.
func (g *Graph) Cycle(uri string) []string {
	id, ok := g.ids[uri]
	if !ok || !g.cyclic[id] {
		return nil
	}
	var out []string
	for other := range g.nodes {
		if g.component[other] == g.component[id] {
			out = append(out, g.nodes[other].uri)
		}
	}
	sort.Strings(out)
	return out
}

// Cycles returns every inherits cycle, each sorted, ordered by first member.
func (g *Graph) Cycles() [][]string {
	seen := make(map[int]bool)
	var out [][]string
	for id := range g.nodes {
		if !g.cyclic[id] || seen[g.component[id]] {
			continue
		}
		seen[g.component[id]] = true
		out = append(out, g.Cycle(g.nodes[id].uri))
	}
	sort.Slice(out, func(i, j int) bool { return out[i][0] < out[j][0] })
	return out
}

type visitState uint8

const (
	stateUnvisited visitState = iota
	stateOnStack
	stateDone
)

// recompute assigns strongly connected components over inherits edges with
// Tarjan's algorithm. Every node is entered once, so cycles cannot recurse
// without bound.
func (g *Graph) recompute() {
	n := len(g.nodes)
	index := make([]int, n)
	low := make([]int, n)
	states := make([]visitState, n)
	var stack []int
	counter := 0

	var visit func(v int)
	visit = func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		states[v] = stateOnStack
		stack = append(stack, v)
		for _, e := range g.nodes[v].out {
			if e.kind != EdgeInherits {
				continue
			}
			switch states[e.to] {
			case stateUnvisited:
				visit(e.to)
				low[v] = min(low[v], low[e.to])
			case stateOnStack:
				low[v] = min(low[v], index[e.to])
			}
		}
		if low[v] != index[v] {
			return
		}
		var members []int
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			states[w] = stateDone
			members = append(members, w)
			if w == v {
				break
			}
		}
		selfLoop := false
		for _, e := range g.nodes[v].out {
			if e.kind == EdgeInherits && e.to == v {
				selfLoop = true
			}
		}
		for _, w := range members {
			g.component[w] = v
			g.cyclic[w] = len(members) > 1 || selfLoop
		}
	}
	for v := 0; v < n; v++ {
		if states[v] == stateUnvisited {
			visit(v)
		}
	}
}

// Order sorts uris so that each document follows the documents it depends
// on among uris, over edges of any kind. Members of a dependency cycle are
// kept together in URI order, and documents with no order between them are
// also ordered by URI. URIs unknown to the graph come first. Duplicates are
// dropped.
func (g *Graph) Order(uris []string) []string {
	sorted := append([]string(nil), uris...)
	sort.Strings(sorted)
	local := make(map[int]int, len(sorted))
	var ids []int
	var out []string
	for i, uri := range sorted {
		if i > 0 && sorted[i-1] == uri {
			continue
		}
		id, ok := g.ids[uri]
		if !ok {
			out = append(out, uri)
			continue
		}
		local[id] = len(ids)
		ids = append(ids, id)
	}
	n := len(ids)
	deps := make([][]int, n)
	for i, id := range ids {
		for _, e := range g.nodes[id].out {
			if j, ok := local[e.to]; ok && j != i {
				deps[i] = append(deps[i], j)
			}
		}
	}

	comp, count := components(deps)
	members := make([][]int, count)
	for i := range ids {
		members[comp[i]] = append(members[comp[i]], i)
	}
	waiting := make([]int, count)
	users := make([][]int, count)
	seen := make(map[[2]int]bool)
	for i := range ids {
		for _, j := range deps[i] {
			from, to := comp[i], comp[j]
			if from == to || seen[[2]int{from, to}] {
				continue
			}
			seen[[2]int{from, to}] = true
			waiting[from]++
			users[to] = append(users[to], from)
		}
	}

	// ids are in URI order, so a component's first member is its smallest.
	var ready []int
	for c := range count {
		if waiting[c] == 0 {
			ready = append(ready, c)
		}
	}
	first := func(c int) int { return members[c][0] }
	for len(ready) > 0 {
		sort.Slice(ready, func(a, b int) bool { return first(ready[a]) < first(ready[b]) })
		c := ready[0]
		ready = ready[1:]
		for _, i := range members[c] {
			out = append(out, g.nodes[ids[i]].uri)
		}
		for _, user := range users[c] {
			waiting[user]--
			if waiting[user] == 0 {
				ready = append(ready, user)
			}
		}
	}
	return out
}

// components labels the strongly connected components of a local adjacency
// list with Tarjan's algorithm.
func components(adj [][]int) ([]int, int) {
	n := len(adj)
	index := make([]int, n)
	low := make([]int, n)
	states := make([]visitState, n)
	comp := make([]int, n)
	var stack []int
	counter, count := 0, 0

	var visit func(v int)
	visit = func(v int) {
		index[v] = counter
		low[v] = counter
		counter++
		states[v] = stateOnStack
		stack = append(stack, v)
		for _, w := range adj[v] {
			switch states[w] {
			case stateUnvisited:
				visit(w)
				low[v] = min(low[v], low[w])
			case stateOnStack:
				low[v] = min(low[v], index[w])
			}
		}
		if low[v] != index[v] {
			return
		}
		for {
			w := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			states[w] = stateDone
			comp[w] = count
			if w == v {
				break
			}
		}
		count++
	}
	for v := range n {
		if states[v] == stateUnvisited {
			visit(v)
		}
	}
	return comp, count
}
