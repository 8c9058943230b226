package graph

import "sort"

// topoSort runs Kahn's algorithm over a node -> dependency-names view and
// returns an order in which every dependency precedes its dependents.
// Node names are processed in sorted order so the result is deterministic.
// If no valid order exists the specific cycle path is returned inside a
// CircularDependencyError.
func topoSort(deps map[string][]string) ([]string, error) {
	indegree := make(map[string]int, len(deps))
	dependents := make(map[string][]string, len(deps))
	for name, ds := range deps {
		if _, ok := indegree[name]; !ok {
			indegree[name] = 0
		}
		for _, d := range ds {
			// Edges to names outside the view (never the case after
			// AddNode validation) are ignored rather than invented.
			if _, ok := deps[d]; !ok {
				continue
			}
			indegree[name]++
			dependents[d] = append(dependents[d], name)
		}
	}

	queue := make([]string, 0, len(deps))
	for name, in := range indegree {
		if in == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(deps))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		next := append([]string(nil), dependents[name]...)
		sort.Strings(next)
		for _, dep := range next {
			indegree[dep]--
			if indegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
		sort.Strings(queue)
	}

	if len(order) != len(deps) {
		cycles := findCycles(deps)
		if len(cycles) > 0 {
			return nil, &CircularDependencyError{Cycle: cycles[0]}
		}
		// Unreachable: Kahn left nodes unordered, so a cycle must exist.
		return nil, &CircularDependencyError{}
	}
	return order, nil
}

// findCycles locates every distinct cycle in the dependency view using a
// depth-first search with an explicit recursion stack. Each cycle is
// reported as the path of node names that closes the loop, starting and
// ending at the same node.
func findCycles(deps map[string][]string) [][]string {
	const (
		white = iota // unvisited
		grey         // on the recursion stack
		black        // fully explored
	)
	color := make(map[string]int, len(deps))
	var stack []string
	var cycles [][]string

	var visit func(name string)
	visit = func(name string) {
		color[name] = grey
		stack = append(stack, name)

		sorted := append([]string(nil), deps[name]...)
		sort.Strings(sorted)
		for _, dep := range sorted {
			if _, ok := deps[dep]; !ok {
				continue
			}
			switch color[dep] {
			case white:
				visit(dep)
			case grey:
				// dep is on the stack: the slice from its position to the
				// top, closed with dep again, is the cycle path.
				for i, n := range stack {
					if n == dep {
						cycle := append([]string(nil), stack[i:]...)
						cycle = append(cycle, dep)
						cycles = append(cycles, cycle)
						break
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[name] = black
	}

	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if color[name] == white {
			visit(name)
		}
	}
	return cycles
}
