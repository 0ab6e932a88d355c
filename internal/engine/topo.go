package engine

import (
	"errors"
	"slices"
)

// ErrCircularDependency is returned when a circular dependency is detected.
var ErrCircularDependency = errors.New("circular dependency detected")

// DependencyNode represents a node with dependencies for topological sorting.
type DependencyNode interface {
	ID() string
	Dependencies() []string
}

// TopoSort performs topological sort using Kahn's algorithm.
// Returns nodes ordered so that dependencies come before dependents.
// Dependencies outside the node set and self dependencies are ignored.
// Ties are broken by ID so the output is deterministic.
// Returns ErrCircularDependency if a cycle is detected.
func TopoSort[T DependencyNode](nodes []T) ([]T, error) {
	if len(nodes) == 0 {
		return nil, nil
	}

	byID := make(map[string]T, len(nodes))
	for _, n := range nodes {
		byID[n.ID()] = n
	}

	inDegree := make(map[string]int, len(nodes))
	dependents := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		id := n.ID()
		inDegree[id] += 0
		seen := make(map[string]bool)
		for _, dep := range n.Dependencies() {
			if dep == id || seen[dep] {
				continue
			}
			if _, ok := byID[dep]; !ok {
				continue
			}
			seen[dep] = true
			inDegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var queue []string
	for id, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, id)
		}
	}
	slices.Sort(queue)

	result := make([]T, 0, len(nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		result = append(result, byID[id])

		for _, other := range dependents[id] {
			inDegree[other]--
			if inDegree[other] == 0 {
				queue = append(queue, other)
				slices.Sort(queue)
			}
		}
	}

	if len(result) != len(byID) {
		return nil, ErrCircularDependency
	}
	return result, nil
}
