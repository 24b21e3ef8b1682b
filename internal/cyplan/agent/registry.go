package agent

import (
	"sort"
	"sync"
)

// Registry maps thread ids to compiled graphs. Graphs are built on first
// use and kept for the life of the process.
type Registry struct {
	mu     sync.Mutex
	graphs map[string]*Graph
	build  func() (*Graph, error)
}

// NewRegistry creates a registry that compiles graphs with build.
func NewRegistry(build func() (*Graph, error)) *Registry {
	return &Registry{graphs: make(map[string]*Graph), build: build}
}

// Get returns the graph of threadID, compiling it when missing.
func (r *Registry) Get(threadID string) (*Graph, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if g, ok := r.graphs[threadID]; ok {
		return g, nil
	}
	g, err := r.build()
	if err != nil {
		return nil, err
	}
	r.graphs[threadID] = g
	return g, nil
}

// Has reports whether a graph was compiled for threadID.
func (r *Registry) Has(threadID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.graphs[threadID]
	return ok
}

// IDs returns the registered thread ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.graphs))
	for id := range r.graphs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of compiled graphs.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.graphs)
}
