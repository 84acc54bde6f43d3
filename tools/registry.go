package tools

import (
	"fmt"
	"sort"
	"sync"

	"github.com/richinex/turbineopt/storage"
)

// Registry maps function names to tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(tool Tool) error {
	name := tool.Metadata().Name
	if name == "" {
		return fmt.Errorf("tool has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("function %q already registered", name)
	}
	r.tools[name] = tool
	return nil
}

// Get returns the tool registered under name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Names returns the registered function names, sorted.
func (r *Registry) Names() []string {
	list := r.List()
	names := make([]string, len(list))
	for i, m := range list {
		names[i] = m.Name
	}
	return names
}

// List returns metadata for every function, sorted by name.
func (r *Registry) List() []ToolMetadata {
	r.mu.RLock()
	metadata := make([]ToolMetadata, 0, len(r.tools))
	for _, tool := range r.tools {
		metadata = append(metadata, tool.Metadata())
	}
	r.mu.RUnlock()

	sort.Slice(metadata, func(i, j int) bool { return metadata[i].Name < metadata[j].Name })
	return metadata
}

// WithDefaults registers the seven turbine information functions against
// the given stores.
func WithDefaults(catalogStore storage.CatalogStore, results storage.ResultReader) (*Registry, error) {
	registry := NewRegistry()
	for _, t := range []Tool{
		NewTurbineByIDTool(catalogStore),
		NewTurbinesByStateTool(catalogStore),
		NewTurbinesByModelTool(catalogStore),
		NewTurbinePerformanceTool(results),
		NewAllPerformancesTool(results),
		NewCountByStateTool(catalogStore),
		NewCountByModelTool(catalogStore),
	} {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	return registry, nil
}
