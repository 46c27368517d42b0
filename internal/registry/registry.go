// Package registry holds the name-to-processor mapping and computes
// topological execution orderings over processor dependency ("requires")
// lists using Kahn's algorithm, with ties broken by registration order.
package registry

import (
	"github.com/buildbeaver/docflow/internal/gerror"
	"github.com/buildbeaver/docflow/internal/logger"
	"github.com/buildbeaver/docflow/internal/plugin"
)

// entry tracks a registered processor alongside its registration order, used
// to break topological-sort ties stably.
type entry struct {
	processor plugin.Processor
	order     int
}

// Registry is a name→processor mapping with dependency-aware ordering.
type Registry struct {
	log       logger.Log
	byName    map[string]*entry
	nextOrder int
}

// New constructs an empty Registry.
func New(logFactory logger.LogFactory) *Registry {
	return &Registry{
		log:    logFactory("registry"),
		byName: make(map[string]*entry),
	}
}

// Register adds p to the registry. Fails with gerror.CodeDuplicateName if
// p.Name() is empty or already registered; re-registering the same name is
// only possible after an explicit Unregister.
func (r *Registry) Register(p plugin.Processor) error {
	name := p.Name()
	if name == "" {
		return gerror.New(gerror.CodeDuplicateName, "error processor name must not be empty")
	}
	if _, exists := r.byName[name]; exists {
		return gerror.Newf(gerror.CodeDuplicateName, "error processor %q is already registered", name)
	}
	r.byName[name] = &entry{processor: p, order: r.nextOrder}
	r.nextOrder++
	r.log.Debugf("registered processor %q (requires=%v)", name, p.Requires())
	return nil
}

// Unregister removes name from the registry and returns the processor that
// was registered under it, or nil if none was.
func (r *Registry) Unregister(name string) plugin.Processor {
	e, ok := r.byName[name]
	if !ok {
		return nil
	}
	delete(r.byName, name)
	return e.processor
}

// Get returns the processor registered under name, or nil.
func (r *Registry) Get(name string) plugin.Processor {
	e, ok := r.byName[name]
	if !ok {
		return nil
	}
	return e.processor
}

// Has reports whether name is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Size returns the number of registered processors.
func (r *Registry) Size() int {
	return len(r.byName)
}

// Each calls fn once per registered processor, in registration order.
func (r *Registry) Each(fn func(plugin.Processor)) {
	for _, name := range r.namesInRegistrationOrder() {
		fn(r.byName[name].processor)
	}
}

func (r *Registry) namesInRegistrationOrder() []string {
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	// Simple insertion sort by registration order; registries are small
	// (tens of processors), so an O(n^2) stable sort is plenty fast and
	// keeps this free of an extra import.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && r.byName[names[j-1]].order > r.byName[names[j]].order; j-- {
			names[j-1], names[j] = names[j], names[j-1]
		}
	}
	return names
}

// GetExecutionOrder topologically sorts names by their Requires() edges
// (Kahn's algorithm), breaking ties by registration order so the result is
// deterministic across calls. Dependencies outside names are ignored: the
// router only asks this of the currently-applicable subset, and a dependency
// that isn't applicable to this job is not this sort's problem. Returns
// gerror.CodeCircularDependency if names (restricted to each other) contain
// a cycle.
func (r *Registry) GetExecutionOrder(names []string) ([]string, error) {
	included := make(map[string]bool, len(names))
	for _, n := range names {
		included[n] = true
	}

	indegree := make(map[string]int, len(names))
	dependents := make(map[string][]string)
	for _, n := range names {
		indegree[n] = 0
	}
	for _, n := range names {
		e, ok := r.byName[n]
		if !ok {
			continue
		}
		for _, dep := range e.processor.Requires() {
			if !included[dep] {
				continue
			}
			indegree[n]++
			dependents[dep] = append(dependents[dep], n)
		}
	}

	ordered := make([]string, 0, len(names))
	ready := r.readyInOrder(names, indegree)
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		ordered = append(ordered, next)
		for _, dependent := range dependents[next] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = insertByOrder(ready, dependent, r.byName)
			}
		}
	}

	if len(ordered) != len(names) {
		placed := make(map[string]bool, len(ordered))
		for _, n := range ordered {
			placed[n] = true
		}
		var unresolved []string
		for _, n := range names {
			if !placed[n] {
				unresolved = append(unresolved, n)
			}
		}
		return nil, gerror.Newf(gerror.CodeCircularDependency, "error dependency cycle detected among steps %v", unresolved)
	}
	return ordered, nil
}

// readyInOrder returns the zero-indegree members of names, in registration order.
func (r *Registry) readyInOrder(names []string, indegree map[string]int) []string {
	var ready []string
	for _, n := range names {
		if indegree[n] == 0 {
			ready = insertByOrder(ready, n, r.byName)
		}
	}
	return ready
}

// insertByOrder inserts name into the ready queue keeping it sorted by
// registration order, so ties in the topological sort resolve the same way
// namesInRegistrationOrder does.
func insertByOrder(ready []string, name string, byName map[string]*entry) []string {
	order := byName[name].order
	i := 0
	for ; i < len(ready); i++ {
		if byName[ready[i]].order > order {
			break
		}
	}
	ready = append(ready, "")
	copy(ready[i+1:], ready[i:])
	ready[i] = name
	return ready
}

// MissingDependency names a processor whose `requires` list references a
// processor name that isn't registered anywhere in the registry.
type MissingDependency struct {
	Processor string
	Missing   string
}

// ValidateDependencies enumerates every MissingDependency across the whole
// registry. Validation is advisory only; it never prevents registration.
func (r *Registry) ValidateDependencies() []MissingDependency {
	var problems []MissingDependency
	for _, name := range r.namesInRegistrationOrder() {
		p := r.byName[name].processor
		for _, dep := range p.Requires() {
			if !r.Has(dep) {
				problems = append(problems, MissingDependency{Processor: name, Missing: dep})
			}
		}
	}
	return problems
}
