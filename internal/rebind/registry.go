package rebind

import (
	"sync"

	"brooklyn/pkg/memento"
)

// Registry lists the implementation types this node can reconstruct and the
// config keys they declare.
type Registry struct {
	mu    sync.RWMutex
	types map[memento.ObjectType]map[string]map[string]memento.KeyDef
	open  bool
}

// NewRegistry returns an empty registry that knows no type.
func NewRegistry() *Registry {
	return &Registry{types: make(map[memento.ObjectType]map[string]map[string]memento.KeyDef)}
}

// OpenRegistry returns a registry that accepts every type.
func OpenRegistry() *Registry {
	r := NewRegistry()
	r.open = true
	return r
}

// Register declares typeName for objects of kind t with its config keys.
func (r *Registry) Register(t memento.ObjectType, typeName string, keys ...memento.KeyDef) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byName, ok := r.types[t]
	if !ok {
		byName = make(map[string]map[string]memento.KeyDef)
		r.types[t] = byName
	}
	defs, ok := byName[typeName]
	if !ok {
		defs = make(map[string]memento.KeyDef)
		byName[typeName] = defs
	}
	for _, k := range keys {
		defs[k.Name] = k
	}
}

// Known reports whether typeName is registered for t.
func (r *Registry) Known(t memento.ObjectType, typeName string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.open {
		return true
	}
	_, ok := r.types[t][typeName]
	return ok
}

// LookupKey finds a config key declared by an entity type. It has the shape
// of memento.KeyLookup.
func (r *Registry) LookupKey(implType, keyName string) (memento.KeyDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[memento.TypeEntity][implType][keyName]
	return def, ok
}
