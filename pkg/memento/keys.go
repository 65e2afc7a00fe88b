package memento

import (
	"math"
	"sync"
	"time"
)

// KeyDef is the serializable definition of a typed config key or attribute
// sensor. Live keys are strongly typed objects; mementos persist them by name
// and keep a name to KeyDef side table so the typed form can be recovered.
type KeyDef struct {
	Name        string `json:"name"`
	TypeName    string `json:"type"`
	Description string `json:"description,omitempty"`
}

// UntypedKey is the definition used when neither the memento side table nor
// the type lookup knows a key.
func UntypedKey(name string) KeyDef {
	return KeyDef{Name: name, TypeName: "any"}
}

// Coerce converts a decoded value back to the Go type named by d.TypeName.
// Codecs hand numbers back as int64 or float64, so only numbers (and, for a
// duration, its string form) are converted; values that cannot be converted
// without loss are returned unchanged.
func (d KeyDef) Coerce(v any) any {
	if d.TypeName == "duration" {
		if s, ok := v.(string); ok {
			if dur, err := time.ParseDuration(s); err == nil {
				return dur
			}
			return v
		}
	}
	f, isInt, i, ok := number(v)
	if !ok {
		return v
	}
	if !isInt {
		if f != math.Trunc(f) || math.Abs(f) > 1<<53 {
			switch d.TypeName {
			case "float64":
				return f
			case "float32":
				return float32(f)
			}
			return v
		}
		i = int64(f)
	}
	switch d.TypeName {
	case "int":
		return int(i)
	case "int64":
		return i
	case "int32":
		if i >= math.MinInt32 && i <= math.MaxInt32 {
			return int32(i)
		}
	case "int16":
		if i >= math.MinInt16 && i <= math.MaxInt16 {
			return int16(i)
		}
	case "int8":
		if i >= math.MinInt8 && i <= math.MaxInt8 {
			return int8(i)
		}
	case "uint", "uint64":
		if i >= 0 {
			if d.TypeName == "uint" {
				return uint(i)
			}
			return uint64(i)
		}
	case "uint32":
		if i >= 0 && i <= math.MaxUint32 {
			return uint32(i)
		}
	case "uint16":
		if i >= 0 && i <= math.MaxUint16 {
			return uint16(i)
		}
	case "uint8":
		if i >= 0 && i <= math.MaxUint8 {
			return uint8(i)
		}
	case "float64":
		return float64(i)
	case "float32":
		return float32(i)
	case "duration":
		return time.Duration(i)
	}
	return v
}

// number reports the numeric value of v. Integers come back in i with isInt
// set; floats come back in f.
func number(v any) (f float64, isInt bool, i int64, ok bool) {
	switch x := v.(type) {
	case int:
		return 0, true, int64(x), true
	case int8:
		return 0, true, int64(x), true
	case int16:
		return 0, true, int64(x), true
	case int32:
		return 0, true, int64(x), true
	case int64:
		return 0, true, x, true
	case uint8:
		return 0, true, int64(x), true
	case uint16:
		return 0, true, int64(x), true
	case uint32:
		return 0, true, int64(x), true
	case uint64:
		if x <= math.MaxInt64 {
			return 0, true, int64(x), true
		}
		return float64(x), false, 0, true
	case float32:
		return float64(x), false, 0, true
	case float64:
		return x, false, 0, true
	}
	return 0, false, 0, false
}

// KeyLookup returns the statically declared key for an implementation type.
// Reconstruction supplies one backed by its type registry.
type KeyLookup func(implType, keyName string) (KeyDef, bool)

// ResolvedEntity is the key-object-keyed form of an entity memento. It is
// produced from the raw, name-keyed memento by an explicit resolution step.
type ResolvedEntity struct {
	Memento    *EntityMemento
	Config     map[KeyDef]any
	Attributes map[KeyDef]any
}

// ConfigValue returns the value of the named config key.
func (r *ResolvedEntity) ConfigValue(name string) (any, bool) {
	for k, v := range r.Config {
		if k.Name == name {
			return v, true
		}
	}
	return nil, false
}

// ResolveEntity converts the name-keyed config and attribute maps of m into
// KeyDef-keyed maps. Each name is resolved against the memento's own side
// table first, then lookup, and finally falls back to an untyped key. Values
// are converted to the resolved key's type with KeyDef.Coerce.
func ResolveEntity(m *EntityMemento, lookup KeyLookup) *ResolvedEntity {
	resolve := func(table map[string]KeyDef, name string) KeyDef {
		if def, ok := table[name]; ok {
			return def
		}
		if lookup != nil {
			if def, ok := lookup(m.typ, name); ok {
				return def
			}
		}
		return UntypedKey(name)
	}
	out := &ResolvedEntity{
		Memento:    m,
		Config:     make(map[KeyDef]any, len(m.config)),
		Attributes: make(map[KeyDef]any, len(m.attributes)),
	}
	for name, v := range m.config {
		def := resolve(m.configKeys, name)
		out.Config[def] = def.Coerce(v)
	}
	for name, v := range m.attributes {
		def := resolve(m.attributeKeys, name)
		out.Attributes[def] = def.Coerce(v)
	}
	return out
}

// KeyResolver memoizes ResolveEntity per memento. A memento is resolved at
// most once, on first request; most snapshots are never fully resolved.
// Safe for concurrent use.
type KeyResolver struct {
	lookup KeyLookup

	mu    sync.Mutex
	cache map[*EntityMemento]*ResolvedEntity
}

// NewKeyResolver constructs a resolver using lookup for keys missing from a
// memento's own side table.
func NewKeyResolver(lookup KeyLookup) *KeyResolver {
	return &KeyResolver{lookup: lookup, cache: make(map[*EntityMemento]*ResolvedEntity)}
}

// Resolve returns the cached resolution of m, computing it on first use.
func (r *KeyResolver) Resolve(m *EntityMemento) *ResolvedEntity {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.cache[m]; ok {
		return res
	}
	res := ResolveEntity(m, r.lookup)
	r.cache[m] = res
	return res
}

// Len reports how many mementos have been resolved.
func (r *KeyResolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
