// Package memento defines the immutable snapshot records that describe one node
// of the management graph (entity, location, policy, enricher, feed, catalog
// item)
// at a point in time, together with the aggregate snapshot types built from
// them and the referential-integrity validator.
//
// Mementos are value objects. Every accessor returns a copy of the underlying
// collection; the only way to change a memento is to seed a builder with From
// and build a replacement.
package memento

import (
	"maps"
	"slices"
	"sort"
)

// ObjectType identifies the kind of management object a memento describes.
type ObjectType string

const (
	TypeEntity      ObjectType = "entity"
	TypeLocation    ObjectType = "location"
	TypePolicy      ObjectType = "policy"
	TypeEnricher    ObjectType = "enricher"
	TypeFeed        ObjectType = "feed"
	TypeCatalogItem ObjectType = "catalog_item"
)

// PersistenceOrder is the order in which object types are written and loaded.
// Entities come last so every location, adjunct and catalog item they point at
// already exists when they are processed.
var PersistenceOrder = []ObjectType{
	TypeCatalogItem, TypeLocation, TypePolicy, TypeEnricher, TypeFeed, TypeEntity,
}

// SubPath returns the object-store directory used for mementos of this type.
func (t ObjectType) SubPath() string {
	switch t {
	case TypeEntity:
		return "entities"
	case TypeLocation:
		return "locations"
	case TypePolicy:
		return "policies"
	case TypeEnricher:
		return "enrichers"
	case TypeFeed:
		return "feeds"
	case TypeCatalogItem:
		return "catalog"
	default:
		return string(t)
	}
}

// ObjectTypeForSubPath is the inverse of SubPath.
func ObjectTypeForSubPath(subPath string) (ObjectType, bool) {
	for _, t := range PersistenceOrder {
		if t.SubPath() == subPath {
			return t, true
		}
	}
	return "", false
}

// Memento is the common view over every memento kind.
type Memento interface {
	ID() string
	Type() string
	DisplayName() string
	CatalogItemID() string
	Tags() []string
	CustomProperties() map[string]any
	ObjectType() ObjectType
}

// TreeNode is implemented by mementos that participate in a parent/child tree.
// An empty Parent means the node is a root.
type TreeNode interface {
	Memento
	Parent() string
	Children() []string
	HasChild(id string) bool
}

type base struct {
	id            string
	typ           string
	displayName   string
	catalogItemID string
	tags          []string
	custom        map[string]any
}

func (b *base) ID() string                       { return b.id }
func (b *base) Type() string                     { return b.typ }
func (b *base) DisplayName() string              { return b.displayName }
func (b *base) CatalogItemID() string            { return b.catalogItemID }
func (b *base) Tags() []string                   { return slices.Clone(b.tags) }
func (b *base) CustomProperties() map[string]any { return cloneValues(b.custom) }

func (b *base) clone() base {
	return base{
		id:            b.id,
		typ:           b.typ,
		displayName:   b.displayName,
		catalogItemID: b.catalogItemID,
		tags:          slices.Clone(b.tags),
		custom:        cloneValues(b.custom),
	}
}

// builderState guards the move-on-build contract shared by all builders.
type builderState struct {
	built bool
}

func (s *builderState) check() {
	if s.built {
		panic("memento: builder used after Build")
	}
}

func (s *builderState) finish() {
	s.check()
	s.built = true
}

func cloneValues(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return maps.Clone(in)
}

// stringSet is an unordered set of names, exposed sorted.
type stringSet map[string]struct{}

func newStringSet(items ...string) stringSet {
	s := make(stringSet, len(items))
	for _, it := range items {
		s[it] = struct{}{}
	}
	return s
}

func (s stringSet) has(name string) bool {
	_, ok := s[name]
	return ok
}

func (s stringSet) sorted() []string {
	out := make([]string, 0, len(s))
	for k := range s {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s stringSet) clone() stringSet {
	return maps.Clone(s)
}

// appendUnique appends id when it is not already present, preserving order.
func appendUnique(list []string, id string) []string {
	if slices.Contains(list, id) {
		return list
	}
	return append(list, id)
}

func removeAll(list []string, id string) []string {
	return slices.DeleteFunc(list, func(s string) bool { return s == id })
}
