package memento

import (
	"slices"
)

// LocationMemento is the immutable snapshot of one location.
type LocationMemento struct {
	base
	parent   string
	children []string

	config             map[string]any
	configUnused       stringSet
	configDescription  string
	entityRefConfigs   stringSet
	locationRefConfigs stringSet
}

var _ TreeNode = (*LocationMemento)(nil)

func (m *LocationMemento) ObjectType() ObjectType { return TypeLocation }
func (m *LocationMemento) Parent() string         { return m.parent }
func (m *LocationMemento) Children() []string     { return slices.Clone(m.children) }

// HasChild reports whether id is listed among the children.
func (m *LocationMemento) HasChild(id string) bool { return slices.Contains(m.children, id) }

// LocationConfig returns the persisted flags merged with the local config bag.
func (m *LocationMemento) LocationConfig() map[string]any { return cloneValues(m.config) }

// LocationConfigUnused returns the config keys the live location never consumed.
func (m *LocationMemento) LocationConfigUnused() []string { return m.configUnused.sorted() }

func (m *LocationMemento) LocationConfigDescription() string { return m.configDescription }

func (m *LocationMemento) EntityReferenceConfigs() []string   { return m.entityRefConfigs.sorted() }
func (m *LocationMemento) LocationReferenceConfigs() []string { return m.locationRefConfigs.sorted() }

func (m *LocationMemento) IsEntityReferenceConfig(name string) bool {
	return m.entityRefConfigs.has(name)
}

func (m *LocationMemento) IsLocationReferenceConfig(name string) bool {
	return m.locationRefConfigs.has(name)
}

// LocationBuilder assembles a LocationMemento; it is retired by Build.
type LocationBuilder struct {
	state builderState
	m     *LocationMemento
}

func NewLocationBuilder() *LocationBuilder {
	return &LocationBuilder{m: &LocationMemento{
		config:             map[string]any{},
		configUnused:       stringSet{},
		entityRefConfigs:   stringSet{},
		locationRefConfigs: stringSet{},
	}}
}

// LocationBuilderFrom seeds a builder with a copy of every field of m.
func LocationBuilderFrom(m *LocationMemento) *LocationBuilder {
	return &LocationBuilder{m: &LocationMemento{
		base:               m.base.clone(),
		parent:             m.parent,
		children:           slices.Clone(m.children),
		config:             cloneValues(m.config),
		configUnused:       m.configUnused.clone(),
		configDescription:  m.configDescription,
		entityRefConfigs:   m.entityRefConfigs.clone(),
		locationRefConfigs: m.locationRefConfigs.clone(),
	}}
}

func (b *LocationBuilder) ID(id string) *LocationBuilder {
	b.state.check()
	b.m.id = id
	return b
}

func (b *LocationBuilder) Type(t string) *LocationBuilder {
	b.state.check()
	b.m.typ = t
	return b
}

func (b *LocationBuilder) DisplayName(n string) *LocationBuilder {
	b.state.check()
	b.m.displayName = n
	return b
}

func (b *LocationBuilder) CatalogItemID(id string) *LocationBuilder {
	b.state.check()
	b.m.catalogItemID = id
	return b
}

func (b *LocationBuilder) Tag(tag string) *LocationBuilder {
	b.state.check()
	b.m.tags = append(b.m.tags, tag)
	return b
}

func (b *LocationBuilder) CustomProperty(k string, v any) *LocationBuilder {
	b.state.check()
	if b.m.custom == nil {
		b.m.custom = map[string]any{}
	}
	b.m.custom[k] = v
	return b
}

func (b *LocationBuilder) Parent(id string) *LocationBuilder {
	b.state.check()
	b.m.parent = id
	return b
}

func (b *LocationBuilder) AddChild(id string) *LocationBuilder {
	b.state.check()
	b.m.children = appendUnique(b.m.children, id)
	return b
}

func (b *LocationBuilder) RemoveChild(id string) *LocationBuilder {
	b.state.check()
	b.m.children = removeAll(b.m.children, id)
	return b
}

func (b *LocationBuilder) Config(name string, v any) *LocationBuilder {
	b.state.check()
	b.m.config[name] = v
	return b
}

// CopyConfig merges every entry of cfg into the location config.
func (b *LocationBuilder) CopyConfig(cfg map[string]any) *LocationBuilder {
	b.state.check()
	for k, v := range cfg {
		b.m.config[k] = v
	}
	return b
}

func (b *LocationBuilder) ConfigUnused(name string) *LocationBuilder {
	b.state.check()
	b.m.configUnused[name] = struct{}{}
	return b
}

func (b *LocationBuilder) ConfigDescription(d string) *LocationBuilder {
	b.state.check()
	b.m.configDescription = d
	return b
}

func (b *LocationBuilder) EntityReferenceConfig(name string) *LocationBuilder {
	b.state.check()
	b.m.entityRefConfigs[name] = struct{}{}
	return b
}

func (b *LocationBuilder) LocationReferenceConfig(name string) *LocationBuilder {
	b.state.check()
	b.m.locationRefConfigs[name] = struct{}{}
	return b
}

func (b *LocationBuilder) Build() *LocationMemento {
	b.state.finish()
	m := b.m
	b.m = nil
	return m
}
