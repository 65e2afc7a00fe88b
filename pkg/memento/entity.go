package memento

import (
	"maps"
	"slices"
)

// EntityMemento is the immutable snapshot of one entity.
type EntityMemento struct {
	base
	parent        string
	children      []string
	isTopLevelApp bool

	config          map[string]any
	configUnmatched map[string]any
	attributes      map[string]any
	configKeys      map[string]KeyDef
	attributeKeys   map[string]KeyDef

	entityRefConfigs      stringSet
	entityRefAttributes   stringSet
	locationRefConfigs    stringSet
	locationRefAttributes stringSet

	locations []string
	members   []string
	policies  []string
	enrichers []string
	feeds     []string
}

var _ TreeNode = (*EntityMemento)(nil)

func (m *EntityMemento) ObjectType() ObjectType { return TypeEntity }
func (m *EntityMemento) Parent() string         { return m.parent }
func (m *EntityMemento) Children() []string     { return slices.Clone(m.children) }

// IsTopLevelApp reports whether the entity is an application root.
func (m *EntityMemento) IsTopLevelApp() bool { return m.isTopLevelApp }

// HasChild reports whether id is listed among the children.
func (m *EntityMemento) HasChild(id string) bool { return slices.Contains(m.children, id) }

// Config returns the locally set config values keyed by key name.
func (m *EntityMemento) Config() map[string]any { return cloneValues(m.config) }

// ConfigUnmatched returns locally set config bag entries that match no declared key.
func (m *EntityMemento) ConfigUnmatched() map[string]any { return cloneValues(m.configUnmatched) }

// Attributes returns the last published sensor values keyed by sensor name.
func (m *EntityMemento) Attributes() map[string]any { return cloneValues(m.attributes) }

// ConfigKeys returns the name to key-definition side table for config.
func (m *EntityMemento) ConfigKeys() map[string]KeyDef { return maps.Clone(m.configKeys) }

// AttributeKeys returns the name to key-definition side table for attributes.
func (m *EntityMemento) AttributeKeys() map[string]KeyDef { return maps.Clone(m.attributeKeys) }

// EntityReferenceConfigs lists the config names whose values are entity ids.
func (m *EntityMemento) EntityReferenceConfigs() []string {
	return m.entityRefConfigs.sorted()
}

func (m *EntityMemento) EntityReferenceAttributes() []string {
	return m.entityRefAttributes.sorted()
}

func (m *EntityMemento) LocationReferenceConfigs() []string {
	return m.locationRefConfigs.sorted()
}

func (m *EntityMemento) LocationReferenceAttributes() []string {
	return m.locationRefAttributes.sorted()
}

// IsEntityReferenceConfig reports whether the named config value is an entity id to re-link.
func (m *EntityMemento) IsEntityReferenceConfig(name string) bool {
	return m.entityRefConfigs.has(name)
}

// IsEntityReferenceAttribute reports whether the named attribute value is an entity id to re-link.
func (m *EntityMemento) IsEntityReferenceAttribute(name string) bool {
	return m.entityRefAttributes.has(name)
}

// IsLocationReferenceConfig reports whether the named config value is a location id to re-link.
func (m *EntityMemento) IsLocationReferenceConfig(name string) bool {
	return m.locationRefConfigs.has(name)
}

// IsLocationReferenceAttribute reports whether the named attribute value is a location id to re-link.
func (m *EntityMemento) IsLocationReferenceAttribute(name string) bool {
	return m.locationRefAttributes.has(name)
}

func (m *EntityMemento) Locations() []string { return slices.Clone(m.locations) }
func (m *EntityMemento) Members() []string   { return slices.Clone(m.members) }
func (m *EntityMemento) Policies() []string  { return slices.Clone(m.policies) }
func (m *EntityMemento) Enrichers() []string { return slices.Clone(m.enrichers) }
func (m *EntityMemento) Feeds() []string     { return slices.Clone(m.feeds) }

// EntityBuilder assembles an EntityMemento. Build hands the builder's
// collections to the memento; the builder cannot be used afterwards.
type EntityBuilder struct {
	state builderState
	m     *EntityMemento
}

// NewEntityBuilder returns an empty entity builder.
func NewEntityBuilder() *EntityBuilder {
	return &EntityBuilder{m: &EntityMemento{
		config:                map[string]any{},
		configUnmatched:       map[string]any{},
		attributes:            map[string]any{},
		configKeys:            map[string]KeyDef{},
		attributeKeys:         map[string]KeyDef{},
		entityRefConfigs:      stringSet{},
		entityRefAttributes:   stringSet{},
		locationRefConfigs:    stringSet{},
		locationRefAttributes: stringSet{},
	}}
}

// EntityBuilderFrom seeds a builder with a copy of every field of m.
func EntityBuilderFrom(m *EntityMemento) *EntityBuilder {
	return &EntityBuilder{m: &EntityMemento{
		base:                  m.base.clone(),
		parent:                m.parent,
		children:              slices.Clone(m.children),
		isTopLevelApp:         m.isTopLevelApp,
		config:                cloneValues(m.config),
		configUnmatched:       cloneValues(m.configUnmatched),
		attributes:            cloneValues(m.attributes),
		configKeys:            maps.Clone(m.configKeys),
		attributeKeys:         maps.Clone(m.attributeKeys),
		entityRefConfigs:      m.entityRefConfigs.clone(),
		entityRefAttributes:   m.entityRefAttributes.clone(),
		locationRefConfigs:    m.locationRefConfigs.clone(),
		locationRefAttributes: m.locationRefAttributes.clone(),
		locations:             slices.Clone(m.locations),
		members:               slices.Clone(m.members),
		policies:              slices.Clone(m.policies),
		enrichers:             slices.Clone(m.enrichers),
		feeds:                 slices.Clone(m.feeds),
	}}
}

func (b *EntityBuilder) ID(id string) *EntityBuilder {
	b.state.check()
	b.m.id = id
	return b
}
func (b *EntityBuilder) Type(t string) *EntityBuilder {
	b.state.check()
	b.m.typ = t
	return b
}
func (b *EntityBuilder) DisplayName(n string) *EntityBuilder {
	b.state.check()
	b.m.displayName = n
	return b
}
func (b *EntityBuilder) CatalogItemID(id string) *EntityBuilder {
	b.state.check()
	b.m.catalogItemID = id
	return b
}
func (b *EntityBuilder) Tag(tag string) *EntityBuilder {
	b.state.check()
	b.m.tags = append(b.m.tags, tag)
	return b
}
func (b *EntityBuilder) CustomProperty(k string, v any) *EntityBuilder {
	b.state.check()
	if b.m.custom == nil {
		b.m.custom = map[string]any{}
	}
	b.m.custom[k] = v
	return b
}

func (b *EntityBuilder) Parent(id string) *EntityBuilder {
	b.state.check()
	b.m.parent = id
	return b
}

// AddChild appends id to the children unless already present.
func (b *EntityBuilder) AddChild(id string) *EntityBuilder {
	b.state.check()
	b.m.children = appendUnique(b.m.children, id)
	return b
}

// RemoveChild drops id from the children.
func (b *EntityBuilder) RemoveChild(id string) *EntityBuilder {
	b.state.check()
	b.m.children = removeAll(b.m.children, id)
	return b
}

func (b *EntityBuilder) TopLevelApp(v bool) *EntityBuilder {
	b.state.check()
	b.m.isTopLevelApp = v
	return b
}

// Config sets a config value together with the key definition it was set through.
func (b *EntityBuilder) Config(key KeyDef, v any) *EntityBuilder {
	b.state.check()
	b.m.config[key.Name] = v
	b.m.configKeys[key.Name] = key
	return b
}

func (b *EntityBuilder) ConfigUnmatched(name string, v any) *EntityBuilder {
	b.state.check()
	b.m.configUnmatched[name] = v
	return b
}

// Attribute sets a sensor value together with its sensor definition.
func (b *EntityBuilder) Attribute(key KeyDef, v any) *EntityBuilder {
	b.state.check()
	b.m.attributes[key.Name] = v
	b.m.attributeKeys[key.Name] = key
	return b
}

// RawConfig sets a name-keyed config value without a key definition, as
// produced by deserialization of older snapshots.
func (b *EntityBuilder) RawConfig(name string, v any) *EntityBuilder {
	b.state.check()
	b.m.config[name] = v
	return b
}

func (b *EntityBuilder) RawAttribute(name string, v any) *EntityBuilder {
	b.state.check()
	b.m.attributes[name] = v
	return b
}

func (b *EntityBuilder) ConfigKey(def KeyDef) *EntityBuilder {
	b.state.check()
	b.m.configKeys[def.Name] = def
	return b
}

func (b *EntityBuilder) AttributeKey(def KeyDef) *EntityBuilder {
	b.state.check()
	b.m.attributeKeys[def.Name] = def
	return b
}

func (b *EntityBuilder) EntityReferenceConfig(name string) *EntityBuilder {
	b.state.check()
	b.m.entityRefConfigs[name] = struct{}{}
	return b
}

func (b *EntityBuilder) EntityReferenceAttribute(name string) *EntityBuilder {
	b.state.check()
	b.m.entityRefAttributes[name] = struct{}{}
	return b
}

func (b *EntityBuilder) LocationReferenceConfig(name string) *EntityBuilder {
	b.state.check()
	b.m.locationRefConfigs[name] = struct{}{}
	return b
}

func (b *EntityBuilder) LocationReferenceAttribute(name string) *EntityBuilder {
	b.state.check()
	b.m.locationRefAttributes[name] = struct{}{}
	return b
}

func (b *EntityBuilder) AddLocation(id string) *EntityBuilder {
	b.state.check()
	b.m.locations = appendUnique(b.m.locations, id)
	return b
}

func (b *EntityBuilder) AddMember(id string) *EntityBuilder {
	b.state.check()
	b.m.members = appendUnique(b.m.members, id)
	return b
}

func (b *EntityBuilder) AddPolicy(id string) *EntityBuilder {
	b.state.check()
	b.m.policies = appendUnique(b.m.policies, id)
	return b
}

func (b *EntityBuilder) AddEnricher(id string) *EntityBuilder {
	b.state.check()
	b.m.enrichers = appendUnique(b.m.enrichers, id)
	return b
}

func (b *EntityBuilder) AddFeed(id string) *EntityBuilder {
	b.state.check()
	b.m.feeds = appendUnique(b.m.feeds, id)
	return b
}

// Build returns the memento and retires the builder.
func (b *EntityBuilder) Build() *EntityMemento {
	b.state.finish()
	m := b.m
	b.m = nil
	return m
}
