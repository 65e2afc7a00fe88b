package memento

import "slices"

// CatalogItemMemento snapshots a registered catalog item. Catalog items live
// outside the entity tree.
type CatalogItemMemento struct {
	base
	symbolicName    string
	version         string
	description     string
	iconURL         string
	planYAML        string
	javaType        string
	specType        string
	catalogItemType string
	libraries       []string
	deprecated      bool
}

var _ Memento = (*CatalogItemMemento)(nil)

func (m *CatalogItemMemento) ObjectType() ObjectType { return TypeCatalogItem }
func (m *CatalogItemMemento) SymbolicName() string   { return m.symbolicName }
func (m *CatalogItemMemento) Version() string        { return m.version }
func (m *CatalogItemMemento) Description() string    { return m.description }
func (m *CatalogItemMemento) IconURL() string        { return m.iconURL }
func (m *CatalogItemMemento) PlanYAML() string       { return m.planYAML }

// JavaType is the implementation type the item instantiates.
func (m *CatalogItemMemento) JavaType() string        { return m.javaType }
func (m *CatalogItemMemento) SpecType() string        { return m.specType }
func (m *CatalogItemMemento) CatalogItemType() string { return m.catalogItemType }
func (m *CatalogItemMemento) Libraries() []string     { return slices.Clone(m.libraries) }
func (m *CatalogItemMemento) Deprecated() bool        { return m.deprecated }

// RegisteredType returns the symbolic-name:version pair the item is registered under.
func (m *CatalogItemMemento) RegisteredType() string {
	if m.version == "" {
		return m.symbolicName
	}
	return m.symbolicName + ":" + m.version
}

// CatalogItemBuilder assembles a CatalogItemMemento; it is retired by Build.
type CatalogItemBuilder struct {
	state builderState
	m     *CatalogItemMemento
}

func NewCatalogItemBuilder() *CatalogItemBuilder {
	return &CatalogItemBuilder{m: &CatalogItemMemento{}}
}

func CatalogItemBuilderFrom(m *CatalogItemMemento) *CatalogItemBuilder {
	cp := *m
	cp.base = m.base.clone()
	cp.libraries = slices.Clone(m.libraries)
	return &CatalogItemBuilder{m: &cp}
}

func (b *CatalogItemBuilder) ID(id string) *CatalogItemBuilder {
	b.state.check()
	b.m.id = id
	return b
}

func (b *CatalogItemBuilder) Type(t string) *CatalogItemBuilder {
	b.state.check()
	b.m.typ = t
	return b
}

func (b *CatalogItemBuilder) DisplayName(n string) *CatalogItemBuilder {
	b.state.check()
	b.m.displayName = n
	return b
}

func (b *CatalogItemBuilder) CatalogItemID(id string) *CatalogItemBuilder {
	b.state.check()
	b.m.catalogItemID = id
	return b
}

func (b *CatalogItemBuilder) Tag(tag string) *CatalogItemBuilder {
	b.state.check()
	b.m.tags = append(b.m.tags, tag)
	return b
}

func (b *CatalogItemBuilder) CustomProperty(k string, v any) *CatalogItemBuilder {
	b.state.check()
	if b.m.custom == nil {
		b.m.custom = map[string]any{}
	}
	b.m.custom[k] = v
	return b
}

func (b *CatalogItemBuilder) SymbolicName(n string) *CatalogItemBuilder {
	b.state.check()
	b.m.symbolicName = n
	return b
}

func (b *CatalogItemBuilder) Version(v string) *CatalogItemBuilder {
	b.state.check()
	b.m.version = v
	return b
}

func (b *CatalogItemBuilder) Description(d string) *CatalogItemBuilder {
	b.state.check()
	b.m.description = d
	return b
}

func (b *CatalogItemBuilder) IconURL(u string) *CatalogItemBuilder {
	b.state.check()
	b.m.iconURL = u
	return b
}

func (b *CatalogItemBuilder) PlanYAML(p string) *CatalogItemBuilder {
	b.state.check()
	b.m.planYAML = p
	return b
}

func (b *CatalogItemBuilder) JavaType(t string) *CatalogItemBuilder {
	b.state.check()
	b.m.javaType = t
	return b
}

func (b *CatalogItemBuilder) SpecType(t string) *CatalogItemBuilder {
	b.state.check()
	b.m.specType = t
	return b
}

func (b *CatalogItemBuilder) CatalogItemType(t string) *CatalogItemBuilder {
	b.state.check()
	b.m.catalogItemType = t
	return b
}

func (b *CatalogItemBuilder) Library(url string) *CatalogItemBuilder {
	b.state.check()
	b.m.libraries = append(b.m.libraries, url)
	return b
}

func (b *CatalogItemBuilder) Deprecated(v bool) *CatalogItemBuilder {
	b.state.check()
	b.m.deprecated = v
	return b
}

func (b *CatalogItemBuilder) Build() *CatalogItemMemento {
	b.state.finish()
	m := b.m
	b.m = nil
	return m
}
