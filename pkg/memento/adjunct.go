package memento

// AdjunctMemento snapshots a policy, enricher or feed. Adjuncts are leaves:
// they carry no tree structure, only identity and a flat config map.
type AdjunctMemento struct {
	base
	kind   ObjectType
	config map[string]any
}

// PolicyMemento, EnricherMemento and FeedMemento share a representation and
// differ only in ObjectType. A feed memento records configuration only; the
// values a feed last read are not persisted.
type (
	PolicyMemento   = AdjunctMemento
	EnricherMemento = AdjunctMemento
	FeedMemento     = AdjunctMemento
)

var _ Memento = (*AdjunctMemento)(nil)

func (m *AdjunctMemento) ObjectType() ObjectType { return m.kind }

// Config returns the adjunct's config and persistable flags.
func (m *AdjunctMemento) Config() map[string]any { return cloneValues(m.config) }

// AdjunctBuilder assembles a policy, enricher or feed memento; it is retired by Build.
type AdjunctBuilder struct {
	state builderState
	m     *AdjunctMemento
}

func NewPolicyBuilder() *AdjunctBuilder {
	return &AdjunctBuilder{m: &AdjunctMemento{kind: TypePolicy, config: map[string]any{}}}
}

func NewEnricherBuilder() *AdjunctBuilder {
	return &AdjunctBuilder{m: &AdjunctMemento{kind: TypeEnricher, config: map[string]any{}}}
}

func NewFeedBuilder() *AdjunctBuilder {
	return &AdjunctBuilder{m: &AdjunctMemento{kind: TypeFeed, config: map[string]any{}}}
}

// AdjunctBuilderFrom seeds a builder of the same kind with a copy of m.
func AdjunctBuilderFrom(m *AdjunctMemento) *AdjunctBuilder {
	return &AdjunctBuilder{m: &AdjunctMemento{base: m.base.clone(), kind: m.kind, config: cloneValues(m.config)}}
}

func (b *AdjunctBuilder) ID(id string) *AdjunctBuilder {
	b.state.check()
	b.m.id = id
	return b
}

func (b *AdjunctBuilder) Type(t string) *AdjunctBuilder {
	b.state.check()
	b.m.typ = t
	return b
}

func (b *AdjunctBuilder) DisplayName(n string) *AdjunctBuilder {
	b.state.check()
	b.m.displayName = n
	return b
}

func (b *AdjunctBuilder) CatalogItemID(id string) *AdjunctBuilder {
	b.state.check()
	b.m.catalogItemID = id
	return b
}

func (b *AdjunctBuilder) Tag(tag string) *AdjunctBuilder {
	b.state.check()
	b.m.tags = append(b.m.tags, tag)
	return b
}

func (b *AdjunctBuilder) CustomProperty(k string, v any) *AdjunctBuilder {
	b.state.check()
	if b.m.custom == nil {
		b.m.custom = map[string]any{}
	}
	b.m.custom[k] = v
	return b
}

func (b *AdjunctBuilder) Config(name string, v any) *AdjunctBuilder {
	b.state.check()
	b.m.config[name] = v
	return b
}

func (b *AdjunctBuilder) Build() *AdjunctMemento {
	b.state.finish()
	m := b.m
	b.m = nil
	return m
}
