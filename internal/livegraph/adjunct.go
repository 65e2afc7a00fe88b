package livegraph

import (
	"maps"
	"slices"
	"sync"

	"brooklyn/pkg/graph"
)

// AdjunctSpec describes a policy, enricher or feed.
type AdjunctSpec struct {
	ID            string
	Type          string
	DisplayName   string
	CatalogItemID string
	Tags          []string
	Config        map[graph.ConfigKey]any
	Flags         []graph.FlagField
	// Anonymous adjuncts are never snapshotted.
	Anonymous bool
}

type adjunct struct {
	id            string
	typeName      string
	displayName   string
	catalogItemID string
	tags          []string
	anonymous     bool

	mu     sync.RWMutex
	config map[graph.ConfigKey]any
	flags  []graph.FlagField
}

func newAdjunct(spec AdjunctSpec) *adjunct {
	if spec.ID == "" {
		spec.ID = NewID()
	}
	cfg := maps.Clone(spec.Config)
	if cfg == nil {
		cfg = make(map[graph.ConfigKey]any)
	}
	return &adjunct{
		id:            spec.ID,
		typeName:      spec.Type,
		displayName:   spec.DisplayName,
		catalogItemID: spec.CatalogItemID,
		tags:          slices.Clone(spec.Tags),
		anonymous:     spec.Anonymous,
		config:        cfg,
		flags:         slices.Clone(spec.Flags),
	}
}

func (a *adjunct) ID() string            { return a.id }
func (a *adjunct) TypeName() string      { return a.typeName }
func (a *adjunct) DisplayName() string   { return a.displayName }
func (a *adjunct) CatalogItemID() string { return a.catalogItemID }
func (a *adjunct) Tags() []string        { return slices.Clone(a.tags) }
func (a *adjunct) Anonymous() bool       { return a.anonymous }

func (a *adjunct) Config() map[graph.ConfigKey]any {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return maps.Clone(a.config)
}

func (a *adjunct) Flags() []graph.FlagField {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.flags)
}

func (a *adjunct) setConfig(key graph.ConfigKey, v any) {
	a.mu.Lock()
	a.config[key] = v
	a.mu.Unlock()
}

// Policy is an autonomic controller attached to an entity.
type Policy struct{ *adjunct }

// NewPolicy builds a policy; attach it with Entity.AddPolicy.
func NewPolicy(spec AdjunctSpec) *Policy { return &Policy{newAdjunct(spec)} }

// SetConfig sets a config value on an unattached policy.
func (p *Policy) SetConfig(key graph.ConfigKey, v any) { p.setConfig(key, v) }

// Enricher derives sensors of an entity.
type Enricher struct{ *adjunct }

// NewEnricher builds an enricher; attach it with Entity.AddEnricher.
func NewEnricher(spec AdjunctSpec) *Enricher { return &Enricher{newAdjunct(spec)} }

// SetConfig sets a config value on an unattached enricher.
func (e *Enricher) SetConfig(key graph.ConfigKey, v any) { e.setConfig(key, v) }

// Feed polls an external source into sensors of an entity.
type Feed struct{ *adjunct }

// NewFeed builds a feed; attach it with Entity.AddFeed.
func NewFeed(spec AdjunctSpec) *Feed { return &Feed{newAdjunct(spec)} }

// SetConfig sets a config value on an unattached feed.
func (f *Feed) SetConfig(key graph.ConfigKey, v any) { f.setConfig(key, v) }

var (
	_ graph.Policy   = (*Policy)(nil)
	_ graph.Enricher = (*Enricher)(nil)
	_ graph.Feed     = (*Feed)(nil)
)

// CatalogItem is a registered blueprint. It is immutable once added; replace
// it with Graph.AddCatalogItem.
type CatalogItem struct {
	id              string
	typeName        string
	displayName     string
	catalogItemID   string
	tags            []string
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

// CatalogItemSpec describes a catalog item.
type CatalogItemSpec struct {
	ID              string
	Type            string
	DisplayName     string
	CatalogItemID   string
	Tags            []string
	SymbolicName    string
	Version         string
	Description     string
	IconURL         string
	PlanYAML        string
	JavaType        string
	SpecType        string
	CatalogItemType string
	Libraries       []string
	Deprecated      bool
}

// NewCatalogItem builds a catalog item.
func NewCatalogItem(spec CatalogItemSpec) *CatalogItem {
	if spec.ID == "" {
		spec.ID = NewID()
	}
	return &CatalogItem{
		id:              spec.ID,
		typeName:        spec.Type,
		displayName:     spec.DisplayName,
		catalogItemID:   spec.CatalogItemID,
		tags:            slices.Clone(spec.Tags),
		symbolicName:    spec.SymbolicName,
		version:         spec.Version,
		description:     spec.Description,
		iconURL:         spec.IconURL,
		planYAML:        spec.PlanYAML,
		javaType:        spec.JavaType,
		specType:        spec.SpecType,
		catalogItemType: spec.CatalogItemType,
		libraries:       slices.Clone(spec.Libraries),
		deprecated:      spec.Deprecated,
	}
}

var _ graph.CatalogItem = (*CatalogItem)(nil)

func (c *CatalogItem) ID() string              { return c.id }
func (c *CatalogItem) TypeName() string        { return c.typeName }
func (c *CatalogItem) DisplayName() string     { return c.displayName }
func (c *CatalogItem) CatalogItemID() string   { return c.catalogItemID }
func (c *CatalogItem) Tags() []string          { return slices.Clone(c.tags) }
func (c *CatalogItem) SymbolicName() string    { return c.symbolicName }
func (c *CatalogItem) Version() string         { return c.version }
func (c *CatalogItem) Description() string     { return c.description }
func (c *CatalogItem) IconURL() string         { return c.iconURL }
func (c *CatalogItem) PlanYAML() string        { return c.planYAML }
func (c *CatalogItem) JavaType() string        { return c.javaType }
func (c *CatalogItem) SpecType() string        { return c.specType }
func (c *CatalogItem) CatalogItemType() string { return c.catalogItemType }
func (c *CatalogItem) Libraries() []string     { return slices.Clone(c.libraries) }
func (c *CatalogItem) Deprecated() bool        { return c.deprecated }
