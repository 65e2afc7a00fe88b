package memento

// EntityManifest is the lightweight description of a stored entity.
type EntityManifest struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Parent        string `json:"parent,omitempty"`
	CatalogItemID string `json:"catalogItemId,omitempty"`
}

// Manifest lists what a stored snapshot contains, id to implementation type,
// so a rebind can check that every type is loadable before deserializing
// every field of every memento.
type Manifest struct {
	Entities     map[string]EntityManifest `json:"entities"`
	Locations    map[string]string         `json:"locations"`
	Policies     map[string]string         `json:"policies"`
	Enrichers    map[string]string         `json:"enrichers"`
	Feeds        map[string]string         `json:"feeds"`
	CatalogItems map[string]string         `json:"catalogItems"`
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{
		Entities:     map[string]EntityManifest{},
		Locations:    map[string]string{},
		Policies:     map[string]string{},
		Enrichers:    map[string]string{},
		Feeds:        map[string]string{},
		CatalogItems: map[string]string{},
	}
}

// ManifestOf summarizes an aggregate.
func ManifestOf(agg *BrooklynMemento) *Manifest {
	out := NewManifest()
	for _, t := range PersistenceOrder {
		for _, m := range agg.Mementos(t) {
			out.Add(m)
		}
	}
	return out
}

// Add records m under its object type.
func (mf *Manifest) Add(m Memento) {
	switch m.ObjectType() {
	case TypeEntity:
		em := EntityManifest{ID: m.ID(), Type: m.Type(), CatalogItemID: m.CatalogItemID()}
		if tn, ok := m.(TreeNode); ok {
			em.Parent = tn.Parent()
		}
		mf.Entities[m.ID()] = em
	case TypeLocation:
		mf.Locations[m.ID()] = m.Type()
	case TypePolicy:
		mf.Policies[m.ID()] = m.Type()
	case TypeEnricher:
		mf.Enrichers[m.ID()] = m.Type()
	case TypeFeed:
		mf.Feeds[m.ID()] = m.Type()
	case TypeCatalogItem:
		mf.CatalogItems[m.ID()] = m.Type()
	}
}

// Types returns the id to type map for t.
func (mf *Manifest) Types(t ObjectType) map[string]string {
	switch t {
	case TypeEntity:
		out := make(map[string]string, len(mf.Entities))
		for id, em := range mf.Entities {
			out[id] = em.Type
		}
		return out
	case TypeLocation:
		return mf.Locations
	case TypePolicy:
		return mf.Policies
	case TypeEnricher:
		return mf.Enrichers
	case TypeFeed:
		return mf.Feeds
	case TypeCatalogItem:
		return mf.CatalogItems
	}
	return nil
}

// Len returns the total number of objects listed.
func (mf *Manifest) Len() int {
	return len(mf.Entities) + len(mf.Locations) + len(mf.Policies) + len(mf.Enrichers) +
		len(mf.Feeds) + len(mf.CatalogItems)
}
