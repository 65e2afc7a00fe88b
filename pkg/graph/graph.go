// Package graph declares the read-only view of the live management graph
// that snapshot generation consumes. Implementations own their locking; every
// accessor returns a point-in-time copy of one object's state, so reading one
// node never blocks progress on another.
package graph

// PersistenceMode controls whether an attribute sensor's value is captured.
type PersistenceMode string

const (
	PersistRequired PersistenceMode = "required"
	PersistNone     PersistenceMode = "none"
)

// ConfigKey is a typed config key definition.
type ConfigKey struct {
	Name        string
	TypeName    string
	Description string
}

// AttributeSensor is a typed sensor definition.
type AttributeSensor struct {
	Name        string
	TypeName    string
	Description string
	Persistence PersistenceMode
}

// Persisted reports whether values of the sensor belong in a snapshot.
func (s AttributeSensor) Persisted() bool { return s.Persistence != PersistNone }

// Task is a possibly pending asynchronous computation used as a config value.
type Task interface {
	// Done reports whether the computation has finished.
	Done() bool
	// Result returns the value and error of a finished computation.
	Result() (any, error)
}

// Object is the identity shared by all managed objects.
type Object interface {
	ID() string
	TypeName() string
	DisplayName() string
	CatalogItemID() string
	Tags() []string
}

// Entity is a managed unit of the application topology.
type Entity interface {
	Object
	Parent() Entity
	Children() []Entity
	// LocalConfig returns config set directly on the entity, not inherited
	// or defaulted values.
	LocalConfig() map[ConfigKey]any
	// LocalConfigBag returns every locally set config entry by name,
	// including entries that match no declared key.
	LocalConfigBag() map[string]any
	Attributes() map[AttributeSensor]any
	Locations() []Location
	Policies() []Policy
	Enrichers() []Enricher
	Feeds() []Feed
	IsApplication() bool
}

// Group is implemented by entities that have members.
type Group interface {
	Entity
	Members() []Entity
}

// FlagField is a constructor flag declared on a location.
type FlagField struct {
	Name      string
	Value     any
	Transient bool
	Static    bool
}

// Location is a deployment target.
type Location interface {
	Object
	Parent() Location
	Children() []Location
	Flags() []FlagField
	LocalConfig() map[string]any
	UnusedConfig() []string
	ConfigDescription() string
}

// Adjunct is the common shape of policies, enrichers and feeds.
type Adjunct interface {
	Object
	Config() map[ConfigKey]any
	Flags() []FlagField
	// Anonymous reports that the adjunct cannot be reconstructed from its
	// type name alone and must be left out of snapshots.
	Anonymous() bool
}

type Policy interface{ Adjunct }

type Enricher interface{ Adjunct }

// Feed polls an external source into an entity's attributes. Only its config
// survives a snapshot.
type Feed interface{ Adjunct }

// CatalogItem is a registered blueprint.
type CatalogItem interface {
	Object
	SymbolicName() string
	Version() string
	Description() string
	IconURL() string
	PlanYAML() string
	JavaType() string
	SpecType() string
	CatalogItemType() string
	Libraries() []string
	Deprecated() bool
}

// View enumerates the live graph.
type View interface {
	Applications() []Entity
	Entities() []Entity
	CatalogItems() []CatalogItem
}
