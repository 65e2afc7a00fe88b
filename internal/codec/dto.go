package codec

import (
	"encoding/json"
	"fmt"

	"brooklyn/pkg/memento"
)

// Header is the part of a serialized memento needed to build a manifest. It
// decodes from any serialized memento without materializing config values.
type Header struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	Parent        string `json:"parent,omitempty"`
	CatalogItemID string `json:"catalogItemId,omitempty"`
}

type baseDTO struct {
	ID            string         `json:"id"`
	Type          string         `json:"type"`
	DisplayName   string         `json:"displayName,omitempty"`
	CatalogItemID string         `json:"catalogItemId,omitempty"`
	Tags          []string       `json:"tags,omitempty"`
	Custom        map[string]any `json:"customProperties,omitempty"`
}

type entityDTO struct {
	baseDTO
	Parent                string                    `json:"parent,omitempty"`
	Children              []string                  `json:"children,omitempty"`
	TopLevelApp           bool                      `json:"topLevelApp,omitempty"`
	Config                map[string]any            `json:"config,omitempty"`
	ConfigUnmatched       map[string]any            `json:"configUnmatched,omitempty"`
	Attributes            map[string]any            `json:"attributes,omitempty"`
	ConfigKeys            map[string]memento.KeyDef `json:"configKeys,omitempty"`
	AttributeKeys         map[string]memento.KeyDef `json:"attributeKeys,omitempty"`
	EntityRefConfigs      []string                  `json:"entityReferenceConfigs,omitempty"`
	EntityRefAttributes   []string                  `json:"entityReferenceAttributes,omitempty"`
	LocationRefConfigs    []string                  `json:"locationReferenceConfigs,omitempty"`
	LocationRefAttributes []string                  `json:"locationReferenceAttributes,omitempty"`
	Locations             []string                  `json:"locations,omitempty"`
	Members               []string                  `json:"members,omitempty"`
	Policies              []string                  `json:"policies,omitempty"`
	Enrichers             []string                  `json:"enrichers,omitempty"`
	Feeds                 []string                  `json:"feeds,omitempty"`
}

type locationDTO struct {
	baseDTO
	Parent             string         `json:"parent,omitempty"`
	Children           []string       `json:"children,omitempty"`
	Config             map[string]any `json:"locationConfig,omitempty"`
	ConfigUnused       []string       `json:"locationConfigUnused,omitempty"`
	ConfigDescription  string         `json:"locationConfigDescription,omitempty"`
	EntityRefConfigs   []string       `json:"entityReferenceConfigs,omitempty"`
	LocationRefConfigs []string       `json:"locationReferenceConfigs,omitempty"`
}

type adjunctDTO struct {
	baseDTO
	Config map[string]any `json:"config,omitempty"`
}

type catalogItemDTO struct {
	baseDTO
	SymbolicName    string   `json:"symbolicName"`
	Version         string   `json:"version,omitempty"`
	Description     string   `json:"description,omitempty"`
	IconURL         string   `json:"iconUrl,omitempty"`
	PlanYAML        string   `json:"planYaml,omitempty"`
	JavaType        string   `json:"javaType,omitempty"`
	SpecType        string   `json:"specType,omitempty"`
	CatalogItemType string   `json:"catalogItemType,omitempty"`
	Libraries       []string `json:"libraries,omitempty"`
	Deprecated      bool     `json:"deprecated,omitempty"`
}

func nonEmpty[V any](m map[string]V) map[string]V {
	if len(m) == 0 {
		return nil
	}
	return m
}

func baseOf(m memento.Memento) baseDTO {
	return baseDTO{
		ID:            m.ID(),
		Type:          m.Type(),
		DisplayName:   m.DisplayName(),
		CatalogItemID: m.CatalogItemID(),
		Tags:          m.Tags(),
		Custom:        nonEmpty(m.CustomProperties()),
	}
}

// toDTO converts a memento into its serializable form.
func toDTO(m memento.Memento) (any, error) {
	switch v := m.(type) {
	case *memento.EntityMemento:
		return &entityDTO{
			baseDTO:               baseOf(v),
			Parent:                v.Parent(),
			Children:              v.Children(),
			TopLevelApp:           v.IsTopLevelApp(),
			Config:                nonEmpty(v.Config()),
			ConfigUnmatched:       nonEmpty(v.ConfigUnmatched()),
			Attributes:            nonEmpty(v.Attributes()),
			ConfigKeys:            nonEmpty(v.ConfigKeys()),
			AttributeKeys:         nonEmpty(v.AttributeKeys()),
			EntityRefConfigs:      v.EntityReferenceConfigs(),
			EntityRefAttributes:   v.EntityReferenceAttributes(),
			LocationRefConfigs:    v.LocationReferenceConfigs(),
			LocationRefAttributes: v.LocationReferenceAttributes(),
			Locations:             v.Locations(),
			Members:               v.Members(),
			Policies:              v.Policies(),
			Enrichers:             v.Enrichers(),
			Feeds:                 v.Feeds(),
		}, nil
	case *memento.LocationMemento:
		return &locationDTO{
			baseDTO:            baseOf(v),
			Parent:             v.Parent(),
			Children:           v.Children(),
			Config:             nonEmpty(v.LocationConfig()),
			ConfigUnused:       v.LocationConfigUnused(),
			ConfigDescription:  v.LocationConfigDescription(),
			EntityRefConfigs:   v.EntityReferenceConfigs(),
			LocationRefConfigs: v.LocationReferenceConfigs(),
		}, nil
	case *memento.AdjunctMemento:
		return &adjunctDTO{baseDTO: baseOf(v), Config: nonEmpty(v.Config())}, nil
	case *memento.CatalogItemMemento:
		return &catalogItemDTO{
			baseDTO:         baseOf(v),
			SymbolicName:    v.SymbolicName(),
			Version:         v.Version(),
			Description:     v.Description(),
			IconURL:         v.IconURL(),
			PlanYAML:        v.PlanYAML(),
			JavaType:        v.JavaType(),
			SpecType:        v.SpecType(),
			CatalogItemType: v.CatalogItemType(),
			Libraries:       v.Libraries(),
			Deprecated:      v.Deprecated(),
		}, nil
	default:
		return nil, fmt.Errorf("codec: unsupported memento %T", m)
	}
}

// newDTO returns an empty DTO to decode a memento of type t into.
func newDTO(t memento.ObjectType) (any, error) {
	switch t {
	case memento.TypeEntity:
		return &entityDTO{}, nil
	case memento.TypeLocation:
		return &locationDTO{}, nil
	case memento.TypePolicy, memento.TypeEnricher, memento.TypeFeed:
		return &adjunctDTO{}, nil
	case memento.TypeCatalogItem:
		return &catalogItemDTO{}, nil
	default:
		return nil, fmt.Errorf("codec: unknown object type %q", t)
	}
}

type baseSetter[B any] interface {
	ID(string) B
	Type(string) B
	DisplayName(string) B
	CatalogItemID(string) B
	Tag(string) B
	CustomProperty(string, any) B
}

func applyBase[B baseSetter[B]](b B, d baseDTO) {
	b.ID(d.ID)
	b.Type(d.Type)
	b.DisplayName(d.DisplayName)
	b.CatalogItemID(d.CatalogItemID)
	for _, tag := range d.Tags {
		b.Tag(tag)
	}
	for k, v := range d.Custom {
		b.CustomProperty(k, v)
	}
}

// fromDTO rebuilds the memento of type t from a decoded DTO.
func fromDTO(t memento.ObjectType, dto any) (memento.Memento, error) {
	switch d := dto.(type) {
	case *entityDTO:
		b := memento.NewEntityBuilder()
		applyBase(b, d.baseDTO)
		b.Parent(d.Parent).TopLevelApp(d.TopLevelApp)
		for _, c := range d.Children {
			b.AddChild(c)
		}
		for name, v := range d.Config {
			b.RawConfig(name, v)
		}
		for _, def := range d.ConfigKeys {
			b.ConfigKey(def)
		}
		for name, v := range d.ConfigUnmatched {
			b.ConfigUnmatched(name, v)
		}
		for name, v := range d.Attributes {
			b.RawAttribute(name, v)
		}
		for _, def := range d.AttributeKeys {
			b.AttributeKey(def)
		}
		for _, n := range d.EntityRefConfigs {
			b.EntityReferenceConfig(n)
		}
		for _, n := range d.EntityRefAttributes {
			b.EntityReferenceAttribute(n)
		}
		for _, n := range d.LocationRefConfigs {
			b.LocationReferenceConfig(n)
		}
		for _, n := range d.LocationRefAttributes {
			b.LocationReferenceAttribute(n)
		}
		for _, id := range d.Locations {
			b.AddLocation(id)
		}
		for _, id := range d.Members {
			b.AddMember(id)
		}
		for _, id := range d.Policies {
			b.AddPolicy(id)
		}
		for _, id := range d.Enrichers {
			b.AddEnricher(id)
		}
		for _, id := range d.Feeds {
			b.AddFeed(id)
		}
		return b.Build(), nil
	case *locationDTO:
		b := memento.NewLocationBuilder()
		applyBase(b, d.baseDTO)
		b.Parent(d.Parent).ConfigDescription(d.ConfigDescription).CopyConfig(d.Config)
		for _, c := range d.Children {
			b.AddChild(c)
		}
		for _, n := range d.ConfigUnused {
			b.ConfigUnused(n)
		}
		for _, n := range d.EntityRefConfigs {
			b.EntityReferenceConfig(n)
		}
		for _, n := range d.LocationRefConfigs {
			b.LocationReferenceConfig(n)
		}
		return b.Build(), nil
	case *adjunctDTO:
		var b *memento.AdjunctBuilder
		switch t {
		case memento.TypePolicy:
			b = memento.NewPolicyBuilder()
		case memento.TypeFeed:
			b = memento.NewFeedBuilder()
		default:
			b = memento.NewEnricherBuilder()
		}
		applyBase(b, d.baseDTO)
		for k, v := range d.Config {
			b.Config(k, v)
		}
		return b.Build(), nil
	case *catalogItemDTO:
		b := memento.NewCatalogItemBuilder()
		applyBase(b, d.baseDTO)
		b.SymbolicName(d.SymbolicName).
			Version(d.Version).
			Description(d.Description).
			IconURL(d.IconURL).
			PlanYAML(d.PlanYAML).
			JavaType(d.JavaType).
			SpecType(d.SpecType).
			CatalogItemType(d.CatalogItemType).
			Deprecated(d.Deprecated)
		for _, lib := range d.Libraries {
			b.Library(lib)
		}
		return b.Build(), nil
	default:
		return nil, fmt.Errorf("codec: unsupported dto %T", dto)
	}
}

// normalizeNumbers replaces the json.Number values left by a UseNumber
// decode throughout the value maps of dto.
func normalizeNumbers(dto any) {
	switch d := dto.(type) {
	case *entityDTO:
		normalizeMaps(d.Custom, d.Config, d.ConfigUnmatched, d.Attributes)
	case *locationDTO:
		normalizeMaps(d.Custom, d.Config)
	case *adjunctDTO:
		normalizeMaps(d.Custom, d.Config)
	case *catalogItemDTO:
		normalizeMaps(d.Custom)
	}
}

func normalizeMaps(maps ...map[string]any) {
	for _, m := range maps {
		for k, v := range m {
			m[k] = normalizeValue(v)
		}
	}
}

func normalizeValue(v any) any {
	switch x := v.(type) {
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return f
		}
		return x.String()
	case map[string]any:
		normalizeMaps(x)
		return x
	case []any:
		for i := range x {
			x[i] = normalizeValue(x[i])
		}
		return x
	default:
		return v
	}
}
