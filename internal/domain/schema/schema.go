// Package schema models collection metadata: per-field declared types,
// human-readable naming, and the sampled catalog the query validator reads.
package schema

import (
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// FieldType is the declared type of a document field.
type FieldType string

// Field type constants.
const (
	TypeString   FieldType = "string"
	TypeNumber   FieldType = "number"
	TypeBool     FieldType = "boolean"
	TypeDate     FieldType = "date"
	TypeObject   FieldType = "object"
	TypeArray    FieldType = "array"
	TypeObjectID FieldType = "objectId"
)

// Valid reports whether ft is a known field type.
func (ft FieldType) Valid() bool {
	switch ft {
	case TypeString, TypeNumber, TypeBool, TypeDate, TypeObject, TypeArray, TypeObjectID:
		return true
	}
	return false
}

// FieldMeta describes one field of a collection. Immutable once generated
// for a catalog version; regenerated wholesale on re-sampling.
type FieldMeta struct {
	Name        string    `yaml:"name" json:"name"`
	Type        FieldType `yaml:"type" json:"type"`
	DisplayName string    `yaml:"display_name,omitempty" json:"displayName,omitempty"`
	Description string    `yaml:"description,omitempty" json:"description,omitempty"`
	Required    bool      `yaml:"required,omitempty" json:"required,omitempty"`
}

// TableMeta describes one queryable collection. Field names are unique.
type TableMeta struct {
	Collection  string      `yaml:"collection" json:"collection"`
	DisplayName string      `yaml:"display_name,omitempty" json:"displayName,omitempty"`
	Keywords    []string    `yaml:"keywords,omitempty" json:"keywords,omitempty"`
	Fields      []FieldMeta `yaml:"fields" json:"fields"`
}

// FieldByName returns the field with the given name.
func (t TableMeta) FieldByName(name string) (FieldMeta, bool) {
	for _, f := range t.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldMeta{}, false
}

// FieldSet returns the set of field names, including the implicit _id.
func (t TableMeta) FieldSet() map[string]struct{} {
	set := make(map[string]struct{}, len(t.Fields)+1)
	set["_id"] = struct{}{}
	for _, f := range t.Fields {
		set[f.Name] = struct{}{}
	}
	return set
}

// Catalog is the versioned schema cache: one TableMeta per collection.
// Read-only to the query path.
type Catalog struct {
	Version     string      `yaml:"version" json:"version"`
	GeneratedAt time.Time   `yaml:"generated_at" json:"generatedAt"`
	Tables      []TableMeta `yaml:"tables" json:"tables"`
}

// Resolve returns the table metadata for a collection.
func (c Catalog) Resolve(collection string) (TableMeta, bool) {
	for _, t := range c.Tables {
		if t.Collection == collection {
			return t, true
		}
	}
	return TableMeta{}, false
}

// Infer maps a sampled document value to a declared field type.
// Returns false for null values: a null sample never fixes a field's type,
// the first non-null occurrence wins.
func Infer(v any) (FieldType, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case bool:
		return TypeBool, true
	case string:
		return TypeString, true
	case int, int32, int64, float32, float64:
		return TypeNumber, true
	case time.Time:
		return TypeDate, true
	case bson.DateTime:
		return TypeDate, true
	case bson.ObjectID:
		return TypeObjectID, true
	case []any:
		return TypeArray, true
	case map[string]any:
		return inferObject(val), true
	default:
		return TypeObject, true
	}
}

// inferObject recognizes extended-JSON sentinel shapes before falling back
// to a plain object.
func inferObject(m map[string]any) FieldType {
	if len(m) == 1 {
		if _, ok := m["$oid"]; ok {
			return TypeObjectID
		}
		if _, ok := m["$date"]; ok {
			return TypeDate
		}
	}
	return TypeObject
}

// BuildTable unions the keys of the sampled documents into a TableMeta.
// The first non-null occurrence of a key fixes its type for the pass;
// there is no majority voting across documents.
func BuildTable(collection string, docs []map[string]any) TableMeta {
	types := make(map[string]FieldType)
	var order []string
	for _, doc := range docs {
		for key, value := range doc {
			if key == "_id" {
				continue
			}
			if _, seen := types[key]; seen {
				continue
			}
			ft, ok := Infer(value)
			if !ok {
				continue
			}
			types[key] = ft
			order = append(order, key)
		}
	}
	sort.Strings(order)

	fields := make([]FieldMeta, 0, len(order))
	for _, name := range order {
		fields = append(fields, FieldMeta{Name: name, Type: types[name]})
	}
	return TableMeta{Collection: collection, Fields: fields}
}

// FieldOverride is curated per-field metadata layered over sampled types.
type FieldOverride struct {
	DisplayName string     `yaml:"display_name,omitempty"`
	Description string     `yaml:"description,omitempty"`
	Type        *FieldType `yaml:"type,omitempty"`
	Required    *bool      `yaml:"required,omitempty"`
}

// TableOverride is curated per-table metadata.
type TableOverride struct {
	DisplayName string                   `yaml:"display_name,omitempty"`
	Keywords    []string                 `yaml:"keywords,omitempty"`
	Fields      map[string]FieldOverride `yaml:"fields,omitempty"`
}

// MergeOverrides layers curated metadata on top of a sampled table.
// Overrides for fields the sampling never saw are ignored.
func MergeOverrides(t TableMeta, o TableOverride) TableMeta {
	if o.DisplayName != "" {
		t.DisplayName = o.DisplayName
	}
	if len(o.Keywords) > 0 {
		t.Keywords = append([]string(nil), o.Keywords...)
	}
	for i, f := range t.Fields {
		fo, ok := o.Fields[f.Name]
		if !ok {
			continue
		}
		if fo.DisplayName != "" {
			f.DisplayName = fo.DisplayName
		}
		if fo.Description != "" {
			f.Description = fo.Description
		}
		if fo.Type != nil && fo.Type.Valid() {
			f.Type = *fo.Type
		}
		if fo.Required != nil {
			f.Required = *fo.Required
		}
		t.Fields[i] = f
	}
	return t
}

// TableFromTypeMap builds a TableMeta from a caller-supplied field→type map,
// the escape hatch for privileged callers querying collections the catalog
// has never sampled.
func TableFromTypeMap(collection string, types map[string]FieldType) TableMeta {
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]FieldMeta, 0, len(names))
	for _, name := range names {
		ft := types[name]
		if !ft.Valid() {
			ft = TypeString
		}
		fields = append(fields, FieldMeta{Name: name, Type: ft})
	}
	return TableMeta{Collection: collection, Fields: fields}
}
