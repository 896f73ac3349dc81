package catalog

import (
	"context"
	"errors"
)

// Sentinel errors returned by Store implementations. Callers match with
// errors.Is; implementations wrap them with entity context.
var (
	ErrNotFound      = errors.New("catalog: not found")
	ErrDuplicateName = errors.New("catalog: duplicate name")
	ErrInUse         = errors.New("catalog: entity still referenced")
	ErrInvalid       = errors.New("catalog: invalid entity")
)

// Store is the read/write surface over catalog metadata.
//
// Listing order is the catalog order the extraction engine depends on:
// insertion order for every entity kind. Implementations must preserve it
// (the in-memory store appends; the SQL store orders by ascending id).
//
// Writers enforce the referential invariants at mutation time; readers may
// run concurrently with each other. An extraction takes one Snapshot and
// never re-reads, so writers only need to serialize against the snapshot
// call itself.
type Store interface {
	CreateDataSystem(ctx context.Context, s *DataSystem) error
	DataSystem(ctx context.Context, id int64) (DataSystem, error)
	DataSystems(ctx context.Context) ([]DataSystem, error)
	DeleteDataSystem(ctx context.Context, id int64) error

	CreateDataSource(ctx context.Context, s *DataSource) error
	DataSource(ctx context.Context, id int64) (DataSource, error)
	DataSourcesBySystem(ctx context.Context, systemID int64) ([]DataSource, error)
	DeleteDataSource(ctx context.Context, id int64) error

	CreateAttribute(ctx context.Context, a *Attribute) error
	AttributesBySource(ctx context.Context, sourceID int64) ([]Attribute, error)
	DeleteAttribute(ctx context.Context, id int64) error

	CreateCrossReference(ctx context.Context, cr *CrossReference) error
	CrossReferencesBySystem(ctx context.Context, systemID int64) ([]CrossReference, error)
	DeleteCrossReference(ctx context.Context, id int64) error

	CreateCrossReferenceMapping(ctx context.Context, m *CrossReferenceMapping) error
	MappingsByCrossReference(ctx context.Context, crossRefID int64) ([]CrossReferenceMapping, error)
	DeleteCrossReferenceMapping(ctx context.Context, id int64) error

	CreateCanonical(ctx context.Context, c *Canonical) error
	Canonicals(ctx context.Context) ([]Canonical, error)
	DeleteCanonical(ctx context.Context, id int64) error

	CreateDataMapping(ctx context.Context, m *DataMapping) error
	DataMappingsBySystem(ctx context.Context, systemID int64) ([]DataMapping, error)
	DeleteDataMapping(ctx context.Context, id int64) error

	CreateFilterCondition(ctx context.Context, f *FilterCondition) error
	FilterConditionsBySystem(ctx context.Context, systemID int64) ([]FilterCondition, error)
	DeleteFilterCondition(ctx context.Context, id int64) error

	// Snapshot returns a consistent view of everything one extraction of
	// the given system needs. Slices are owned by the caller.
	Snapshot(ctx context.Context, systemID int64) (*Snapshot, error)
}

// Snapshot is the immutable catalog view an extraction runs against.
// Attributes are grouped per data source; mappings per cross-reference.
// All slices are in catalog order.
type Snapshot struct {
	System          DataSystem
	Sources         []DataSource
	Attributes      map[int64][]Attribute
	CrossReferences []CrossReference
	Mappings        map[int64][]CrossReferenceMapping
	Canonicals      []Canonical
	DataMappings    []DataMapping
}

// SourceByID returns the snapshot's data source with the given id.
func (s *Snapshot) SourceByID(id int64) (DataSource, bool) {
	for _, src := range s.Sources {
		if src.ID == id {
			return src, true
		}
	}
	return DataSource{}, false
}

// AttributeByID returns the attribute with the given id among the named
// data source's attributes.
func (s *Snapshot) AttributeByID(sourceID, attrID int64) (Attribute, bool) {
	for _, a := range s.Attributes[sourceID] {
		if a.ID == attrID {
			return a, true
		}
	}
	return Attribute{}, false
}

// ActiveMasters returns the active master sources in catalog order.
func (s *Snapshot) ActiveMasters() []DataSource {
	var out []DataSource
	for _, src := range s.Sources {
		if src.Active && src.IsMaster {
			out = append(out, src)
		}
	}
	return out
}

// ActiveReferences returns the active non-master sources in catalog order.
func (s *Snapshot) ActiveReferences() []DataSource {
	var out []DataSource
	for _, src := range s.Sources {
		if src.Active && !src.IsMaster {
			out = append(out, src)
		}
	}
	return out
}

// DataMappingFor returns the system's data mapping for one canonical
// attribute, if declared.
func (s *Snapshot) DataMappingFor(canonicalID int64) (DataMapping, bool) {
	for _, m := range s.DataMappings {
		if m.CanonicalID == canonicalID {
			return m, true
		}
	}
	return DataMapping{}, false
}
