package catalog

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// InMem is a Store implementation that keeps all catalog entities in
// memory, in insertion order. It is the default store of the server and
// the one the engine tests run against.
//
// A single RWMutex guards every collection; Snapshot copies under the read
// lock so extractions never observe a half-applied mutation.
type InMem struct {
	mu sync.RWMutex

	nextID int64

	systems     []DataSystem
	sources     []DataSource
	attributes  []Attribute
	crossRefs   []CrossReference
	crossMaps   []CrossReferenceMapping
	canonicals  []Canonical
	dataMaps    []DataMapping
	filterConds []FilterCondition
}

var _ Store = (*InMem)(nil)

// NewInMem returns an empty in-memory store.
func NewInMem() *InMem {
	return &InMem{nextID: 1}
}

func (s *InMem) allocID() int64 {
	id := s.nextID
	s.nextID++
	return id
}

func (s *InMem) CreateDataSystem(_ context.Context, sys *DataSystem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sys.Name == "" {
		return errors.Wrap(ErrInvalid, "data system name must not be empty")
	}
	for _, existing := range s.systems {
		if existing.Name == sys.Name {
			return errors.Wrapf(ErrDuplicateName, "data system %q", sys.Name)
		}
	}
	sys.ID = s.allocID()
	s.systems = append(s.systems, *sys)
	return nil
}

func (s *InMem) DataSystem(_ context.Context, id int64) (DataSystem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sys := range s.systems {
		if sys.ID == id {
			return sys, nil
		}
	}
	return DataSystem{}, errors.Wrapf(ErrNotFound, "data system %d", id)
}

func (s *InMem) DataSystems(_ context.Context) ([]DataSystem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]DataSystem, len(s.systems))
	copy(out, s.systems)
	return out, nil
}

func (s *InMem) DeleteDataSystem(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, src := range s.sources {
		if src.DataSystemID == id {
			return errors.Wrapf(ErrInUse, "data system %d has data source %q", id, src.Name)
		}
	}
	for i, sys := range s.systems {
		if sys.ID == id {
			s.systems = append(s.systems[:i], s.systems[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "data system %d", id)
}

func (s *InMem) CreateDataSource(_ context.Context, src *DataSource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if src.Name == "" {
		return errors.Wrap(ErrInvalid, "data source name must not be empty")
	}
	if !s.systemExists(src.DataSystemID) {
		return errors.Wrapf(ErrNotFound, "data system %d", src.DataSystemID)
	}
	// Source names are unique across all systems, not just within one.
	for _, existing := range s.sources {
		if existing.Name == src.Name {
			return errors.Wrapf(ErrDuplicateName, "data source %q", src.Name)
		}
	}
	src.ID = s.allocID()
	s.sources = append(s.sources, *src)
	return nil
}

func (s *InMem) DataSource(_ context.Context, id int64) (DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, src := range s.sources {
		if src.ID == id {
			return src, nil
		}
	}
	return DataSource{}, errors.Wrapf(ErrNotFound, "data source %d", id)
}

func (s *InMem) DataSourcesBySystem(_ context.Context, systemID int64) ([]DataSource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DataSource
	for _, src := range s.sources {
		if src.DataSystemID == systemID {
			out = append(out, src)
		}
	}
	return out, nil
}

func (s *InMem) DeleteDataSource(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.attributes {
		if a.DataSourceID == id {
			return errors.Wrapf(ErrInUse, "data source %d has attribute %q", id, a.Name)
		}
	}
	for i, src := range s.sources {
		if src.ID == id {
			s.sources = append(s.sources[:i], s.sources[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "data source %d", id)
}

func (s *InMem) CreateAttribute(_ context.Context, a *Attribute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Name == "" {
		return errors.Wrap(ErrInvalid, "attribute name must not be empty")
	}
	if !s.sourceExists(a.DataSourceID) {
		return errors.Wrapf(ErrNotFound, "data source %d", a.DataSourceID)
	}
	switch a.DataType {
	case TypeUnspecified, TypeString, TypeNumber, TypeDate:
	default:
		return errors.Wrapf(ErrInvalid, "unknown data type %q", a.DataType)
	}
	a.ID = s.allocID()
	s.attributes = append(s.attributes, *a)
	return nil
}

func (s *InMem) AttributesBySource(_ context.Context, sourceID int64) ([]Attribute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.attributesBySourceLocked(sourceID), nil
}

func (s *InMem) attributesBySourceLocked(sourceID int64) []Attribute {
	var out []Attribute
	for _, a := range s.attributes {
		if a.DataSourceID == sourceID {
			out = append(out, a)
		}
	}
	return out
}

func (s *InMem) DeleteAttribute(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.attributes {
		if a.ID == id {
			s.attributes = append(s.attributes[:i], s.attributes[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "attribute %d", id)
}

func (s *InMem) CreateCrossReference(_ context.Context, cr *CrossReference) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cr.Name == "" {
		return errors.Wrap(ErrInvalid, "cross reference name must not be empty")
	}
	if !s.systemExists(cr.DataSystemID) {
		return errors.Wrapf(ErrNotFound, "data system %d", cr.DataSystemID)
	}
	for _, existing := range s.crossRefs {
		if existing.Name == cr.Name {
			return errors.Wrapf(ErrDuplicateName, "cross reference %q", cr.Name)
		}
	}
	cr.ID = s.allocID()
	s.crossRefs = append(s.crossRefs, *cr)
	return nil
}

func (s *InMem) CrossReferencesBySystem(_ context.Context, systemID int64) ([]CrossReference, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CrossReference
	for _, cr := range s.crossRefs {
		if cr.DataSystemID == systemID {
			out = append(out, cr)
		}
	}
	return out, nil
}

func (s *InMem) DeleteCrossReference(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.crossMaps {
		if m.CrossReferenceID == id {
			return errors.Wrapf(ErrInUse, "cross reference %d has mapping %d", id, m.ID)
		}
	}
	for i, cr := range s.crossRefs {
		if cr.ID == id {
			s.crossRefs = append(s.crossRefs[:i], s.crossRefs[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "cross reference %d", id)
}

func (s *InMem) CreateCrossReferenceMapping(_ context.Context, m *CrossReferenceMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.crossRefExists(m.CrossReferenceID) {
		return errors.Wrapf(ErrNotFound, "cross reference %d", m.CrossReferenceID)
	}
	if m.SourceDataSourceID == m.TargetDataSourceID {
		return errors.Wrap(ErrInvalid, "cross reference mapping must join two different data sources")
	}
	if err := s.attrBelongsLocked(m.SourceDataSourceID, m.SourceAttributeID); err != nil {
		return err
	}
	if err := s.attrBelongsLocked(m.TargetDataSourceID, m.TargetAttributeID); err != nil {
		return err
	}
	m.ID = s.allocID()
	s.crossMaps = append(s.crossMaps, *m)
	return nil
}

func (s *InMem) MappingsByCrossReference(_ context.Context, crossRefID int64) ([]CrossReferenceMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []CrossReferenceMapping
	for _, m := range s.crossMaps {
		if m.CrossReferenceID == crossRefID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *InMem) DeleteCrossReferenceMapping(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.crossMaps {
		if m.ID == id {
			s.crossMaps = append(s.crossMaps[:i], s.crossMaps[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "cross reference mapping %d", id)
}

func (s *InMem) CreateCanonical(_ context.Context, c *Canonical) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.Name == "" {
		return errors.Wrap(ErrInvalid, "canonical attribute name must not be empty")
	}
	for _, existing := range s.canonicals {
		if existing.Name == c.Name {
			return errors.Wrapf(ErrDuplicateName, "canonical attribute %q", c.Name)
		}
	}
	c.ID = s.allocID()
	s.canonicals = append(s.canonicals, *c)
	return nil
}

// Canonicals returns the canonical vocabulary in insertion order, which is
// the column order of every extraction output.
func (s *InMem) Canonicals(_ context.Context) ([]Canonical, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Canonical, len(s.canonicals))
	copy(out, s.canonicals)
	return out, nil
}

func (s *InMem) DeleteCanonical(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.dataMaps {
		if m.CanonicalID == id {
			return errors.Wrapf(ErrInUse, "canonical %d has data mapping %d", id, m.ID)
		}
	}
	for i, c := range s.canonicals {
		if c.ID == id {
			s.canonicals = append(s.canonicals[:i], s.canonicals[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "canonical %d", id)
}

func (s *InMem) CreateDataMapping(_ context.Context, m *DataMapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.systemExists(m.DataSystemID) {
		return errors.Wrapf(ErrNotFound, "data system %d", m.DataSystemID)
	}
	if !s.canonicalExists(m.CanonicalID) {
		return errors.Wrapf(ErrNotFound, "canonical %d", m.CanonicalID)
	}
	for _, existing := range s.dataMaps {
		if existing.DataSystemID == m.DataSystemID && existing.CanonicalID == m.CanonicalID {
			return errors.Wrapf(ErrDuplicateName, "data mapping for canonical %d in system %d", m.CanonicalID, m.DataSystemID)
		}
	}
	if err := s.attrBelongsLocked(m.PrimaryDataSourceID, m.PrimaryAttributeID); err != nil {
		return err
	}
	if (m.SecondaryDataSourceID == nil) != (m.SecondaryAttributeID == nil) {
		return errors.Wrap(ErrInvalid, "secondary data source and attribute must be set together")
	}
	if m.HasSecondary() {
		if err := s.attrBelongsLocked(*m.SecondaryDataSourceID, *m.SecondaryAttributeID); err != nil {
			return err
		}
	}
	m.ID = s.allocID()
	s.dataMaps = append(s.dataMaps, *m)
	return nil
}

func (s *InMem) DataMappingsBySystem(_ context.Context, systemID int64) ([]DataMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []DataMapping
	for _, m := range s.dataMaps {
		if m.DataSystemID == systemID {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *InMem) DeleteDataMapping(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, m := range s.dataMaps {
		if m.ID == id {
			s.dataMaps = append(s.dataMaps[:i], s.dataMaps[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "data mapping %d", id)
}

func (s *InMem) CreateFilterCondition(_ context.Context, f *FilterCondition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Name == "" {
		return errors.Wrap(ErrInvalid, "filter condition name must not be empty")
	}
	switch f.Operator {
	case OpEqual, OpGreaterThan, OpLessThan:
	default:
		return errors.Wrapf(ErrInvalid, "unknown operator %q", f.Operator)
	}
	if !s.systemExists(f.DataSystemID) {
		return errors.Wrapf(ErrNotFound, "data system %d", f.DataSystemID)
	}
	for _, existing := range s.filterConds {
		if existing.Name == f.Name {
			return errors.Wrapf(ErrDuplicateName, "filter condition %q", f.Name)
		}
	}
	if err := s.attrBelongsLocked(f.DataSourceID, f.AttributeID); err != nil {
		return err
	}
	f.ID = s.allocID()
	s.filterConds = append(s.filterConds, *f)
	return nil
}

func (s *InMem) FilterConditionsBySystem(_ context.Context, systemID int64) ([]FilterCondition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []FilterCondition
	for _, f := range s.filterConds {
		if f.DataSystemID == systemID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *InMem) DeleteFilterCondition(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, f := range s.filterConds {
		if f.ID == id {
			s.filterConds = append(s.filterConds[:i], s.filterConds[i+1:]...)
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "filter condition %d", id)
}

func (s *InMem) Snapshot(_ context.Context, systemID int64) (*Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &Snapshot{
		Attributes: map[int64][]Attribute{},
		Mappings:   map[int64][]CrossReferenceMapping{},
	}
	found := false
	for _, sys := range s.systems {
		if sys.ID == systemID {
			snap.System = sys
			found = true
			break
		}
	}
	if !found {
		return nil, errors.Wrapf(ErrNotFound, "data system %d", systemID)
	}
	for _, src := range s.sources {
		if src.DataSystemID == systemID {
			snap.Sources = append(snap.Sources, src)
			snap.Attributes[src.ID] = s.attributesBySourceLocked(src.ID)
		}
	}
	for _, cr := range s.crossRefs {
		if cr.DataSystemID != systemID {
			continue
		}
		snap.CrossReferences = append(snap.CrossReferences, cr)
		for _, m := range s.crossMaps {
			if m.CrossReferenceID == cr.ID {
				snap.Mappings[cr.ID] = append(snap.Mappings[cr.ID], m)
			}
		}
	}
	snap.Canonicals = make([]Canonical, len(s.canonicals))
	copy(snap.Canonicals, s.canonicals)
	for _, m := range s.dataMaps {
		if m.DataSystemID == systemID {
			snap.DataMappings = append(snap.DataMappings, m)
		}
	}
	return snap, nil
}

func (s *InMem) systemExists(id int64) bool {
	for _, sys := range s.systems {
		if sys.ID == id {
			return true
		}
	}
	return false
}

func (s *InMem) sourceExists(id int64) bool {
	for _, src := range s.sources {
		if src.ID == id {
			return true
		}
	}
	return false
}

func (s *InMem) crossRefExists(id int64) bool {
	for _, cr := range s.crossRefs {
		if cr.ID == id {
			return true
		}
	}
	return false
}

func (s *InMem) canonicalExists(id int64) bool {
	for _, c := range s.canonicals {
		if c.ID == id {
			return true
		}
	}
	return false
}

// attrBelongsLocked verifies that the attribute exists and belongs to the
// given data source.
func (s *InMem) attrBelongsLocked(sourceID, attrID int64) error {
	if !s.sourceExists(sourceID) {
		return errors.Wrapf(ErrNotFound, "data source %d", sourceID)
	}
	for _, a := range s.attributes {
		if a.ID == attrID {
			if a.DataSourceID != sourceID {
				return errors.Wrapf(ErrInvalid, "attribute %d does not belong to data source %d", attrID, sourceID)
			}
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "attribute %d", attrID)
}
