package engine

import (
	log "github.com/sirupsen/logrus"

	"github.com/carlodf/harvest/catalog"
	"github.com/carlodf/harvest/format"
	"github.com/carlodf/harvest/transform"
)

// resolver fills canonical cells for the rows of one master source. It is
// built once per master and carries everything a row resolution touches:
// the catalog snapshot, the master's decoded table, and the reference
// index.
type resolver struct {
	snap        *catalog.Snapshot
	master      catalog.DataSource
	masterTable *transform.Table
	refs        *referenceIndex
}

// resolveRow produces the output row for one master row: one cell per
// canonical attribute, primary binding first, secondary on empty.
func (r *resolver) resolveRow(masterRow transform.Row) transform.Row {
	out := make(transform.Row, len(r.snap.Canonicals))
	for _, c := range r.snap.Canonicals {
		out[c.Name] = r.resolveCell(c, masterRow)
	}
	return out
}

func (r *resolver) resolveCell(c catalog.Canonical, masterRow transform.Row) string {
	dm, ok := r.snap.DataMappingFor(c.ID)
	if !ok {
		return ""
	}
	if v := r.resolve(dm.PrimaryDataSourceID, dm.PrimaryAttributeID, masterRow); v != "" {
		return v
	}
	if dm.HasSecondary() {
		return r.resolve(*dm.SecondaryDataSourceID, *dm.SecondaryAttributeID, masterRow)
	}
	return ""
}

// resolve reads one (data source, attribute) binding against the current
// master row. Master-local bindings project directly; foreign bindings join
// through the first usable master → target mapping, scanning active
// cross-references in catalog order. Inactive cross-references and mappings
// whose columns are absent from the CSV headers are skipped.
func (r *resolver) resolve(dataSourceID, attrID int64, masterRow transform.Row) string {
	attr, ok := r.snap.AttributeByID(dataSourceID, attrID)
	if !ok {
		return ""
	}
	if dataSourceID == r.master.ID {
		return format.Value(masterRow[attr.Name], attr)
	}

	refTable, ok := r.refs.table(dataSourceID)
	if !ok {
		return ""
	}
	refSource, _ := r.snap.SourceByID(dataSourceID)

	for _, cr := range r.snap.CrossReferences {
		if !cr.Active {
			continue
		}
		for _, m := range r.snap.Mappings[cr.ID] {
			if m.SourceDataSourceID != r.master.ID || m.TargetDataSourceID != dataSourceID {
				continue
			}
			masterAttr, ok := r.snap.AttributeByID(r.master.ID, m.SourceAttributeID)
			if !ok {
				continue
			}
			targetAttr, ok := r.snap.AttributeByID(dataSourceID, m.TargetAttributeID)
			if !ok {
				continue
			}
			if !r.masterTable.HasColumn(masterAttr.Name) || !refTable.HasColumn(targetAttr.Name) {
				log.WithFields(log.Fields{
					"crossReference": cr.Name,
					"masterColumn":   masterAttr.Name,
					"targetColumn":   targetAttr.Name,
				}).Warn("cross reference names a column absent from the CSV headers, skipping mapping")
				continue
			}
			// First usable mapping decides: a failed lookup is an empty
			// cell, not a cue to try further mappings.
			row, found := firstMatch(refTable, targetAttr.Name, masterRow[masterAttr.Name], refSource.Name)
			if !found {
				return ""
			}
			return format.Value(row[attr.Name], attr)
		}
	}
	return ""
}
