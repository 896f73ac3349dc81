// Package catalog holds the metadata that drives an extraction: data
// systems, their data sources and attributes, cross-reference join
// declarations, the canonical vocabulary, and the data mappings that bind
// canonical attributes to source attributes.
//
// The catalog is the sole writer of this metadata; the extraction engine
// consumes it read-only through a Snapshot taken at the start of each run.
package catalog

// DataType classifies an attribute's cell values for formatting purposes.
type DataType string

const (
	// TypeUnspecified means the attribute carries no type metadata and its
	// values pass through formatting trimmed but otherwise unchanged.
	TypeUnspecified DataType = ""
	TypeString      DataType = "string"
	TypeNumber      DataType = "number"
	TypeDate        DataType = "date"
)

// DataSystem is a named grouping of data sources; the unit of extraction.
type DataSystem struct {
	ID          int64  `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Description string `db:"description" json:"description"`
	Active      bool   `db:"active" json:"active"`
}

// DataSource is a named tabular dataset within a data system, backed at
// extraction time by one CSV payload. A source marked IsMaster drives the
// output cardinality; a system may have several active masters, each
// extracted independently.
type DataSource struct {
	ID           int64  `db:"id" json:"id"`
	DataSystemID int64  `db:"data_system_id" json:"dataSystemId"`
	Name         string `db:"name" json:"name"`
	FileName     string `db:"file_name" json:"fileName"`
	Description  string `db:"description" json:"description"`
	Active       bool   `db:"active" json:"active"`
	IsMaster     bool   `db:"is_master" json:"isMaster"`
}

// Attribute is a named column of a data source. Name is the CSV header the
// attribute is matched against; attributes join to CSV columns by
// header-name equality.
type Attribute struct {
	ID           int64    `db:"id" json:"id"`
	DataSourceID int64    `db:"data_source_id" json:"dataSourceId"`
	Name         string   `db:"name" json:"name"`
	DataType     DataType `db:"data_type" json:"dataType"`
	Format       string   `db:"format" json:"format"`
}

// CrossReference declares that two data sources of one system are joinable.
// The actual equality edges live in its mappings.
type CrossReference struct {
	ID           int64  `db:"id" json:"id"`
	DataSystemID int64  `db:"data_system_id" json:"dataSystemId"`
	Name         string `db:"name" json:"name"`
	Active       bool   `db:"active" json:"active"`
}

// CrossReferenceMapping is one equality edge inside a CrossReference:
// (source data source, source attribute) ≡ (target data source, target
// attribute). Source and target must be different data sources.
type CrossReferenceMapping struct {
	ID                 int64 `db:"id" json:"id"`
	CrossReferenceID   int64 `db:"cross_reference_id" json:"crossReferenceId"`
	SourceDataSourceID int64 `db:"source_data_source_id" json:"sourceDataSourceId"`
	SourceAttributeID  int64 `db:"source_attribute_id" json:"sourceAttributeId"`
	TargetDataSourceID int64 `db:"target_data_source_id" json:"targetDataSourceId"`
	TargetAttributeID  int64 `db:"target_attribute_id" json:"targetAttributeId"`
}

// Canonical is one entry of the global canonical vocabulary. The vocabulary
// is a flat ordered list; it is not scoped to any data system. Its insertion
// order fixes the output column order.
type Canonical struct {
	ID   int64  `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
}

// DataMapping binds one canonical attribute, within one data system, to a
// primary (data source, attribute) pair and an optional secondary pair.
// The secondary pair is consulted only when primary resolution yields an
// empty value.
type DataMapping struct {
	ID                    int64  `db:"id" json:"id"`
	DataSystemID          int64  `db:"data_system_id" json:"dataSystemId"`
	CanonicalID           int64  `db:"canonical_id" json:"canonicalId"`
	PrimaryDataSourceID   int64  `db:"primary_data_source_id" json:"primaryDataSourceId"`
	PrimaryAttributeID    int64  `db:"primary_attribute_id" json:"primaryAttributeId"`
	SecondaryDataSourceID *int64 `db:"secondary_data_source_id" json:"secondaryDataSourceId,omitempty"`
	SecondaryAttributeID  *int64 `db:"secondary_attribute_id" json:"secondaryAttributeId,omitempty"`
}

// HasSecondary reports whether the mapping carries a secondary binding.
func (m DataMapping) HasSecondary() bool {
	return m.SecondaryDataSourceID != nil && m.SecondaryAttributeID != nil
}

// FilterOperator is the comparison operator of a FilterCondition.
type FilterOperator string

const (
	OpEqual       FilterOperator = "="
	OpGreaterThan FilterOperator = ">"
	OpLessThan    FilterOperator = "<"
)

// FilterCondition is a stored row predicate. It is catalog-managed but not
// applied on the extraction path; the orchestrator exposes a hook where a
// future filter stage can consume these.
type FilterCondition struct {
	ID           int64          `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	DataSystemID int64          `db:"data_system_id" json:"dataSystemId"`
	DataSourceID int64          `db:"data_source_id" json:"dataSourceId"`
	AttributeID  int64          `db:"attribute_id" json:"attributeId"`
	Operator     FilterOperator `db:"operator" json:"operator"`
	Value        string         `db:"value" json:"value"`
}
