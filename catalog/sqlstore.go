package catalog

import (
	"context"
	"database/sql"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

// SQL is a Store implementation backed by MySQL through sqlx. Catalog order
// is ascending id, which matches insertion order for auto-increment keys.
//
// The server uses it when started with a DSN; deployments without a
// database fall back to InMem.
type SQL struct {
	db *sqlx.DB
}

var _ Store = (*SQL)(nil)

// OpenSQL connects to MySQL and verifies the connection.
func OpenSQL(dsn string) (*SQL, error) {
	db, err := sqlx.Connect("mysql", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "connect catalog database")
	}
	return &SQL{db: db}, nil
}

// NewSQL wraps an existing connection, mainly for tests.
func NewSQL(db *sqlx.DB) *SQL {
	return &SQL{db: db}
}

// Close releases the underlying connection pool.
func (s *SQL) Close() error {
	return s.db.Close()
}

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS data_systems (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		description TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS data_sources (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		data_system_id BIGINT NOT NULL REFERENCES data_systems(id),
		name VARCHAR(255) NOT NULL UNIQUE,
		file_name VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		is_master BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS data_source_attributes (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		data_source_id BIGINT NOT NULL REFERENCES data_sources(id),
		name VARCHAR(255) NOT NULL,
		data_type VARCHAR(32) NOT NULL DEFAULT '',
		format VARCHAR(64) NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS cross_references (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		data_system_id BIGINT NOT NULL REFERENCES data_systems(id),
		name VARCHAR(255) NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS cross_reference_mappings (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		cross_reference_id BIGINT NOT NULL REFERENCES cross_references(id),
		source_data_source_id BIGINT NOT NULL REFERENCES data_sources(id),
		source_attribute_id BIGINT NOT NULL REFERENCES data_source_attributes(id),
		target_data_source_id BIGINT NOT NULL REFERENCES data_sources(id),
		target_attribute_id BIGINT NOT NULL REFERENCES data_source_attributes(id)
	)`,
	`CREATE TABLE IF NOT EXISTS canonicals (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS data_mappings (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		data_system_id BIGINT NOT NULL REFERENCES data_systems(id),
		canonical_id BIGINT NOT NULL REFERENCES canonicals(id),
		primary_data_source_id BIGINT NOT NULL REFERENCES data_sources(id),
		primary_attribute_id BIGINT NOT NULL REFERENCES data_source_attributes(id),
		secondary_data_source_id BIGINT NULL REFERENCES data_sources(id),
		secondary_attribute_id BIGINT NULL REFERENCES data_source_attributes(id),
		UNIQUE KEY uniq_system_canonical (data_system_id, canonical_id)
	)`,
	`CREATE TABLE IF NOT EXISTS filter_conditions (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(255) NOT NULL UNIQUE,
		data_system_id BIGINT NOT NULL REFERENCES data_systems(id),
		data_source_id BIGINT NOT NULL REFERENCES data_sources(id),
		attribute_id BIGINT NOT NULL REFERENCES data_source_attributes(id),
		operator VARCHAR(4) NOT NULL,
		value TEXT NOT NULL
	)`,
}

// EnsureSchema creates the catalog tables if they do not exist.
func (s *SQL) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "ensure catalog schema")
		}
	}
	return nil
}

func (s *SQL) insert(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *SQL) countWhere(ctx context.Context, query string, args ...any) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQL) CreateDataSystem(ctx context.Context, sys *DataSystem) error {
	if sys.Name == "" {
		return errors.Wrap(ErrInvalid, "data system name must not be empty")
	}
	n, err := s.countWhere(ctx, `SELECT COUNT(*) FROM data_systems WHERE name = ?`, sys.Name)
	if err != nil {
		return errors.Wrap(err, "check data system name")
	}
	if n > 0 {
		return errors.Wrapf(ErrDuplicateName, "data system %q", sys.Name)
	}
	id, err := s.insert(ctx,
		`INSERT INTO data_systems (name, description, active) VALUES (?, ?, ?)`,
		sys.Name, sys.Description, sys.Active)
	if err != nil {
		return errors.Wrap(err, "insert data system")
	}
	sys.ID = id
	return nil
}

func (s *SQL) DataSystem(ctx context.Context, id int64) (DataSystem, error) {
	var sys DataSystem
	err := s.db.GetContext(ctx, &sys, `SELECT * FROM data_systems WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return DataSystem{}, errors.Wrapf(ErrNotFound, "data system %d", id)
	}
	return sys, errors.Wrap(err, "select data system")
}

func (s *SQL) DataSystems(ctx context.Context) ([]DataSystem, error) {
	var out []DataSystem
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM data_systems ORDER BY id`)
	return out, errors.Wrap(err, "select data systems")
}

func (s *SQL) DeleteDataSystem(ctx context.Context, id int64) error {
	n, err := s.countWhere(ctx, `SELECT COUNT(*) FROM data_sources WHERE data_system_id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "check data system references")
	}
	if n > 0 {
		return errors.Wrapf(ErrInUse, "data system %d has %d data sources", id, n)
	}
	return s.deleteByID(ctx, "data_systems", id)
}

func (s *SQL) CreateDataSource(ctx context.Context, src *DataSource) error {
	if src.Name == "" {
		return errors.Wrap(ErrInvalid, "data source name must not be empty")
	}
	if err := s.mustExist(ctx, "data_systems", src.DataSystemID); err != nil {
		return err
	}
	n, err := s.countWhere(ctx, `SELECT COUNT(*) FROM data_sources WHERE name = ?`, src.Name)
	if err != nil {
		return errors.Wrap(err, "check data source name")
	}
	if n > 0 {
		return errors.Wrapf(ErrDuplicateName, "data source %q", src.Name)
	}
	id, err := s.insert(ctx,
		`INSERT INTO data_sources (data_system_id, name, file_name, description, active, is_master)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		src.DataSystemID, src.Name, src.FileName, src.Description, src.Active, src.IsMaster)
	if err != nil {
		return errors.Wrap(err, "insert data source")
	}
	src.ID = id
	return nil
}

func (s *SQL) DataSource(ctx context.Context, id int64) (DataSource, error) {
	var src DataSource
	err := s.db.GetContext(ctx, &src, `SELECT * FROM data_sources WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return DataSource{}, errors.Wrapf(ErrNotFound, "data source %d", id)
	}
	return src, errors.Wrap(err, "select data source")
}

func (s *SQL) DataSourcesBySystem(ctx context.Context, systemID int64) ([]DataSource, error) {
	var out []DataSource
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM data_sources WHERE data_system_id = ? ORDER BY id`, systemID)
	return out, errors.Wrap(err, "select data sources")
}

func (s *SQL) DeleteDataSource(ctx context.Context, id int64) error {
	n, err := s.countWhere(ctx, `SELECT COUNT(*) FROM data_source_attributes WHERE data_source_id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "check data source references")
	}
	if n > 0 {
		return errors.Wrapf(ErrInUse, "data source %d has %d attributes", id, n)
	}
	return s.deleteByID(ctx, "data_sources", id)
}

func (s *SQL) CreateAttribute(ctx context.Context, a *Attribute) error {
	if a.Name == "" {
		return errors.Wrap(ErrInvalid, "attribute name must not be empty")
	}
	if err := s.mustExist(ctx, "data_sources", a.DataSourceID); err != nil {
		return err
	}
	id, err := s.insert(ctx,
		`INSERT INTO data_source_attributes (data_source_id, name, data_type, format) VALUES (?, ?, ?, ?)`,
		a.DataSourceID, a.Name, string(a.DataType), a.Format)
	if err != nil {
		return errors.Wrap(err, "insert attribute")
	}
	a.ID = id
	return nil
}

func (s *SQL) AttributesBySource(ctx context.Context, sourceID int64) ([]Attribute, error) {
	var out []Attribute
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM data_source_attributes WHERE data_source_id = ? ORDER BY id`, sourceID)
	return out, errors.Wrap(err, "select attributes")
}

func (s *SQL) DeleteAttribute(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "data_source_attributes", id)
}

func (s *SQL) CreateCrossReference(ctx context.Context, cr *CrossReference) error {
	if cr.Name == "" {
		return errors.Wrap(ErrInvalid, "cross reference name must not be empty")
	}
	if err := s.mustExist(ctx, "data_systems", cr.DataSystemID); err != nil {
		return err
	}
	n, err := s.countWhere(ctx, `SELECT COUNT(*) FROM cross_references WHERE name = ?`, cr.Name)
	if err != nil {
		return errors.Wrap(err, "check cross reference name")
	}
	if n > 0 {
		return errors.Wrapf(ErrDuplicateName, "cross reference %q", cr.Name)
	}
	id, err := s.insert(ctx,
		`INSERT INTO cross_references (data_system_id, name, active) VALUES (?, ?, ?)`,
		cr.DataSystemID, cr.Name, cr.Active)
	if err != nil {
		return errors.Wrap(err, "insert cross reference")
	}
	cr.ID = id
	return nil
}

func (s *SQL) CrossReferencesBySystem(ctx context.Context, systemID int64) ([]CrossReference, error) {
	var out []CrossReference
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM cross_references WHERE data_system_id = ? ORDER BY id`, systemID)
	return out, errors.Wrap(err, "select cross references")
}

func (s *SQL) DeleteCrossReference(ctx context.Context, id int64) error {
	n, err := s.countWhere(ctx, `SELECT COUNT(*) FROM cross_reference_mappings WHERE cross_reference_id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "check cross reference mappings")
	}
	if n > 0 {
		return errors.Wrapf(ErrInUse, "cross reference %d has %d mappings", id, n)
	}
	return s.deleteByID(ctx, "cross_references", id)
}

func (s *SQL) CreateCrossReferenceMapping(ctx context.Context, m *CrossReferenceMapping) error {
	if m.SourceDataSourceID == m.TargetDataSourceID {
		return errors.Wrap(ErrInvalid, "cross reference mapping must join two different data sources")
	}
	if err := s.mustExist(ctx, "cross_references", m.CrossReferenceID); err != nil {
		return err
	}
	if err := s.attrBelongs(ctx, m.SourceDataSourceID, m.SourceAttributeID); err != nil {
		return err
	}
	if err := s.attrBelongs(ctx, m.TargetDataSourceID, m.TargetAttributeID); err != nil {
		return err
	}
	id, err := s.insert(ctx,
		`INSERT INTO cross_reference_mappings
		 (cross_reference_id, source_data_source_id, source_attribute_id, target_data_source_id, target_attribute_id)
		 VALUES (?, ?, ?, ?, ?)`,
		m.CrossReferenceID, m.SourceDataSourceID, m.SourceAttributeID, m.TargetDataSourceID, m.TargetAttributeID)
	if err != nil {
		return errors.Wrap(err, "insert cross reference mapping")
	}
	m.ID = id
	return nil
}

func (s *SQL) MappingsByCrossReference(ctx context.Context, crossRefID int64) ([]CrossReferenceMapping, error) {
	var out []CrossReferenceMapping
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM cross_reference_mappings WHERE cross_reference_id = ? ORDER BY id`, crossRefID)
	return out, errors.Wrap(err, "select cross reference mappings")
}

func (s *SQL) DeleteCrossReferenceMapping(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "cross_reference_mappings", id)
}

func (s *SQL) CreateCanonical(ctx context.Context, c *Canonical) error {
	if c.Name == "" {
		return errors.Wrap(ErrInvalid, "canonical attribute name must not be empty")
	}
	n, err := s.countWhere(ctx, `SELECT COUNT(*) FROM canonicals WHERE name = ?`, c.Name)
	if err != nil {
		return errors.Wrap(err, "check canonical name")
	}
	if n > 0 {
		return errors.Wrapf(ErrDuplicateName, "canonical attribute %q", c.Name)
	}
	id, err := s.insert(ctx, `INSERT INTO canonicals (name) VALUES (?)`, c.Name)
	if err != nil {
		return errors.Wrap(err, "insert canonical")
	}
	c.ID = id
	return nil
}

func (s *SQL) Canonicals(ctx context.Context) ([]Canonical, error) {
	var out []Canonical
	err := s.db.SelectContext(ctx, &out, `SELECT * FROM canonicals ORDER BY id`)
	return out, errors.Wrap(err, "select canonicals")
}

func (s *SQL) DeleteCanonical(ctx context.Context, id int64) error {
	n, err := s.countWhere(ctx, `SELECT COUNT(*) FROM data_mappings WHERE canonical_id = ?`, id)
	if err != nil {
		return errors.Wrap(err, "check canonical references")
	}
	if n > 0 {
		return errors.Wrapf(ErrInUse, "canonical %d has %d data mappings", id, n)
	}
	return s.deleteByID(ctx, "canonicals", id)
}

func (s *SQL) CreateDataMapping(ctx context.Context, m *DataMapping) error {
	if err := s.mustExist(ctx, "data_systems", m.DataSystemID); err != nil {
		return err
	}
	if err := s.mustExist(ctx, "canonicals", m.CanonicalID); err != nil {
		return err
	}
	n, err := s.countWhere(ctx,
		`SELECT COUNT(*) FROM data_mappings WHERE data_system_id = ? AND canonical_id = ?`,
		m.DataSystemID, m.CanonicalID)
	if err != nil {
		return errors.Wrap(err, "check data mapping uniqueness")
	}
	if n > 0 {
		return errors.Wrapf(ErrDuplicateName, "data mapping for canonical %d in system %d", m.CanonicalID, m.DataSystemID)
	}
	if err := s.attrBelongs(ctx, m.PrimaryDataSourceID, m.PrimaryAttributeID); err != nil {
		return err
	}
	if (m.SecondaryDataSourceID == nil) != (m.SecondaryAttributeID == nil) {
		return errors.Wrap(ErrInvalid, "secondary data source and attribute must be set together")
	}
	if m.HasSecondary() {
		if err := s.attrBelongs(ctx, *m.SecondaryDataSourceID, *m.SecondaryAttributeID); err != nil {
			return err
		}
	}
	id, err := s.insert(ctx,
		`INSERT INTO data_mappings
		 (data_system_id, canonical_id, primary_data_source_id, primary_attribute_id,
		  secondary_data_source_id, secondary_attribute_id)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		m.DataSystemID, m.CanonicalID, m.PrimaryDataSourceID, m.PrimaryAttributeID,
		m.SecondaryDataSourceID, m.SecondaryAttributeID)
	if err != nil {
		return errors.Wrap(err, "insert data mapping")
	}
	m.ID = id
	return nil
}

func (s *SQL) DataMappingsBySystem(ctx context.Context, systemID int64) ([]DataMapping, error) {
	var out []DataMapping
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM data_mappings WHERE data_system_id = ? ORDER BY id`, systemID)
	return out, errors.Wrap(err, "select data mappings")
}

func (s *SQL) DeleteDataMapping(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "data_mappings", id)
}

func (s *SQL) CreateFilterCondition(ctx context.Context, f *FilterCondition) error {
	if f.Name == "" {
		return errors.Wrap(ErrInvalid, "filter condition name must not be empty")
	}
	switch f.Operator {
	case OpEqual, OpGreaterThan, OpLessThan:
	default:
		return errors.Wrapf(ErrInvalid, "unknown operator %q", f.Operator)
	}
	if err := s.mustExist(ctx, "data_systems", f.DataSystemID); err != nil {
		return err
	}
	n, err := s.countWhere(ctx, `SELECT COUNT(*) FROM filter_conditions WHERE name = ?`, f.Name)
	if err != nil {
		return errors.Wrap(err, "check filter condition name")
	}
	if n > 0 {
		return errors.Wrapf(ErrDuplicateName, "filter condition %q", f.Name)
	}
	if err := s.attrBelongs(ctx, f.DataSourceID, f.AttributeID); err != nil {
		return err
	}
	id, err := s.insert(ctx,
		`INSERT INTO filter_conditions (name, data_system_id, data_source_id, attribute_id, operator, value)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		f.Name, f.DataSystemID, f.DataSourceID, f.AttributeID, string(f.Operator), f.Value)
	if err != nil {
		return errors.Wrap(err, "insert filter condition")
	}
	f.ID = id
	return nil
}

func (s *SQL) FilterConditionsBySystem(ctx context.Context, systemID int64) ([]FilterCondition, error) {
	var out []FilterCondition
	err := s.db.SelectContext(ctx, &out,
		`SELECT * FROM filter_conditions WHERE data_system_id = ? ORDER BY id`, systemID)
	return out, errors.Wrap(err, "select filter conditions")
}

func (s *SQL) DeleteFilterCondition(ctx context.Context, id int64) error {
	return s.deleteByID(ctx, "filter_conditions", id)
}

func (s *SQL) Snapshot(ctx context.Context, systemID int64) (*Snapshot, error) {
	// REPEATABLE READ inside one transaction gives the consistent view the
	// engine requires.
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, errors.Wrap(err, "begin snapshot")
	}
	defer tx.Rollback()

	snap := &Snapshot{
		Attributes: map[int64][]Attribute{},
		Mappings:   map[int64][]CrossReferenceMapping{},
	}
	if err := tx.GetContext(ctx, &snap.System, `SELECT * FROM data_systems WHERE id = ?`, systemID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "data system %d", systemID)
		}
		return nil, errors.Wrap(err, "snapshot data system")
	}
	if err := tx.SelectContext(ctx, &snap.Sources,
		`SELECT * FROM data_sources WHERE data_system_id = ? ORDER BY id`, systemID); err != nil {
		return nil, errors.Wrap(err, "snapshot data sources")
	}
	for _, src := range snap.Sources {
		var attrs []Attribute
		if err := tx.SelectContext(ctx, &attrs,
			`SELECT * FROM data_source_attributes WHERE data_source_id = ? ORDER BY id`, src.ID); err != nil {
			return nil, errors.Wrap(err, "snapshot attributes")
		}
		snap.Attributes[src.ID] = attrs
	}
	if err := tx.SelectContext(ctx, &snap.CrossReferences,
		`SELECT * FROM cross_references WHERE data_system_id = ? ORDER BY id`, systemID); err != nil {
		return nil, errors.Wrap(err, "snapshot cross references")
	}
	for _, cr := range snap.CrossReferences {
		var maps []CrossReferenceMapping
		if err := tx.SelectContext(ctx, &maps,
			`SELECT * FROM cross_reference_mappings WHERE cross_reference_id = ? ORDER BY id`, cr.ID); err != nil {
			return nil, errors.Wrap(err, "snapshot cross reference mappings")
		}
		snap.Mappings[cr.ID] = maps
	}
	if err := tx.SelectContext(ctx, &snap.Canonicals, `SELECT * FROM canonicals ORDER BY id`); err != nil {
		return nil, errors.Wrap(err, "snapshot canonicals")
	}
	if err := tx.SelectContext(ctx, &snap.DataMappings,
		`SELECT * FROM data_mappings WHERE data_system_id = ? ORDER BY id`, systemID); err != nil {
		return nil, errors.Wrap(err, "snapshot data mappings")
	}
	return snap, tx.Commit()
}

func (s *SQL) mustExist(ctx context.Context, table string, id int64) error {
	n, err := s.countWhere(ctx, `SELECT COUNT(*) FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "check %s %d", table, id)
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%s %d", table, id)
	}
	return nil
}

func (s *SQL) attrBelongs(ctx context.Context, sourceID, attrID int64) error {
	var owner int64
	err := s.db.GetContext(ctx, &owner,
		`SELECT data_source_id FROM data_source_attributes WHERE id = ?`, attrID)
	if errors.Is(err, sql.ErrNoRows) {
		return errors.Wrapf(ErrNotFound, "attribute %d", attrID)
	}
	if err != nil {
		return errors.Wrap(err, "check attribute owner")
	}
	if owner != sourceID {
		return errors.Wrapf(ErrInvalid, "attribute %d does not belong to data source %d", attrID, sourceID)
	}
	return nil
}

func (s *SQL) deleteByID(ctx context.Context, table string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM `+table+` WHERE id = ?`, id)
	if err != nil {
		return errors.Wrapf(err, "delete from %s", table)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "delete from %s", table)
	}
	if n == 0 {
		return errors.Wrapf(ErrNotFound, "%s %d", table, id)
	}
	return nil
}
