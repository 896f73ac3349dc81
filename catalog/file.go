package catalog

import (
	"context"
	"encoding/json"
	"os"

	"github.com/pkg/errors"
)

// fileDoc is the JSON shape of an offline catalog file. All references are
// by name; LoadFile resolves them to ids while populating an in-memory
// store, so every write-time invariant still applies.
type fileDoc struct {
	DataSystems []struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Active      *bool  `json:"active"`
		DataSources []struct {
			Name        string `json:"name"`
			FileName    string `json:"fileName"`
			Description string `json:"description"`
			Active      *bool  `json:"active"`
			IsMaster    bool   `json:"isMaster"`
			Attributes  []struct {
				Name     string `json:"name"`
				DataType string `json:"dataType"`
				Format   string `json:"format"`
			} `json:"attributes"`
		} `json:"dataSources"`
	} `json:"dataSystems"`

	Canonicals []string `json:"canonicals"`

	CrossReferences []struct {
		Name       string `json:"name"`
		DataSystem string `json:"dataSystem"`
		Active     *bool  `json:"active"`
		Mappings   []struct {
			SourceDataSource string `json:"sourceDataSource"`
			SourceAttribute  string `json:"sourceAttribute"`
			TargetDataSource string `json:"targetDataSource"`
			TargetAttribute  string `json:"targetAttribute"`
		} `json:"mappings"`
	} `json:"crossReferences"`

	DataMappings []struct {
		DataSystem string       `json:"dataSystem"`
		Canonical  string       `json:"canonical"`
		Primary    *fileBinding `json:"primary"`
		Secondary  *fileBinding `json:"secondary"`
	} `json:"dataMappings"`
}

type fileBinding struct {
	DataSource string `json:"dataSource"`
	Attribute  string `json:"attribute"`
}

// LoadFile reads an offline catalog description and returns a populated
// in-memory store. It is the CLI's stand-in for the HTTP CRUD surface.
func LoadFile(ctx context.Context, path string) (*InMem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read catalog file")
	}
	var doc fileDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, errors.Wrap(err, "parse catalog file")
	}

	store := NewInMem()
	systemIDs := map[string]int64{}
	sourceIDs := map[string]int64{}
	attrIDs := map[string]map[string]int64{}
	canonicalIDs := map[string]int64{}

	for _, sysDoc := range doc.DataSystems {
		sys := DataSystem{Name: sysDoc.Name, Description: sysDoc.Description, Active: boolOrTrue(sysDoc.Active)}
		if err := store.CreateDataSystem(ctx, &sys); err != nil {
			return nil, err
		}
		systemIDs[sys.Name] = sys.ID
		for _, srcDoc := range sysDoc.DataSources {
			src := DataSource{
				DataSystemID: sys.ID,
				Name:         srcDoc.Name,
				FileName:     srcDoc.FileName,
				Description:  srcDoc.Description,
				Active:       boolOrTrue(srcDoc.Active),
				IsMaster:     srcDoc.IsMaster,
			}
			if err := store.CreateDataSource(ctx, &src); err != nil {
				return nil, err
			}
			sourceIDs[src.Name] = src.ID
			attrIDs[src.Name] = map[string]int64{}
			for _, aDoc := range srcDoc.Attributes {
				a := Attribute{
					DataSourceID: src.ID,
					Name:         aDoc.Name,
					DataType:     DataType(aDoc.DataType),
					Format:       aDoc.Format,
				}
				if err := store.CreateAttribute(ctx, &a); err != nil {
					return nil, err
				}
				attrIDs[src.Name][a.Name] = a.ID
			}
		}
	}

	for _, name := range doc.Canonicals {
		c := Canonical{Name: name}
		if err := store.CreateCanonical(ctx, &c); err != nil {
			return nil, err
		}
		canonicalIDs[name] = c.ID
	}

	for _, crDoc := range doc.CrossReferences {
		systemID, ok := systemIDs[crDoc.DataSystem]
		if !ok {
			return nil, errors.Wrapf(ErrNotFound, "cross reference %q: data system %q", crDoc.Name, crDoc.DataSystem)
		}
		cr := CrossReference{DataSystemID: systemID, Name: crDoc.Name, Active: boolOrTrue(crDoc.Active)}
		if err := store.CreateCrossReference(ctx, &cr); err != nil {
			return nil, err
		}
		for _, mDoc := range crDoc.Mappings {
			srcID, srcAttrID, err := lookupBinding(sourceIDs, attrIDs, mDoc.SourceDataSource, mDoc.SourceAttribute)
			if err != nil {
				return nil, errors.Wrapf(err, "cross reference %q", crDoc.Name)
			}
			tgtID, tgtAttrID, err := lookupBinding(sourceIDs, attrIDs, mDoc.TargetDataSource, mDoc.TargetAttribute)
			if err != nil {
				return nil, errors.Wrapf(err, "cross reference %q", crDoc.Name)
			}
			m := CrossReferenceMapping{
				CrossReferenceID:   cr.ID,
				SourceDataSourceID: srcID,
				SourceAttributeID:  srcAttrID,
				TargetDataSourceID: tgtID,
				TargetAttributeID:  tgtAttrID,
			}
			if err := store.CreateCrossReferenceMapping(ctx, &m); err != nil {
				return nil, err
			}
		}
	}

	for _, dmDoc := range doc.DataMappings {
		systemID, ok := systemIDs[dmDoc.DataSystem]
		if !ok {
			return nil, errors.Wrapf(ErrNotFound, "data mapping: data system %q", dmDoc.DataSystem)
		}
		canonicalID, ok := canonicalIDs[dmDoc.Canonical]
		if !ok {
			return nil, errors.Wrapf(ErrNotFound, "data mapping: canonical %q", dmDoc.Canonical)
		}
		if dmDoc.Primary == nil {
			return nil, errors.Wrapf(ErrInvalid, "data mapping for %q needs a primary binding", dmDoc.Canonical)
		}
		primSrc, primAttr, err := lookupBinding(sourceIDs, attrIDs, dmDoc.Primary.DataSource, dmDoc.Primary.Attribute)
		if err != nil {
			return nil, errors.Wrapf(err, "data mapping for %q", dmDoc.Canonical)
		}
		dm := DataMapping{
			DataSystemID:        systemID,
			CanonicalID:         canonicalID,
			PrimaryDataSourceID: primSrc,
			PrimaryAttributeID:  primAttr,
		}
		if dmDoc.Secondary != nil {
			secSrc, secAttr, err := lookupBinding(sourceIDs, attrIDs, dmDoc.Secondary.DataSource, dmDoc.Secondary.Attribute)
			if err != nil {
				return nil, errors.Wrapf(err, "data mapping for %q", dmDoc.Canonical)
			}
			dm.SecondaryDataSourceID = &secSrc
			dm.SecondaryAttributeID = &secAttr
		}
		if err := store.CreateDataMapping(ctx, &dm); err != nil {
			return nil, err
		}
	}

	return store, nil
}

func lookupBinding(sourceIDs map[string]int64, attrIDs map[string]map[string]int64, source, attr string) (int64, int64, error) {
	srcID, ok := sourceIDs[source]
	if !ok {
		return 0, 0, errors.Wrapf(ErrNotFound, "data source %q", source)
	}
	attrID, ok := attrIDs[source][attr]
	if !ok {
		return 0, 0, errors.Wrapf(ErrNotFound, "attribute %q of data source %q", attr, source)
	}
	return srcID, attrID, nil
}

func boolOrTrue(b *bool) bool {
	return b == nil || *b
}
