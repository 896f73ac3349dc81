package engine

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/carlodf/harvest/catalog"
	"github.com/carlodf/harvest/connector"
	"github.com/carlodf/harvest/transform"
)

// referenceIndex holds the materialized table of every active non-master
// source that has a payload bound in the current session. It is built
// eagerly at the start of each master's pass and consulted by join lookups.
type referenceIndex struct {
	tables map[int64]*transform.Table
}

// buildReferenceIndex reads every active reference source's payload, one
// goroutine per source. A source without a payload is logged and left out;
// resolutions against it yield empty cells. A source whose payload fails to
// decode aborts the extraction.
func buildReferenceIndex(ctx context.Context, snap *catalog.Snapshot, payloads PayloadResolver) (*referenceIndex, error) {
	ix := &referenceIndex{tables: map[int64]*transform.Table{}}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range snap.ActiveReferences() {
		ops, ok := payloads.Payloads(src.ID)
		if !ok {
			log.WithField("dataSource", src.Name).
				Warn("reference source has no uploaded payload, its cells will be empty")
			continue
		}
		src := src
		g.Go(func() error {
			table, err := transform.ReadTable(gctx, connector.Stream(gctx, toOpenables(ops)...))
			if err != nil {
				return wrap(KindParse, err, "decode reference source %q", src.Name)
			}
			mu.Lock()
			ix.tables[src.ID] = table
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ix, nil
}

// table returns the materialized rows of one reference source.
func (ix *referenceIndex) table(sourceID int64) (*transform.Table, bool) {
	t, ok := ix.tables[sourceID]
	return t, ok
}

// firstMatch scans rows in CSV order for the first one whose column equals
// value, logging when the join key is ambiguous. Empty join values compare
// like any other string.
func firstMatch(t *transform.Table, column, value string, sourceName string) (transform.Row, bool) {
	var first transform.Row
	matches := 0
	for _, row := range t.Rows {
		if row[column] == value {
			if matches == 0 {
				first = row
			}
			matches++
		}
	}
	if matches > 1 {
		log.WithFields(log.Fields{
			"dataSource": sourceName,
			"column":     column,
			"value":      value,
			"matches":    matches,
		}).Warn("join key matches multiple reference rows, using the first")
	}
	return first, matches > 0
}
