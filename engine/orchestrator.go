package engine

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/carlodf/harvest/catalog"
	"github.com/carlodf/harvest/connector"
	"github.com/carlodf/harvest/opener"
	"github.com/carlodf/harvest/transform"
)

// PayloadResolver hands the engine the CSV payload bound to a data source
// in the current session. A source split across several files returns one
// opener per part; the connector concatenates them and the decoder drops
// repeated per-part headers.
type PayloadResolver interface {
	Payloads(dataSourceID int64) ([]opener.Opener, bool)
}

// RowFilter sits between row resolution and collection. It receives the
// master source, the raw master row, and the resolved output row, and
// decides whether the row is kept. Stored filter conditions are not applied
// during extraction; this hook is where a future filter stage plugs in.
type RowFilter func(master catalog.DataSource, masterRow, resolved transform.Row) bool

// Result is a completed extraction: the output CSV bytes, a suggested
// attachment filename, and the body row count.
type Result struct {
	CSV      []byte
	Filename string
	Rows     int
}

// Engine drives extractions against a catalog store.
type Engine struct {
	store catalog.Store

	// Filter, when set, is consulted for every resolved row.
	Filter RowFilter
}

// New returns an Engine over the given store.
func New(store catalog.Store) *Engine {
	return &Engine{store: store}
}

// Extract produces the canonical CSV for one data system.
//
// Every active master with a bound payload contributes one output row per
// CSV row, in master order then row order; columns are the canonical
// vocabulary in catalog order. Masters without payloads are skipped with a
// warning. Cancellation is honored between rows and never emits partial
// output.
func (e *Engine) Extract(ctx context.Context, systemID int64, payloads PayloadResolver) (*Result, error) {
	if systemID <= 0 {
		return nil, failf(KindBadInput, "data system id must be positive, got %d", systemID)
	}
	if payloads == nil {
		return nil, failf(KindBadInput, "no payload resolver supplied")
	}

	snap, err := e.store.Snapshot(ctx, systemID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, wrap(KindNotFound, err, "data system %d", systemID)
		}
		return nil, wrap(KindInternal, err, "load catalog for system %d", systemID)
	}

	masters := snap.ActiveMasters()
	if len(masters) == 0 {
		return nil, failf(KindNoMaster, "data system %q has no active master data source", snap.System.Name)
	}

	columns := make([]string, len(snap.Canonicals))
	for i, c := range snap.Canonicals {
		columns[i] = c.Name
	}

	var collected []transform.Row
	for _, master := range masters {
		rows, err := e.extractMaster(ctx, snap, master, payloads)
		if err != nil {
			return nil, err
		}
		collected = append(collected, rows...)
	}
	if len(collected) == 0 {
		return nil, failf(KindEmptyResult, "extraction of system %q produced no rows", snap.System.Name)
	}

	csvBytes, err := emitCSV(columns, collected)
	if err != nil {
		return nil, err
	}
	return &Result{
		CSV:      csvBytes,
		Filename: OutputFilename(time.Now()),
		Rows:     len(collected),
	}, nil
}

// extractMaster runs the per-master loop: decode the master payload, build
// the reference index, then resolve row by row.
func (e *Engine) extractMaster(ctx context.Context, snap *catalog.Snapshot, master catalog.DataSource, payloads PayloadResolver) ([]transform.Row, error) {
	ops, ok := payloads.Payloads(master.ID)
	if !ok {
		log.WithField("dataSource", master.Name).
			Warn("master source has no uploaded payload, skipping")
		return nil, nil
	}

	masterTable, err := transform.ReadTable(ctx, connector.Stream(ctx, toOpenables(ops)...))
	if err != nil {
		return nil, wrap(KindParse, err, "decode master source %q", master.Name)
	}

	refs, err := buildReferenceIndex(ctx, snap, payloads)
	if err != nil {
		return nil, err
	}

	res := &resolver{
		snap:        snap,
		master:      master,
		masterTable: masterTable,
		refs:        refs,
	}

	out := make([]transform.Row, 0, len(masterTable.Rows))
	for _, row := range masterTable.Rows {
		if err := ctx.Err(); err != nil {
			return nil, wrap(KindInternal, err, "extraction canceled")
		}
		resolved := res.resolveRow(row)
		if e.Filter != nil && !e.Filter(master, row, resolved) {
			continue
		}
		out = append(out, resolved)
	}
	return out, nil
}

func toOpenables(ops []opener.Opener) []connector.Openable {
	out := make([]connector.Openable, len(ops))
	for i, op := range ops {
		out[i] = op
	}
	return out
}
