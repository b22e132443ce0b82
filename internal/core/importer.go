package core

// importer.go runs the row loop: map headers, normalize cells, resolve
// references and upsert the primary record by its natural key.
//
// The whole run shares one store transaction. Each row runs in a savepoint,
// so a row that fails is rolled back on its own and the loop moves on. Rows
// never see each other's failures; the only state carried between rows is
// the result accumulator and the resolver cache.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Skip reasons reported for rows that were deliberately not written.
const (
	ReasonMissingKey      = "missing key"
	ReasonUpdateDisabled  = "update of existing records disabled"
	ReasonCreateDisabled  = "creation of missing records disabled"
	ReasonRowLimitReached = "row limit reached"
)

// Run describes one import.
type Run struct {
	ID       string // Generated when empty
	FileName string
	Profile  Profile
	Sheet    *Sheet
	Options  Options
}

// Importer executes runs against a Store.
type Importer struct {
	store  Store
	logger *slog.Logger
}

// NewImporter creates an importer. A nil logger uses slog.Default().
func NewImporter(store Store, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{store: store, logger: logger}
}

// Import processes every data row of run.Sheet.
//
// A missing key column or a store that cannot open a transaction aborts the
// run before any row is processed; the returned Result is nil. A failing
// commit returns both the Result (describing what was attempted) and the
// error. Row failures never produce an error here, they are recorded in the
// Result.
func (im *Importer) Import(ctx context.Context, run Run) (*Result, error) {
	if run.Sheet == nil {
		return nil, fmt.Errorf("%w: no sheet", ErrUnreadableSource)
	}
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	p := run.Profile
	opts := run.Options

	logger := im.logger.With("run_id", run.ID, "profile", p.Key)
	requester, hasRequester := RequesterFromContext(ctx)
	if hasRequester {
		logger = logger.With(requester.logAttrs()...)
	}

	mapping, err := MapHeaders(run.Sheet.Header, p)
	if err != nil {
		logger.Warn("import rejected", "file", run.FileName, "error", err)
		return nil, err
	}

	result := newResult(run.ID, p.Key, run.FileName)
	result.MissingHeaders = mapping.Missing
	result.Warnings = append(result.Warnings, mapping.Warnings...)
	result.DryRun = opts.DryRun
	result.StartedAt = time.Now()
	if hasRequester {
		result.RequestedBy = requester.Client
	}

	tx, err := im.store.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	finished := false
	defer func() {
		if !finished {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	logger.Info("import started",
		"file", run.FileName,
		"rows", len(run.Sheet.Rows),
		"columns", len(mapping.Columns),
		"dry_run", opts.DryRun,
	)

	resolver := NewResolver(tx, p, opts.CreateReferences, logger)
	w := &rowWriter{
		session:  tx,
		primary:  tx.Collection(p.Collection),
		resolver: resolver,
		mapping:  mapping,
		profile:  p,
		opts:     opts,
	}

	// Row work runs on a context that outlives cancellation: a query cut off
	// mid-flight would take the connection down with the whole transaction.
	// Cancellation is honoured between rows instead.
	rowCtx := context.WithoutCancel(ctx)

	processed := 0
	for i, row := range run.Sheet.Rows {
		line := i + 2 // 1-indexed, header is line 1

		if ctx.Err() != nil {
			result.Cancelled = true
			logger.Warn("import cancelled", "line", line, "error", ctx.Err())
			break
		}
		if opts.MaxRows > 0 && processed >= opts.MaxRows {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: stopped after %d rows", ReasonRowLimitReached, opts.MaxRows))
			break
		}
		processed++

		rr := w.process(rowCtx, row, line)
		result.record(rr)

		logger.Debug("row processed", "line", line, "key", rr.Key, "outcome", rr.Outcome, "message", rr.Message)
	}

	result.Created = resolver.Created()

	// Rows already processed are kept even when the run was cancelled.
	finishCtx := rowCtx

	finished = true
	if opts.DryRun {
		err = tx.Rollback(finishCtx)
	} else {
		err = tx.Commit(finishCtx)
	}
	result.Duration = time.Since(result.StartedAt)

	if err != nil {
		logger.Error("import not committed", "error", err)
		return result, fmt.Errorf("commit import: %w", err)
	}

	logger.Info("import finished",
		"succeeded", result.SuccessCount,
		"failed", result.ErrorCount,
		"skipped", result.SkippedCount,
		"created", result.Created,
		"cancelled", result.Cancelled,
		"duration", result.Duration,
	)
	return result, nil
}

// rowWriter holds everything one row needs; it is shared by all rows of a run.
type rowWriter struct {
	session  Session
	primary  Collection
	resolver *Resolver
	mapping  ColumnMapping
	profile  Profile
	opts     Options
}

// process runs one row inside a savepoint and returns its terminal outcome.
func (w *rowWriter) process(ctx context.Context, row []Cell, line int) RowResult {
	key, ok := ToText(cellAt(row, w.mapping.Key.Index))
	rr := RowResult{Line: line, Key: key, Outcome: OutcomePending}
	if !ok {
		rr.Outcome = OutcomeSkipped
		rr.Message = ReasonMissingKey
		return rr
	}

	err := w.session.Savepoint(ctx, func(ctx context.Context) (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return w.upsert(ctx, row, &rr)
	})
	if err != nil {
		w.resolver.DiscardRow()
		rr.Outcome = OutcomeError
		rr.Message = err.Error()
		return rr
	}

	w.resolver.CommitRow()
	return rr
}

func (w *rowWriter) upsert(ctx context.Context, row []Cell, rr *RowResult) error {
	existing, err := w.primary.Search(ctx, Criteria{Any: []Match{{Field: w.profile.KeyAttr, Value: rr.Key}}})
	if err != nil {
		return fmt.Errorf("search %s %q: %w", w.profile.Collection, rr.Key, err)
	}

	switch {
	case existing != nil && !w.opts.UpdateExisting:
		rr.Outcome = OutcomeSkipped
		rr.Message = ReasonUpdateDisabled
		return nil
	case existing == nil && !w.opts.CreateMissing:
		rr.Outcome = OutcomeSkipped
		rr.Message = ReasonCreateDisabled
		return nil
	}

	values, warnings, err := w.buildValues(ctx, row)
	rr.Warnings = warnings
	if err != nil {
		return err
	}

	if existing != nil {
		if err := w.primary.Write(ctx, existing, values); err != nil {
			return fmt.Errorf("update %q: %w", rr.Key, err)
		}
		rr.Outcome = OutcomeUpdated
		rr.Message = fmt.Sprintf("updated record %d", existing.ID)
		return nil
	}

	values[w.profile.KeyAttr] = rr.Key
	w.applyDefaults(values)
	rec, err := w.primary.Create(ctx, values)
	if err != nil {
		return fmt.Errorf("create %q: %w", rr.Key, err)
	}
	rr.Outcome = OutcomeCreated
	rr.Message = fmt.Sprintf("created record %d", rec.ID)
	return nil
}

// buildValues normalizes every mapped, non-empty cell of a row.
// Only a mandatory reference that cannot be resolved returns an error.
func (w *rowWriter) buildValues(ctx context.Context, row []Cell) (Values, []string, error) {
	values := make(Values, len(w.mapping.Columns))
	var warnings []string
	warnf := func(format string, args ...any) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}

	for _, col := range w.mapping.Columns {
		spec := col.Spec
		if spec.Name == w.profile.KeyAttr {
			continue
		}

		cell := cellAt(row, col.Index)
		if cell.IsEmpty() {
			if spec.Kind == KindReference && spec.Mandatory {
				return nil, warnings, fmt.Errorf("column %q: value required", col.Header)
			}
			continue
		}

		switch spec.Kind {
		case KindText:
			if s, ok := ToText(cell); ok {
				values[spec.Name] = s
			}

		case KindNumeric:
			f, ok := ToNumeric(cell)
			if !ok {
				warnf("column %q: %q is not a number, using 0", col.Header, cell.String())
				f = 0
			}
			values[spec.Name] = f

		case KindDate:
			t, ok := ToDate(cell)
			if !ok {
				warnf("column %q: unrecognized date %q, left unset", col.Header, cell.String())
				continue
			}
			values[spec.Name] = t

		case KindEnum:
			label, _ := ToText(cell)
			code, matched := NormalizeEnum(label, spec.Synonyms, spec.Fallback)
			switch {
			case !matched && code == "":
				warnf("column %q: unknown value %q, left unset", col.Header, label)
				continue
			case !matched:
				warnf("column %q: unknown value %q, using %q", col.Header, label, code)
			}
			values[spec.Name] = code

		case KindReference:
			label, _ := ToText(cell)
			id, res, err := w.resolver.Resolve(ctx, spec.Registry, label)
			if err != nil {
				if spec.Mandatory {
					return nil, warnings, fmt.Errorf("column %q: %w", col.Header, err)
				}
				warnf("column %q: %v", col.Header, err)
				continue
			}
			if res == ResolveAbsent {
				if spec.Mandatory {
					return nil, warnings, fmt.Errorf("column %q: %s %q not found", col.Header, spec.Registry, label)
				}
				if !IsSentinel(label) {
					warnf("column %q: %s %q not found, left unset", col.Header, spec.Registry, label)
				}
				continue
			}
			values[spec.Name] = id

		default:
			return nil, warnings, fmt.Errorf("column %q: unsupported attribute kind %s", col.Header, spec.Kind)
		}
	}

	return values, warnings, nil
}

// applyDefaults fills enum attributes a new record would otherwise lack.
func (w *rowWriter) applyDefaults(values Values) {
	for _, a := range w.profile.Attributes {
		if a.Kind != KindEnum || a.Fallback == "" {
			continue
		}
		if _, ok := values[a.Name]; !ok {
			values[a.Name] = a.Fallback
		}
	}
}

func cellAt(row []Cell, idx int) Cell {
	if idx < 0 || idx >= len(row) {
		return Cell{}
	}
	return row[idx]
}

// IsRunFatal reports whether err aborted an import before any row was processed.
func IsRunFatal(err error) bool {
	return errors.Is(err, ErrMissingKeyColumn) || errors.Is(err, ErrUnreadableSource) || errors.Is(err, ErrUnknownProfile)
}
