package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func strRow(values ...string) []Cell {
	row := make([]Cell, len(values))
	for i, v := range values {
		row[i] = StringCell(v)
	}
	return row
}

func newTestRun(header []string, rows ...[]Cell) Run {
	return Run{
		FileName: "projects.xlsx",
		Profile:  testProfile(),
		Sheet:    &Sheet{Header: header, Rows: rows},
		Options:  DefaultOptions(),
	}
}

func TestImport_CreatesRecord(t *testing.T) {
	store := NewMemoryStore()
	im := NewImporter(store, nil)

	run := newTestRun(
		[]string{"Nom", "BU", "CAS", "Date IN", "Customer"},
		strRow("Acme Corp", "ict", "1 500,00", "15/03/2024", "Globex"),
	)
	res, err := im.Import(context.Background(), run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if res.SuccessCount != 1 || res.ErrorCount != 0 {
		t.Fatalf("counts = %d ok / %d err, want 1 / 0 (rows: %+v)", res.SuccessCount, res.ErrorCount, res.Rows)
	}
	if res.Rows[0].Outcome != OutcomeCreated || res.Rows[0].Line != 2 {
		t.Errorf("row = %+v, want created at line 2", res.Rows[0])
	}
	if res.RunID == "" {
		t.Error("RunID should be generated")
	}

	recs := store.All("projects")
	if len(recs) != 1 {
		t.Fatalf("projects count = %d, want 1", len(recs))
	}
	v := recs[0].Values
	if v["name"] != "Acme Corp" || v["bu"] != "ict" || v["cas"] != 1500.0 {
		t.Errorf("values = %v", v)
	}
	if d, ok := v["date_in"].(time.Time); !ok || d.Format(time.DateOnly) != "2024-03-15" {
		t.Errorf("date_in = %v, want 2024-03-15", v["date_in"])
	}

	orgs := store.All("organizations")
	if len(orgs) != 1 || v["partner_id"] != orgs[0].ID {
		t.Errorf("partner_id = %v, organizations = %+v", v["partner_id"], orgs)
	}
	if res.Created["organizations"] != 1 {
		t.Errorf("Created = %v, want organizations: 1", res.Created)
	}
}

func TestImport_MissingKeySkippedWithoutWrite(t *testing.T) {
	store := NewMemoryStore()
	writes := 0
	store.FailOn = func(op StoreOp, collection string, values Values) error {
		if op != OpSearch {
			writes++
		}
		return nil
	}

	run := newTestRun(
		[]string{"Nom", "BU", "Customer"},
		strRow("", "cloud", "Globex"),
		strRow("   ", "cloud", "Initech"),
	)
	res, err := NewImporter(store, nil).Import(context.Background(), run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	if res.SuccessCount != 0 || res.SkippedCount != 2 {
		t.Errorf("counts = %d ok / %d skipped, want 0 / 2", res.SuccessCount, res.SkippedCount)
	}
	for _, row := range res.Rows {
		if row.Outcome != OutcomeSkipped || row.Message != ReasonMissingKey {
			t.Errorf("row = %+v, want skipped for missing key", row)
		}
	}
	if writes != 0 {
		t.Errorf("store saw %d writes, want 0", writes)
	}
}

func TestImport_MissingKeyColumnIsFatal(t *testing.T) {
	store := NewMemoryStore()
	run := newTestRun([]string{"BU", "CAS"}, strRow("ict", "1"))

	res, err := NewImporter(store, nil).Import(context.Background(), run)
	if !errors.Is(err, ErrMissingKeyColumn) {
		t.Fatalf("Import() error = %v, want ErrMissingKeyColumn", err)
	}
	if res != nil {
		t.Errorf("Import() result = %+v, want nil", res)
	}
	if !IsRunFatal(err) {
		t.Error("IsRunFatal() = false for missing key column")
	}
	if store.Count("projects") != 0 {
		t.Error("no rows should be written")
	}
}

func TestImport_NilSheet(t *testing.T) {
	_, err := NewImporter(NewMemoryStore(), nil).Import(context.Background(), Run{Profile: testProfile()})
	if !errors.Is(err, ErrUnreadableSource) {
		t.Errorf("Import() error = %v, want ErrUnreadableSource", err)
	}
}

func TestImport_UnparsableNumericBecomesZero(t *testing.T) {
	store := NewMemoryStore()
	run := newTestRun([]string{"Nom", "CAS"}, strRow("Acme", "lots"))

	res, err := NewImporter(store, nil).Import(context.Background(), run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.SuccessCount != 1 {
		t.Fatalf("SuccessCount = %d, want 1", res.SuccessCount)
	}
	if got := store.All("projects")[0].Values["cas"]; got != 0.0 {
		t.Errorf("cas = %v, want 0", got)
	}
	if len(res.Rows[0].Warnings) != 1 || !strings.Contains(res.Rows[0].Warnings[0], "not a number") {
		t.Errorf("warnings = %v, want one numeric warning", res.Rows[0].Warnings)
	}
}

func TestImport_EnumAndDateHandling(t *testing.T) {
	store := NewMemoryStore()
	run := newTestRun(
		[]string{"Nom", "BU", "Date IN"},
		strRow("Unknown BU", "quantum", "someday"),
		strRow("No BU", "", ""),
	)

	res, err := NewImporter(store, nil).Import(context.Background(), run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.SuccessCount != 2 {
		t.Fatalf("SuccessCount = %d, want 2 (rows: %+v)", res.SuccessCount, res.Rows)
	}

	recs := store.All("projects")
	for _, rec := range recs {
		if rec.Values["bu"] != "ict" {
			t.Errorf("%s: bu = %v, want fallback ict", rec.Name(), rec.Values["bu"])
		}
		if _, ok := rec.Values["date_in"]; ok {
			t.Errorf("%s: date_in = %v, want unset", rec.Name(), rec.Values["date_in"])
		}
	}
	if len(res.Rows[0].Warnings) != 2 {
		t.Errorf("warnings = %v, want enum and date warnings", res.Rows[0].Warnings)
	}
	if len(res.Rows[1].Warnings) != 0 {
		t.Errorf("warnings = %v, want none for empty cells", res.Rows[1].Warnings)
	}
}

// A failing row is rolled back alone; every other row is kept.
func TestImport_RowIsolation(t *testing.T) {
	const n = 6

	for k := 0; k < n; k++ {
		for _, op := range []StoreOp{OpCreate, OpWrite} {
			t.Run(fmt.Sprintf("row %d %s", k, op), func(t *testing.T) {
				store := NewMemoryStore()
				if op == OpWrite {
					// Pre-existing records make every row an update.
					for i := 0; i < n; i++ {
						store.Seed("projects", Values{"name": fmt.Sprintf("Project %d", i)})
					}
				}

				var rows [][]Cell
				for i := 0; i < n; i++ {
					name := fmt.Sprintf("Project %d", i)
					rows = append(rows, strRow(name, "cloud", fmt.Sprintf("Partner %d", i), name))
				}

				// The bad row resolves its partner before its own write fails.
				badName := fmt.Sprintf("Project %d", k)
				store.FailOn = func(o StoreOp, collection string, values Values) error {
					if o == op && collection == "projects" && values["description"] == badName {
						return errors.New("rejected by store")
					}
					return nil
				}

				run := newTestRun([]string{"Nom", "BU", "Customer", "Description"}, rows...)
				res, err := NewImporter(store, nil).Import(context.Background(), run)
				if err != nil {
					t.Fatalf("Import() error = %v", err)
				}

				if res.SuccessCount != n-1 || res.ErrorCount != 1 {
					t.Fatalf("counts = %d ok / %d err, want %d / 1", res.SuccessCount, res.ErrorCount, n-1)
				}
				if res.Rows[k].Outcome != OutcomeError || !strings.Contains(res.Rows[k].Message, "rejected by store") {
					t.Errorf("row %d = %+v, want error from store", k, res.Rows[k])
				}
				if res.Created["organizations"] != n-1 {
					t.Errorf("Created = %v, want %d organizations", res.Created, n-1)
				}

				orgs := store.All("organizations")
				if len(orgs) != n-1 {
					t.Errorf("organizations count = %d, want %d", len(orgs), n-1)
				}
				for _, org := range orgs {
					if org.Name() == fmt.Sprintf("Partner %d", k) {
						t.Errorf("partner of failed row %d was kept", k)
					}
				}

				for _, rec := range store.All("projects") {
					_, written := rec.Values["description"]
					if rec.Name() == badName && written {
						t.Errorf("failed row %q was written", badName)
					}
					if rec.Name() != badName && !written {
						t.Errorf("row %q was not written", rec.Name())
					}
				}
			})
		}
	}
}

func TestImport_PanicInRowIsRecorded(t *testing.T) {
	store := NewMemoryStore()
	store.FailOn = func(op StoreOp, collection string, values Values) error {
		if op == OpCreate && values["name"] == "Boom" {
			panic("driver exploded")
		}
		return nil
	}

	run := newTestRun([]string{"Nom"}, strRow("Boom"), strRow("Fine"))
	res, err := NewImporter(store, nil).Import(context.Background(), run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.ErrorCount != 1 || res.SuccessCount != 1 {
		t.Errorf("counts = %d ok / %d err, want 1 / 1", res.SuccessCount, res.ErrorCount)
	}
	if !strings.Contains(res.Rows[0].Message, "driver exploded") {
		t.Errorf("message = %q, want panic text", res.Rows[0].Message)
	}
}

func TestImport_MandatoryReferenceFailsRow(t *testing.T) {
	p := testProfile()
	for i := range p.Attributes {
		if p.Attributes[i].Name == "pays" {
			p.Attributes[i].Mandatory = true
		}
	}

	store := NewMemoryStore()
	store.Seed("countries", Values{"name": "Morocco", "code": "MA"})

	run := newTestRun([]string{"Nom", "Pays"},
		strRow("Known", "ma"),
		strRow("Unknown", "Atlantis"),
		strRow("Blank", ""),
	)
	run.Profile = p

	res, err := NewImporter(store, nil).Import(context.Background(), run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	want := []Outcome{OutcomeCreated, OutcomeError, OutcomeError}
	for i, o := range want {
		if res.Rows[i].Outcome != o {
			t.Errorf("row %d outcome = %s (%s), want %s", i, res.Rows[i].Outcome, res.Rows[i].Message, o)
		}
	}
	if store.Count("projects") != 1 {
		t.Errorf("projects count = %d, want 1", store.Count("projects"))
	}
}

func TestImport_UnresolvedOptionalReferenceWarns(t *testing.T) {
	store := NewMemoryStore()
	run := newTestRun([]string{"Nom", "Pays", "Customer"}, strRow("Acme", "Atlantis", "N/A"))

	res, err := NewImporter(store, nil).Import(context.Background(), run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.SuccessCount != 1 {
		t.Fatalf("SuccessCount = %d, want 1", res.SuccessCount)
	}
	// Sentinels are silent, unknown countries are not.
	if len(res.Rows[0].Warnings) != 1 || !strings.Contains(res.Rows[0].Warnings[0], "Atlantis") {
		t.Errorf("warnings = %v, want one for Atlantis", res.Rows[0].Warnings)
	}
	v := store.All("projects")[0].Values
	if _, ok := v["pays"]; ok {
		t.Error("pays should be unset")
	}
	if _, ok := v["partner_id"]; ok {
		t.Error("partner_id should be unset")
	}
}

func TestImport_UpdateAndCreateSwitches(t *testing.T) {
	tests := []struct {
		name        string
		opts        Options
		wantOutcome [2]Outcome // existing, new
		wantMessage [2]string
		wantCount   int
		wantOrgs    int
	}{
		{
			name:        "defaults",
			opts:        DefaultOptions(),
			wantOutcome: [2]Outcome{OutcomeUpdated, OutcomeCreated},
			wantCount:   2,
			wantOrgs:    2,
		},
		{
			name:        "no update",
			opts:        Options{CreateMissing: true, CreateReferences: true},
			wantOutcome: [2]Outcome{OutcomeSkipped, OutcomeCreated},
			wantMessage: [2]string{ReasonUpdateDisabled, ""},
			wantCount:   2,
			wantOrgs:    1,
		},
		{
			name:        "no create",
			opts:        Options{UpdateExisting: true, CreateReferences: true},
			wantOutcome: [2]Outcome{OutcomeUpdated, OutcomeSkipped},
			wantMessage: [2]string{"", ReasonCreateDisabled},
			wantCount:   1,
			wantOrgs:    1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMemoryStore()
			existing := store.Seed("projects", Values{"name": "Old", "bu": "cloud"})

			run := newTestRun([]string{"Nom", "BU", "Customer"},
				strRow("Old", "cyber", "Globex"),
				strRow("New", "cyber", "Initech"),
			)
			run.Options = tt.opts

			res, err := NewImporter(store, nil).Import(context.Background(), run)
			if err != nil {
				t.Fatalf("Import() error = %v", err)
			}
			for i := range tt.wantOutcome {
				if res.Rows[i].Outcome != tt.wantOutcome[i] {
					t.Errorf("row %d outcome = %s, want %s", i, res.Rows[i].Outcome, tt.wantOutcome[i])
				}
				if tt.wantMessage[i] != "" && res.Rows[i].Message != tt.wantMessage[i] {
					t.Errorf("row %d message = %q, want %q", i, res.Rows[i].Message, tt.wantMessage[i])
				}
			}
			if n := store.Count("projects"); n != tt.wantCount {
				t.Errorf("projects count = %d, want %d", n, tt.wantCount)
			}

			// Skipped rows resolve nothing.
			if res.Created["organizations"] != tt.wantOrgs || store.Count("organizations") != tt.wantOrgs {
				t.Errorf("Created = %v, want %d organizations", res.Created, tt.wantOrgs)
			}

			for _, rec := range store.All("projects") {
				if rec.ID == existing.ID {
					wantBU := "cybersecurity"
					if !tt.opts.UpdateExisting {
						wantBU = "cloud"
					}
					if rec.Values["bu"] != wantBU {
						t.Errorf("existing bu = %v, want %s", rec.Values["bu"], wantBU)
					}
				}
			}
		})
	}
}

func TestImport_UpdateKeepsUnmappedAttributes(t *testing.T) {
	store := NewMemoryStore()
	store.Seed("projects", Values{"name": "Acme", "description": "keep me", "cas": 10.0})

	run := newTestRun([]string{"Nom", "CAS"}, strRow("Acme", "20"))
	if _, err := NewImporter(store, nil).Import(context.Background(), run); err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	v := store.All("projects")[0].Values
	if v["description"] != "keep me" || v["cas"] != 20.0 {
		t.Errorf("values = %v, want description kept and cas 20", v)
	}
	// Defaults apply to new records only.
	if _, ok := v["bu"]; ok {
		t.Errorf("bu = %v, want unset on update", v["bu"])
	}
}

func TestImport_ReferencesSharedAcrossRows(t *testing.T) {
	store := NewMemoryStore()
	run := newTestRun([]string{"Nom", "PM"},
		strRow("A", "Jane Doe"),
		strRow("B", "jane doe"),
		strRow("C", "JANE DOE"),
	)

	res, err := NewImporter(store, nil).Import(context.Background(), run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.Created["people"] != 1 || store.Count("people") != 1 {
		t.Fatalf("people created = %d (stored %d), want 1", res.Created["people"], store.Count("people"))
	}
	id := store.All("people")[0].ID
	for _, rec := range store.All("projects") {
		if rec.Values["user_id"] != id {
			t.Errorf("%s: user_id = %v, want %d", rec.Name(), rec.Values["user_id"], id)
		}
	}
}

func TestImport_DryRunWritesNothing(t *testing.T) {
	store := NewMemoryStore()
	run := newTestRun([]string{"Nom", "Customer"}, strRow("Acme", "Globex"))
	run.Options.DryRun = true

	res, err := NewImporter(store, nil).Import(context.Background(), run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !res.DryRun || res.SuccessCount != 1 || res.Created["organizations"] != 1 {
		t.Errorf("result = %+v, want a successful dry run", res)
	}
	if store.Count("projects") != 0 || store.Count("organizations") != 0 {
		t.Error("dry run must not persist records")
	}
}

func TestImport_BlankRowsAndRowLimit(t *testing.T) {
	store := NewMemoryStore()
	run := newTestRun([]string{"Nom"},
		strRow("A"),
		strRow("", ""),
		nil,
		strRow("B"),
		strRow("C"),
	)
	run.Options.MaxRows = 4

	res, err := NewImporter(store, nil).Import(context.Background(), run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(res.Rows) != 4 || res.Rows[3].Line != 5 {
		t.Fatalf("rows = %+v, want lines 2 to 5", res.Rows)
	}
	for _, rr := range res.Rows[1:3] {
		if rr.Outcome != OutcomeSkipped || rr.Message != ReasonMissingKey {
			t.Errorf("line %d = %s %q, want skipped %q", rr.Line, rr.Outcome, rr.Message, ReasonMissingKey)
		}
	}
	if res.SkippedCount != 2 || store.Count("projects") != 2 {
		t.Errorf("skipped = %d, stored = %d, want 2 and 2", res.SkippedCount, store.Count("projects"))
	}
	found := false
	for _, w := range res.Warnings {
		if strings.HasPrefix(w, ReasonRowLimitReached) {
			found = true
		}
	}
	if !found {
		t.Errorf("warnings = %v, want row limit warning", res.Warnings)
	}
}

func TestImport_OnlyBlankRowIsSkipped(t *testing.T) {
	store := NewMemoryStore()
	run := newTestRun([]string{"Nom", "BU"}, strRow("", ""))

	res, err := NewImporter(store, nil).Import(context.Background(), run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if len(res.Rows) != 1 || res.SkippedCount != 1 {
		t.Fatalf("rows = %d, skipped = %d, want 1 and 1", len(res.Rows), res.SkippedCount)
	}
	if res.Rows[0].Line != 2 || res.Rows[0].Message != ReasonMissingKey {
		t.Errorf("row = %+v, want line 2 skipped for missing key", res.Rows[0])
	}
}

func TestImport_TextKeptVerbatim(t *testing.T) {
	store := NewMemoryStore()
	run := newTestRun([]string{"Nom"},
		strRow(" Projet 'Alpha' "),
		strRow(`Phase "Build"`),
		strRow("=SUM"),
	)

	res, err := NewImporter(store, nil).Import(context.Background(), run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if res.SuccessCount != 3 {
		t.Fatalf("success = %d, want 3", res.SuccessCount)
	}
	want := []string{"Projet 'Alpha'", `Phase "Build"`, "=SUM"}
	for i, rec := range store.All("projects") {
		if rec.Name() != want[i] {
			t.Errorf("record %d name = %q, want %q", i, rec.Name(), want[i])
		}
	}
}

func TestImport_CancelledKeepsProcessedRows(t *testing.T) {
	store := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store.FailOn = func(op StoreOp, collection string, values Values) error {
		if op == OpCreate && values["name"] == "B" {
			cancel()
		}
		return nil
	}

	run := newTestRun([]string{"Nom"}, strRow("A"), strRow("B"), strRow("C"))
	res, err := NewImporter(store, nil).Import(ctx, run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !res.Cancelled {
		t.Error("Cancelled = false, want true")
	}
	if res.SuccessCount != 2 || store.Count("projects") != 2 {
		t.Errorf("success = %d, stored = %d, want 2 and 2", res.SuccessCount, store.Count("projects"))
	}
}

// cancelAwareStore fails every operation whose context is done, the way a
// database connection drops a query when its context is cancelled.
type cancelAwareStore struct {
	*MemoryStore
}

func (s cancelAwareStore) Begin(ctx context.Context) (Tx, error) {
	tx, err := s.MemoryStore.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return cancelAwareTx{tx}, nil
}

type cancelAwareTx struct {
	Tx
}

func (t cancelAwareTx) Collection(name string) Collection {
	return cancelAwareCollection{t.Tx.Collection(name)}
}

func (t cancelAwareTx) Savepoint(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.Tx.Savepoint(ctx, fn)
}

func (t cancelAwareTx) Commit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return t.Tx.Commit(ctx)
}

type cancelAwareCollection struct {
	Collection
}

func (c cancelAwareCollection) Search(ctx context.Context, crit Criteria) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Collection.Search(ctx, crit)
}

func (c cancelAwareCollection) Create(ctx context.Context, values Values) (*Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.Collection.Create(ctx, values)
}

func (c cancelAwareCollection) Write(ctx context.Context, rec *Record, values Values) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.Collection.Write(ctx, rec, values)
}

func TestImport_CancelledMidRowFinishesRowAndCommits(t *testing.T) {
	mem := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel while row B resolves its customer, before the project is created.
	mem.FailOn = func(op StoreOp, collection string, values Values) error {
		if op == OpCreate && collection == "organizations" && values["name"] == "Initech" {
			cancel()
		}
		return nil
	}

	run := newTestRun([]string{"Nom", "Customer"}, strRow("A", "Globex"), strRow("B", "Initech"), strRow("C", "Umbrella"))
	res, err := NewImporter(cancelAwareStore{mem}, nil).Import(ctx, run)
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if !res.Cancelled {
		t.Error("Cancelled = false, want true")
	}
	if res.SuccessCount != 2 || res.ErrorCount != 0 {
		t.Errorf("success = %d, errors = %d, want 2 and 0", res.SuccessCount, res.ErrorCount)
	}
	if got := mem.Count("projects"); got != 2 {
		t.Errorf("stored projects = %d, want 2", got)
	}
}

func TestImport_BeginFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run := newTestRun([]string{"Nom"}, strRow("A"))
	res, err := NewImporter(NewMemoryStore(), nil).Import(ctx, run)
	if !errors.Is(err, context.Canceled) || res != nil {
		t.Errorf("Import() = (%v, %v), want nil result and context.Canceled", res, err)
	}
}
