package core

import (
	"bytes"
	"strings"
	"testing"
)

func TestResultLogLines(t *testing.T) {
	r := newResult("run-1", "projects", "projects.xlsx")
	r.Warnings = []string{`column "PM" not found in file`}
	r.record(RowResult{Line: 2, Key: "Acme", Outcome: OutcomeCreated, Warnings: []string{`column "CAS": "lots" is not a number, using 0`}})
	r.record(RowResult{Line: 3, Key: "Globex", Outcome: OutcomeUpdated})
	r.record(RowResult{Line: 4, Outcome: OutcomeSkipped, Message: ReasonMissingKey})
	r.record(RowResult{Line: 5, Key: "Initech", Outcome: OutcomeError, Message: "rejected"})
	r.Created = map[string]int{"people": 2, "organizations": 1}

	want := []string{
		"=== Import projects: projects.xlsx ===",
		`warning: column "PM" not found in file`,
		`line 2: "Acme" created`,
		`  line 2: warning: column "CAS": "lots" is not a number, using 0`,
		`line 3: "Globex" updated`,
		`line 4: "-" skipped (missing key)`,
		`line 5: "Initech" error: rejected`,
		"=== Summary ===",
		"Succeeded: 2",
		"Failed: 1",
		"Skipped: 1",
		"Created organizations: 1",
		"Created people: 2",
		"=== End of import ===",
	}

	got := r.LogLines()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("LogLines() =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestResultLogLines_DryRunAndCancelled(t *testing.T) {
	r := newResult("run-2", "projects", "")
	r.DryRun = true
	r.Cancelled = true

	lines := r.LogLines()
	if lines[0] != "=== Import projects (dry run) ===" {
		t.Errorf("title = %q", lines[0])
	}

	var buf bytes.Buffer
	if err := r.WriteLog(&buf); err != nil {
		t.Fatalf("WriteLog() error = %v", err)
	}
	out := buf.String()
	for _, s := range []string{"Import cancelled", "Dry run: no changes were saved"} {
		if !strings.Contains(out, s) {
			t.Errorf("log missing %q:\n%s", s, out)
		}
	}
	if !strings.HasSuffix(out, "=== End of import ===\n") {
		t.Errorf("log should end with the closing marker:\n%s", out)
	}
}
