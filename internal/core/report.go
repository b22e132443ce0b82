package core

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// LogLines renders the run as human-readable lines: a header, one line per
// row (plus its warnings), and a trailing summary.
func (r *Result) LogLines() []string {
	lines := make([]string, 0, len(r.Rows)+len(r.Warnings)+8)

	title := fmt.Sprintf("=== Import %s", r.Profile)
	if r.FileName != "" {
		title += ": " + r.FileName
	}
	if r.DryRun {
		title += " (dry run)"
	}
	lines = append(lines, title+" ===")

	for _, w := range r.Warnings {
		lines = append(lines, "warning: "+w)
	}

	for _, row := range r.Rows {
		lines = append(lines, row.logLine())
		for _, w := range row.Warnings {
			lines = append(lines, fmt.Sprintf("  line %d: warning: %s", row.Line, w))
		}
	}

	lines = append(lines, "=== Summary ===")
	lines = append(lines, fmt.Sprintf("Succeeded: %d", r.SuccessCount))
	lines = append(lines, fmt.Sprintf("Failed: %d", r.ErrorCount))
	lines = append(lines, fmt.Sprintf("Skipped: %d", r.SkippedCount))

	registries := make([]string, 0, len(r.Created))
	for name := range r.Created {
		registries = append(registries, name)
	}
	sort.Strings(registries)
	for _, name := range registries {
		lines = append(lines, fmt.Sprintf("Created %s: %d", name, r.Created[name]))
	}

	if r.Cancelled {
		lines = append(lines, "Import cancelled: remaining rows were not processed")
	}
	if r.DryRun {
		lines = append(lines, "Dry run: no changes were saved")
	}
	lines = append(lines, "=== End of import ===")
	return lines
}

// WriteLog writes LogLines to w, one per line.
func (r *Result) WriteLog(w io.Writer) error {
	_, err := io.WriteString(w, strings.Join(r.LogLines(), "\n")+"\n")
	return err
}

func (row RowResult) logLine() string {
	key := row.Key
	if key == "" {
		key = "-"
	}
	switch row.Outcome {
	case OutcomeCreated:
		return fmt.Sprintf("line %d: %q created", row.Line, key)
	case OutcomeUpdated:
		return fmt.Sprintf("line %d: %q updated", row.Line, key)
	case OutcomeSkipped:
		return fmt.Sprintf("line %d: %q skipped (%s)", row.Line, key, row.Message)
	case OutcomeError:
		return fmt.Sprintf("line %d: %q error: %s", row.Line, key, row.Message)
	default:
		return fmt.Sprintf("line %d: %q %s", row.Line, key, row.Outcome)
	}
}
