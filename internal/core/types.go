package core

import (
	"strconv"
	"strings"
	"time"
)

// AttributeKind tells the normalizer how to coerce a cell for an attribute.
type AttributeKind int

const (
	KindText AttributeKind = iota
	KindNumeric
	KindDate
	KindEnum
	KindReference
)

// String returns the lowercase kind name used in logs and the API.
func (k AttributeKind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindNumeric:
		return "numeric"
	case KindDate:
		return "date"
	case KindEnum:
		return "enum"
	case KindReference:
		return "reference"
	default:
		return "unknown"
	}
}

// AttributeSpec declares how one target attribute is filled from a cell.
type AttributeSpec struct {
	Name string        // Target attribute name: "cas_build"
	Kind AttributeKind // Coercion applied to every cell of this attribute

	// Synonyms maps lowercased external labels to internal codes (KindEnum).
	// Internal codes always map to themselves, they need not be listed.
	Synonyms map[string]string

	// Fallback is the enum code used when a label matches nothing, and the
	// value new records get when the column is absent. An enum without a
	// fallback leaves unknown labels unset.
	Fallback string

	// Registry names the RegistrySpec searched for KindReference.
	Registry string

	// Mandatory makes an unresolvable reference fail the whole row
	// instead of leaving the attribute unset.
	Mandatory bool
}

// Column binds an external header label to a target attribute.
type Column struct {
	Header    string
	Attribute string
}

// RegistrySpec describes a secondary collection that references resolve against.
type RegistrySpec struct {
	Name       string // Registry name used by AttributeSpec.Registry: "people"
	Collection string // Store collection; defaults to Name

	// MatchFields are extra fields compared case-insensitively besides "name",
	// e.g. "code" for countries or "login" for people.
	MatchFields []string

	// HandleField, when set, receives a unique handle derived from the label
	// on creation (person-like registries).
	HandleField string

	// SearchOnly registries are reference lists (countries) and never get
	// records created, whatever the run options say.
	SearchOnly bool
}

// Profile is a complete import configuration for one primary collection.
type Profile struct {
	Key        string // Unique identifier: "projects"
	Label      string // Display name: "Projects"
	Collection string // Primary store collection
	KeyAttr    string // Natural key attribute, always treated as text

	Columns    []Column        // Ordered header table; several headers may alias one attribute
	Attributes []AttributeSpec // One spec per attribute named in Columns
	Registries []RegistrySpec
}

// Attribute returns the spec for an attribute name.
func (p Profile) Attribute(name string) (AttributeSpec, bool) {
	for _, a := range p.Attributes {
		if a.Name == name {
			return a, true
		}
	}
	return AttributeSpec{}, false
}

// Registry returns the registry spec for a name.
func (p Profile) Registry(name string) (RegistrySpec, bool) {
	for _, r := range p.Registries {
		if r.Name == name {
			if r.Collection == "" {
				r.Collection = r.Name
			}
			return r, true
		}
	}
	return RegistrySpec{}, false
}

// Headers returns the configured header labels in order.
func (p Profile) Headers() []string {
	headers := make([]string, len(p.Columns))
	for i, c := range p.Columns {
		headers[i] = c.Header
	}
	return headers
}

// Options are the per-run switches of an import.
type Options struct {
	UpdateExisting   bool // Write to records whose natural key already exists
	CreateMissing    bool // Create records whose natural key is not found
	CreateReferences bool // Find-or-create referenced registry records

	// DryRun executes every row against the store and rolls the run back.
	DryRun bool

	// MaxRows stops after this many data rows (0 = no limit).
	MaxRows int
}

// DefaultOptions enables every write, matching the import wizard defaults.
func DefaultOptions() Options {
	return Options{
		UpdateExisting:   true,
		CreateMissing:    true,
		CreateReferences: true,
	}
}

// Outcome is the terminal state of a processed row.
type Outcome string

const (
	OutcomePending Outcome = "pending"
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// CellKind is the native type of a source cell.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellString
	CellNumber
	CellTime
)

// Cell is one typed value read from a tabular source.
type Cell struct {
	Kind CellKind
	Str  string
	Num  float64
	Time time.Time
}

// StringCell wraps a string value.
func StringCell(s string) Cell {
	if s == "" {
		return Cell{}
	}
	return Cell{Kind: CellString, Str: s}
}

// NumberCell wraps a native numeric value.
func NumberCell(f float64) Cell {
	return Cell{Kind: CellNumber, Num: f}
}

// TimeCell wraps a native date/time value.
func TimeCell(t time.Time) Cell {
	return Cell{Kind: CellTime, Time: t}
}

// IsEmpty reports whether the cell carries no usable value.
func (c Cell) IsEmpty() bool {
	switch c.Kind {
	case CellEmpty:
		return true
	case CellString:
		return strings.TrimSpace(c.Str) == ""
	default:
		return false
	}
}

// String renders the cell as text. Numbers drop trailing zeros, dates use ISO format.
func (c Cell) String() string {
	switch c.Kind {
	case CellString:
		return c.Str
	case CellNumber:
		return strconv.FormatFloat(c.Num, 'f', -1, 64)
	case CellTime:
		return c.Time.Format(time.DateOnly)
	default:
		return ""
	}
}

// Sheet is a header row plus data rows read from a source file.
type Sheet struct {
	Name   string
	Header []string
	Rows   [][]Cell
}

// RowResult is the outcome of a single data row.
type RowResult struct {
	Line     int      `json:"line"` // 1-indexed line in the source, header is line 1
	Key      string   `json:"key,omitempty"`
	Outcome  Outcome  `json:"outcome"`
	Message  string   `json:"message,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// Result accumulates the outcome of an import run.
type Result struct {
	RunID    string `json:"runId"`
	Profile  string `json:"profile"`
	FileName string `json:"fileName,omitempty"`

	RequestedBy string `json:"requestedBy,omitempty"`

	Rows []RowResult `json:"rows"`

	SuccessCount int            `json:"successCount"`
	ErrorCount   int            `json:"errorCount"`
	SkippedCount int            `json:"skippedCount"`
	Created      map[string]int `json:"created"` // Referenced records created, per registry

	MissingHeaders []string `json:"missingHeaders,omitempty"`
	Warnings       []string `json:"warnings,omitempty"`

	DryRun    bool          `json:"dryRun"`
	Cancelled bool          `json:"cancelled"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
}

func newResult(runID string, profile string, fileName string) *Result {
	return &Result{
		RunID:    runID,
		Profile:  profile,
		FileName: fileName,
		Rows:     make([]RowResult, 0),
		Created:  make(map[string]int),
	}
}

// record appends a finished row and updates the counters.
func (r *Result) record(row RowResult) {
	switch row.Outcome {
	case OutcomeCreated, OutcomeUpdated:
		r.SuccessCount++
	case OutcomeError:
		r.ErrorCount++
	case OutcomeSkipped:
		r.SkippedCount++
	}
	r.Rows = append(r.Rows, row)
}
