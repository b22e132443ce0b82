package core

import (
	"errors"
	"strings"
	"testing"
)

// testProfile is a small profile covering every attribute kind.
func testProfile() Profile {
	return Profile{
		Key:        "test",
		Label:      "Test",
		Collection: "projects",
		KeyAttr:    "name",
		Columns: []Column{
			{Header: "Nom", Attribute: "name"},
			{Header: "Name", Attribute: "name"},
			{Header: "BU", Attribute: "bu"},
			{Header: "CAS", Attribute: "cas"},
			{Header: "Date IN", Attribute: "date_in"},
			{Header: "Description", Attribute: "description"},
			{Header: "PM", Attribute: "user_id"},
			{Header: "Customer", Attribute: "partner_id"},
			{Header: "Pays", Attribute: "pays"},
		},
		Attributes: []AttributeSpec{
			{Name: "name", Kind: KindText},
			{Name: "bu", Kind: KindEnum, Synonyms: map[string]string{"ict": "ict", "cloud": "cloud", "cyber": "cybersecurity"}, Fallback: "ict"},
			{Name: "cas", Kind: KindNumeric},
			{Name: "date_in", Kind: KindDate},
			{Name: "description", Kind: KindText},
			{Name: "user_id", Kind: KindReference, Registry: "people"},
			{Name: "partner_id", Kind: KindReference, Registry: "organizations"},
			{Name: "pays", Kind: KindReference, Registry: "countries"},
		},
		Registries: []RegistrySpec{
			{Name: "people", MatchFields: []string{"login"}, HandleField: "login"},
			{Name: "organizations"},
			{Name: "countries", MatchFields: []string{"code"}, SearchOnly: true},
		},
	}
}

func TestMakeHeaderIndex(t *testing.T) {
	tests := []struct {
		name   string
		header []string
		checks map[string]int // key -> expected index
	}{
		{
			name:   "case insensitive lookup",
			header: []string{"NOM", "Bu", "cas"},
			checks: map[string]int{"nom": 0, "bu": 1, "cas": 2},
		},
		{
			name:   "headers with quotes and whitespace cleaned",
			header: []string{`"Nom"`, "  BU ", `="CAS"`},
			checks: map[string]int{"nom": 0, "bu": 1, "cas": 2},
		},
		{
			name:   "duplicates keep the first occurrence",
			header: []string{"Nom", "BU", "nom"},
			checks: map[string]int{"nom": 0, "bu": 1},
		},
		{
			name:   "empty header",
			header: []string{},
			checks: map[string]int{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := MakeHeaderIndex(tt.header)
			if len(idx) != len(tt.checks) {
				t.Errorf("MakeHeaderIndex(%v) has %d keys, want %d", tt.header, len(idx), len(tt.checks))
			}
			for key, wantPos := range tt.checks {
				if gotPos, ok := idx[key]; !ok || gotPos != wantPos {
					t.Errorf("MakeHeaderIndex(%v)[%q] = %d (found %v), want %d", tt.header, key, gotPos, ok, wantPos)
				}
			}
		})
	}
}

func TestMapHeaders(t *testing.T) {
	p := testProfile()

	m, err := MapHeaders([]string{"Nom", "BU", "CAS", "Unrelated"}, p)
	if err != nil {
		t.Fatalf("MapHeaders() error = %v", err)
	}

	if m.Key.Index != 0 || m.Key.Spec.Name != "name" {
		t.Errorf("Key = %+v, want name at column 0", m.Key)
	}

	got := make(map[string]int)
	for _, c := range m.Columns {
		got[c.Spec.Name] = c.Index
	}
	want := map[string]int{"name": 0, "bu": 1, "cas": 2}
	if len(got) != len(want) {
		t.Errorf("mapped %v, want %v", got, want)
	}
	for attr, idx := range want {
		if got[attr] != idx {
			t.Errorf("%s mapped to column %d, want %d", attr, got[attr], idx)
		}
	}

	for _, c := range m.Columns {
		if c.Spec.Name == "cas" && c.Spec.Kind != KindNumeric {
			t.Errorf("cas kind = %s, want numeric", c.Spec.Kind)
		}
	}

	wantMissing := []string{"Date IN", "Description", "PM", "Customer", "Pays"}
	if strings.Join(m.Missing, ",") != strings.Join(wantMissing, ",") {
		t.Errorf("Missing = %v, want %v", m.Missing, wantMissing)
	}
	if len(m.Warnings) != len(wantMissing) {
		t.Errorf("Warnings = %v, want one per missing header", m.Warnings)
	}
}

func TestMapHeaders_AliasNotReportedMissing(t *testing.T) {
	m, err := MapHeaders([]string{"Name", "BU"}, testProfile())
	if err != nil {
		t.Fatalf("MapHeaders() error = %v", err)
	}
	if m.Key.Header != "Name" {
		t.Errorf("Key.Header = %q, want %q", m.Key.Header, "Name")
	}
	for _, h := range m.Missing {
		if h == "Nom" {
			t.Error("alias \"Nom\" reported missing although \"Name\" was mapped")
		}
	}
}

func TestMapHeaders_FirstAliasWins(t *testing.T) {
	m, err := MapHeaders([]string{"Name", "Nom"}, testProfile())
	if err != nil {
		t.Fatalf("MapHeaders() error = %v", err)
	}
	// "Nom" comes first in the profile, so column 1 backs the key.
	if m.Key.Index != 1 {
		t.Errorf("Key.Index = %d, want 1", m.Key.Index)
	}
	found := false
	for _, w := range m.Warnings {
		if strings.Contains(w, `"Name" ignored`) {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %v, want a warning for the ignored alias", m.Warnings)
	}
}

func TestMapHeaders_DuplicateHeaderWarns(t *testing.T) {
	m, err := MapHeaders([]string{"Nom", "CAS", "cas"}, testProfile())
	if err != nil {
		t.Fatalf("MapHeaders() error = %v", err)
	}
	for _, c := range m.Columns {
		if c.Spec.Name == "cas" && c.Index != 1 {
			t.Errorf("cas mapped to column %d, want first occurrence 1", c.Index)
		}
	}
	if len(m.Warnings) == 0 || !strings.Contains(m.Warnings[0], "duplicate header") {
		t.Errorf("Warnings = %v, want duplicate header warning first", m.Warnings)
	}
}

func TestMapHeaders_MissingKeyColumn(t *testing.T) {
	tests := []struct {
		name   string
		header []string
	}{
		{name: "no key header", header: []string{"BU", "CAS"}},
		{name: "empty header row", header: nil},
		{name: "blank labels", header: []string{"", "  "}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MapHeaders(tt.header, testProfile())
			if !errors.Is(err, ErrMissingKeyColumn) {
				t.Fatalf("MapHeaders() error = %v, want ErrMissingKeyColumn", err)
			}
			if !strings.Contains(err.Error(), "Nom") {
				t.Errorf("error %q should name the expected headers", err)
			}
		})
	}
}

func TestMapHeaders_KeyAlwaysText(t *testing.T) {
	p := testProfile()
	p.Attributes[0].Kind = KindNumeric

	m, err := MapHeaders([]string{"Nom"}, p)
	if err != nil {
		t.Fatalf("MapHeaders() error = %v", err)
	}
	if m.Key.Spec.Kind != KindText {
		t.Errorf("key kind = %s, want text", m.Key.Spec.Kind)
	}
}

func TestProfileValidate(t *testing.T) {
	if err := testProfile().Validate(); err != nil {
		t.Fatalf("Validate() on test profile = %v", err)
	}

	tests := []struct {
		name   string
		mutate func(p *Profile)
		want   string
	}{
		{
			name:   "missing key",
			mutate: func(p *Profile) { p.Key = "" },
			want:   "key is required",
		},
		{
			name:   "column to undeclared attribute",
			mutate: func(p *Profile) { p.Columns = append(p.Columns, Column{Header: "X", Attribute: "x"}) },
			want:   `undeclared attribute "x"`,
		},
		{
			name:   "reference to unknown registry",
			mutate: func(p *Profile) { p.Attributes[5].Registry = "ghosts" },
			want:   `unknown registry "ghosts"`,
		},
		{
			name: "key attribute without header",
			mutate: func(p *Profile) {
				p.Columns = p.Columns[2:]
			},
			want: `no header maps to key attribute "name"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testProfile()
			tt.mutate(&p)
			err := p.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.want)
			}
		})
	}
}
