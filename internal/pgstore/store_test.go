package pgstore

import (
	"reflect"
	"testing"
	"time"

	"github.com/JonMunkholm/xlimport/internal/core"
)

func TestSearchQuery(t *testing.T) {
	tests := []struct {
		name      string
		crit      core.Criteria
		wantQuery string
		wantArgs  []any
	}{
		{
			name:      "exact name",
			crit:      core.ByName("Acme"),
			wantQuery: "SELECT id, name, attrs FROM import_records WHERE collection = $1 AND (name = $2) ORDER BY id LIMIT 1",
			wantArgs:  []any{"projects", "Acme"},
		},
		{
			name: "folded name or code",
			crit: core.Criteria{Any: []core.Match{
				{Field: "name", Value: "ma", Fold: true},
				{Field: "code", Value: "ma", Fold: true},
			}},
			wantQuery: "SELECT id, name, attrs FROM import_records WHERE collection = $1 AND " +
				"(lower(name) = lower($2) OR lower(attrs->>$3) = lower($4)) ORDER BY id LIMIT 1",
			wantArgs: []any{"projects", "ma", "code", "ma"},
		},
		{
			name:      "exact attribute",
			crit:      core.Criteria{Any: []core.Match{{Field: "login", Value: "jane.doe"}}},
			wantQuery: "SELECT id, name, attrs FROM import_records WHERE collection = $1 AND (attrs->>$2 = $3) ORDER BY id LIMIT 1",
			wantArgs:  []any{"projects", "login", "jane.doe"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			query, args := searchQuery("projects", tt.crit)
			if query != tt.wantQuery {
				t.Errorf("query =\n%s\nwant\n%s", query, tt.wantQuery)
			}
			if !reflect.DeepEqual(args, tt.wantArgs) {
				t.Errorf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestEncodeValues(t *testing.T) {
	values := core.Values{
		"name":       "Acme",
		"cas":        1500.0,
		"date_in":    time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC),
		"partner_id": int64(7),
		"bu":         "ict",
	}

	name, attrs := encodeValues(values)
	if name != "Acme" {
		t.Errorf("name = %q, want Acme", name)
	}
	want := map[string]any{
		"cas":        1500.0,
		"date_in":    "2024-03-15",
		"partner_id": int64(7),
		"bu":         "ict",
	}
	if !reflect.DeepEqual(attrs, want) {
		t.Errorf("attrs = %v, want %v", attrs, want)
	}

	back := decodeValues(name, attrs)
	if back["name"] != "Acme" || back["bu"] != "ict" {
		t.Errorf("decodeValues() = %v", back)
	}
}
