package model

import (
	"reflect"
	"testing"
)

func TestNormalizeEveryAliasResolves(t *testing.T) {
	// Feeding a record under any recognized alias must yield the same
	// normalized value as the primary name.
	for _, field := range canonicalFields {
		var value any = "some value"
		if structuredFields[field] {
			value = []any{"stage one"}
		}
		for _, alias := range fieldAliases[field] {
			rec := MapRecord{alias: value}
			out := Normalize(rec)
			got, ok := out[field]
			if !ok {
				t.Errorf("field %s: alias %q did not resolve", field, alias)
				continue
			}
			if !reflect.DeepEqual(got, value) {
				t.Errorf("field %s: alias %q resolved to %v, want %v", field, alias, got, value)
			}
		}
	}
}

func TestNormalizeAliasPriority(t *testing.T) {
	// When several aliases are present the declared order decides.
	rec := MapRecord{
		"id":      "generic",
		"案件編號":    "legacy",
		"case_id": "primary",
	}
	out := Normalize(rec)
	if out.CaseID() != "primary" {
		t.Errorf("Expected primary name to win, got '%s'", out.CaseID())
	}

	rec = MapRecord{"id": "generic", "案件編號": "legacy"}
	out = Normalize(rec)
	if out.CaseID() != "legacy" {
		t.Errorf("Expected legacy label to beat generic alias, got '%s'", out.CaseID())
	}
}

func TestNormalizeEmptyToAbsent(t *testing.T) {
	tests := []struct {
		name string
		rec  MapRecord
	}{
		{"empty string", MapRecord{"client": ""}},
		{"whitespace only", MapRecord{"client": "   \t "}},
		{"nil value", MapRecord{"client": nil}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(tt.rec)
			if _, ok := out[FieldClient]; ok {
				t.Errorf("Expected client to be absent, got %v", out[FieldClient])
			}
		})
	}
}

func TestNormalizeEmptyPrimaryFallsThrough(t *testing.T) {
	// A blank primary value must not shadow a populated alias.
	rec := MapRecord{"case_id": "  ", "id": "A-100"}
	out := Normalize(rec)
	if out.CaseID() != "A-100" {
		t.Errorf("Expected blank primary to fall through to alias, got '%s'", out.CaseID())
	}
}

func TestNormalizeTrimsScalars(t *testing.T) {
	rec := MapRecord{"case_id": "  A-7 ", "lawyer": " 林律師\n"}
	out := Normalize(rec)
	if out.CaseID() != "A-7" {
		t.Errorf("Expected trimmed case_id, got '%s'", out.CaseID())
	}
	if out[FieldLawyer] != "林律師" {
		t.Errorf("Expected trimmed lawyer, got '%v'", out[FieldLawyer])
	}
}

func TestNormalizeCoercesNonStringScalars(t *testing.T) {
	rec := MapRecord{"case_id": 10024, "division": 3.0}
	out := Normalize(rec)
	if out.CaseID() != "10024" {
		t.Errorf("Expected '10024', got '%s'", out.CaseID())
	}
	if out[FieldDivision] != "3" {
		t.Errorf("Expected '3', got '%v'", out[FieldDivision])
	}
}

func TestNormalizeStructuredFields(t *testing.T) {
	stages := map[string]any{"偵查": "2024-01-10", "起訴": "2024-03-02"}

	tests := []struct {
		name   string
		value  any
		want   any
		absent bool
	}{
		{"mapping passes through", stages, stages, false},
		{"slice passes through", []any{"a", "b"}, []any{"a", "b"}, false},
		{"json object string parses", `{"偵查":"2024-01-10"}`, map[string]any{"偵查": "2024-01-10"}, false},
		{"json array string parses", `["a","b"]`, []any{"a", "b"}, false},
		{"unparseable string drops", "{not json", nil, true},
		{"json scalar string drops", `"just text"`, nil, true},
		{"empty string drops", "", nil, true},
		{"empty mapping drops", map[string]any{}, nil, true},
		{"empty slice drops", []any{}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Normalize(MapRecord{FieldProgressStages: tt.value})
			got, ok := out[FieldProgressStages]
			if tt.absent {
				if ok {
					t.Errorf("Expected progress_stages absent, got %v", got)
				}
				return
			}
			if !ok {
				t.Fatal("Expected progress_stages present")
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestNormalizeNeverErrorsOnMalformedInput(t *testing.T) {
	// Malformed structured fields degrade to absent without aborting the
	// rest of the record.
	rec := MapRecord{
		"case_id":         "D-404",
		"progress_stages": "{{{{",
		"progress_notes":  12345,
		"progress_times":  struct{}{},
	}
	out := Normalize(rec)
	if out.CaseID() != "D-404" {
		t.Errorf("Expected case_id to survive, got '%s'", out.CaseID())
	}
	for _, f := range []string{FieldProgressStages, FieldProgressNotes, FieldProgressTimes} {
		if _, ok := out[f]; ok {
			t.Errorf("Expected %s absent, got %v", f, out[f])
		}
	}
}

func TestNormalizePartialRecord(t *testing.T) {
	out := Normalize(MapRecord{})
	if len(out) != 0 {
		t.Errorf("Expected empty normalized record, got %v", out)
	}
	if out.CaseID() != "" {
		t.Errorf("Expected empty case id, got '%s'", out.CaseID())
	}
}

func TestNormalizeStructBackedRecord(t *testing.T) {
	type caseRow struct {
		CaseID     string `json:"case_id"`
		Client     string `json:"client"`
		CaseReason string `json:"case_reason"`
		Notes      string `json:"progress_notes"`
	}

	rec, err := NewStructRecord(caseRow{
		CaseID:     "E-55",
		Client:     " 張三 ",
		CaseReason: "",
		Notes:      `{"開庭":"已通知"}`,
	})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	out := Normalize(rec)
	if out.CaseID() != "E-55" {
		t.Errorf("Expected 'E-55', got '%s'", out.CaseID())
	}
	if out[FieldClient] != "張三" {
		t.Errorf("Expected trimmed client, got '%v'", out[FieldClient])
	}
	if _, ok := out[FieldCaseReason]; ok {
		t.Error("Expected empty case_reason to be absent")
	}
	want := map[string]any{"開庭": "已通知"}
	if !reflect.DeepEqual(out[FieldProgressNotes], want) {
		t.Errorf("Expected parsed notes %v, got %v", want, out[FieldProgressNotes])
	}
}
