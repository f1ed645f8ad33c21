package model

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// Canonical wire field names accepted by the batch upsert endpoint.
const (
	FieldCaseID         = "case_id"
	FieldClient         = "client"
	FieldCaseType       = "case_type"
	FieldProgress       = "progress"
	FieldCaseReason     = "case_reason"
	FieldCaseNumber     = "case_number"
	FieldOpposingParty  = "opposing_party"
	FieldLawyer         = "lawyer"
	FieldLegalAffairs   = "legal_affairs"
	FieldCourt          = "court"
	FieldDivision       = "division"
	FieldCreatedDate    = "created_date"
	FieldUpdatedDate    = "updated_date"
	FieldProgressDate   = "progress_date"
	FieldProgressStages = "progress_stages"
	FieldProgressNotes  = "progress_notes"
	FieldProgressTimes  = "progress_times"

	// Injected by the uploader, never read from source records.
	FieldClientID   = "client_id"
	FieldUploadedBy = "uploaded_by"
)

// canonicalFields lists every field the normalizer resolves, in wire order.
var canonicalFields = []string{
	FieldCaseID,
	FieldClient,
	FieldCaseType,
	FieldProgress,
	FieldCaseReason,
	FieldCaseNumber,
	FieldOpposingParty,
	FieldLawyer,
	FieldLegalAffairs,
	FieldCourt,
	FieldDivision,
	FieldCreatedDate,
	FieldUpdatedDate,
	FieldProgressDate,
	FieldProgressStages,
	FieldProgressNotes,
	FieldProgressTimes,
}

// fieldAliases maps each canonical field to the names it may carry in source
// records, in lookup priority order. The first entry is the current name,
// the Chinese labels come from the legacy desktop exports, and the trailing
// generic names cover hand-edited spreadsheets.
var fieldAliases = map[string][]string{
	FieldCaseID:         {FieldCaseID, "案件編號", "id"},
	FieldClient:         {FieldClient, "當事人", "client_name"},
	FieldCaseType:       {FieldCaseType, "案件類型", "type"},
	FieldProgress:       {FieldProgress, "進度", "stage"},
	FieldCaseReason:     {FieldCaseReason, "案由", "reason"},
	FieldCaseNumber:     {FieldCaseNumber, "案號", "number"},
	FieldOpposingParty:  {FieldOpposingParty, "對造", "opponent"},
	FieldLawyer:         {FieldLawyer, "律師", "attorney"},
	FieldLegalAffairs:   {FieldLegalAffairs, "法務"},
	FieldCourt:          {FieldCourt, "法院", "負責法院"},
	FieldDivision:       {FieldDivision, "股別", "負責股別"},
	FieldCreatedDate:    {FieldCreatedDate, "建立日期", "created_at"},
	FieldUpdatedDate:    {FieldUpdatedDate, "更新日期", "updated_at"},
	FieldProgressDate:   {FieldProgressDate, "進度日期"},
	FieldProgressStages: {FieldProgressStages, "進度階段"},
	FieldProgressNotes:  {FieldProgressNotes, "進度備註"},
	FieldProgressTimes:  {FieldProgressTimes, "進度時間"},
}

// structuredFields hold nested progress data rather than scalar strings.
var structuredFields = map[string]bool{
	FieldProgressStages: true,
	FieldProgressNotes:  true,
	FieldProgressTimes:  true,
}

// NormalizedRecord is one case record in the wire shape the upsert endpoint
// accepts. Only fields that were present and non-empty in the source appear
// as keys; absent means absent, never an empty string.
type NormalizedRecord map[string]any

// CaseID returns the record's case identifier, or "" when it has none.
// A record without a case_id cannot be upserted.
func (r NormalizedRecord) CaseID() string {
	id, _ := r[FieldCaseID].(string)
	return id
}

// Normalize maps one source record to the canonical wire shape. For each
// field the first present, non-empty alias wins. Normalize never fails:
// malformed structured fields degrade to absent, not to an error.
func Normalize(rec Record) NormalizedRecord {
	out := make(NormalizedRecord)
	for _, field := range canonicalFields {
		raw, ok := lookupAlias(rec, field)
		if !ok {
			continue
		}
		if structuredFields[field] {
			if v, ok := coerceStructured(raw); ok {
				out[field] = v
			}
			continue
		}
		if s, ok := coerceString(raw); ok {
			out[field] = s
		}
	}
	return out
}

// lookupAlias walks the alias list for field and returns the first value
// that is present and not a blank string.
func lookupAlias(rec Record, field string) (any, bool) {
	for _, name := range fieldAliases[field] {
		v, ok := rec.Get(name)
		if !ok || v == nil {
			continue
		}
		if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
			continue
		}
		return v, true
	}
	return nil, false
}

// coerceString renders v as a trimmed string; blank results count as absent.
func coerceString(v any) (string, bool) {
	var s string
	switch t := v.(type) {
	case string:
		s = t
	case fmt.Stringer:
		s = t.String()
	default:
		s = fmt.Sprint(t)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "", false
	}
	return s, true
}

// coerceStructured keeps already-structured values as-is and parses
// serialized ones. The legacy exports store the progress columns as JSON
// text; anything unparseable is treated as absent.
func coerceStructured(v any) (any, bool) {
	switch t := v.(type) {
	case map[string]any:
		if len(t) == 0 {
			return nil, false
		}
		return t, true
	case []any:
		if len(t) == 0 {
			return nil, false
		}
		return t, true
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil, false
		}
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return nil, false
		}
		switch parsed.(type) {
		case map[string]any, []any:
			return parsed, true
		}
		// A bare JSON scalar is not structured data.
		return nil, false
	default:
		k := reflect.ValueOf(v).Kind()
		if k == reflect.Map || k == reflect.Slice {
			return v, true
		}
		return nil, false
	}
}
