package fields

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Normalized holds the canonical fields extracted from a raw payload.
// CustomFields carries every input key that did not match a known spelling,
// verbatim. The caller keeps the full original payload as raw_data regardless
// of what was extracted here.
type Normalized struct {
	Name           string
	Email          string
	Phone          string
	CampaignName   string
	Platform       string
	FormName       string
	LeadSource     string
	ExternalLeadID string
	SourceCreated  *time.Time
	CustomFields   map[string]any
}

// fieldGroup is an ordered list of candidate key spellings for one canonical
// field. Resolution order within a group: exact English, colon-suffixed
// English, "Raw "-prefixed, Hebrew, secondary Hebrew synonyms. Adding a new
// source vocabulary is a data change here, not a code change.
type fieldGroup struct {
	field string
	keys  []string
}

var fieldGroups = []fieldGroup{
	{"name", []string{
		"name", "Name", "full name", "full_name", "Full Name",
		"Name:", "Full Name:",
		"Raw Full Name",
		"שם",
		"שם מלא",
	}},
	{"email", []string{
		"email", "Email", "email_address",
		"Email:",
		"Raw Email",
		"מייל",
		"אימייל", "דוא\"ל",
	}},
	{"phone", []string{
		"phone", "Phone", "phone_number", "Phone Number",
		"Phone:", "Phone Number:",
		"Raw Phone Number", "Raw מספר טלפון",
		"טלפון", "מספר טלפון",
		"מס פלאפון", "פלאפון",
	}},
	{"campaign_name", []string{
		"campaign_name", "campaign", "Campaign Name",
		"Campaign Name:",
		"Raw Campaign Name",
		"קמפיין",
		"שם הקמפיין", "שם קמפיין",
	}},
	{"platform", []string{
		"platform", "Platform",
	}},
	{"form_name", []string{
		"form_name", "Form Name",
		"Raw Form Name",
		"טופס", "שם הטופס",
	}},
	{"lead_source", []string{
		"lead_source", "Lead Source", "source",
		"מקור",
	}},
	{"external_lead_id", []string{
		"id", "lead_id", "external_lead_id", "Lead ID",
		"Raw Lead ID",
	}},
	{"created_time", []string{
		"created_time", "Created Time", "date", "Date",
		"תאריך",
	}},
}

// knownKeys is the set of every candidate spelling, NFC-folded.
// Keys in this set are consumed by resolution and never land in
// custom_fields, even when a competing spelling won.
var knownKeys = func() map[string]bool {
	set := make(map[string]bool)
	for _, g := range fieldGroups {
		for _, k := range g.keys {
			set[foldKey(k)] = true
		}
	}
	return set
}()

// Normalize extracts canonical lead fields from an arbitrary payload.
// Pure function: the payload is never modified. Empty-string values and
// missing keys are treated identically; the first non-empty candidate in
// resolution order wins even if a later spelling's value looks fuller.
func Normalize(payload map[string]any) Normalized {
	out := Normalized{CustomFields: map[string]any{}}

	// Index payload by folded key. First occurrence wins on the (rare)
	// collision of two keys folding to the same form.
	index := make(map[string]string, len(payload))
	for k, v := range payload {
		fk := foldKey(k)
		if _, ok := index[fk]; !ok {
			index[fk] = stringValue(v)
		}
	}

	for _, g := range fieldGroups {
		var value string
		for _, candidate := range g.keys {
			if v, ok := index[foldKey(candidate)]; ok && v != "" {
				value = v
				break
			}
		}
		if value == "" {
			continue
		}
		switch g.field {
		case "name":
			out.Name = value
		case "email":
			out.Email = value
		case "phone":
			out.Phone = value
		case "campaign_name":
			out.CampaignName = value
		case "platform":
			out.Platform = value
		case "form_name":
			out.FormName = value
		case "lead_source":
			out.LeadSource = value
		case "external_lead_id":
			out.ExternalLeadID = value
		case "created_time":
			out.SourceCreated = parseSourceTime(value)
		}
	}

	// Everything unrecognized is preserved verbatim for later recovery
	for k, v := range payload {
		if !knownKeys[foldKey(k)] {
			out.CustomFields[k] = v
		}
	}

	return out
}

// foldKey brings a payload key into comparable form: NFC-normalized and
// whitespace-trimmed. Case is preserved; spellings are matched exactly.
func foldKey(k string) string {
	return norm.NFC.String(strings.TrimSpace(k))
}

// stringValue renders a scalar payload value as trimmed text.
// JSON numbers arrive as float64; integral ones are printed without the
// decimal point so phone-like values survive intact.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		if t == float64(int64(t)) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// parseSourceTime parses the source system's created_time. Zapier sends
// RFC3339 with a Z suffix; sheet dates are bare. Unparseable values are
// dropped rather than failing the lead.
// ParseTime parses a source-provided timestamp in any accepted layout.
// It returns nil when no layout matches.
func ParseTime(value string) *time.Time {
	return parseSourceTime(value)
}

func parseSourceTime(value string) *time.Time {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
		"02/01/2006",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t
		}
	}
	return nil
}
