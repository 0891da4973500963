package leads

import (
	"context"
	"fmt"

	"github.com/shmuelia/leadsmanager/pkg/fields"
	"github.com/shmuelia/leadsmanager/pkg/phone"
)

// RepairReport summarizes a backfill pass over incomplete leads
type RepairReport struct {
	Scanned         int `json:"scanned"`
	FieldsRepaired  int `json:"fields_repaired"`
	PhonesFormatted int `json:"phones_formatted"`
	Untouched       int `json:"untouched"`
}

// Repair re-normalizes the raw payload of every lead missing a canonical
// field and writes back whatever can be recovered. Phones that parse cleanly
// are reformatted to E.164; anything unparseable keeps its original form.
// The raw payload itself is never modified.
func (s *Service) Repair(ctx context.Context, customerID int) (*RepairReport, error) {
	incomplete, err := s.leads.ListIncomplete(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("list incomplete leads: %w", err)
	}

	report := &RepairReport{}
	for _, lead := range incomplete {
		report.Scanned++
		if len(lead.RawData) == 0 {
			report.Untouched++
			continue
		}

		normalized := fields.Normalize(lead.RawData)
		changed := false

		if lead.Name == "" && normalized.Name != "" {
			lead.Name = normalized.Name
			changed = true
		}
		if lead.Email == "" && normalized.Email != "" {
			lead.Email = normalized.Email
			changed = true
		}
		if lead.Phone == "" && normalized.Phone != "" {
			lead.Phone = normalized.Phone
			changed = true
		}
		if lead.CampaignName == "" && normalized.CampaignName != "" {
			lead.CampaignName = normalized.CampaignName
			changed = true
		}

		if lead.Phone != "" {
			if e164, err := phone.NormalizeE164(lead.Phone, s.region); err == nil && e164 != lead.Phone {
				lead.Phone = e164
				report.PhonesFormatted++
				changed = true
			}
		}

		if !changed {
			report.Untouched++
			continue
		}

		lead.PhoneKey = phone.CanonicalKey(lead.Phone, s.region)
		if err := s.leads.UpdateFields(ctx, lead); err != nil {
			return report, fmt.Errorf("repair lead %d: %w", lead.ID, err)
		}
		report.FieldsRepaired++
	}

	return report, nil
}
