// Package testdata generates realistic lead payloads for seeding and load
// testing. Payloads imitate what ad platforms and spreadsheet exports
// actually deliver: mixed key spellings, Hebrew headers, formatted phones.
package testdata

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

// GeneratorConfig configures payload generation
type GeneratorConfig struct {
	CampaignName string
	Platform     string
	EmailChance  float64 // 0.0-1.0 probability of the payload carrying an email
	PhoneChance  float64
	HebrewChance float64 // probability of Hebrew keys instead of English ones
}

// DefaultConfig returns sensible generation defaults
func DefaultConfig(campaign string) GeneratorConfig {
	return GeneratorConfig{
		CampaignName: campaign,
		Platform:     "facebook",
		EmailChance:  0.8,
		PhoneChance:  0.95,
		HebrewChance: 0.5,
	}
}

// Israeli mobile prefixes seen in real campaign data
var mobilePrefixes = []string{"050", "052", "053", "054", "055", "058"}

// RandomPhone produces a local-format mobile number with the separators the
// sources actually use
func RandomPhone() string {
	prefix := mobilePrefixes[rand.Intn(len(mobilePrefixes))]
	num := rand.Intn(10000000)
	switch rand.Intn(3) {
	case 0:
		return fmt.Sprintf("%s-%07d", prefix, num)
	case 1:
		return fmt.Sprintf("%s %07d", prefix, num)
	default:
		return fmt.Sprintf("%s%07d", prefix, num)
	}
}

// Payload produces one fake webhook-style payload
func Payload(cfg GeneratorConfig) map[string]any {
	name := gofakeit.Name()
	hebrew := rand.Float64() < cfg.HebrewChance

	payload := map[string]any{}
	if hebrew {
		payload["שם מלא"] = name
	} else {
		payload["full_name"] = name
	}

	if rand.Float64() < cfg.EmailChance {
		email := gofakeit.Email()
		if hebrew {
			payload["מייל"] = email
		} else {
			payload["email"] = email
		}
	}

	if rand.Float64() < cfg.PhoneChance {
		phone := RandomPhone()
		if hebrew {
			payload["מספר טלפון"] = phone
		} else {
			payload["phone_number"] = phone
		}
	}

	if cfg.CampaignName != "" {
		payload["campaign_name"] = cfg.CampaignName
	}
	if cfg.Platform != "" {
		payload["platform"] = cfg.Platform
	}
	payload["created_time"] = gofakeit.DateRange(
		time.Now().AddDate(0, -3, 0), time.Now()).Format(time.RFC3339)
	payload["id"] = fmt.Sprintf("%d", gofakeit.Number(100000000, 999999999))

	return payload
}

// Payloads produces count fake payloads
func Payloads(cfg GeneratorConfig, count int) []map[string]any {
	out := make([]map[string]any, 0, count)
	for i := 0; i < count; i++ {
		out = append(out, Payload(cfg))
	}
	return out
}
