package main

import (
	"context"
	"log"
	"os"
	"strconv"

	"github.com/shmuelia/leadsmanager/config"
	"github.com/shmuelia/leadsmanager/pkg/database"
	"github.com/shmuelia/leadsmanager/pkg/leads"
	"github.com/shmuelia/leadsmanager/pkg/models"
	"github.com/shmuelia/leadsmanager/pkg/store"
	"github.com/shmuelia/leadsmanager/pkg/testdata"
)

// Seeds a development database with a customer, sheet campaigns, and a batch
// of realistic leads. SEED_LEAD_COUNT controls the batch size.
func main() {
	cfg := config.Load()

	count := 50
	if v := os.Getenv("SEED_LEAD_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			count = n
		}
	}

	db, err := database.NewClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	st := store.New(db.DB)
	ctx := context.Background()

	log.Println("🌱 Seeding database with sample data...")

	customer := &models.Customer{Name: "Demo Academy", Active: true}
	if err := st.Customers.Create(ctx, customer); err != nil {
		log.Fatalf("❌ Failed to create customer: %v", err)
	}
	log.Printf("✅ Customer created (id=%d)", customer.ID)

	campaigns := []*models.Campaign{
		{
			CustomerID: customer.ID,
			Name:       "קורס ערב - קיץ",
			SheetURL:   "https://docs.google.com/spreadsheets/d/demo-summer/edit",
			TabID:      "0",
			Active:     true,
			ColumnMapping: models.ColumnMapping{
				Name:     "שם מלא",
				Phone:    "מס פלאפון",
				Email:    "מייל",
				Campaign: "שם הקמפיין",
				Date:     "תאריך",
			},
		},
		{
			CustomerID: customer.ID,
			Name:       "Open Day Leads",
			SheetURL:   "https://docs.google.com/spreadsheets/d/demo-openday/edit",
			TabID:      "2095877733",
			Active:     false,
			ColumnMapping: models.ColumnMapping{
				Name:  "Full Name",
				Phone: "Phone Number",
				Email: "Email",
			},
		},
	}
	for _, campaign := range campaigns {
		if err := st.Campaigns.Create(ctx, campaign); err != nil {
			log.Fatalf("❌ Failed to create campaign %q: %v", campaign.Name, err)
		}
		log.Printf("✅ Campaign created: %s (id=%d, active=%v)", campaign.Name, campaign.ID, campaign.Active)
	}

	leadService := leads.NewService(st.Leads, st.Customers, cfg.DefaultPhoneRegion)
	genCfg := testdata.DefaultConfig(campaigns[0].Name)

	created, duplicates := 0, 0
	for _, payload := range testdata.Payloads(genCfg, count) {
		result, err := leadService.Ingest(ctx, leads.IngestInput{
			CustomerID: customer.ID,
			Payload:    payload,
		})
		if err != nil {
			log.Printf("⚠️  Failed to ingest seed lead: %v", err)
			continue
		}
		switch result.Outcome {
		case leads.OutcomeCreated:
			created++
		case leads.OutcomeDuplicate:
			duplicates++
		}
	}

	log.Printf("✅ Seeding complete: %d leads created, %d duplicates skipped", created, duplicates)
}
