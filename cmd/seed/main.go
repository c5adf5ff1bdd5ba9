package main

import (
	"log"
	"time"

	"perkloop/pkg/config"
	"perkloop/pkg/database"
	"perkloop/pkg/models"

	"github.com/google/uuid"
	"gorm.io/gorm/clause"
)

// Seeds demo sellers covering every reward type, plus earn tokens for two
// demo customers. Safe to run repeatedly; rows are upserted by primary key.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}

	nextYear := time.Now().AddDate(1, 0, 0)

	sellers := []models.Seller{
		{
			ID:                    "11111111-1111-1111-1111-111111111111",
			Name:                  "Corner Coffee",
			SubscriptionStatus:    models.SubscriptionActive,
			SubscriptionExpiresAt: &nextYear,
			MonthlyScanLimit:      1000,
			RewardType:            models.RewardTypeDefault,
			RewardParams:          `{"value":2}`,
			FirstScanBonus:        25,
			DailyOffers: `[{"id":"espresso","title":"Free espresso shot","min_spend":5,"terms":"One per visit"},` +
				`{"id":"pastry","title":"10% off pastries","min_spend":0,"terms":""}]`,
		},
		{
			ID:                    "22222222-2222-2222-2222-222222222222",
			Name:                  "Bageri Norr",
			SubscriptionStatus:    models.SubscriptionActive,
			SubscriptionExpiresAt: &nextYear,
			MonthlyScanLimit:      500,
			RewardType:            models.RewardTypeFlat,
			RewardParams:          `{"value":10}`,
			DailyOffers:           `[{"id":"bun","title":"Free cinnamon bun","min_spend":10,"terms":"Weekdays only"}]`,
		},
		{
			ID:                    "33333333-3333-3333-3333-333333333333",
			Name:                  "Vinyl & Wax Records",
			SubscriptionStatus:    models.SubscriptionActive,
			SubscriptionExpiresAt: &nextYear,
			MonthlyScanLimit:      2000,
			RewardType:            models.RewardTypePercentage,
			RewardParams:          `{"percentage_value":5}`,
			FirstScanBonus:        50,
			Latitude:              59.3293,
			Longitude:             18.0686,
			RadiusMeters:          250,
			DailyOffers:           `[{"id":"sleeve","title":"Free record sleeve","min_spend":0,"terms":""}]`,
		},
		{
			ID:                    "44444444-4444-4444-4444-444444444444",
			Name:                  "River Bistro",
			SubscriptionStatus:    models.SubscriptionActive,
			SubscriptionExpiresAt: &nextYear,
			MonthlyScanLimit:      1500,
			RewardType:            models.RewardTypeSlab,
			RewardParams: `{"slabs":[{"min":0,"max":100,"points":5},` +
				`{"min":101,"max":500,"points":20},{"min":501,"max":1000,"points":50}]}`,
			DailyOffers: `[{"id":"dessert","title":"Free dessert","min_spend":30,"terms":"With a main course"}]`,
		},
	}

	for i := range sellers {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			UpdateAll: true,
		}).Create(&sellers[i]).Error
		if err != nil {
			log.Fatalf("Failed to seed seller %s: %v", sellers[i].Name, err)
		}
		log.Printf("Seeded seller %s (%s)", sellers[i].Name, sellers[i].RewardType)
	}

	tokens := []models.EarnToken{
		{Token: "demo-earn-token-anna", UserID: uuid.NewSHA1(uuid.NameSpaceOID, []byte("anna")).String()},
		{Token: "demo-earn-token-bjorn", UserID: uuid.NewSHA1(uuid.NameSpaceOID, []byte("bjorn")).String()},
	}
	for i := range tokens {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "token"}},
			DoNothing: true,
		}).Create(&tokens[i]).Error
		if err != nil {
			log.Fatalf("Failed to seed earn token %s: %v", tokens[i].Token, err)
		}
		log.Printf("Seeded earn token %s for user %s", tokens[i].Token, tokens[i].UserID)
	}

	log.Println("Seed complete")
}
