package main

import (
	"context"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/medigrid/backend/internal/adapters/database"
	"github.com/medigrid/backend/internal/application/services"
	"github.com/medigrid/backend/internal/domain/entities"
	"github.com/medigrid/backend/internal/infrastructure/clients/sqldb"
	"github.com/medigrid/backend/pkg/config"
)

// demoPrescriptions are saved in order, one save event each, so the history
// view shows several groups.
var demoPrescriptions = []*entities.CompositePayload{
	{
		PatientInfo: map[string]interface{}{"patient_name": "Adaeze Okafor", "Age": "34"},
		Medications: []map[string]interface{}{
			{"medications": "Amoxicillin 500mg", "Dosage": "1 capsule", "Frequency": "three times daily", "Duration": "7 days"},
			{"medications": "Paracetamol 500mg", "Dosage": "2 tablets", "Frequency": "every 6 hours as needed", "Duration": "5 days"},
		},
	},
	{
		PatientInfo: map[string]interface{}{"Name": "Ibrahim Musa"},
		Medications: []map[string]interface{}{
			{"medications": "Metformin 850mg", "Dosage": "1 tablet", "Frequency": "twice daily", "Duration": "30 days"},
			{"medications": "Lisinopril 10mg", "Dosage": "1 tablet", "Frequency": "once daily", "Duration": "30 days"},
			{"medications": "Atorvastatin 20mg", "Dosage": "1 tablet", "Frequency": "at night"},
		},
	},
	{
		Medications: []map[string]interface{}{
			{"medications": "Artemether/Lumefantrine", "Dosage": "4 tablets", "Frequency": "twice daily", "Duration": "3 days"},
		},
	},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()

	dbClient, err := sqldb.NewClient(ctx, &cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to DB")
	}
	defer dbClient.Close()

	prescriptionService := services.NewPrescriptionService(database.NewPrescriptionAdapter(dbClient, nil), nil, nil)
	if err := prescriptionService.EnsureSchema(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to create prescription table")
	}

	if os.Getenv("RESET_DB") == "true" {
		log.Info().Msg("RESET_DB=true detected, clearing prescriptions before seeding")
		if _, err := dbClient.DB().ExecContext(ctx, `DELETE FROM "`+database.PrescriptionTable+`"`); err != nil {
			log.Fatal().Err(err).Msg("Failed to reset prescriptions")
		}
	}

	for _, payload := range demoPrescriptions {
		outcome, err := prescriptionService.Save(ctx, payload)
		if err != nil {
			log.Error().Err(err).Str("patient", payload.PatientName()).Msg("Failed to seed prescription")
			continue
		}
		log.Info().Str("patient", payload.PatientName()).Int("rows", outcome.Count).Str("save_id", outcome.SaveID).Msg("Seeded prescription")
	}

	log.Info().Msg("Seeding completed")
}
