// Command seed populates the database with a demo sales pipeline: a default
// workflow config and five stages (new, contacted, qualified, won, rejected)
// with task templates. Safe to run repeatedly; existing documents are kept.
package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"lead-crm/backend/internal/config"
	"lead-crm/backend/internal/logging"
	"lead-crm/backend/internal/repository"
	"lead-crm/backend/internal/services"
	"lead-crm/backend/pkg/models"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := logging.NewLogger(logging.Options{Level: cfg.Log.Level, JSON: cfg.Log.JSON})

	pool, err := pgxpool.New(ctx, cfg.ConnString())
	if err != nil {
		log.Fatalf("Failed to connect to DB: %v", err)
	}
	defer pool.Close()

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		log.Fatalf("Failed to ensure schema: %v", err)
	}

	stageStore := repository.NewPostgresStageStore(pool)
	configStore := repository.NewPostgresConfigStore(pool)
	now := time.Now().UTC()

	// 1. Ensure the default workflow config exists.
	if _, err := configStore.Get(ctx, services.DefaultConfigUID); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			log.Fatalf("Failed to look up default config: %v", err)
		}
		logger.Info("Creating default workflow config")
		defaultConfig := &models.WorkItemConfig{
			UID:          services.DefaultConfigUID,
			WorkflowName: "Sales Pipeline",
			IsActive:     true,
			Variables: []models.FieldDefinition{
				{
					FieldKey:  "company",
					Label:     "Company",
					FieldType: models.FieldTypeString,
					InputType: models.InputText,
					Order:     1,
					IsActive:  true,
				},
				{
					FieldKey:  "deal_size",
					Label:     "Deal size (USD)",
					FieldType: models.FieldTypeInteger,
					InputType: models.InputNumber,
					ValidationRules: map[string]any{
						"min": 0,
					},
					Order:    2,
					IsActive: true,
				},
				{
					FieldKey:  "source",
					Label:     "Lead source",
					FieldType: models.FieldTypeEnum,
					InputType: models.InputDropdown,
					Options:   []string{"website", "referral", "outbound", "event"},
					Order:     3,
					IsActive:  true,
				},
			},
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := configStore.Insert(ctx, defaultConfig); err != nil {
			log.Fatalf("Failed to create default config: %v", err)
		}
	} else {
		logger.Info("Default workflow config already present")
	}

	// 2. Seed the demo pipeline. The graph:
	//   new -> contacted -> qualified -> {won, rejected}
	//   rejected -> new (re-engage)
	stages := []*models.WorkStage{
		{
			UID:               "new",
			Name:              "New",
			Slug:              "new",
			Color:             "#3B82F6",
			Description:       "Fresh leads awaiting first contact",
			Order:             1,
			AllowedNextStages: []string{"contacted", "rejected"},
		},
		{
			UID:               "contacted",
			Name:              "Contacted",
			Slug:              "contacted",
			Color:             "#F59E0B",
			Description:       "First touch made, qualification pending",
			Order:             2,
			AllowedNextStages: []string{"qualified", "rejected"},
			StageTasks: []models.WorkStageTask{
				{
					UID:      "contacted-log-call",
					Name:     "Log first call",
					Required: true,
					Order:    1,
					IsActive: true,
					TaskVariables: []models.FieldDefinition{
						{
							FieldKey:  "call_date",
							Label:     "Call date",
							FieldType: models.FieldTypeDate,
							InputType: models.InputDatePicker,
							Required:  true,
							IsActive:  true,
						},
						{
							FieldKey:  "interested",
							Label:     "Showed interest",
							FieldType: models.FieldTypeBoolean,
							InputType: models.InputCheckbox,
							IsActive:  true,
						},
					},
				},
			},
		},
		{
			UID:               "qualified",
			Name:              "Qualified",
			Slug:              "qualified",
			Color:             "#8B5CF6",
			Description:       "Budget and fit confirmed",
			Order:             3,
			AllowedNextStages: []string{"won", "rejected"},
			StageTasks: []models.WorkStageTask{
				{
					UID:      "qualified-send-proposal",
					Name:     "Send proposal",
					Required: true,
					Order:    1,
					IsActive: true,
					TaskVariables: []models.FieldDefinition{
						{
							FieldKey:  "proposal_amount",
							Label:     "Proposal amount",
							FieldType: models.FieldTypeDecimal,
							InputType: models.InputNumber,
							Required:  true,
							ValidationRules: map[string]any{
								"min": 0,
							},
							IsActive: true,
						},
					},
				},
				{
					UID:      "qualified-schedule-demo",
					Name:     "Schedule demo",
					Order:    2,
					IsActive: true,
				},
			},
		},
		{
			UID:         "won",
			Name:        "Won",
			Slug:        "won",
			Color:       "#10B981",
			Description: "Deal closed",
			Order:       4,
		},
		{
			UID:               "rejected",
			Name:              "Rejected",
			Slug:              "rejected",
			Color:             "#EF4444",
			Description:       "Lost or disqualified",
			Order:             5,
			AllowedNextStages: []string{"new"},
		},
	}

	existing, err := stageStore.List(ctx, services.DefaultConfigUID)
	if err != nil {
		log.Fatalf("Failed to list existing stages: %v", err)
	}
	existingUIDs := make(map[string]bool, len(existing))
	for _, s := range existing {
		existingUIDs[s.UID] = true
	}

	for _, stage := range stages {
		if existingUIDs[stage.UID] {
			logger.Info("Skipping existing stage", "uid", stage.UID)
			continue
		}
		stage.Config = services.DefaultConfigUID
		stage.IsActive = true
		stage.CreatedAt = now
		stage.UpdatedAt = now
		if err := stage.Validate(); err != nil {
			log.Fatalf("Stage %s failed validation: %v", stage.UID, err)
		}
		if err := stageStore.Insert(ctx, stage); err != nil {
			log.Printf("Failed to create stage %s: %v", stage.UID, err)
		} else {
			logger.Info("Seeded stage", "uid", stage.UID, "name", stage.Name)
		}
	}

	logger.Info("Seeding complete")
}
