package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"flowconsole/backend/internal/config"
	"flowconsole/backend/internal/logging"
	"flowconsole/backend/internal/repository"
	"flowconsole/backend/pkg/models"
)

var (
	configPath string
	customerID string
)

func main() {
	root := &cobra.Command{
		Use:   "seed",
		Short: "Create the database schema and seed demo workflows",
		RunE:  runSeed,
	}
	root.Flags().StringVar(&configPath, "config", "", "Path to config directory")
	root.Flags().StringVar(&customerID, "customer", "dev@localhost", "Customer id to own the seeded workflows")

	if err := root.Execute(); err != nil {
		log.Fatal(err)
	}
}

func runSeed(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	logger := logging.NewLogger()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.DB.Host, cfg.DB.Port, cfg.DB.User, cfg.DB.Password, cfg.DB.Name, cfg.DB.SSLMode,
	)
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, repository.SchemaDDL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	logger.Info("Schema applied")

	store := repository.NewPostgresRepository(pool)

	// Skip workflows that already exist to keep the command re-runnable.
	existing, err := store.ListWorkflows(ctx, customerID, "")
	if err != nil {
		return fmt.Errorf("failed to list existing workflows: %w", err)
	}
	existingMap := make(map[string]bool)
	for _, w := range existing {
		existingMap[w.Name] = true
	}

	for _, wf := range seedWorkflows(customerID) {
		if existingMap[wf.Name] {
			logger.Info("Skipping existing workflow %q", wf.Name)
			continue
		}
		if err := store.CreateWorkflow(ctx, wf); err != nil {
			logger.Error("Failed to create workflow %q: %v", wf.Name, err)
			continue
		}
		logger.Info("Seeded workflow %q (%s)", wf.Name, wf.ID)
	}

	logger.Info("Seeding complete!")
	return nil
}

func seedWorkflows(customerID string) []*models.Workflow {
	now := time.Now().UTC()

	httpCheck := &models.Workflow{
		ID:          uuid.New().String(),
		CustomerID:  customerID,
		Name:        "Status Page Check",
		Description: "Fetches the status page and gates on the reported health.",
		Status:      models.WorkflowStatusActive,
		Version:     1,
		Nodes: []models.WorkflowNode{
			{
				ID:       uuid.New().String(),
				Name:     "Start",
				Type:     models.NodeCategoryTrigger,
				NodeType: models.NodeTypeManual,
				Ready:    true,
			},
			{
				ID:       uuid.New().String(),
				Name:     "Fetch Status",
				Type:     models.NodeCategoryAction,
				NodeType: models.NodeTypeHTTP,
				Config:   mustJSON(map[string]any{"method": "GET", "url": "https://status.example.com/health"}),
				Ready:    true,
			},
			{
				ID:       uuid.New().String(),
				Name:     "Healthy Gate",
				Type:     models.NodeCategoryAction,
				NodeType: models.NodeTypeGate,
				Config:   mustJSON(map[string]any{"field": "body.status", "operator": "equals", "value": "ok"}),
				Ready:    true,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	summarizer := &models.Workflow{
		ID:          uuid.New().String(),
		CustomerID:  customerID,
		Name:        "Event Summarizer",
		Description: "Summarizes inbound connector events with an AI step.",
		Status:      models.WorkflowStatusInactive,
		Version:     1,
		Nodes: []models.WorkflowNode{
			{
				ID:          uuid.New().String(),
				Name:        "On Event",
				Type:        models.NodeCategoryTrigger,
				NodeType:    models.NodeTypeEvent,
				TriggerType: "connector",
				Config:      mustJSON(map[string]any{"source": "connector", "eventName": "record.created"}),
				Ready:       true,
			},
			{
				ID:       uuid.New().String(),
				Name:     "Summarize",
				Type:     models.NodeCategoryAction,
				NodeType: models.NodeTypeAI,
				Config: mustJSON(map[string]any{
					"prompt":           "Summarize this event: {{trigger.payload}}",
					"structuredOutput": false,
				}),
				Ready: true,
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	return []*models.Workflow{httpCheck, summarizer}
}

func mustJSON(v any) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return data
}
