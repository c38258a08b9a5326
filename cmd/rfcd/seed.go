package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/c21501/rfc-service/internal/logging"
	"github.com/c21501/rfc-service/internal/repository"
	"github.com/c21501/rfc-service/pkg/models"
)

func seedCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the schema and demo data for local development",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context())
		},
	}
}

func runSeed(ctx context.Context) error {
	logger := logging.NewLogger()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	pool, err := connectDatabase(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		return err
	}
	logger.Info("Schema ensured")

	store := repository.NewPostgresStore(pool)

	users := []*models.User{
		{Username: "dev", Email: "dev@localhost", FirstName: "Dev", LastName: "Admin", Role: models.RoleAdmin},
		{Username: "requester", Email: "requester@localhost", FirstName: "Roman", LastName: "Petrov", Role: models.RoleRequester},
		{Username: "executor", Email: "executor@localhost", FirstName: "Elena", LastName: "Ivanova", Role: models.RoleExecutor},
		{Username: "approver", Email: "approver@localhost", FirstName: "Anna", LastName: "Sidorova", Role: models.RoleApprover},
		{Username: "cab", Email: "cab@localhost", FirstName: "Maxim", LastName: "Volkov", Role: models.RoleCabManager},
	}
	byUsername := map[string]*models.User{}
	for _, u := range users {
		existing, err := store.FindUserByUsername(ctx, u.Username)
		if err == nil {
			byUsername[u.Username] = existing
			continue
		}
		if err := store.CreateUser(ctx, u); err != nil {
			return err
		}
		byUsername[u.Username] = u
		logger.Info("User created", "username", u.Username, "role", u.Role)
	}

	subsystems := []*models.Subsystem{
		{Name: "Billing", SystemName: "ERP"},
		{Name: "Gateway", SystemName: "Payments"},
	}
	for _, sub := range subsystems {
		if err := store.CreateSubsystem(ctx, sub); err != nil {
			return err
		}
	}
	logger.Info("Subsystems created", "count", len(subsystems))

	requester := byUsername["requester"]
	executor := byUsername["executor"]

	rfc := &models.Rfc{
		Title:              "Demo: migrate billing database " + uuid.NewString()[:8],
		Description:        "Seeded change request for local development.",
		ImplementationDate: time.Now().AddDate(0, 0, 14),
		Urgency:            models.UrgencyPlanned,
		Status:             models.StatusNew,
		RequesterID:        requester.ID,
	}
	var links []*models.AffectedSubsystem
	for _, sub := range subsystems {
		links = append(links, &models.AffectedSubsystem{
			SubsystemID:        sub.ID,
			ExecutorID:         executor.ID,
			ConfirmationStatus: models.ConfirmationPending,
			ExecutionStatus:    models.ExecutionPending,
		})
	}

	snap := &models.RfcSnapshot{
		Operation:          models.OpCreate,
		ChangedByID:        &requester.ID,
		Title:              rfc.Title,
		Description:        rfc.Description,
		ImplementationDate: rfc.ImplementationDate,
		Urgency:            rfc.Urgency,
		Status:             rfc.Status,
	}
	if err := store.CreateRfcWithLinks(ctx, rfc, links, snap); err != nil {
		return err
	}

	logger.Info("Demo RFC created", "rfc_id", rfc.ID, "subsystems", len(links))
	return nil
}
