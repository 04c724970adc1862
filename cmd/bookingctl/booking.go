package main

import (
	"encoding/json"
	"fmt"

	"github.com/dreamscape/service-voyage/internal/application"
	"github.com/dreamscape/service-voyage/internal/repository"
	"github.com/dreamscape/service-voyage/pkg/auth"
	"github.com/dreamscape/service-voyage/pkg/database"
	"github.com/spf13/cobra"
)

func bookingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "booking",
		Short: "Inspect bookings",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show [reference]",
		Short: "Print a booking by reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadEnv()
			if err != nil {
				return err
			}
			defer func() { _ = log.Sync() }()

			db, err := database.Connect(cfg.DBConfig, log)
			if err != nil {
				return err
			}
			if sqlDB, err := db.DB(); err == nil {
				defer func() { _ = sqlDB.Close() }()
			}

			// Read-only: the service never publishes on this path.
			service := application.NewBookingService(repository.NewGormBookingRepository(db), nil, log)
			dto, err := service.GetBooking(cmd.Context(), args[0], "", auth.RoleAdmin)
			if err != nil {
				return fmt.Errorf("booking %s: %w", args[0], err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(dto)
		},
	})

	return cmd
}
