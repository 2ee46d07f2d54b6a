package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"hatchet/internal/core/config"
	"hatchet/internal/core/hats"
)

func newValidateConfigCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "validate-config",
		Short: "Parse and validate a run configuration without starting a run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return &exitCodeError{code: 1, err: err}
			}

			registry := hats.NewRegistry()
			for _, h := range cfg.Hats {
				if err := registry.Register(hats.Hat{
					ID:              h.ID,
					Triggers:        h.Triggers,
					Publishes:       h.Publishes,
					IsCoordinator:   h.IsCoordinator,
					MaxActivations:  h.MaxActivations,
					BackendOverride: h.BackendOverride,
				}); err != nil {
					return &exitCodeError{code: 1, err: err}
				}
			}

			fmt.Printf("config valid: %d hat(s), max_iterations=%d\n", len(cfg.Hats), cfg.Budgets.MaxIterations)
			return nil
		},
	}
}
