package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/skillsmith/coursegen/config"
	core "github.com/skillsmith/coursegen/internal/agent/core"
	srv "github.com/skillsmith/coursegen/internal/server"
)

func generateCMD() *cobra.Command {
	var cfgPath string
	var employeeID string
	var focusSkill string
	var includeMedia bool
	var cmd = &cobra.Command{
		Use:   "generate",
		Short: "Run one course generation end to end",
		RunE: func(cmd *cobra.Command, args []string) error {
			if employeeID == "" {
				return fmt.Errorf("--employee is required")
			}
			cfg := config.LoadConfig(cfgPath)

			ctx := context.Background()
			deps, err := srv.BuildDeps(ctx, cfg)
			if err != nil {
				return err
			}
			defer deps.Telemetry.LogSummary()

			runID := uuid.NewString()
			if err := deps.Store.CreateGenerationRun(ctx, runID, employeeID); err != nil {
				return err
			}
			result, err := deps.Orchestrator.GenerateCourse(ctx, core.GenerationRequest{
				RunID:        runID,
				EmployeeID:   employeeID,
				FocusSkill:   focusSkill,
				IncludeMedia: includeMedia,
			})
			if err != nil {
				return err
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&employeeID, "employee", "", "employee ID to generate a course for")
	cmd.Flags().StringVar(&focusSkill, "skill", "", "optional skill to focus the course on")
	cmd.Flags().BoolVar(&includeMedia, "media", false, "narrate finished modules")
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return cmd
}
