package cmd

import (
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadgen-pipeline/internal/lead"
)

type generateOutput struct {
	Success bool             `json:"success"`
	RunID   string           `json:"run_id,omitempty"`
	Count   *int             `json:"count,omitempty"`
	Data    []lead.Candidate `json:"data,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func newGenerateCmd() *cobra.Command {
	var (
		req          lead.Request
		limit        int
		requirePhone bool
	)
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the pipeline once and print the stored candidates as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			defer appInstance.Close()
			if cmd.Flags().Changed("limit") {
				req.Limit = &limit
			}
			if cmd.Flags().Changed("require-phone") {
				req.RequirePhone = &requirePhone
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			result, runErr := appInstance.RunPipeline(ctx, req)
			out := generateOutput{Success: runErr == nil}
			if runErr != nil {
				out.Error = runErr.Error()
			} else {
				count := result.Count
				out.RunID = result.RunID
				out.Count = &count
				out.Data = result.Data
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			if runErr != nil {
				return fmt.Errorf("generate: %w", runErr)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&req.City, "city", "", "city to search")
	cmd.Flags().StringVar(&req.Category, "category", "", "business category to search")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum candidates to store (default from config)")
	cmd.Flags().BoolVar(&requirePhone, "require-phone", false, "drop candidates without a dialable phone")
	return cmd
}
