package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ehr/medrecord/internal/domain/analytics"
)

// withApp opens storage, wires the components and runs fn.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := context.Background()
	b, err := openBackend(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.close()

	a, err := newApp(cfg, b, logger)
	if err != nil {
		return err
	}
	return fn(ctx, a)
}

func splitIDs(s string) []string {
	var ids []string
	for _, id := range strings.Split(s, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func exportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export records to a file under EXPORT_DIR",
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, _ := cmd.Flags().GetString("ids")
			format, _ := cmd.Flags().GetString("format")
			attachments, _ := cmd.Flags().GetBool("attachments")

			ids := splitIDs(raw)
			if len(ids) == 0 {
				return fmt.Errorf("--ids is required")
			}
			return withApp(func(ctx context.Context, a *app) error {
				path, err := a.query.Export(ctx, ids, format, attachments)
				if err != nil {
					return err
				}
				fmt.Printf("Exported %d record(s) to %s\n", len(ids), path)
				return nil
			})
		},
	}
	cmd.Flags().String("ids", "", "Comma separated record ids")
	cmd.Flags().String("format", "json", "Export format: json, excel or archive")
	cmd.Flags().Bool("attachments", false, "Bundle attachment files (implies archive for excel)")
	return cmd
}

func reportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Write a summary analysis report under REPORT_DIR",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")

			return withApp(func(ctx context.Context, a *app) error {
				path, err := a.analytics.SummaryReport(ctx, analytics.Window{Start: start, End: end})
				if err != nil {
					return err
				}
				fmt.Printf("Report written to %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().String("start", "", "First visit date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "Last visit date (YYYY-MM-DD)")
	return cmd
}
