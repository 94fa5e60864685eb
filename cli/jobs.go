// ABOUTME: One-shot job commands: due-date reminders, ledger export and spreadsheet export
// ABOUTME: Each runs the same operation the HTTP API exposes and prints a summary
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/reminders"
	"github.com/harperreed/dealboard/sheets"
	"github.com/spf13/cobra"
)

func newRemindCommand(app *App) *cobra.Command {
	var manual bool

	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Post due-date reminders to Slack now",
		Long: `Runs one reminder check. By default it behaves like a scheduled check:
deals due exactly the configured number of days ahead, once per day.
With --manual it alerts on every open deal due within three days.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.services(cmd.Context())
			if err != nil {
				return err
			}

			var report reminders.Report
			if manual {
				report, err = svc.Scheduler.TriggerManual(cmd.Context())
			} else {
				report, err = svc.Scheduler.CheckDue(cmd.Context())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(report.Deals) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No deals need a reminder"))
				return nil
			}
			fmt.Fprintf(out, "Reminders sent: %d of %d\n", report.Sent, len(report.Deals))
			printErrors(out, report.Errors)
			return nil
		},
	}

	cmd.Flags().BoolVar(&manual, "manual", false, "Alert on every open deal due within three days")
	return cmd
}

func printErrors(out io.Writer, errs []string) {
	for _, e := range errs {
		fmt.Fprintln(out, errorStyle.Render("  ✗ "+e))
	}
}

func newLedgerCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Export deals to the ledger",
	}

	var id string
	export := &cobra.Command{
		Use:   "export",
		Short: "Export every finished deal, or one deal with --id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			svc, err := app.services(ctx)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if id != "" {
				dealID, err := parseDealID(id)
				if err != nil {
					return err
				}
				deal, err := svc.Store.GetDeal(ctx, dealID)
				if err != nil {
					return fmt.Errorf("failed to load deal: %w", err)
				}
				if deal == nil {
					return fmt.Errorf("deal %d not found", dealID)
				}
				ledgerID, err := svc.Exporter.ExportAndRecord(ctx, svc.Store, deal)
				if err != nil {
					return err
				}
				fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✓ Exported %s: %s", deal.Title, ledgerID)))
				return nil
			}

			deals, err := svc.Store.ListDeals(ctx, db.ListFilter{})
			if err != nil {
				return fmt.Errorf("failed to list deals: %w", err)
			}
			summary := svc.Exporter.ExportAllTerminal(ctx, deals)
			for dealID, ledgerID := range summary.LedgerIDs {
				if err := svc.Store.SetLedgerID(ctx, dealID, ledgerID); err != nil {
					summary.Errors = append(summary.Errors, fmt.Sprintf("案件 %d: %v", dealID, err))
				}
			}

			fmt.Fprintf(out, "Exported: %d, skipped: %d, failed: %d\n", summary.Sent, summary.Skipped, len(summary.Errors))
			printErrors(out, summary.Errors)
			return nil
		},
	}
	export.Flags().StringVar(&id, "id", "", "Export a single deal regardless of its phase")

	cmd.AddCommand(export)
	return cmd
}

func newExportCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export the board to a spreadsheet",
	}

	var output string
	xlsx := &cobra.Command{
		Use:   "xlsx",
		Short: "Write the board as an Excel workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.services(cmd.Context())
			if err != nil {
				return err
			}
			deals, err := svc.Store.ListDeals(cmd.Context(), db.ListFilter{})
			if err != nil {
				return fmt.Errorf("failed to list deals: %w", err)
			}

			if output == "" || output == "-" {
				return sheets.WriteXLSX(cmd.OutOrStdout(), deals, svc.Registry)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := sheets.WriteXLSX(f, deals, svc.Registry); err != nil {
				_ = f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "✓ Wrote %d deal(s) to %s\n", len(deals), output)
			return nil
		},
	}
	xlsx.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")

	googleSheets := &cobra.Command{
		Use:   "sheets",
		Short: "Push the board to the configured Google spreadsheet",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.services(cmd.Context())
			if err != nil {
				return err
			}
			if svc.Sheets == nil {
				return errors.New("google sheets is not configured: set sheets.spreadsheet_id and sheets.credentials_file")
			}
			deals, err := svc.Store.ListDeals(cmd.Context(), db.ListFilter{})
			if err != nil {
				return fmt.Errorf("failed to list deals: %w", err)
			}
			rows, err := svc.Sheets.Push(cmd.Context(), deals)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), successStyle.Render(fmt.Sprintf("✓ Sync completed: %d row(s)", rows)))
			return nil
		},
	}

	cmd.AddCommand(xlsx, googleSheets)
	return cmd
}
