// ABOUTME: Deal CLI commands
// ABOUTME: Human-friendly commands for listing, adding, moving and deleting deals
package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"unicode/utf8"

	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/models"
	"github.com/harperreed/dealboard/notify"
	"github.com/spf13/cobra"
)

const minTitleRunes = 3

func newDealsCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deals",
		Short: "Manage deals on the board",
	}
	cmd.AddCommand(
		newDealsListCommand(app),
		newDealsAddCommand(app),
		newDealsMoveCommand(app),
		newDealsDeleteCommand(app),
	)
	return cmd
}

func parseDealID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid deal ID: %q", s)
	}
	return id, nil
}

func newDealsListCommand(app *App) *cobra.Command {
	var phase, client string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.services(cmd.Context())
			if err != nil {
				return err
			}

			filter := db.ListFilter{}
			if phase != "" {
				p, err := svc.Registry.Parse(phase)
				if err != nil {
					return err
				}
				filter.Phase = p
			}
			deals, err := svc.Store.ListDeals(cmd.Context(), filter)
			if err != nil {
				return fmt.Errorf("failed to list deals: %w", err)
			}

			out := cmd.OutOrStdout()
			var shown []models.Deal
			for _, d := range deals {
				if client != "" && !strings.Contains(d.Client, client) {
					continue
				}
				shown = append(shown, d)
			}
			if len(shown) == 0 {
				fmt.Fprintln(out, mutedStyle.Render("No deals found"))
				return nil
			}

			today := models.Today(svc.Location)
			w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tTITLE\tCLIENT\tPRIORITY\tPHASE\tLINE\tDUE")
			for _, d := range shown {
				lineState := "-"
				if d.IsBound() {
					lineState = string(d.LineConnectionMethod)
				}
				due := "-"
				if !d.DueDate.IsZero() {
					due = d.DueDate.String()
					if !svc.Registry.IsTerminal(d.Phase) {
						due = dueStyle(today.DaysUntil(d.DueDate)).Render(due)
					}
				}
				_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					d.ID, d.Title, orDash(d.Client), d.Priority.Label(),
					svc.Registry.Label(d.Phase), lineState, due)
			}
			_ = w.Flush()

			fmt.Fprintf(out, "\nTotal: %d deal(s)\n", len(shown))
			return nil
		},
	}

	cmd.Flags().StringVar(&phase, "phase", "", "Filter by phase key or label")
	cmd.Flags().StringVar(&client, "client", "", "Filter by client name")
	return cmd
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func newDealsAddCommand(app *App) *cobra.Command {
	var title, client, priority, due, phase, notes string

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a deal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.services(cmd.Context())
			if err != nil {
				return err
			}

			title = strings.TrimSpace(title)
			if utf8.RuneCountInString(title) < minTitleRunes {
				return fmt.Errorf("--title must be at least %d characters", minTitleRunes)
			}
			pr, err := models.ParsePriority(priority)
			if err != nil {
				return err
			}
			if due == "" {
				return errors.New("--due is required (YYYY-MM-DD)")
			}
			dueDate, err := models.ParseDate(due)
			if err != nil {
				return err
			}
			p := svc.Registry.First()
			if phase != "" {
				if p, err = svc.Registry.Parse(phase); err != nil {
					return err
				}
			}

			deal := &models.Deal{
				Title:    title,
				Client:   strings.TrimSpace(client),
				Priority: pr,
				Phase:    p,
				DueDate:  dueDate,
				Notes:    notes,
			}
			if err := svc.Store.CreateDeal(cmd.Context(), deal); err != nil {
				return fmt.Errorf("failed to create deal: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("✓ Deal created: %s (ID: %d)", deal.Title, deal.ID)))
			fmt.Fprintf(out, "  Phase: %s\n", svc.Registry.Label(deal.Phase))
			fmt.Fprintf(out, "  Due: %s\n", deal.DueDate)
			return nil
		},
	}

	cmd.Flags().StringVar(&title, "title", "", "Property or deal title (required)")
	cmd.Flags().StringVar(&client, "client", "", "Customer name")
	cmd.Flags().StringVar(&priority, "priority", "medium", "Priority: high, medium, low or 高, 中, 低")
	cmd.Flags().StringVar(&due, "due", "", "Due date YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&phase, "phase", "", "Starting phase key or label (default: first phase)")
	cmd.Flags().StringVar(&notes, "notes", "", "Notes")
	return cmd
}

func newDealsMoveCommand(app *App) *cobra.Command {
	var notifyCustomer bool

	cmd := &cobra.Command{
		Use:   "move <id> <phase>",
		Short: "Move a deal to another phase, exporting finished deals",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			svc, err := app.services(ctx)
			if err != nil {
				return err
			}
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			phase, err := svc.Registry.Parse(args[1])
			if err != nil {
				return err
			}

			before, err := svc.Store.GetDeal(ctx, id)
			if err != nil {
				return fmt.Errorf("failed to load deal: %w", err)
			}
			if before == nil {
				return fmt.Errorf("deal %d not found", id)
			}
			deal, err := svc.Store.UpdateDeal(ctx, id, &models.DealPatch{Phase: &phase})
			if err != nil {
				return fmt.Errorf("failed to move deal: %w", err)
			}
			if deal == nil {
				return fmt.Errorf("deal %d not found", id)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✓ %s: %s → %s\n", deal.Title,
				svc.Registry.Label(before.Phase),
				phaseStyle(svc.Registry, deal.Phase).Render(svc.Registry.Label(deal.Phase)))
			if before.Phase == deal.Phase {
				return nil
			}

			if notifyCustomer {
				err := svc.Dispatcher.NotifyPhaseChange(ctx, deal, deal.Phase)
				switch {
				case err == nil:
					fmt.Fprintln(out, "  Customer notified on LINE")
				case errors.Is(err, notify.ErrNoRecipient):
					fmt.Fprintln(out, warnStyle.Render("  Warning: deal has no LINE account; nothing sent"))
				case errors.Is(err, notify.ErrNoTemplate):
					fmt.Fprintln(out, warnStyle.Render("  Warning: no template for this phase; nothing sent"))
				default:
					fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("  Warning: LINE notification failed: %v", err)))
				}
			}

			if svc.Registry.IsTerminal(deal.Phase) {
				ledgerID, err := svc.Exporter.ExportAndRecord(ctx, svc.Store, deal)
				if err != nil {
					fmt.Fprintln(out, warnStyle.Render(fmt.Sprintf("  Warning: ledger export failed: %v", err)))
				} else {
					fmt.Fprintf(out, "  Exported to ledger: %s\n", ledgerID)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&notifyCustomer, "notify", false, "Send the phase template to the customer on LINE")
	return cmd
}

func newDealsDeleteCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a deal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := app.services(cmd.Context())
			if err != nil {
				return err
			}
			id, err := parseDealID(args[0])
			if err != nil {
				return err
			}
			removed, err := svc.Store.DeleteDeal(cmd.Context(), id)
			if err != nil {
				return fmt.Errorf("failed to delete deal: %w", err)
			}
			if !removed {
				return fmt.Errorf("deal %d not found", id)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Deleted deal: %d\n", id)
			return nil
		},
	}
}
