// ABOUTME: Board visualization CLI commands
// ABOUTME: Prints the stats dashboard and renders the phase pipeline graph
package cli

import (
	"fmt"
	"os"

	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/models"
	"github.com/harperreed/dealboard/viz"
	"github.com/spf13/cobra"
)

func newBoardCommand(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "board",
		Short: "Board statistics and pipeline graph",
	}
	cmd.AddCommand(newBoardStatsCommand(app), newBoardGraphCommand(app))
	return cmd
}

func boardStats(cmd *cobra.Command, svc *Services) (*viz.BoardStatistics, error) {
	deals, err := svc.Store.ListDeals(cmd.Context(), db.ListFilter{})
	if err != nil {
		return nil, fmt.Errorf("failed to list deals: %w", err)
	}
	return viz.BoardStats(deals, svc.Registry, models.Today(svc.Location)), nil
}

func newBoardStatsCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the board dashboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.services(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := boardStats(cmd, svc)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), viz.RenderDashboard(stats))
			return nil
		},
	}
}

func newBoardGraphCommand(app *App) *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Render the phase pipeline as DOT or SVG",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.services(cmd.Context())
			if err != nil {
				return err
			}
			stats, err := boardStats(cmd, svc)
			if err != nil {
				return err
			}
			data, err := viz.PipelineGraph(cmd.Context(), stats, svc.Registry, format)
			if err != nil {
				return err
			}

			if output != "" {
				return os.WriteFile(output, data, 0644)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "dot", "Output format: dot or svg")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default: stdout)")
	return cmd
}
