// ABOUTME: MCP server subcommand
// ABOUTME: Exposes deal tools, board resources and prompts to MCP clients over stdio
package cli

import (
	"github.com/harperreed/dealboard/handlers"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
)

func newMCPCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP server on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := app.services(cmd.Context())
			if err != nil {
				return err
			}
			app.logger.Info("starting MCP server")
			return NewMCPServer(svc, cmd.Root().Version).Run(cmd.Context(), &mcp.StdioTransport{})
		},
	}
}

// NewMCPServer registers every tool, resource and prompt against svc.
func NewMCPServer(svc *Services, version string) *mcp.Server {
	dealHandlers := handlers.NewDealHandlers(svc.Store, svc.Registry, svc.Exporter, svc.Location, svc.Logger.Named("mcp"))
	vizHandlers := handlers.NewVizHandlers(svc.Store, svc.Registry, svc.Location)
	resourceHandlers := handlers.NewResourceHandlers(svc.Store, svc.Registry)
	promptHandlers := handlers.NewPromptHandlers(svc.Store, svc.Registry, svc.Location)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "dealboard",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_deals",
		Description: "List deals on the board, optionally filtered by phase (key or label) and client name",
	}, dealHandlers.ListDeals)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_deal",
		Description: "Get one deal by ID",
	}, dealHandlers.GetDeal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "create_deal",
		Description: "Create a deal with a title, priority (high/medium/low or 高/中/低) and due date (YYYY-MM-DD)",
	}, dealHandlers.CreateDeal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "move_deal",
		Description: "Move a deal to another phase; reaching the final phase exports it to the ledger",
	}, dealHandlers.MoveDeal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "delete_deal",
		Description: "Delete a deal",
	}, dealHandlers.DeleteDeal)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "due_deals",
		Description: "List open deals that are overdue or due within the given number of days",
	}, dealHandlers.DueDeals)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "board_stats",
		Description: "Summarize the board: counts per phase, overdue and due-soon deals, LINE connections",
	}, vizHandlers.BoardStats)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "pipeline_graph",
		Description: "Render the phase pipeline as Graphviz DOT or SVG",
	}, vizHandlers.PipelineGraph)

	server.AddResource(&mcp.Resource{
		URI:         "dealboard://deals",
		Name:        "deals",
		Description: "All deals on the board",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResource(&mcp.Resource{
		URI:         "dealboard://pipeline",
		Name:        "pipeline",
		Description: "Deal counts per phase in workflow order",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	server.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: "dealboard://deals/{id}",
		Name:        "deal",
		Description: "One deal with the details for its current phase",
		MIMEType:    "application/json",
	}, resourceHandlers.ReadResource)

	for _, prompt := range promptHandlers.Prompts() {
		server.AddPrompt(prompt, promptHandlers.GetPrompt)
	}

	return server
}
