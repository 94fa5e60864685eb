// ABOUTME: Root cobra command and shared CLI state
// ABOUTME: Loads configuration and the logger once, then hands services to subcommands
package cli

import (
	"context"
	"fmt"

	"github.com/harperreed/dealboard/config"
	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// App is the state shared by every subcommand.
type App struct {
	configPath string
	dbPath     string
	logLevel   string

	cfg    *config.Config
	logger *zap.Logger
	svc    *Services
}

// Execute runs the CLI with args and releases everything it opened.
func Execute(ctx context.Context, version string, args []string) error {
	app := &App{}
	root := NewRootCommand(app, version)
	root.SetArgs(args)
	defer app.Close()
	return root.ExecuteContext(ctx)
}

func NewRootCommand(app *App, version string) *cobra.Command {
	root := &cobra.Command{
		Use:           "dealboard",
		Short:         "Leasing deal board with LINE, Slack and ledger integrations",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return app.init()
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.configPath, "config", "", "Config file (default: "+config.DefaultPath()+")")
	flags.StringVar(&app.dbPath, "db-path", "", "SQLite database path (overrides config)")
	flags.StringVar(&app.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	root.AddCommand(
		newServeCommand(app),
		newMCPCommand(app),
		newDealsCommand(app),
		newRemindCommand(app),
		newLedgerCommand(app),
		newTemplatesCommand(app),
		newBoardCommand(app),
		newExportCommand(app),
	)
	return root
}

func (a *App) init() error {
	if a.cfg != nil {
		return nil
	}

	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if a.dbPath != "" {
		cfg.Database.Driver = db.DriverSQLite
		cfg.Database.DSN = a.dbPath
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, "dealboard")
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}

	a.cfg = cfg
	a.logger = logger
	return nil
}

// services opens the backing services on first use.
func (a *App) services(ctx context.Context) (*Services, error) {
	if a.svc != nil {
		return a.svc, nil
	}
	svc, err := OpenServices(ctx, a.cfg, a.logger)
	if err != nil {
		return nil, err
	}
	a.svc = svc
	return svc, nil
}

// Close releases services and flushes the logger.
func (a *App) Close() {
	if a.svc != nil {
		a.svc.Close()
		a.svc = nil
	}
	if a.logger != nil {
		_ = a.logger.Sync()
	}
}
