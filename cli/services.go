// ABOUTME: Wires configuration into the deal store, templates and integration clients
// ABOUTME: Integrations without credentials are built anyway and report not-configured on use
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/harperreed/dealboard/config"
	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/ledger"
	"github.com/harperreed/dealboard/line"
	"github.com/harperreed/dealboard/models"
	"github.com/harperreed/dealboard/notify"
	"github.com/harperreed/dealboard/reminders"
	"github.com/harperreed/dealboard/sheets"
	"github.com/harperreed/dealboard/slack"
	"github.com/harperreed/dealboard/templates"
	"github.com/harperreed/dealboard/vision"
	"github.com/harperreed/dealboard/web"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const clientTimeout = 15 * time.Second

type Services struct {
	Config   *config.Config
	Logger   *zap.Logger
	Location *time.Location

	DB         *sqlx.DB
	Store      *db.Store
	Registry   *models.Registry
	Templates  *templates.Store
	Templater  *templates.Templater
	Line       *line.Client
	Dispatcher *notify.Dispatcher
	Ledger     *ledger.Client
	Exporter   *ledger.Exporter
	Slack      *slack.Client
	Scheduler  *reminders.Scheduler
	Analyzer   vision.Analyzer
	Sheets     *sheets.GoogleSyncer

	redis *redis.Client
}

func OpenServices(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Services, error) {
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	database, err := db.OpenDatabase(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s := &Services{
		Config:   cfg,
		Logger:   logger,
		Location: loc,
		DB:       database,
		Store:    db.NewStore(database, logger.Named("db")),
		Registry: models.DefaultRegistry(),
	}

	s.Templates, err = templates.Open(cfg.Templates.Dir, logger.Named("templates"))
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Templater = templates.NewTemplater(s.Templates, s.Registry)

	pending, err := s.pendingStore(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.Line = line.NewClient(line.Config{
		AccessToken: cfg.Line.ChannelAccessToken,
		APIBase:     cfg.Line.APIBase,
		Timeout:     clientTimeout,
	}, logger.Named("line"))
	s.Dispatcher = notify.NewDispatcher(s.Store, s.Line, s.Templater, s.Registry, pending,
		notify.Options{PendingTTL: cfg.Line.PendingTTL}, logger.Named("notify"))

	s.Ledger = ledger.NewClient(ledger.Config{BaseURL: cfg.Ledger.BaseURL, Timeout: clientTimeout}, logger.Named("ledger"))
	s.Exporter = ledger.NewExporter(s.Ledger, s.Registry, cfg.Ledger.Delay, logger.Named("ledger"))

	s.Slack = slack.NewClient(slack.Config{
		BotToken:  cfg.Slack.BotToken,
		ChannelID: cfg.Slack.ChannelID,
		APIBase:   cfg.Slack.APIBase,
		Timeout:   clientTimeout,
	}, logger.Named("slack"))
	s.Scheduler, err = reminders.New(s.Store, s.Slack, s.Registry, reminders.Options{
		Times:      cfg.Reminders.Times,
		DaysAhead:  cfg.Reminders.DaysAhead,
		Delay:      cfg.Reminders.Delay,
		RunOnStart: cfg.Reminders.RunOnStart,
		Location:   loc,
	}, logger.Named("reminders"))
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("invalid reminder configuration: %w", err)
	}

	if cfg.Gemini.APIKey != "" {
		analyzer, err := vision.NewGeminiAnalyzer(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Analyzer = analyzer
	}

	s.Sheets, err = sheets.NewGoogleSyncer(ctx, cfg.Sheets.CredentialsFile, cfg.Sheets.SpreadsheetID, cfg.Sheets.SheetName, s.Registry)
	if err != nil && !errors.Is(err, sheets.ErrNotConfigured) {
		s.Close()
		return nil, err
	}

	return s, nil
}

// pendingStore keeps LINE candidate selections in Redis when configured so
// they survive restarts and are shared between instances.
func (s *Services) pendingStore(ctx context.Context) (notify.PendingStore, error) {
	if s.Config.Redis.Addr == "" {
		return notify.NewMemoryPending(), nil
	}
	s.redis = redis.NewClient(&redis.Options{
		Addr:     s.Config.Redis.Addr,
		Password: s.Config.Redis.Password,
		DB:       s.Config.Redis.DB,
	})
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to reach redis at %s: %w", s.Config.Redis.Addr, err)
	}
	return notify.NewRedisPending(s.redis), nil
}

// WebDeps assembles the HTTP API's dependencies.
func (s *Services) WebDeps() web.Deps {
	deps := web.Deps{
		Store:             s.Store,
		Registry:          s.Registry,
		Templates:         s.Templates,
		Templater:         s.Templater,
		Dispatcher:        s.Dispatcher,
		Exporter:          s.Exporter,
		Scheduler:         s.Scheduler,
		Analyzer:          s.Analyzer,
		LineChannelSecret: s.Config.Line.ChannelSecret,
		LineBotID:         s.Config.Line.BotID,
		Location:          s.Location,
		Logger:            s.Logger.Named("web"),
	}
	if s.Sheets != nil {
		deps.Sheets = s.Sheets
	}
	return deps
}

func (s *Services) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if s.Templates != nil {
		if err := s.Templates.Close(); err != nil {
			s.Logger.Warn("failed to close template store", zap.Error(err))
		}
	}
	if s.DB != nil {
		_ = s.DB.Close()
	}
}
