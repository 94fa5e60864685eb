// ABOUTME: Schema migration utility for the deal database
// ABOUTME: Applies the schema, optionally backing up SQLite files and seeding sample deals

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/harperreed/dealboard/config"
	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/models"
	"go.uber.org/zap"

	_ "time/tzdata"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	driver := flag.String("driver", cfg.Database.Driver, "Database driver: sqlite3 or postgres")
	dsn := flag.String("dsn", cfg.Database.DSN, "SQLite path or PostgreSQL connection string")
	dryRun := flag.Bool("dry-run", false, "Show what would happen without making changes")
	backup := flag.Bool("backup", true, "Back up an existing SQLite file before migrating")
	seed := flag.Bool("seed", false, "Insert sample deals when the board is empty")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("Error: -dsn is required")
	}

	loc, err := cfg.Location()
	if err != nil {
		log.Fatalf("Invalid timezone: %v", err)
	}

	if err := migrate(context.Background(), *driver, *dsn, *dryRun, *backup, *seed, loc); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	log.Println("Migration completed successfully")
}

func migrate(ctx context.Context, driver, dsn string, dryRun, createBackup, seed bool, loc *time.Location) error {
	sqlite := driver == db.DriverSQLite || driver == ""

	if dryRun {
		log.Printf("[DRY RUN] Would perform the following actions:")
		if sqlite && createBackup {
			if _, err := os.Stat(dsn); err == nil {
				log.Printf("[DRY RUN] - Back up %s", dsn)
			}
		}
		log.Printf("[DRY RUN] - Create the deals table and indexes if missing (%s)", driver)
		if seed {
			log.Printf("[DRY RUN] - Insert %d sample deals if the board is empty", len(sampleDeals(models.Today(loc))))
		}
		return nil
	}

	if sqlite && createBackup {
		if err := backupFile(dsn); err != nil {
			return err
		}
	}

	database, err := db.OpenDatabase(driver, dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() { _ = database.Close() }()
	log.Printf("Schema applied")

	if !seed {
		return nil
	}

	store := db.NewStore(database, zap.NewNop())
	existing, err := store.ListDeals(ctx, db.ListFilter{})
	if err != nil {
		return fmt.Errorf("failed to count deals: %w", err)
	}
	if len(existing) > 0 {
		log.Printf("Board already has %d deal(s); skipping seed", len(existing))
		return nil
	}

	for _, d := range sampleDeals(models.Today(loc)) {
		deal := d
		if err := store.CreateDeal(ctx, &deal); err != nil {
			return fmt.Errorf("failed to seed %s: %w", deal.Title, err)
		}
		log.Printf("Seeded deal %d: %s", deal.ID, deal.Title)
	}
	return nil
}

func backupFile(path string) error {
	input, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read database: %w", err)
	}

	backupPath := fmt.Sprintf("%s.backup.%s", path, time.Now().Format("20060102-150405"))
	log.Printf("Creating backup: %s", backupPath)
	if err := os.WriteFile(backupPath, input, 0600); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return nil
}

// sampleDeals spreads a few deals over the board with due dates relative
// to today so reminders and the dashboard have something to show.
func sampleDeals(today models.Date) []models.Deal {
	return []models.Deal{
		{
			Title:    "グランドメゾン渋谷 302号室",
			Client:   "田中",
			Priority: models.PriorityHigh,
			Phase:    models.PhaseApplication,
			DueDate:  today.AddDays(2),
			Notes:    "申込書受領済み",
		},
		{
			Title:    "パークハイツ中野 105号室",
			Client:   "佐藤",
			Priority: models.PriorityMedium,
			Phase:    models.PhaseViewing,
			DueDate:  today.AddDays(5),
		},
		{
			Title:    "サンライズ目黒 201号室",
			Client:   "鈴木",
			Priority: models.PriorityMedium,
			Phase:    models.PhaseScreening,
			DueDate:  today.AddDays(-1),
			Notes:    "保証会社の審査待ち",
		},
		{
			Title:    "リバーサイド品川 710号室",
			Client:   "高橋",
			Priority: models.PriorityLow,
			Phase:    models.PhaseContract,
			DueDate:  today.AddDays(10),
		},
		{
			Title:    "コーポ吉祥寺 1F",
			Client:   "伊藤",
			Priority: models.PriorityLow,
			Phase:    models.PhaseFollowUp,
			DueDate:  today.AddDays(30),
			FollowUp: &models.FollowUpChecklist{LifelineSupport: true},
		},
	}
}
