// ABOUTME: Single and bulk export of deals to the ledger
// ABOUTME: Sends terminal deals one at a time with a fixed delay between calls
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/harperreed/dealboard/models"
	"go.uber.org/zap"
)

// DefaultDelay spaces out bulk calls to stay under the ledger's rate limit.
const DefaultDelay = 100 * time.Millisecond

// Pusher is the slice of the ledger client the exporter uses.
type Pusher interface {
	Create(ctx context.Context, rec Record) (string, error)
	Update(ctx context.Context, id string, rec Record) error
}

// IDRecorder stores the ledger id a deal was exported under.
type IDRecorder interface {
	SetLedgerID(ctx context.Context, id int64, ledgerID string) error
}

// Summary reports a bulk export. Errors holds one entry per failed deal.
type Summary struct {
	Sent      int              `json:"sent"`
	Skipped   int              `json:"skipped"`
	Errors    []string         `json:"errors"`
	LedgerIDs map[int64]string `json:"ledgerIds,omitempty"`
}

type Exporter struct {
	pusher Pusher
	reg    *models.Registry
	delay  time.Duration
	logger *zap.Logger
	now    func() time.Time
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewExporter(pusher Pusher, reg *models.Registry, delay time.Duration, logger *zap.Logger) *Exporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if delay < 0 {
		delay = 0
	}
	return &Exporter{
		pusher: pusher,
		reg:    reg,
		delay:  delay,
		logger: logger,
		now:    time.Now,
		sleep:  sleepContext,
	}
}

// ExportDeal sends one deal regardless of its phase. A deal that already
// carries a ledger id is updated in place; the returned id is the one the
// deal should carry afterwards.
func (e *Exporter) ExportDeal(ctx context.Context, deal *models.Deal) (string, error) {
	rec := ToRecord(deal, e.reg, e.now())

	if deal.LedgerID != "" {
		if err := e.pusher.Update(ctx, deal.LedgerID, rec); err != nil {
			e.logger.Warn("ledger update failed",
				zap.String("channel", "ledger"),
				zap.Int64("deal_id", deal.ID),
				zap.Error(err))
			return "", err
		}
		return deal.LedgerID, nil
	}

	id, err := e.pusher.Create(ctx, rec)
	if err != nil {
		e.logger.Warn("ledger export failed",
			zap.String("channel", "ledger"),
			zap.Int64("deal_id", deal.ID),
			zap.Error(err))
		return "", err
	}
	e.logger.Info("deal exported to ledger", zap.Int64("deal_id", deal.ID), zap.String("ledger_id", id))
	return id, nil
}

// ExportAndRecord exports deal and, when the ledger hands back a new id,
// stores it through rec and on deal itself.
func (e *Exporter) ExportAndRecord(ctx context.Context, rec IDRecorder, deal *models.Deal) (string, error) {
	ledgerID, err := e.ExportDeal(ctx, deal)
	if err != nil {
		return "", err
	}
	if ledgerID != "" && ledgerID != deal.LedgerID {
		if err := rec.SetLedgerID(ctx, deal.ID, ledgerID); err != nil {
			return ledgerID, fmt.Errorf("failed to record ledger id: %w", err)
		}
		deal.LedgerID = ledgerID
	}
	return ledgerID, nil
}

// ExportAllTerminal exports every terminal-phase deal in order and skips the
// rest. A failed deal is recorded in the summary and the batch carries on.
// A cancelled context stops the batch with a single error.
func (e *Exporter) ExportAllTerminal(ctx context.Context, deals []models.Deal) Summary {
	sum := Summary{Errors: []string{}, LedgerIDs: map[int64]string{}}

	first := true
	for i := range deals {
		deal := &deals[i]
		if !e.reg.IsTerminal(deal.Phase) {
			sum.Skipped++
			continue
		}

		if !first && e.delay > 0 {
			if err := e.sleep(ctx, e.delay); err != nil {
				sum.Errors = append(sum.Errors, fmt.Sprintf("案件 %d 以降: 中断されました: %v", deal.ID, err))
				break
			}
		}
		first = false

		id, err := e.ExportDeal(ctx, deal)
		if err != nil {
			sum.Errors = append(sum.Errors, fmt.Sprintf("案件 %d: %v", deal.ID, err))
			continue
		}
		sum.Sent++
		if id != "" {
			sum.LedgerIDs[deal.ID] = id
		}
	}

	e.logger.Info("ledger bulk export finished",
		zap.Int("sent", sum.Sent),
		zap.Int("skipped", sum.Skipped),
		zap.Int("errors", len(sum.Errors)))
	return sum
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
