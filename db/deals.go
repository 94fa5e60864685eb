// ABOUTME: Deal store operations
// ABOUTME: Handles deal CRUD, LINE identity binding, registration tokens and reminder bookkeeping
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/harperreed/dealboard/models"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const dealColumns = `id, title, client, priority, phase, due_date, notes, customer_checklist_url,
	line_user_id, line_display_name, line_connection_method, line_connected_at, registration_token,
	ledger, ledger_id, follow_up, billing, last_reminded_at, created_at, updated_at`

// Store persists deals. Concurrent writers to the same deal are
// last-writer-wins; there is no version column.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewStore(db *sqlx.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		db:     db,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// DB exposes the underlying handle for migrations and health checks.
func (s *Store) DB() *sqlx.DB { return s.db }

type ListFilter struct {
	Phase models.Phase
}

type dealRow struct {
	ID                   int64          `db:"id"`
	Title                string         `db:"title"`
	Client               string         `db:"client"`
	Priority             string         `db:"priority"`
	Phase                string         `db:"phase"`
	DueDate              string         `db:"due_date"`
	Notes                string         `db:"notes"`
	CustomerChecklistURL string         `db:"customer_checklist_url"`
	LineUserID           string         `db:"line_user_id"`
	LineDisplayName      string         `db:"line_display_name"`
	LineConnectionMethod string         `db:"line_connection_method"`
	LineConnectedAt      sql.NullTime   `db:"line_connected_at"`
	RegistrationToken    sql.NullString `db:"registration_token"`
	Ledger               string         `db:"ledger"`
	LedgerID             string         `db:"ledger_id"`
	FollowUp             sql.NullString `db:"follow_up"`
	Billing              sql.NullString `db:"billing"`
	LastRemindedAt       sql.NullTime   `db:"last_reminded_at"`
	CreatedAt            time.Time      `db:"created_at"`
	UpdatedAt            time.Time      `db:"updated_at"`
}

func rowFromDeal(d *models.Deal) (*dealRow, error) {
	ledger, err := json.Marshal(d.Ledger)
	if err != nil {
		return nil, fmt.Errorf("encode ledger fields: %w", err)
	}
	row := &dealRow{
		ID:                   d.ID,
		Title:                d.Title,
		Client:               d.Client,
		Priority:             string(d.Priority),
		Phase:                string(d.Phase),
		DueDate:              d.DueDate.String(),
		Notes:                d.Notes,
		CustomerChecklistURL: d.CustomerChecklistURL,
		LineUserID:           d.LineUserID,
		LineDisplayName:      d.LineDisplayName,
		LineConnectionMethod: string(d.LineConnectionMethod),
		Ledger:               string(ledger),
		LedgerID:             d.LedgerID,
		CreatedAt:            d.CreatedAt,
		UpdatedAt:            d.UpdatedAt,
	}
	if row.LineConnectionMethod == "" {
		row.LineConnectionMethod = string(models.ConnectionNone)
	}
	if d.LineConnectedAt != nil {
		row.LineConnectedAt = sql.NullTime{Time: *d.LineConnectedAt, Valid: true}
	}
	if d.RegistrationToken != "" {
		row.RegistrationToken = sql.NullString{String: d.RegistrationToken, Valid: true}
	}
	if d.LastRemindedAt != nil {
		row.LastRemindedAt = sql.NullTime{Time: *d.LastRemindedAt, Valid: true}
	}
	if d.FollowUp != nil {
		data, err := json.Marshal(d.FollowUp)
		if err != nil {
			return nil, fmt.Errorf("encode follow-up: %w", err)
		}
		row.FollowUp = sql.NullString{String: string(data), Valid: true}
	}
	if d.Billing != nil {
		data, err := json.Marshal(d.Billing)
		if err != nil {
			return nil, fmt.Errorf("encode billing: %w", err)
		}
		row.Billing = sql.NullString{String: string(data), Valid: true}
	}
	return row, nil
}

func (r *dealRow) toDeal() (*models.Deal, error) {
	due, err := models.ParseDate(r.DueDate)
	if err != nil {
		return nil, fmt.Errorf("deal %d: %w", r.ID, err)
	}
	d := &models.Deal{
		ID:                   r.ID,
		Title:                r.Title,
		Client:               r.Client,
		Priority:             models.Priority(r.Priority),
		Phase:                models.Phase(r.Phase),
		DueDate:              due,
		Notes:                r.Notes,
		CustomerChecklistURL: r.CustomerChecklistURL,
		LineUserID:           r.LineUserID,
		LineDisplayName:      r.LineDisplayName,
		LineConnectionMethod: models.ConnectionMethod(r.LineConnectionMethod),
		RegistrationToken:    r.RegistrationToken.String,
		LedgerID:             r.LedgerID,
		CreatedAt:            r.CreatedAt,
		UpdatedAt:            r.UpdatedAt,
	}
	if r.LineConnectedAt.Valid {
		t := r.LineConnectedAt.Time
		d.LineConnectedAt = &t
	}
	if r.LastRemindedAt.Valid {
		t := r.LastRemindedAt.Time
		d.LastRemindedAt = &t
	}
	if r.Ledger != "" {
		if err := json.Unmarshal([]byte(r.Ledger), &d.Ledger); err != nil {
			return nil, fmt.Errorf("deal %d ledger fields: %w", r.ID, err)
		}
	}
	if r.FollowUp.Valid && r.FollowUp.String != "" {
		d.FollowUp = &models.FollowUpChecklist{}
		if err := json.Unmarshal([]byte(r.FollowUp.String), d.FollowUp); err != nil {
			return nil, fmt.Errorf("deal %d follow-up: %w", r.ID, err)
		}
	}
	if r.Billing.Valid && r.Billing.String != "" {
		d.Billing = &models.BillingInfo{}
		if err := json.Unmarshal([]byte(r.Billing.String), d.Billing); err != nil {
			return nil, fmt.Errorf("deal %d billing: %w", r.ID, err)
		}
	}
	return d, nil
}

// CreateDeal assigns the id and timestamps and inserts the deal.
func (s *Store) CreateDeal(ctx context.Context, deal *models.Deal) error {
	now := s.now()
	deal.CreatedAt = now
	deal.UpdatedAt = now
	if deal.LineConnectionMethod == "" {
		deal.LineConnectionMethod = models.ConnectionNone
	}
	if deal.LineUserID != "" && deal.LineConnectedAt == nil {
		at := now
		deal.LineConnectedAt = &at
	}

	row, err := rowFromDeal(deal)
	if err != nil {
		return err
	}

	query, args, err := sqlx.Named(`
		INSERT INTO deals (title, client, priority, phase, due_date, notes, customer_checklist_url,
			line_user_id, line_display_name, line_connection_method, line_connected_at, registration_token,
			ledger, ledger_id, follow_up, billing, last_reminded_at, created_at, updated_at)
		VALUES (:title, :client, :priority, :phase, :due_date, :notes, :customer_checklist_url,
			:line_user_id, :line_display_name, :line_connection_method, :line_connected_at, :registration_token,
			:ledger, :ledger_id, :follow_up, :billing, :last_reminded_at, :created_at, :updated_at)
		RETURNING id
	`, row)
	if err != nil {
		return err
	}

	if err := s.db.QueryRowxContext(ctx, s.db.Rebind(query), args...).Scan(&deal.ID); err != nil {
		return fmt.Errorf("insert deal: %w", err)
	}
	return nil
}

// GetDeal returns nil, nil when the deal does not exist.
func (s *Store) GetDeal(ctx context.Context, id int64) (*models.Deal, error) {
	return s.getOne(ctx, `SELECT `+dealColumns+` FROM deals WHERE id = ?`, id)
}

func (s *Store) getOne(ctx context.Context, query string, args ...interface{}) (*models.Deal, error) {
	var row dealRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(query), args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toDeal()
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]models.Deal, error) {
	var rows []dealRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, err
	}

	deals := make([]models.Deal, 0, len(rows))
	for i := range rows {
		d, err := rows[i].toDeal()
		if err != nil {
			return nil, err
		}
		deals = append(deals, *d)
	}
	return deals, nil
}

// ListDeals returns deals in creation order.
func (s *Store) ListDeals(ctx context.Context, filter ListFilter) ([]models.Deal, error) {
	if filter.Phase != "" {
		return s.list(ctx, `SELECT `+dealColumns+` FROM deals WHERE phase = ? ORDER BY id`, string(filter.Phase))
	}
	return s.list(ctx, `SELECT `+dealColumns+` FROM deals ORDER BY id`)
}

// UpdateDeal merges patch onto the stored deal and writes it back.
// Returns nil, nil when the deal does not exist.
func (s *Store) UpdateDeal(ctx context.Context, id int64, patch *models.DealPatch) (*models.Deal, error) {
	deal, err := s.GetDeal(ctx, id)
	if err != nil || deal == nil {
		return nil, err
	}

	now := s.now()
	if patch != nil {
		patch.ApplyAt(deal, now)
	}
	deal.UpdatedAt = now

	row, err := rowFromDeal(deal)
	if err != nil {
		return nil, err
	}

	query, args, err := sqlx.Named(`
		UPDATE deals
		SET title = :title, client = :client, priority = :priority, phase = :phase, due_date = :due_date,
			notes = :notes, customer_checklist_url = :customer_checklist_url,
			line_user_id = :line_user_id, line_display_name = :line_display_name,
			line_connection_method = :line_connection_method, line_connected_at = :line_connected_at,
			ledger = :ledger, follow_up = :follow_up, billing = :billing, updated_at = :updated_at
		WHERE id = :id
	`, row)
	if err != nil {
		return nil, err
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("update deal %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Deleted between the read and the write.
		return nil, nil
	}
	return deal, nil
}

// DeleteDeal reports whether a deal was removed.
func (s *Store) DeleteDeal(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM deals WHERE id = ?`), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// FindDealByLineUser returns the earliest deal bound to the LINE user, or nil.
func (s *Store) FindDealByLineUser(ctx context.Context, lineUserID string) (*models.Deal, error) {
	if lineUserID == "" {
		return nil, nil
	}
	return s.getOne(ctx, `SELECT `+dealColumns+` FROM deals WHERE line_user_id = ? ORDER BY id LIMIT 1`, lineUserID)
}

func (s *Store) FindDealByRegistrationToken(ctx context.Context, token string) (*models.Deal, error) {
	if token == "" {
		return nil, nil
	}
	return s.getOne(ctx, `SELECT `+dealColumns+` FROM deals WHERE registration_token = ?`, token)
}

// ListUnboundDeals returns deals with a client name and no LINE identity.
func (s *Store) ListUnboundDeals(ctx context.Context) ([]models.Deal, error) {
	return s.list(ctx, `SELECT `+dealColumns+` FROM deals WHERE line_user_id = '' AND client <> '' ORDER BY id`)
}

// BindLineUser attaches a LINE identity to a deal. It only succeeds when the
// deal is unbound or already bound to the same identity, so a deal never
// carries more than one identity. The registration token is consumed.
func (s *Store) BindLineUser(ctx context.Context, id int64, lineUserID, displayName string, method models.ConnectionMethod, at time.Time) (bool, error) {
	if lineUserID == "" {
		return false, errors.New("line user id is required")
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`
		UPDATE deals
		SET line_user_id = ?, line_display_name = ?, line_connection_method = ?, line_connected_at = ?,
			registration_token = NULL, updated_at = ?
		WHERE id = ? AND (line_user_id = '' OR line_user_id = ?)
	`), lineUserID, displayName, string(method), at.UTC(), s.now(), id, lineUserID)
	if err != nil {
		return false, fmt.Errorf("bind line user to deal %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.logger.Info("line identity bound",
			zap.Int64("deal_id", id),
			zap.String("method", string(method)))
	}
	return n > 0, nil
}

// SetRegistrationToken stores a fresh QR registration token for the deal.
func (s *Store) SetRegistrationToken(ctx context.Context, id int64, token string) (bool, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE deals SET registration_token = ?, updated_at = ? WHERE id = ?`),
		token, s.now(), id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) SetLedgerID(ctx context.Context, id int64, ledgerID string) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE deals SET ledger_id = ? WHERE id = ?`), ledgerID, id)
	return err
}

// MarkReminded records that a due-date alert went out for the deal.
func (s *Store) MarkReminded(ctx context.Context, id int64, at time.Time) error {
	_, err := s.db.ExecContext(ctx, s.db.Rebind(`UPDATE deals SET last_reminded_at = ? WHERE id = ?`), at.UTC(), id)
	return err
}
