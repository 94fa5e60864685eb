// ABOUTME: Due-date reminder scheduler posting alerts to Slack
// ABOUTME: Runs at fixed wall-clock times and de-duplicates alerts per calendar day
package reminders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/harperreed/dealboard/db"
	"github.com/harperreed/dealboard/models"
	"github.com/harperreed/dealboard/slack"
	"go.uber.org/zap"
)

const (
	DefaultDaysAhead = 2
	DefaultDelay     = 500 * time.Millisecond
	manualWindowDays = 3
)

// DefaultTimes are the local times of day the check runs at.
var DefaultTimes = []string{"09:00", "15:00"}

// Alerter posts a message to the team channel.
type Alerter interface {
	PostMessage(ctx context.Context, msg slack.Message) (string, error)
}

// DealSource is the slice of the deal store the scheduler reads and marks.
type DealSource interface {
	ListDeals(ctx context.Context, filter db.ListFilter) ([]models.Deal, error)
	MarkReminded(ctx context.Context, id int64, at time.Time) error
}

// TimeOfDay is a wall-clock time in the scheduler's location.
type TimeOfDay struct {
	Hour   int
	Minute int
}

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute) }

// ParseTimes parses "HH:MM" entries, sorted and de-duplicated.
func ParseTimes(values []string) ([]TimeOfDay, error) {
	seen := map[TimeOfDay]bool{}
	var out []TimeOfDay
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		hh, mm, ok := strings.Cut(v, ":")
		if !ok {
			return nil, fmt.Errorf("invalid time of day %q", v)
		}
		h, err1 := strconv.Atoi(hh)
		m, err2 := strconv.Atoi(mm)
		if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
			return nil, fmt.Errorf("invalid time of day %q", v)
		}
		t := TimeOfDay{Hour: h, Minute: m}
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("at least one reminder time is required")
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hour*60+out[i].Minute < out[j].Hour*60+out[j].Minute
	})
	return out, nil
}

// NextRun returns the first configured time strictly after now, in now's
// location. times must be sorted.
func NextRun(now time.Time, times []TimeOfDay) time.Time {
	y, mo, d := now.Date()
	for _, t := range times {
		at := time.Date(y, mo, d, t.Hour, t.Minute, 0, 0, now.Location())
		if at.After(now) {
			return at
		}
	}
	first := times[0]
	return time.Date(y, mo, d+1, first.Hour, first.Minute, 0, 0, now.Location())
}

type Options struct {
	Times      []string
	DaysAhead  int
	Delay      time.Duration
	RunOnStart bool
	Location   *time.Location
}

// Report describes one reminder pass.
type Report struct {
	Deals  []models.Deal `json:"deals"`
	Sent   int           `json:"sent"`
	Errors []string      `json:"errors"`
}

type Scheduler struct {
	store   DealSource
	alerter Alerter
	reg     *models.Registry
	times   []TimeOfDay
	opts    Options
	logger  *zap.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(store DealSource, alerter Alerter, reg *models.Registry, opts Options, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(opts.Times) == 0 {
		opts.Times = DefaultTimes
	}
	times, err := ParseTimes(opts.Times)
	if err != nil {
		return nil, err
	}
	if opts.DaysAhead <= 0 {
		opts.DaysAhead = DefaultDaysAhead
	}
	if opts.Delay < 0 {
		opts.Delay = 0
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	return &Scheduler{
		store:   store,
		alerter: alerter,
		reg:     reg,
		times:   times,
		opts:    opts,
		logger:  logger,
		now:     time.Now,
		sleep:   sleepContext,
	}, nil
}

// Run checks for due deals at every configured time until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.opts.RunOnStart {
		s.runCheck(ctx)
	}

	for {
		now := s.now().In(s.opts.Location)
		next := NextRun(now, s.times)
		s.logger.Info("next reminder check scheduled", zap.Time("at", next))

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
		s.runCheck(ctx)
	}
}

func (s *Scheduler) runCheck(ctx context.Context) {
	report, err := s.CheckDue(ctx)
	if err != nil {
		s.logger.Warn("reminder check failed", zap.Error(err))
		return
	}
	s.logger.Info("reminder check finished",
		zap.Int("deals", len(report.Deals)),
		zap.Int("sent", report.Sent),
		zap.Int("errors", len(report.Errors)))
}

// CheckDue alerts on non-terminal deals due exactly DaysAhead calendar days
// from today. A deal is alerted at most once per local day; each alerted
// deal is marked.
func (s *Scheduler) CheckDue(ctx context.Context) (Report, error) {
	today := s.today()
	deals, err := s.store.ListDeals(ctx, db.ListFilter{})
	if err != nil {
		return Report{Errors: []string{}}, fmt.Errorf("list deals: %w", err)
	}

	var due []models.Deal
	for _, d := range deals {
		if !s.active(&d) || today.DaysUntil(d.DueDate) != s.opts.DaysAhead {
			continue
		}
		if d.LastRemindedAt != nil && models.DateOf(d.LastRemindedAt.In(s.opts.Location)).Equal(today) {
			continue
		}
		due = append(due, d)
	}
	return s.send(ctx, due, today, true)
}

// TriggerManual alerts on every non-terminal deal due within the next three
// days, today included. It ignores and does not update the daily marks.
func (s *Scheduler) TriggerManual(ctx context.Context) (Report, error) {
	today := s.today()
	deals, err := s.store.ListDeals(ctx, db.ListFilter{})
	if err != nil {
		return Report{Errors: []string{}}, fmt.Errorf("list deals: %w", err)
	}

	var due []models.Deal
	for _, d := range deals {
		if !s.active(&d) {
			continue
		}
		if n := today.DaysUntil(d.DueDate); n >= 0 && n <= manualWindowDays {
			due = append(due, d)
		}
	}
	return s.send(ctx, due, today, false)
}

func (s *Scheduler) today() models.Date {
	return models.DateOf(s.now().In(s.opts.Location))
}

func (s *Scheduler) active(d *models.Deal) bool {
	return !d.DueDate.IsZero() && !s.reg.IsTerminal(d.Phase)
}

// send posts the summary and then one alert per deal, pausing between
// alerts. Per-deal failures are collected and do not stop the pass.
func (s *Scheduler) send(ctx context.Context, deals []models.Deal, today models.Date, mark bool) (Report, error) {
	report := Report{Deals: deals, Errors: []string{}}
	if report.Deals == nil {
		report.Deals = []models.Deal{}
	}
	if len(deals) == 0 {
		return report, nil
	}

	_, err := s.alerter.PostMessage(ctx, slack.Message{
		Text:   fmt.Sprintf("本日の期限リマインダー (%d件)", len(deals)),
		Blocks: slack.SummaryBlocks(len(deals)),
	})
	if errors.Is(err, slack.ErrNotConfigured) {
		return report, err
	}
	if err != nil {
		report.Errors = append(report.Errors, fmt.Sprintf("summary: %v", err))
	}

	for i := range deals {
		deal := &deals[i]
		if i > 0 && s.opts.Delay > 0 {
			if err := s.sleep(ctx, s.opts.Delay); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("案件 %d: %v", deal.ID, err))
				return report, nil
			}
		}

		days := today.DaysUntil(deal.DueDate)
		_, err := s.alerter.PostMessage(ctx, slack.Message{
			Text:   slack.ReminderText(deal, days),
			Blocks: slack.ReminderBlocks(deal, days, s.reg),
		})
		if err != nil {
			s.logger.Warn("due date alert not delivered",
				zap.String("channel", "slack"),
				zap.Int64("deal_id", deal.ID),
				zap.Error(err))
			report.Errors = append(report.Errors, fmt.Sprintf("案件 %d: %v", deal.ID, err))
			continue
		}
		report.Sent++

		if mark {
			if err := s.store.MarkReminded(ctx, deal.ID, s.now()); err != nil {
				report.Errors = append(report.Errors, fmt.Sprintf("案件 %d: mark reminded: %v", deal.ID, err))
			}
		}
	}
	return report, nil
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
