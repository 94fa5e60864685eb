// ABOUTME: Data models for leasing deals
// ABOUTME: Defines Deal, its ledger fields, phase-keyed sub-records and partial updates
package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrInvalidPriority = errors.New("invalid priority")

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority accepts the English keys and the brokerage's 高/中/低 labels.
func ParsePriority(s string) (Priority, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "high", "高":
		return PriorityHigh, nil
	case "medium", "中":
		return PriorityMedium, nil
	case "low", "低":
		return PriorityLow, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPriority, s)
}

// Label is the display form used in customer and team messages.
func (p Priority) Label() string {
	switch p {
	case PriorityHigh:
		return "高"
	case PriorityMedium:
		return "中"
	case PriorityLow:
		return "低"
	}
	return string(p)
}

// ConnectionMethod records how a LINE identity was bound to a deal.
type ConnectionMethod string

const (
	ConnectionNone   ConnectionMethod = "none"
	ConnectionQR     ConnectionMethod = "qr"
	ConnectionAuto   ConnectionMethod = "auto"
	ConnectionManual ConnectionMethod = "manual"
)

// LedgerFields are only consulted when the deal is exported to the ledger.
type LedgerFields struct {
	DealNumber      string `json:"dealNumber,omitempty"`
	DealType        string `json:"dealType,omitempty"`
	TenantName      string `json:"tenantName,omitempty"`
	TenantAddress   string `json:"tenantAddress,omitempty"`
	ContractDate    Date   `json:"contractDate"`
	RentPrice       int64  `json:"rentPrice,omitempty"`
	ManagementFee   int64  `json:"managementFee,omitempty"`
	Deposit         int64  `json:"deposit,omitempty"`
	KeyMoney        int64  `json:"keyMoney,omitempty"`
	Brokerage       int64  `json:"brokerage,omitempty"`
	AdFee           int64  `json:"adFee,omitempty"`
	LandlordName    string `json:"landlordName,omitempty"`
	LandlordAddress string `json:"landlordAddress,omitempty"`
	RealEstateAgent string `json:"realEstateAgent,omitempty"`
}

// Merge copies every non-empty field of other over l.
func (l *LedgerFields) Merge(other LedgerFields) {
	mergeString(&l.DealNumber, other.DealNumber)
	mergeString(&l.DealType, other.DealType)
	mergeString(&l.TenantName, other.TenantName)
	mergeString(&l.TenantAddress, other.TenantAddress)
	if !other.ContractDate.IsZero() {
		l.ContractDate = other.ContractDate
	}
	mergeInt(&l.RentPrice, other.RentPrice)
	mergeInt(&l.ManagementFee, other.ManagementFee)
	mergeInt(&l.Deposit, other.Deposit)
	mergeInt(&l.KeyMoney, other.KeyMoney)
	mergeInt(&l.Brokerage, other.Brokerage)
	mergeInt(&l.AdFee, other.AdFee)
	mergeString(&l.LandlordName, other.LandlordName)
	mergeString(&l.LandlordAddress, other.LandlordAddress)
	mergeString(&l.RealEstateAgent, other.RealEstateAgent)
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func mergeInt(dst *int64, v int64) {
	if v != 0 {
		*dst = v
	}
}

// FollowUpChecklist is the after-move-in service checklist.
type FollowUpChecklist struct {
	LifelineSupport  bool   `json:"lifelineSupport"`
	InternetReferral bool   `json:"internetReferral"`
	MovingReferral   bool   `json:"movingReferral"`
	GiftSent         bool   `json:"giftSent"`
	Notes            string `json:"notes,omitempty"`
}

// BillingInfo tracks the advertising fee invoice for a closed tenancy.
type BillingInfo struct {
	Amount           int64 `json:"amount,omitempty"`
	InvoicedOn       Date  `json:"invoicedOn"`
	DueOn            Date  `json:"dueOn"`
	PaidOn           Date  `json:"paidOn"`
	InvoiceSent      bool  `json:"invoiceSent"`
	PaymentConfirmed bool  `json:"paymentConfirmed"`
}

type Deal struct {
	ID                   int64              `json:"id"`
	Title                string             `json:"title"`
	Client               string             `json:"client,omitempty"`
	Priority             Priority           `json:"priority"`
	Phase                Phase              `json:"phase"`
	DueDate              Date               `json:"dueDate"`
	Notes                string             `json:"notes,omitempty"`
	CustomerChecklistURL string             `json:"customerChecklistUrl,omitempty"`
	LineUserID           string             `json:"lineUserId,omitempty"`
	LineDisplayName      string             `json:"lineDisplayName,omitempty"`
	LineConnectionMethod ConnectionMethod   `json:"lineConnectionMethod"`
	LineConnectedAt      *time.Time         `json:"lineConnectedAt,omitempty"`
	RegistrationToken    string             `json:"registrationToken,omitempty"`
	Ledger               LedgerFields       `json:"ledger"`
	LedgerID             string             `json:"ledgerId,omitempty"`
	FollowUp             *FollowUpChecklist `json:"followUp,omitempty"`
	Billing              *BillingInfo       `json:"billing,omitempty"`
	LastRemindedAt       *time.Time         `json:"lastRemindedAt,omitempty"`
	CreatedAt            time.Time          `json:"createdAt"`
	UpdatedAt            time.Time          `json:"updatedAt"`
}

// IsBound reports whether a LINE identity is attached to the deal.
func (d *Deal) IsBound() bool { return d.LineUserID != "" }

// PhaseDetails is the sub-record that applies to the deal's current phase.
// Kind is RoleNone when the phase carries no extra form.
type PhaseDetails struct {
	Kind     PhaseRole          `json:"kind"`
	FollowUp *FollowUpChecklist `json:"followUp,omitempty"`
	Billing  *BillingInfo       `json:"billing,omitempty"`
}

// ActiveDetails selects the sub-record for the current phase's role. Records
// for other roles are kept on the deal but not returned.
func (d *Deal) ActiveDetails(reg *Registry) PhaseDetails {
	switch reg.Role(d.Phase) {
	case RoleFollowUp:
		fu := d.FollowUp
		if fu == nil {
			fu = &FollowUpChecklist{}
		}
		return PhaseDetails{Kind: RoleFollowUp, FollowUp: fu}
	case RoleBilling:
		b := d.Billing
		if b == nil {
			b = &BillingInfo{}
		}
		return PhaseDetails{Kind: RoleBilling, Billing: b}
	}
	return PhaseDetails{Kind: RoleNone}
}

// DealPatch is a partial update. Nil fields are left untouched.
type DealPatch struct {
	Title                *string            `json:"title,omitempty"`
	Client               *string            `json:"client,omitempty"`
	Priority             *Priority          `json:"priority,omitempty"`
	Phase                *Phase             `json:"phase,omitempty"`
	DueDate              *Date              `json:"dueDate,omitempty"`
	Notes                *string            `json:"notes,omitempty"`
	CustomerChecklistURL *string            `json:"customerChecklistUrl,omitempty"`
	LineUserID           *string            `json:"lineUserId,omitempty"`
	Ledger               *LedgerFields      `json:"ledger,omitempty"`
	FollowUp             *FollowUpChecklist `json:"followUp,omitempty"`
	Billing              *BillingInfo       `json:"billing,omitempty"`
}

// Validate checks the fields that have a closed set of values. It does not
// check consistency between fields.
func (p *DealPatch) Validate(reg *Registry) error {
	if p.Phase != nil && !reg.Valid(*p.Phase) {
		return fmt.Errorf("%w: %q", ErrInvalidPhase, *p.Phase)
	}
	if p.Priority != nil {
		if _, err := ParsePriority(string(*p.Priority)); err != nil {
			return err
		}
	}
	if p.Title != nil && strings.TrimSpace(*p.Title) == "" {
		return errors.New("title cannot be empty")
	}
	if p.DueDate != nil && p.DueDate.IsZero() {
		return fmt.Errorf("%w: due date cannot be cleared", ErrInvalidDate)
	}
	return nil
}

// Apply merges the patch onto d.
func (p *DealPatch) Apply(d *Deal) {
	p.ApplyAt(d, time.Now())
}

// ApplyAt is Apply with an explicit clock. A LINE user id that differs from
// the current one is a manual binding made at now.
func (p *DealPatch) ApplyAt(d *Deal, now time.Time) {
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Client != nil {
		d.Client = *p.Client
	}
	if p.Priority != nil {
		if pr, err := ParsePriority(string(*p.Priority)); err == nil {
			d.Priority = pr
		}
	}
	if p.Phase != nil {
		d.Phase = *p.Phase
	}
	if p.DueDate != nil {
		d.DueDate = *p.DueDate
	}
	if p.Notes != nil {
		d.Notes = *p.Notes
	}
	if p.CustomerChecklistURL != nil {
		d.CustomerChecklistURL = *p.CustomerChecklistURL
	}
	if p.LineUserID != nil {
		previous := d.LineUserID
		d.LineUserID = *p.LineUserID
		switch {
		case d.LineUserID == "":
			d.LineDisplayName = ""
			d.LineConnectionMethod = ConnectionNone
			d.LineConnectedAt = nil
		case d.LineUserID != previous:
			at := now
			d.LineConnectedAt = &at
			d.LineConnectionMethod = ConnectionManual
		}
	}
	if p.Ledger != nil {
		d.Ledger = *p.Ledger
	}
	if p.FollowUp != nil {
		fu := *p.FollowUp
		d.FollowUp = &fu
	}
	if p.Billing != nil {
		b := *p.Billing
		d.Billing = &b
	}
}
