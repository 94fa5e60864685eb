// ABOUTME: Phase registry for the leasing workflow board
// ABOUTME: Holds the ordered phases and the terminal, follow-up and billing roles
package models

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidPhase = errors.New("invalid phase")

// Phase is the stable key of a workflow phase.
type Phase string

const (
	PhaseApplication      Phase = "application"
	PhaseViewing          Phase = "viewing"
	PhaseScreening        Phase = "screening"
	PhaseDisclosure       Phase = "disclosure"
	PhaseContract         Phase = "contract"
	PhasePaymentConfirmed Phase = "payment_confirmed"
	PhaseKeyPrep          Phase = "key_prep"
	PhaseMoveIn           Phase = "move_in"
	PhaseManagement       Phase = "management"
	PhaseClosed           Phase = "closed"
	PhaseFollowUp         Phase = "follow_up"
	PhaseAdBilling        Phase = "ad_billing"
)

// PhaseRole marks the phases that carry extra behaviour.
type PhaseRole string

const (
	RoleNone     PhaseRole = ""
	RoleTerminal PhaseRole = "terminal"
	RoleFollowUp PhaseRole = "follow_up"
	RoleBilling  PhaseRole = "billing"
)

type PhaseInfo struct {
	Key          Phase     `json:"key"`
	Label        string    `json:"label"`
	LedgerStatus string    `json:"ledgerStatus"`
	Role         PhaseRole `json:"role,omitempty"`
}

// DefaultLedgerStatus is used for phases with no explicit ledger status.
const DefaultLedgerStatus = "処理中"

// Registry is an ordered, immutable set of phases. The order is nominal;
// deals may move between any two phases.
type Registry struct {
	phases  []PhaseInfo
	byKey   map[Phase]int
	byLabel map[string]int
	roles   map[PhaseRole]Phase
}

// NewRegistry validates and indexes phases. Keys and labels must be unique
// and each role may be held by at most one phase.
func NewRegistry(phases []PhaseInfo) (*Registry, error) {
	if len(phases) == 0 {
		return nil, errors.New("registry needs at least one phase")
	}
	r := &Registry{
		phases:  make([]PhaseInfo, len(phases)),
		byKey:   make(map[Phase]int, len(phases)),
		byLabel: make(map[string]int, len(phases)),
		roles:   make(map[PhaseRole]Phase),
	}
	copy(r.phases, phases)
	for i, p := range r.phases {
		if p.Key == "" {
			return nil, fmt.Errorf("phase %d has no key", i)
		}
		if _, dup := r.byKey[p.Key]; dup {
			return nil, fmt.Errorf("duplicate phase key %q", p.Key)
		}
		r.byKey[p.Key] = i
		if p.Label != "" {
			if _, dup := r.byLabel[p.Label]; dup {
				return nil, fmt.Errorf("duplicate phase label %q", p.Label)
			}
			r.byLabel[p.Label] = i
		}
		if p.Role != RoleNone {
			if other, dup := r.roles[p.Role]; dup {
				return nil, fmt.Errorf("role %q held by both %q and %q", p.Role, other, p.Key)
			}
			r.roles[p.Role] = p.Key
		}
	}
	return r, nil
}

// DefaultPhases is the brokerage's workflow.
func DefaultPhases() []PhaseInfo {
	return []PhaseInfo{
		{Key: PhaseApplication, Label: "①申込連絡", LedgerStatus: "申込受付"},
		{Key: PhaseViewing, Label: "②内見調整", LedgerStatus: "内見対応"},
		{Key: PhaseScreening, Label: "③入居審査", LedgerStatus: "審査中"},
		{Key: PhaseDisclosure, Label: "④重要事項説明", LedgerStatus: "契約準備"},
		{Key: PhaseContract, Label: "⑤契約手続き", LedgerStatus: "契約手続き"},
		{Key: PhasePaymentConfirmed, Label: "⑥初期費用入金確認", LedgerStatus: "入金確認"},
		{Key: PhaseKeyPrep, Label: "⑦鍵渡し準備", LedgerStatus: "鍵渡し準備"},
		{Key: PhaseMoveIn, Label: "⑧入居開始", LedgerStatus: "入居済み"},
		{Key: PhaseManagement, Label: "⑨管理開始", LedgerStatus: "管理中"},
		{Key: PhaseClosed, Label: "⑩契約終了", LedgerStatus: "契約完了", Role: RoleTerminal},
		{Key: PhaseFollowUp, Label: "⑪フォローアップ", LedgerStatus: "フォローアップ", Role: RoleFollowUp},
		{Key: PhaseAdBilling, Label: "⑫AD請求/着金", LedgerStatus: "AD請求", Role: RoleBilling},
	}
}

// DefaultRegistry returns the registry built from DefaultPhases.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultPhases())
	if err != nil {
		panic(err)
	}
	return r
}

// All returns the phases in workflow order.
func (r *Registry) All() []PhaseInfo {
	out := make([]PhaseInfo, len(r.phases))
	copy(out, r.phases)
	return out
}

// First is the phase new deals start in.
func (r *Registry) First() Phase { return r.phases[0].Key }

func (r *Registry) Valid(p Phase) bool {
	_, ok := r.byKey[p]
	return ok
}

// Info returns the registry entry for p.
func (r *Registry) Info(p Phase) (PhaseInfo, bool) {
	i, ok := r.byKey[p]
	if !ok {
		return PhaseInfo{}, false
	}
	return r.phases[i], true
}

// Index returns p's position in workflow order, or -1.
func (r *Registry) Index(p Phase) int {
	if i, ok := r.byKey[p]; ok {
		return i
	}
	return -1
}

// Parse resolves a phase key or display label.
func (r *Registry) Parse(s string) (Phase, error) {
	s = strings.TrimSpace(s)
	if i, ok := r.byKey[Phase(s)]; ok {
		return r.phases[i].Key, nil
	}
	if i, ok := r.byLabel[s]; ok {
		return r.phases[i].Key, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPhase, s)
}

// Label returns the display label, falling back to the key.
func (r *Registry) Label(p Phase) string {
	if info, ok := r.Info(p); ok && info.Label != "" {
		return info.Label
	}
	return string(p)
}

func (r *Registry) Role(p Phase) PhaseRole {
	info, _ := r.Info(p)
	return info.Role
}

func (r *Registry) IsTerminal(p Phase) bool { return r.Role(p) == RoleTerminal }
func (r *Registry) IsFollowUp(p Phase) bool { return r.Role(p) == RoleFollowUp }
func (r *Registry) IsBilling(p Phase) bool  { return r.Role(p) == RoleBilling }

// Terminal returns the terminal phase, if one is designated.
func (r *Registry) Terminal() (Phase, bool) {
	p, ok := r.roles[RoleTerminal]
	return p, ok
}

// LedgerStatus maps a phase to the status string the ledger expects.
func (r *Registry) LedgerStatus(p Phase) string {
	if info, ok := r.Info(p); ok && info.LedgerStatus != "" {
		return info.LedgerStatus
	}
	return DefaultLedgerStatus
}
