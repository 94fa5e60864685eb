// ABOUTME: Conversion of deals into transaction ledger records
// ABOUTME: Fills missing rent figures from a title-based estimate
package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/harperreed/dealboard/models"
)

// Record is the ledger's kanban import format.
type Record struct {
	DealNumber               string  `json:"deal_number"`
	DealType                 string  `json:"deal_type"`
	TenantName               string  `json:"tenant_name"`
	TenantAddress            string  `json:"tenant_address"`
	ImportantExplanationDate *string `json:"important_explanation_date"`
	ContractDate             *string `json:"contract_date"`
	RentPrice                int64   `json:"rent_price"`
	ManagementFee            int64   `json:"management_fee"`
	TotalRent                int64   `json:"total_rent"`
	Deposit                  int64   `json:"deposit,omitempty"`
	KeyMoney                 int64   `json:"key_money,omitempty"`
	Brokerage                int64   `json:"brokerage"`
	AdFee                    int64   `json:"ad_fee,omitempty"`
	ContractStartDate        *string `json:"contract_start_date"`
	ContractEndDate          *string `json:"contract_end_date"`
	LandlordName             string  `json:"landlord_name"`
	LandlordAddress          string  `json:"landlord_address,omitempty"`
	RealEstateAgent          string  `json:"real_estate_agent,omitempty"`
	OtherNotes               string  `json:"other_notes"`
	KanbanDealID             int64   `json:"kanban_deal_id"`
	Status                   string  `json:"status"`
}

const (
	defaultDealType   = "rental"
	defaultTenantName = "未設定"
	defaultLandlord   = "管理会社"
	defaultRent       = 120000
)

// rentHints is checked in order; the first substring found in the title wins.
var rentHints = []struct {
	keywords []string
	rent     int64
}{
	{[]string{"渋谷", "表参道"}, 180000},
	{[]string{"新宿", "池袋"}, 150000},
	{[]string{"港区", "タワー"}, 220000},
	{[]string{"3LDK"}, 160000},
	{[]string{"2LDK"}, 130000},
	{[]string{"1LDK"}, 100000},
}

// EstimateRent guesses a monthly rent from a deal title. It is a last-resort
// approximation used only when no rent was entered.
func EstimateRent(title string) int64 {
	for _, h := range rentHints {
		for _, k := range h.keywords {
			if strings.Contains(title, k) {
				return h.rent
			}
		}
	}
	return defaultRent
}

// ToRecord maps a deal onto a ledger record. Entered ledger fields always win
// over derived values. now supplies the year for generated deal numbers.
func ToRecord(deal *models.Deal, reg *models.Registry, now time.Time) Record {
	l := deal.Ledger

	rent := l.RentPrice
	if rent == 0 {
		rent = EstimateRent(deal.Title)
	}
	fee := l.ManagementFee
	if fee == 0 {
		fee = (rent + 5) / 10
	}

	rec := Record{
		DealNumber:      l.DealNumber,
		DealType:        firstNonEmpty(l.DealType, defaultDealType),
		TenantName:      firstNonEmpty(l.TenantName, deal.Client, defaultTenantName),
		TenantAddress:   l.TenantAddress,
		RentPrice:       rent,
		ManagementFee:   fee,
		TotalRent:       rent + fee,
		Deposit:         l.Deposit,
		KeyMoney:        l.KeyMoney,
		Brokerage:       l.Brokerage,
		AdFee:           l.AdFee,
		LandlordName:    firstNonEmpty(l.LandlordName, defaultLandlord),
		LandlordAddress: l.LandlordAddress,
		RealEstateAgent: l.RealEstateAgent,
		OtherNotes: fmt.Sprintf("Kanban案件ID: %d, 優先度: %s, 備考: %s",
			deal.ID, deal.Priority.Label(), firstNonEmpty(deal.Notes, "なし")),
		KanbanDealID: deal.ID,
		Status:       reg.LedgerStatus(deal.Phase),
	}
	if rec.DealNumber == "" {
		rec.DealNumber = fmt.Sprintf("R%d-%03d", now.Year(), deal.ID)
	}
	if rec.Brokerage == 0 {
		rec.Brokerage = rent
	}

	switch {
	case !l.ContractDate.IsZero():
		s := l.ContractDate.String()
		rec.ContractDate = &s
	case reg.IsTerminal(deal.Phase) && !deal.DueDate.IsZero():
		s := deal.DueDate.String()
		rec.ContractDate = &s
	}
	return rec
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
