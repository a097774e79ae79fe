package query

import (
	"github.com/shopspring/decimal"
	"github.com/xela07ax/latch-escrow/internal/domain"
)

var hundred = decimal.NewFromInt(100)

// Balance — индикатор заблокированных средств
type Balance struct {
	Locked    domain.Amount            `json:"locked"`
	Total     domain.Amount            `json:"total"`
	LockedPct float64                  `json:"locked_pct"`
	Vaults    int                      `json:"vaults"`
	ByStatus  map[domain.Status]int    `json:"by_status"`
	Volume    map[domain.Status]string `json:"volume_by_status"`
}

// Summarize: Locked = сумма Funded, LockedPct = clamp(locked/total*100, 0, 100), 0 при total == 0
func Summarize(vaults []domain.Vault) Balance {
	b := Balance{
		ByStatus: map[domain.Status]int{
			domain.StatusDraft:    0,
			domain.StatusFunded:   0,
			domain.StatusReleased: 0,
			domain.StatusRefunded: 0,
		},
		Volume: make(map[domain.Status]string, 4),
	}
	volume := make(map[domain.Status]decimal.Decimal, 4)

	locked, total := decimal.Zero, decimal.Zero
	for _, v := range vaults {
		total = total.Add(v.Amount.Decimal)
		if v.Status == domain.StatusFunded {
			locked = locked.Add(v.Amount.Decimal)
		}
		b.ByStatus[v.Status]++
		volume[v.Status] = volume[v.Status].Add(v.Amount.Decimal)
	}
	for st := range b.ByStatus {
		b.Volume[st] = volume[st].StringFixed(domain.AmountPrecision)
	}

	b.Vaults = len(vaults)
	b.Locked = domain.Amount{Decimal: locked}
	b.Total = domain.Amount{Decimal: total}
	if total.IsPositive() {
		pct := locked.Div(total).Mul(hundred).InexactFloat64()
		b.LockedPct = min(max(pct, 0), 100)
	}
	return b
}
