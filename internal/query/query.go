// Package query строит read-only представления над содержимым VaultStore.
// Пакет ничего не мутирует и пересчитывается на каждый запрос.
package query

import (
	"fmt"
	"slices"
	"strings"

	"github.com/xela07ax/latch-escrow/internal/domain"
)

type Filter string

const (
	FilterAll    Filter = "all"
	FilterDraft  Filter = "draft"
	FilterFunded Filter = "funded"
	// FilterClosed = Released ∪ Refunded
	FilterClosed Filter = "closed"
)

type SortKey string

const (
	SortNewest     SortKey = "newest"
	SortOldest     SortKey = "oldest"
	SortAmountDesc SortKey = "amount_desc"
	SortAmountAsc  SortKey = "amount_asc"
)

// Params — параметры представления, приходят от вызывающей стороны
type Params struct {
	Filter Filter
	Search string
	Sort   SortKey
}

func ParseFilter(raw string) (Filter, error) {
	f := Filter(strings.ToLower(strings.TrimSpace(raw)))
	switch f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterDraft, FilterFunded, FilterClosed:
		return f, nil
	}
	return "", fmt.Errorf("query: unknown filter %q", raw)
}

func ParseSort(raw string) (SortKey, error) {
	k := SortKey(strings.ToLower(strings.TrimSpace(raw)))
	switch k {
	case "":
		return SortNewest, nil
	case SortNewest, SortOldest, SortAmountDesc, SortAmountAsc:
		return k, nil
	}
	return "", fmt.Errorf("query: unknown sort key %q", raw)
}

func (f Filter) match(s domain.Status) bool {
	switch f {
	case FilterDraft:
		return s == domain.StatusDraft
	case FilterFunded:
		return s == domain.StatusFunded
	case FilterClosed:
		return s.IsTerminal()
	}
	return true
}

// Apply: фильтр, затем поиск, затем стабильная сортировка. Вход не изменяется.
func Apply(vaults []domain.Vault, p Params) []domain.Vault {
	q := strings.ToLower(strings.TrimSpace(p.Search))

	out := make([]domain.Vault, 0, len(vaults))
	for _, v := range vaults {
		if !p.Filter.match(v.Status) {
			continue
		}
		if q != "" && !strings.Contains(v.SearchText(), q) {
			continue
		}
		out = append(out, v)
	}

	// При равенстве ключей сохраняется исходный порядок
	slices.SortStableFunc(out, compareBy(p.Sort))
	return out
}

func compareBy(key SortKey) func(a, b domain.Vault) int {
	switch key {
	case SortOldest:
		return func(a, b domain.Vault) int { return cmpInt64(a.CreatedAt, b.CreatedAt) }
	case SortAmountDesc:
		return func(a, b domain.Vault) int { return b.Amount.Cmp(a.Amount.Decimal) }
	case SortAmountAsc:
		return func(a, b domain.Vault) int { return a.Amount.Cmp(b.Amount.Decimal) }
	default:
		return func(a, b domain.Vault) int { return cmpInt64(b.CreatedAt, a.CreatedAt) }
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
