package risk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/xela07ax/latch-escrow/internal/domain"
	"go.uber.org/zap"
)

// Analyzer следит за крупными блокировками средств. Решение о разрешении он не принимает:
// политика уже отработала, анализатор только сигнализирует оператору.
type Analyzer struct {
	threshold decimal.Decimal
	locks     prometheus.Counter
	logger    *zap.Logger
}

// NewAnalyzer: нулевой порог выключает проверку
func NewAnalyzer(threshold decimal.Decimal, reg prometheus.Registerer, logger *zap.Logger) *Analyzer {
	locks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_high_value_locks_total",
		Help: "Funded vaults whose amount exceeds the high value threshold",
	})
	if reg != nil {
		reg.MustRegister(locks)
	}
	return &Analyzer{
		threshold: threshold,
		locks:     locks,
		logger:    logger.Named("analyzer"),
	}
}

// IsHighValue проверяет сумму против порога
func (a *Analyzer) IsHighValue(amount domain.Amount) bool {
	if !a.threshold.IsPositive() {
		return false
	}
	return amount.GreaterThan(a.threshold)
}

// Emit реализует engine.EventSink. Смотрим только успешное фондирование.
func (a *Analyzer) Emit(ev domain.Event) {
	if ev.Operation != domain.OpFund || !ev.Allowed() || ev.Amount == nil {
		return
	}
	if !a.IsHighValue(*ev.Amount) {
		return
	}
	a.locks.Inc()
	a.logger.Warn("HIGH VALUE LOCK",
		zap.String("vault_id", ev.VaultID),
		zap.String("amount", ev.Amount.String()),
		zap.String("threshold", a.threshold.String()),
		zap.String("role", string(ev.Role)),
	)
}
