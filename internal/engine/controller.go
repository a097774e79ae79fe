package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xela07ax/latch-escrow/internal/domain"
	"github.com/xela07ax/latch-escrow/internal/ledger"
	"github.com/xela07ax/latch-escrow/internal/policy"
	"github.com/xela07ax/latch-escrow/internal/query"
	"github.com/xela07ax/latch-escrow/internal/store"
	"go.uber.org/zap"
)

// Причины отказа при валидации ввода
const (
	ReasonInvalidAmount       = "Enter a valid Amount (SOL)."
	ReasonMissingCounterparty = "Enter a counterparty wallet (base58)."
	ReasonCreateFailed        = "Could not create vault, try again."
)

// Result — итог операции жизненного цикла. Отказ не является ошибкой Go:
// Decision.Allowed == false, а Entry — запись журнала с маркером отказа.
type Result struct {
	Decision policy.Decision      `json:"decision"`
	Vault    *domain.Vault        `json:"vault,omitempty"`
	Entry    domain.ActivityEntry `json:"entry"`
	// Invalid — отказ из-за невалидного ввода, а не политики
	Invalid bool `json:"invalid,omitempty"`
}

func (r Result) Allowed() bool { return r.Decision.Allowed }

type CreateDraftInput struct {
	Amount       string `json:"amount"`
	Counterparty string `json:"counterparty"`
	Memo         string `json:"memo,omitempty"`
}

type Options struct {
	Sinks   []EventSink
	State   StateSink
	Metrics *Metrics
	// Clock подменяется в тестах
	Clock func() time.Time
}

// Controller — VaultLifecycleController. Единственная точка записи (single-writer):
// проверка политики, мутация хранилища и запись в журнал выполняются под одним мьютексом,
// поэтому последовательность "проверили Draft -> поставили Funded" не может гоняться.
type Controller struct {
	mu sync.Mutex

	store   store.VaultStore
	ledger  *ledger.Ledger
	pdp     policy.Enforcer
	sinks   []EventSink
	state   StateSink
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time

	role        domain.Role
	selected    string
	lastCreated int64
}

func NewController(st store.VaultStore, l *ledger.Ledger, pdp policy.Enforcer, logger *zap.Logger, opts Options) *Controller {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Controller{
		store:   st,
		ledger:  l,
		pdp:     pdp,
		sinks:   opts.Sinks,
		state:   opts.State,
		metrics: opts.Metrics,
		logger:  logger.Named("controller"),
		now:     opts.Clock,
		role:    domain.RoleCreator,
	}
}

// AddSink подключает подписчика событий (например, после старта Redis)
func (c *Controller) AddSink(s EventSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinks = append(c.sinks, s)
}

// ---------- Protocol operations ----------

func (c *Controller) CreateDraft(ctx context.Context, role domain.Role, in CreateDraftInput) Result {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	if d := c.pdp.Evaluate(role, nil, domain.OpCreateDraft); !d.Allowed {
		return c.deny(ctx, start, domain.OpCreateDraft, role, nil, d, d.Reason+" (switch role to Creator)", false)
	}

	amount, err := domain.ParseAmount(in.Amount)
	if err != nil {
		return c.deny(ctx, start, domain.OpCreateDraft, role, nil, policy.Deny(ReasonInvalidAmount), ReasonInvalidAmount, true)
	}
	counterparty := strings.TrimSpace(in.Counterparty)
	if counterparty == "" {
		return c.deny(ctx, start, domain.OpCreateDraft, role, nil, policy.Deny(ReasonMissingCounterparty), ReasonMissingCounterparty, true)
	}

	v := domain.Vault{
		ID:           domain.NewVaultID(),
		CreatedAt:    c.nextCreatedAt(),
		Amount:       amount,
		Counterparty: counterparty,
		Status:       domain.StatusDraft,
		Memo:         strings.TrimSpace(in.Memo),
	}
	if err := c.store.Insert(v); err != nil {
		c.logger.Error("vault insert failed", zap.String("vault_id", v.ID), zap.Error(err))
		return c.deny(ctx, start, domain.OpCreateDraft, role, nil, policy.Deny(ReasonCreateFailed), ReasonCreateFailed, false)
	}
	c.selected = v.ID

	msg := fmt.Sprintf("%s Draft created: %s SOL → %s (%s)",
		domain.MarkCreated, v.Amount.String(), domain.ShortAddr(v.Counterparty), domain.ShortID(v.ID))
	return c.commit(ctx, start, domain.OpCreateDraft, role, v, msg, true)
}

func (c *Controller) Fund(ctx context.Context, role domain.Role, id string) Result {
	return c.transition(ctx, role, id, domain.OpFund, domain.StatusFunded, func(v domain.Vault) string {
		return fmt.Sprintf("%s Funded (locked): %s SOL in vault %s", domain.MarkMoved, v.Amount.String(), domain.ShortID(v.ID))
	})
}

func (c *Controller) Release(ctx context.Context, role domain.Role, id string) Result {
	return c.transition(ctx, role, id, domain.OpRelease, domain.StatusReleased, func(v domain.Vault) string {
		return fmt.Sprintf("%s Released to counterparty: %s (vault %s)", domain.MarkMoved, domain.ShortAddr(v.Counterparty), domain.ShortID(v.ID))
	})
}

func (c *Controller) Refund(ctx context.Context, role domain.Role, id string) Result {
	return c.transition(ctx, role, id, domain.OpRefund, domain.StatusRefunded, func(v domain.Vault) string {
		return fmt.Sprintf("%s Refunded to creator (simulated) for vault %s", domain.MarkMoved, domain.ShortID(v.ID))
	})
}

func (c *Controller) Delete(ctx context.Context, role domain.Role, id string) Result {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.lookup(id)
	if d := c.pdp.Evaluate(role, target, domain.OpDelete); !d.Allowed {
		return c.deny(ctx, start, domain.OpDelete, role, target, d, d.Reason, false)
	}
	if target == nil {
		return c.deny(ctx, start, domain.OpDelete, role, nil, policy.Deny(policy.ReasonSelectVault), policy.ReasonSelectVault, false)
	}
	// Инвариант автомата проверяется независимо от содержимого таблицы политик
	if err := target.CanDelete(); err != nil {
		return c.deny(ctx, start, domain.OpDelete, role, target, policy.Deny("Funded vaults cannot be deleted."), "Funded vaults cannot be deleted.", false)
	}
	if err := c.store.Remove(id); err != nil {
		return c.deny(ctx, start, domain.OpDelete, role, nil, policy.Deny(policy.ReasonSelectVault), policy.ReasonSelectVault, false)
	}
	if c.selected == id {
		c.selected = ""
	}

	res := c.commit(ctx, start, domain.OpDelete, role, *target, fmt.Sprintf("%s Vault deleted: %s", domain.MarkDeleted, domain.ShortID(id)), false)
	res.Vault = nil
	return res
}

// transition — общий путь Fund/Release/Refund
func (c *Controller) transition(ctx context.Context, role domain.Role, id string, op domain.Operation, next domain.Status, message func(domain.Vault) string) Result {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.lookup(id)
	if d := c.pdp.Evaluate(role, target, op); !d.Allowed {
		return c.deny(ctx, start, op, role, target, d, d.Reason, false)
	}
	if target == nil {
		return c.deny(ctx, start, op, role, nil, policy.Deny(policy.ReasonSelectVault), policy.ReasonSelectVault, false)
	}
	if err := target.CanTransitionTo(next); err != nil {
		reason := fmt.Sprintf("%s vaults cannot move to %s.", target.Status.Label(), next.Label())
		return c.deny(ctx, start, op, role, target, policy.Deny(reason), reason, false)
	}
	if err := c.store.SetStatus(id, next); err != nil {
		return c.deny(ctx, start, op, role, nil, policy.Deny(policy.ReasonSelectVault), policy.ReasonSelectVault, false)
	}

	v := *target
	v.Status = next
	return c.commit(ctx, start, op, role, v, message(v), false)
}

// ---------- Administrative ----------

// AdminReset — безусловная операторская очистка: хранилище, журнал и выбор.
// Это единственная мутация, которая НЕ проходит через PermissionEngine.
func (c *Controller) AdminReset(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Clear()
	c.ledger.Clear()
	c.selected = ""

	c.logger.Warn("admin reset: vaults and activity cleared", zap.String("trace_id", TraceID(ctx)))
	c.emit(domain.Event{
		ID:        uuid.NewString(),
		At:        c.now(),
		Operation: domain.OpAdminReset,
		Outcome:   domain.OutcomeAllowed,
	})
	c.afterChange()
}

// SelectRole меняет роль по умолчанию (выбор в UI-mode). Одна смена — одна запись.
func (c *Controller) SelectRole(role domain.Role) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.role == role {
		return
	}
	c.role = role
	entry := c.ledger.Append(domain.MarkMoved + " Role switched: " + role.Label())
	c.emit(domain.Event{
		ID:        uuid.NewString(),
		At:        c.now(),
		Operation: domain.OpSelectRole,
		Outcome:   domain.OutcomeAllowed,
		Role:      role,
		EntryID:   entry.ID,
	})
	c.afterChange()
}

func (c *Controller) Role() domain.Role {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.role
}

// Select делает vault выбранным. Журнал не пишется.
func (c *Controller) Select(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.store.Get(id); err != nil {
		return err
	}
	c.selected = id
	c.afterChange()
	return nil
}

func (c *Controller) Selected() (domain.Vault, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.selected == "" {
		return domain.Vault{}, false
	}
	v, err := c.store.Get(c.selected)
	if err != nil {
		return domain.Vault{}, false
	}
	return v, true
}

// ---------- Reads ----------

func (c *Controller) Vault(id string) (domain.Vault, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Get(id)
}

func (c *Controller) Vaults(p query.Params) []domain.Vault {
	c.mu.Lock()
	all := c.store.ListAll()
	c.mu.Unlock()
	return query.Apply(all, p)
}

func (c *Controller) Activity() []domain.ActivityEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ledger.List()
}

func (c *Controller) Balance() query.Balance {
	c.mu.Lock()
	all := c.store.ListAll()
	c.mu.Unlock()
	return query.Summarize(all)
}

// ---------- Export ----------

// ExportVault строит снимок одного vault. Попытка экспорта пишется в журнал.
func (c *Controller) ExportVault(ctx context.Context, role domain.Role, id string) (domain.ExportSnapshot, Result) {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.lookup(id)
	if target == nil {
		return domain.ExportSnapshot{}, c.deny(ctx, start, domain.OpExport, role, nil, policy.Deny(policy.ReasonSelectVault), policy.ReasonSelectVault, false)
	}
	snap := domain.ExportSnapshot{
		Type:        domain.ExportVault,
		ExportedAt:  c.now(),
		RoleContext: role,
		Vault:       target,
	}
	res := c.commit(ctx, start, domain.OpExport, role, *target,
		fmt.Sprintf("%s Exported vault JSON: %s", domain.MarkExport, domain.ShortID(id)), false)
	return snap, res
}

// ExportActivity снимает журнал до записи о самом экспорте
func (c *Controller) ExportActivity(ctx context.Context, role domain.Role) domain.ExportSnapshot {
	start := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := domain.ExportSnapshot{
		Type:        domain.ExportActivity,
		ExportedAt:  c.now(),
		RoleContext: role,
		Events:      c.ledger.List(),
	}
	entry := c.ledger.Append(domain.MarkExport + " Exported activity log JSON.")
	c.emit(domain.Event{
		ID:        uuid.NewString(),
		At:        c.now(),
		Operation: domain.OpExport,
		Outcome:   domain.OutcomeAllowed,
		Role:      role,
		EntryID:   entry.ID,
	})
	c.metrics.observeOperation(domain.OpExport, domain.OutcomeAllowed, time.Since(start).Seconds())
	c.afterChange()
	return snap
}

// ---------- Persistence ----------

func (c *Controller) Snapshot() domain.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Restore подгружает состояние из внешнего хранилища (при старте процесса)
func (c *Controller) Restore(st domain.State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.store.Clear()
	var maxCreated int64
	for _, v := range st.Vaults {
		if _, err := domain.ParseStatus(string(v.Status)); err != nil {
			return fmt.Errorf("restore vault %s: %w", v.ID, err)
		}
		if err := c.store.Insert(v); err != nil {
			if errors.Is(err, store.ErrDuplicateID) {
				c.logger.Warn("restore: duplicate vault id skipped", zap.String("vault_id", v.ID))
				continue
			}
			return fmt.Errorf("restore vault %s: %w", v.ID, err)
		}
		maxCreated = max(maxCreated, v.CreatedAt)
	}
	c.ledger.Restore(st.Activity)
	c.lastCreated = maxCreated

	if st.Role != "" {
		if r, err := domain.ParseRole(string(st.Role)); err == nil {
			c.role = r
		}
	}
	c.selected = ""
	if st.SelectedID != "" {
		if _, err := c.store.Get(st.SelectedID); err == nil {
			c.selected = st.SelectedID
		}
	}

	c.metrics.observeBalance(query.Summarize(c.store.ListAll()))
	c.logger.Info("state restored",
		zap.Int("vaults", len(st.Vaults)),
		zap.Int("activity", len(st.Activity)),
		zap.String("role", string(c.role)))
	return nil
}

// ---------- internals (вызываются под c.mu) ----------

func (c *Controller) lookup(id string) *domain.Vault {
	if id == "" {
		return nil
	}
	v, err := c.store.Get(id)
	if err != nil {
		return nil
	}
	return &v
}

// nextCreatedAt — монотонное время создания с точностью до мс
func (c *Controller) nextCreatedAt() int64 {
	ts := c.now().UnixMilli()
	if ts <= c.lastCreated {
		ts = c.lastCreated + 1
	}
	c.lastCreated = ts
	return ts
}

func (c *Controller) deny(ctx context.Context, start time.Time, op domain.Operation, role domain.Role, target *domain.Vault, d policy.Decision, message string, invalid bool) Result {
	entry := c.ledger.Fail(message)

	ev := domain.Event{
		ID:        uuid.NewString(),
		At:        c.now(),
		Operation: op,
		Outcome:   domain.OutcomeDenied,
		Role:      role,
		Reason:    d.Reason,
		EntryID:   entry.ID,
	}
	if target != nil {
		ev.VaultID = target.ID
		ev.Status = target.Status
	}
	c.emit(ev)
	c.metrics.observeOperation(op, domain.OutcomeDenied, time.Since(start).Seconds())
	// Журнал изменился, снимок тоже нужно сохранить
	c.persist()

	c.logger.Info("operation denied",
		zap.String("trace_id", TraceID(ctx)),
		zap.String("operation", string(op)),
		zap.String("role", string(role)),
		zap.String("vault_id", ev.VaultID),
		zap.String("reason", d.Reason))

	return Result{Decision: d, Vault: target, Entry: entry, Invalid: invalid}
}

func (c *Controller) commit(ctx context.Context, start time.Time, op domain.Operation, role domain.Role, v domain.Vault, message string, selected bool) Result {
	entry := c.ledger.Append(message)

	amount := v.Amount
	c.emit(domain.Event{
		ID:        uuid.NewString(),
		At:        c.now(),
		Operation: op,
		Outcome:   domain.OutcomeAllowed,
		Role:      role,
		VaultID:   v.ID,
		Status:    v.Status,
		Amount:    &amount,
		EntryID:   entry.ID,
		Selected:  selected,
	})
	c.metrics.observeOperation(op, domain.OutcomeAllowed, time.Since(start).Seconds())
	c.afterChange()

	c.logger.Debug("operation applied",
		zap.String("trace_id", TraceID(ctx)),
		zap.String("operation", string(op)),
		zap.String("role", string(role)),
		zap.String("vault_id", v.ID),
		zap.String("status", string(v.Status)))

	return Result{Decision: policy.Allow(), Vault: &v, Entry: entry}
}

func (c *Controller) emit(ev domain.Event) {
	for _, s := range c.sinks {
		s.Emit(ev)
	}
}

func (c *Controller) afterChange() {
	c.metrics.observeBalance(query.Summarize(c.store.ListAll()))
	c.persist()
}

func (c *Controller) persist() {
	if c.state == nil {
		return
	}
	c.state.Save(c.snapshotLocked())
}

func (c *Controller) snapshotLocked() domain.State {
	return domain.State{
		Vaults:     c.store.ListAll(),
		Activity:   c.ledger.List(),
		Role:       c.role,
		SelectedID: c.selected,
	}
}

// SetStateSink подключает сохранение снимков (после загрузки состояния при старте)
func (c *Controller) SetStateSink(s StateSink) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}
