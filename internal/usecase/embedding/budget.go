package embedding

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kailas-cloud/ragdex/internal/domain"
)

// BudgetAction defines behavior when token budget is exceeded.
type BudgetAction string

const (
	// BudgetActionWarn logs a warning but allows the request.
	BudgetActionWarn BudgetAction = "warn"
	// BudgetActionReject blocks the request.
	BudgetActionReject BudgetAction = "reject"
)

// storeWriteTimeout caps the write-behind persistence of a single Record.
const storeWriteTimeout = 2 * time.Second

// BudgetStore is the persistence interface for budget counters.
// Implementations must be idempotent (IncrBy can be called repeatedly).
type BudgetStore interface {
	IncrBy(ctx context.Context, key string, val int64) error
	Get(ctx context.Context, key string) (int64, error)
}

// budgetWindow is one rolling accounting window, a UTC calendar day or month.
// scope names the window in store keys and log fields; layout formats the
// period component of the key.
type budgetWindow struct {
	scope    string
	layout   string
	truncate func(time.Time) time.Time
	limit    int64 // token cap, 0 = unlimited
	used     int64
	start    time.Time
}

func dayWindow(limit int64, now time.Time) budgetWindow {
	return budgetWindow{
		scope:    "daily",
		layout:   "2006-01-02",
		truncate: truncateToDay,
		limit:    limit,
		start:    truncateToDay(now),
	}
}

func monthWindow(limit int64, now time.Time) budgetWindow {
	return budgetWindow{
		scope:    "monthly",
		layout:   "2006-01",
		truncate: truncateToMonth,
		limit:    limit,
		start:    truncateToMonth(now),
	}
}

// key names the counter for the period containing t.
func (w *budgetWindow) key(provider string, t time.Time) string {
	return fmt.Sprintf("%sbudget:%s:%s:%s", domain.KeyPrefix, provider, w.scope, t.Format(w.layout))
}

// rollover zeroes the counter once t has left the current period.
// Caller holds the tracker lock.
func (w *budgetWindow) rollover(t time.Time) {
	if start := w.truncate(t); start.After(w.start) {
		w.used = 0
		w.start = start
	}
}

func (w *budgetWindow) exceeded() bool {
	return w.limit > 0 && w.used >= w.limit
}

// remaining reports tokens left in the period, -1 when unlimited.
func (w *budgetWindow) remaining() int64 {
	if w.limit == 0 {
		return -1
	}
	if left := w.limit - w.used; left > 0 {
		return left
	}
	return 0
}

// BudgetTracker meters embedding token spend against daily and monthly caps.
// The hot path (Check) never leaves memory; Record updates counters in-memory
// first, then write-behinds the increment to the attached store.
type BudgetTracker struct {
	mu       sync.Mutex
	day      budgetWindow
	month    budgetWindow
	action   BudgetAction
	provider string
	store    BudgetStore
	logger   *zap.Logger
}

// NewBudgetTracker creates a tracker for the given provider. A zero limit
// leaves that window unlimited.
func NewBudgetTracker(
	provider string, dailyLimit, monthlyLimit int64,
	action BudgetAction, logger *zap.Logger,
) *BudgetTracker {
	now := time.Now().UTC()
	return &BudgetTracker{
		day:      dayWindow(dailyLimit, now),
		month:    monthWindow(monthlyLimit, now),
		action:   action,
		provider: provider,
		logger:   logger,
	}
}

// WithStore attaches a persistence store and loads current counters.
func (b *BudgetTracker) WithStore(ctx context.Context, store BudgetStore) *BudgetTracker {
	b.store = store
	b.loadFromStore(ctx)
	return b
}

func (b *BudgetTracker) loadFromStore(ctx context.Context) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	for _, w := range []*budgetWindow{&b.day, &b.month} {
		val, err := b.store.Get(ctx, w.key(b.provider, now))
		if err != nil {
			b.logger.Warn("Failed to load budget counter from store",
				zap.String("scope", w.scope), zap.Error(err))
			continue
		}
		w.used = val
	}

	b.logger.Info("Budget loaded from store",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.day.used),
		zap.Int64("monthly_used", b.month.used),
	)
}

// Check verifies the budget allows a new request. In-memory only (hot path).
func (b *BudgetTracker) Check(_ context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now().UTC()
	b.day.rollover(now)
	b.month.rollover(now)

	if !b.day.exceeded() && !b.month.exceeded() {
		return nil
	}

	if b.action == BudgetActionReject {
		return domain.ErrEmbeddingQuotaExceeded
	}

	// action=warn: log but allow the request through
	b.logger.Warn("Token budget exceeded",
		zap.String("provider", b.provider),
		zap.Int64("daily_used", b.day.used),
		zap.Int64("daily_limit", b.day.limit),
		zap.Int64("monthly_used", b.month.used),
		zap.Int64("monthly_limit", b.month.limit),
	)
	return nil
}

// Record registers consumed tokens after a request. Counters update under the
// lock; store increments happen after release so slow writes never block the
// caller.
func (b *BudgetTracker) Record(tokens int64) {
	now := time.Now().UTC()
	keys := make([]string, 0, 2)

	b.mu.Lock()
	for _, w := range []*budgetWindow{&b.day, &b.month} {
		w.rollover(now)
		w.used += tokens
		keys = append(keys, w.key(b.provider, now))
	}
	store := b.store
	b.mu.Unlock()

	if store == nil {
		return
	}

	// Write-behind on a background context: Record runs on request paths
	// whose contexts may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), storeWriteTimeout)
	defer cancel()

	for _, key := range keys {
		if err := store.IncrBy(ctx, key, tokens); err != nil {
			b.logger.Warn("Failed to persist budget counter", zap.String("key", key), zap.Error(err))
		}
	}
}

// RemainingDaily returns tokens left today, -1 when unlimited.
func (b *BudgetTracker) RemainingDaily() int64 { return b.remaining(&b.day) }

// RemainingMonthly returns tokens left this month, -1 when unlimited.
func (b *BudgetTracker) RemainingMonthly() int64 { return b.remaining(&b.month) }

func (b *BudgetTracker) remaining(w *budgetWindow) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	w.rollover(time.Now().UTC())
	return w.remaining()
}

// DailyLimit returns the daily token cap.
func (b *BudgetTracker) DailyLimit() int64 { return b.day.limit }

// MonthlyLimit returns the monthly token cap.
func (b *BudgetTracker) MonthlyLimit() int64 { return b.month.limit }

// Provider returns the provider this tracker meters.
func (b *BudgetTracker) Provider() string { return b.provider }

// DailyUsed returns tokens consumed today.
func (b *BudgetTracker) DailyUsed() int64 { return b.spent(&b.day) }

// MonthlyUsed returns tokens consumed this month.
func (b *BudgetTracker) MonthlyUsed() int64 { return b.spent(&b.month) }

func (b *BudgetTracker) spent(w *budgetWindow) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	w.rollover(time.Now().UTC())
	return w.used
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}
