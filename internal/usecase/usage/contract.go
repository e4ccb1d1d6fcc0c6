package usage

// BudgetReader provides read-only access to provider token budget state.
// Derived values (remaining, exhaustion) are computed by the budget VO
// from the cap and spend.
type BudgetReader interface {
	Provider() string
	DailyLimit() int64
	MonthlyLimit() int64
	DailyUsed() int64
	MonthlyUsed() int64
}
