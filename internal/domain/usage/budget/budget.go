package budget

// Budget is the provider token budget snapshot for one period.
type Budget struct {
	tokensLimit     int
	tokensRemaining int
	resetsAt        int64 // unix millis, converted to ISO 8601 at transport layer
}

// New derives a Budget from the period cap and spend. A non-positive limit
// means unlimited: remaining reports -1 and the budget never exhausts.
// Overspend (warn mode lets requests through) clamps remaining at zero.
func New(limit, used int, resetsAt int64) Budget {
	remaining := -1
	if limit > 0 {
		remaining = limit - used
		if remaining < 0 {
			remaining = 0
		}
	}
	return Budget{
		tokensLimit:     limit,
		tokensRemaining: remaining,
		resetsAt:        resetsAt,
	}
}

// TokensLimit returns the token cap.
func (b Budget) TokensLimit() int { return b.tokensLimit }

// TokensRemaining returns tokens left, -1 for unlimited.
func (b Budget) TokensRemaining() int { return b.tokensRemaining }

// IsExhausted reports whether the budget is spent. Unlimited budgets
// never exhaust.
func (b Budget) IsExhausted() bool { return b.tokensLimit > 0 && b.tokensRemaining <= 0 }

// ResetsAt returns the reset timestamp (unix millis).
func (b Budget) ResetsAt() int64 { return b.resetsAt }
