package metrics

// Metrics holds provider token consumption for a time period.
// Per-request counters live in prometheus, not in usage reports.
type Metrics struct {
	tokens           int
	costMillidollars int
}

// New creates a Metrics snapshot.
func New(tokens, costMillidollars int) Metrics {
	return Metrics{tokens: tokens, costMillidollars: costMillidollars}
}

// Tokens returns the total tokens consumed.
func (m Metrics) Tokens() int { return m.tokens }

// CostMillidollars returns cost in millidollars (1 USD = 1000).
func (m Metrics) CostMillidollars() int { return m.costMillidollars }
