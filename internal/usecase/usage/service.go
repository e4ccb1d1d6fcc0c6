package usage

import (
	"context"
	"time"

	domusage "github.com/kailas-cloud/ragdex/internal/domain/usage"
	"github.com/kailas-cloud/ragdex/internal/domain/usage/budget"
	"github.com/kailas-cloud/ragdex/internal/domain/usage/metrics"
)

// Service handles usage reporting.
type Service struct {
	br             BudgetReader
	costPerMillion float64
}

// New creates a Service. br can be nil (unlimited mode); costPerMillion is
// the provider's dollar price per million tokens, 0 when unknown.
func New(br BudgetReader, costPerMillion float64) *Service {
	return &Service{br: br, costPerMillion: costPerMillion}
}

// GetReport builds a usage report for the given period.
func (s *Service) GetReport(_ context.Context, period domusage.Period) domusage.Report {
	now := time.Now().UTC()
	var start, end int64
	var limit, used int64
	var provider string

	if s.br != nil {
		provider = s.br.Provider()
	}

	switch period {
	case domusage.PeriodDay:
		dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		dayEnd := dayStart.Add(24 * time.Hour)
		start = dayStart.UnixMilli()
		end = dayEnd.UnixMilli()
		if s.br != nil {
			limit = s.br.DailyLimit()
			used = s.br.DailyUsed()
		}
	case domusage.PeriodMonth:
		monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
		monthEnd := monthStart.AddDate(0, 1, 0)
		start = monthStart.UnixMilli()
		end = monthEnd.UnixMilli()
		if s.br != nil {
			limit = s.br.MonthlyLimit()
			used = s.br.MonthlyUsed()
		}
	default:
		// total — no period boundaries
		if s.br != nil {
			limit = s.br.MonthlyLimit()
			used = s.br.MonthlyUsed()
		}
	}

	resetsAt := end

	b := budget.New(int(limit), int(used), resetsAt)
	m := metrics.New(int(used), costMillidollars(used, s.costPerMillion))

	return domusage.NewReport(period, start, end, provider, m, b)
}

// costMillidollars converts a token count into thousandths of a dollar at
// the given price per million tokens.
func costMillidollars(tokens int64, costPerMillion float64) int {
	if costPerMillion <= 0 || tokens <= 0 {
		return 0
	}
	return int(float64(tokens) * costPerMillion / 1000.0)
}
