package usecase

import (
	"context"
	"errors"
)

// ErrLedgerDisabled is returned when no usage ledger is configured.
var ErrLedgerDisabled = errors.New("usecase: usage ledger disabled")

// OperationSummary is the usage rollup for one provider.
type OperationSummary struct {
	Operation          string  `json:"operation"`
	TotalRequests      int64   `json:"total_requests"`
	SuccessfulRequests int64   `json:"successful_requests"`
	SuccessRate        float64 `json:"success_rate"`
	AverageLatencyMs   float64 `json:"average_latency_ms"`
	TotalInputBytes    int64   `json:"total_input_bytes"`
	TotalOutputBytes   int64   `json:"total_output_bytes"`
}

// UsageSummary represents aggregated relay insights.
type UsageSummary struct {
	TotalRequests      int64              `json:"total_requests"`
	SuccessfulRequests int64              `json:"successful_requests"`
	SuccessRate        float64            `json:"success_rate"`
	Operations         []OperationSummary `json:"operations"`
}

// UsageSummary aggregates relay metrics from persisted logs.
func (uc *RelayUseCase) UsageSummary(ctx context.Context) (*UsageSummary, error) {
	if uc.ledger == nil {
		return nil, ErrLedgerDisabled
	}
	rows, err := uc.ledger.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &UsageSummary{Operations: make([]OperationSummary, 0, len(rows))}
	for _, row := range rows {
		op := OperationSummary{
			Operation:          row.Operation,
			TotalRequests:      row.TotalCount,
			SuccessfulRequests: row.SuccessCount,
			AverageLatencyMs:   row.AverageLatencyMs,
			TotalInputBytes:    row.TotalInputBytes,
			TotalOutputBytes:   row.TotalOutputBytes,
		}
		if row.TotalCount > 0 {
			op.SuccessRate = float64(row.SuccessCount) / float64(row.TotalCount)
		}
		summary.TotalRequests += row.TotalCount
		summary.SuccessfulRequests += row.SuccessCount
		summary.Operations = append(summary.Operations, op)
	}
	if summary.TotalRequests > 0 {
		summary.SuccessRate = float64(summary.SuccessfulRequests) / float64(summary.TotalRequests)
	}
	return summary, nil
}
