package conversation

import "time"

// ProcessingStats tracks request volume and latency for one handler.
// The average folds in successful responses only; failed attempts
// raise the total but never touch the latency figures.
type ProcessingStats struct {
	TotalRequests      int           `json:"total_requests"`
	SuccessfulRequests int           `json:"successful_requests"`
	AverageLatency     time.Duration `json:"average_response_time"`
}

func (p *ProcessingStats) recordAttempt() {
	p.TotalRequests++
}

func (p *ProcessingStats) recordSuccess(latency time.Duration) {
	p.SuccessfulRequests++
	n := time.Duration(p.SuccessfulRequests)
	p.AverageLatency = ((n-1)*p.AverageLatency + latency) / n
}

// Statistics is the full observable state of a handler.
type Statistics struct {
	Service     string          `json:"service"`
	Errors      ErrorStats      `json:"error_stats"`
	Processing  ProcessingStats `json:"processing_stats"`
	SuccessRate float64         `json:"success_rate"`
}

func successRate(p ProcessingStats) float64 {
	if p.TotalRequests == 0 {
		return 0
	}
	return float64(p.SuccessfulRequests) / float64(p.TotalRequests) * 100
}
