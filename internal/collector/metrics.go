package collector

import (
	"fmt"
	"sort"
	"time"
)

// Metrics contains aggregated test results.
type Metrics struct {
	TotalRequests  int
	SuccessCount   int
	FailureCount   int
	SuccessRate    float64
	RequestsPerSec float64
	TestDuration   time.Duration
	Dropped        int64
	Duration       DurationMetrics
	Steps          map[string]*StepMetrics
	StatusCodes    map[int]int
	Errors         map[string]int
}

// DurationMetrics contains latency statistics.
type DurationMetrics struct {
	Min time.Duration
	Max time.Duration
	Avg time.Duration
	P50 time.Duration
	P90 time.Duration
	P95 time.Duration
	P99 time.Duration
}

// StepMetrics contains per-step statistics.
type StepMetrics struct {
	Count     int
	Success   int
	Failed    int
	BytesSent int64
	BytesRecv int64
	Duration  DurationMetrics
}

// ComputePercentile returns the nearest-rank percentile p (0..1) of an
// ascending slice.
func ComputePercentile(sorted []time.Duration, p float64) time.Duration {
	if len(sorted) == 0 {
		return 0
	}
	if p <= 0 {
		return sorted[0]
	}
	if p >= 1 {
		return sorted[len(sorted)-1]
	}
	return sorted[int(float64(len(sorted)-1)*p)]
}

// ComputeDurationMetrics calculates all duration statistics. The input is
// not modified.
func ComputeDurationMetrics(durations []time.Duration) DurationMetrics {
	if len(durations) == 0 {
		return DurationMetrics{}
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	return DurationMetrics{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: total / time.Duration(len(sorted)),
		P50: ComputePercentile(sorted, 0.50),
		P90: ComputePercentile(sorted, 0.90),
		P95: ComputePercentile(sorted, 0.95),
		P99: ComputePercentile(sorted, 0.99),
	}
}

// FormatDuration formats a duration for display.
func FormatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%dµs", d.Microseconds())
	}
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return d.Round(time.Second).String()
}
