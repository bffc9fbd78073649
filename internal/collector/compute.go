package collector

import (
	"time"

	"flowload/internal/core"
)

// ComputeMetrics computes metrics from events. Pure function, no side effects.
func ComputeMetrics(events []core.Event, testDuration time.Duration) *Metrics {
	m := &Metrics{
		Steps:        make(map[string]*StepMetrics),
		StatusCodes:  make(map[int]int),
		Errors:       make(map[string]int),
		TestDuration: testDuration,
	}
	if len(events) == 0 {
		return m
	}

	allDurations := make([]time.Duration, 0, len(events))
	stepDurations := make(map[string][]time.Duration)

	for _, e := range events {
		m.TotalRequests++
		if e.Success {
			m.SuccessCount++
		} else {
			m.FailureCount++
			if e.Error != "" {
				m.Errors[e.Error]++
			}
		}
		m.StatusCodes[e.StatusCode]++
		allDurations = append(allDurations, e.Duration)

		step, ok := m.Steps[e.Step]
		if !ok {
			step = &StepMetrics{}
			m.Steps[e.Step] = step
		}
		step.Count++
		if e.Success {
			step.Success++
		} else {
			step.Failed++
		}
		step.BytesSent += e.BytesSent
		step.BytesRecv += e.BytesRecv
		stepDurations[e.Step] = append(stepDurations[e.Step], e.Duration)
	}

	m.SuccessRate = float64(m.SuccessCount) / float64(m.TotalRequests) * 100
	if m.TestDuration > 0 {
		m.RequestsPerSec = float64(m.TotalRequests) / m.TestDuration.Seconds()
	}

	m.Duration = ComputeDurationMetrics(allDurations)
	for step, durations := range stepDurations {
		m.Steps[step].Duration = ComputeDurationMetrics(durations)
	}
	return m
}
