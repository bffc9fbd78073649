package collector_test

import (
	"fmt"
	"time"

	"flowload/internal/collector"
	"flowload/internal/core"
)

func ExampleNew() {
	c := collector.New()

	c.Report(core.Event{ActorID: 1, Step: "login", Success: true, Duration: 50 * time.Millisecond})
	c.Report(core.Event{ActorID: 1, Step: "fetch", Success: true, Duration: 100 * time.Millisecond})

	// Close drains the buffer before reading.
	c.Close()

	fmt.Printf("Collected %d events\n", len(c.Events()))
	// Output: Collected 2 events
}

func ExampleComputeMetrics() {
	events := []core.Event{
		{Step: "api", Success: true, Duration: 10 * time.Millisecond},
		{Step: "api", Success: true, Duration: 20 * time.Millisecond},
		{Step: "api", Success: true, Duration: 30 * time.Millisecond},
		{Step: "api", Success: false, Duration: 5 * time.Millisecond},
	}

	metrics := collector.ComputeMetrics(events, time.Second)

	fmt.Printf("Total: %d, Success: %d, Rate: %.0f%%\n",
		metrics.TotalRequests, metrics.SuccessCount, metrics.SuccessRate)
	// Output: Total: 4, Success: 3, Rate: 75%
}

func ExampleCollector_DroppedEvents() {
	c := collector.New()
	c.Close()

	if dropped := c.DroppedEvents(); dropped > 0 {
		fmt.Printf("Warning: %d events dropped\n", dropped)
	} else {
		fmt.Println("No events dropped")
	}
	// Output: No events dropped
}
