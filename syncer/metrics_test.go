package syncer

import (
	"testing"
	"time"
)

func TestSnapshot_ThroughputMath(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	m := NewMetrics(start)
	m.AddRowsProcessed(12000)
	for i := 0; i < 600; i++ {
		m.AddPage()
	}

	snap := m.Snapshot(start.Add(60 * time.Second))
	if snap.RowsPerSec != 200 {
		t.Fatalf("expected 200 rows/sec, got %v", snap.RowsPerSec)
	}
	if snap.PagesPerSec != 10 {
		t.Fatalf("expected 10 pages/sec, got %v", snap.PagesPerSec)
	}
}

func TestETASeconds(t *testing.T) {
	if eta := ETASeconds(500, 10, 2000); eta != 150 {
		t.Fatalf("expected eta 150s, got %v", eta)
	}
	if eta := ETASeconds(2000, 10, 2000); eta != 0 {
		t.Fatalf("expected eta 0 past the estimate, got %v", eta)
	}
	if eta := ETASeconds(500, 0, 2000); eta != 0 {
		t.Fatalf("expected eta 0 with unknown rate, got %v", eta)
	}
}

func passingMetrics(start time.Time) *Metrics {
	m := NewMetrics(start)
	// 60s run: 900 pages, 150000 rows, 1000 requests, 10 errors
	for i := 0; i < 900; i++ {
		m.AddPage()
	}
	m.AddRowsProcessed(150000)
	for i := 0; i < 1000; i++ {
		m.AddAPIRequest()
	}
	for i := 0; i < 10; i++ {
		m.AddAPIError()
	}
	return m
}

func TestReport_PassesWithinThresholds(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	report := passingMetrics(start).Report(start.Add(60 * time.Second))

	if !report.Passed {
		t.Fatalf("expected passing report, violations: %v", report.Violations)
	}
	if report.ErrorRate != 0.01 {
		t.Fatalf("expected error rate 0.01, got %v", report.ErrorRate)
	}
}

func TestReport_AnySingleViolationFails(t *testing.T) {
	start := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	// Too slow overall
	slow := passingMetrics(start).Report(start.Add(26 * time.Minute))
	if slow.Passed {
		t.Fatal("expected failure for run over 25 minutes")
	}

	// Error rate at the 5% boundary fails
	m := passingMetrics(start)
	for i := 0; i < 40; i++ {
		m.AddAPIError()
	}
	noisy := m.Report(start.Add(60 * time.Second))
	if noisy.Passed {
		t.Fatalf("expected failure at 5%% error rate, got pass (rate %v)", noisy.ErrorRate)
	}

	// Throughput below 2000 rows/sec fails even when everything else is fine
	m2 := NewMetrics(start)
	for i := 0; i < 900; i++ {
		m2.AddPage()
	}
	m2.AddRowsProcessed(60000)
	m2.AddAPIRequest()
	lowRows := m2.Report(start.Add(60 * time.Second))
	if lowRows.Passed {
		t.Fatal("expected failure for 1000 rows/sec")
	}
}
