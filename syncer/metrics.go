package syncer

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Metrics is the per-run accumulator. The orchestrator owns one instance and
// hands it to the stages; there is no package-level state, so concurrent runs
// and tests never interfere.
type Metrics struct {
	mu            sync.Mutex
	startTime     time.Time
	pagesFetched  int
	rowsProcessed int
	rowsUpserted  int
	rowsDropped   int
	apiRequests   int
	apiErrors     int
	dbErrors      int
}

func NewMetrics(start time.Time) *Metrics {
	return &Metrics{startTime: start}
}

func (m *Metrics) AddPage()               { m.add(&m.pagesFetched, 1) }
func (m *Metrics) AddRowsProcessed(n int) { m.add(&m.rowsProcessed, n) }
func (m *Metrics) AddRowsUpserted(n int)  { m.add(&m.rowsUpserted, n) }
func (m *Metrics) AddRowsDropped(n int)   { m.add(&m.rowsDropped, n) }
func (m *Metrics) AddAPIRequest()         { m.add(&m.apiRequests, 1) }
func (m *Metrics) AddAPIError()           { m.add(&m.apiErrors, 1) }
func (m *Metrics) AddDBError()            { m.add(&m.dbErrors, 1) }

func (m *Metrics) add(field *int, n int) {
	m.mu.Lock()
	*field += n
	m.mu.Unlock()
}

func (m *Metrics) APIErrors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.apiErrors
}

// Snapshot is a consistent copy of the counters plus derived rates.
type Snapshot struct {
	StartTime     time.Time
	Elapsed       time.Duration
	PagesFetched  int
	RowsProcessed int
	RowsUpserted  int
	RowsDropped   int
	APIRequests   int
	APIErrors     int
	DBErrors      int
	PagesPerSec   float64
	RowsPerSec    float64
}

func (m *Metrics) Snapshot(now time.Time) Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	elapsed := now.Sub(m.startTime)
	s := Snapshot{
		StartTime:     m.startTime,
		Elapsed:       elapsed,
		PagesFetched:  m.pagesFetched,
		RowsProcessed: m.rowsProcessed,
		RowsUpserted:  m.rowsUpserted,
		RowsDropped:   m.rowsDropped,
		APIRequests:   m.apiRequests,
		APIErrors:     m.apiErrors,
		DBErrors:      m.dbErrors,
	}
	if sec := elapsed.Seconds(); sec > 0 {
		s.PagesPerSec = float64(m.pagesFetched) / sec
		s.RowsPerSec = float64(m.rowsProcessed) / sec
	}
	return s
}

// ETASeconds estimates remaining run time from current position and observed
// page rate. Zero when the rate is unknown or the run is past the estimate.
func ETASeconds(currentPage int, pagesPerSec float64, estimatedTotalPages int) float64 {
	if pagesPerSec <= 0 || estimatedTotalPages <= currentPage {
		return 0
	}
	return float64(estimatedTotalPages-currentPage) / pagesPerSec
}

// Acceptance thresholds for the final report. A run violating any one of
// them is reported as failing.
const (
	maxTotalMinutes = 25.0
	minPagesPerSec  = 10.0
	minRowsPerSec   = 2000.0
	maxErrorRate    = 0.05
)

// Report is the operator-facing run verdict.
type Report struct {
	Snapshot
	TotalMinutes float64
	ErrorRate    float64
	Passed       bool
	Violations   []string
}

func (m *Metrics) Report(now time.Time) Report {
	s := m.Snapshot(now)

	r := Report{
		Snapshot:     s,
		TotalMinutes: s.Elapsed.Minutes(),
	}
	if s.APIRequests > 0 {
		r.ErrorRate = float64(s.APIErrors+s.DBErrors) / float64(s.APIRequests)
	}

	if r.TotalMinutes > maxTotalMinutes {
		r.Violations = append(r.Violations, fmt.Sprintf("total time %.1fm > %.0fm", r.TotalMinutes, maxTotalMinutes))
	}
	if s.PagesPerSec < minPagesPerSec {
		r.Violations = append(r.Violations, fmt.Sprintf("pages/sec %.1f < %.0f", s.PagesPerSec, minPagesPerSec))
	}
	if s.RowsPerSec < minRowsPerSec {
		r.Violations = append(r.Violations, fmt.Sprintf("rows/sec %.1f < %.0f", s.RowsPerSec, minRowsPerSec))
	}
	if r.ErrorRate >= maxErrorRate {
		r.Violations = append(r.Violations, fmt.Sprintf("error rate %.3f >= %.2f", r.ErrorRate, maxErrorRate))
	}

	r.Passed = len(r.Violations) == 0
	return r
}

func (r Report) String() string {
	verdict := "PASS"
	if !r.Passed {
		verdict = "FAIL: " + strings.Join(r.Violations, "; ")
	}
	return fmt.Sprintf(
		"pages=%d rows=%d upserted=%d dropped=%d apiErr=%d dbErr=%d elapsed=%.1fm pages/s=%.1f rows/s=%.1f errRate=%.3f [%s]",
		r.PagesFetched, r.RowsProcessed, r.RowsUpserted, r.RowsDropped,
		r.APIErrors, r.DBErrors, r.TotalMinutes, r.PagesPerSec, r.RowsPerSec, r.ErrorRate, verdict,
	)
}
