package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"carsync/config"
	"carsync/models"
)

type RunState string

const (
	StateInit       RunState = "INIT"
	StateRunning    RunState = "RUNNING"
	StateMerging    RunState = "MERGING"
	StateFinalizing RunState = "FINALIZING"
	StateDone       RunState = "DONE"
	StateFailed     RunState = "FAILED"
)

// PageSource abstracts the fetcher for tests.
type PageSource interface {
	FetchPage(ctx context.Context, page int) ([]models.RawListing, error)
}

// SyncStore is the Postgres surface the orchestrator drives: staging writes
// plus the two server-side finalize procedures.
type SyncStore interface {
	StagingWriter
	ClearStaging(ctx context.Context) error
	BulkMergeFromStaging(ctx context.Context) (int, error)
	MarkMissingInactive(ctx context.Context, runID uuid.UUID) (int, error)
}

// RunRecorder persists the per-run audit row. Optional; nil disables it.
type RunRecorder interface {
	CreateSyncRun(ctx context.Context, run *models.SyncRun) error
	UpdateSyncRun(ctx context.Context, run *models.SyncRun) error
}

// Orchestrator drives one full sync: fetch, transform, upsert, checkpoint,
// merge, finalize. All collaborators are injected; nothing here is global,
// so runs are isolated from each other and from tests.
type Orchestrator struct {
	cfg         config.SyncConfig
	source      string
	fetcher     PageSource
	store       SyncStore
	upserter    *BatchUpserter
	transformer *Transformer
	checkpoints *CheckpointManager
	runs        RunRecorder
	bucket      *TokenBucket
	gate        *Gate
	breaker     *CircuitBreaker
	metrics     *Metrics
	logf        func(format string, args ...interface{})

	state RunState
}

type OrchestratorDeps struct {
	Fetcher     PageSource
	Store       SyncStore
	Upserter    *BatchUpserter
	Transformer *Transformer
	Checkpoints *CheckpointManager
	Runs        RunRecorder
	Bucket      *TokenBucket
	Gate        *Gate
	Breaker     *CircuitBreaker
	Metrics     *Metrics
	Logf        func(string, ...interface{})
}

func NewOrchestrator(cfg config.SyncConfig, source string, deps OrchestratorDeps) *Orchestrator {
	logf := deps.Logf
	if logf == nil {
		logf = func(string, ...interface{}) {}
	}
	return &Orchestrator{
		cfg:         cfg,
		source:      source,
		fetcher:     deps.Fetcher,
		store:       deps.Store,
		upserter:    deps.Upserter,
		transformer: deps.Transformer,
		checkpoints: deps.Checkpoints,
		runs:        deps.Runs,
		bucket:      deps.Bucket,
		gate:        deps.Gate,
		breaker:     deps.Breaker,
		metrics:     deps.Metrics,
		logf:        logf,
		state:       StateInit,
	}
}

func (o *Orchestrator) State() RunState {
	return o.state
}

type pageResult struct {
	page int
	raws []models.RawListing
	err  error
}

// Run executes the full pipeline and returns the final report. A non-nil
// error means the run ended in FAILED; the report is valid either way.
func (o *Orchestrator) Run(ctx context.Context) (Report, error) {
	start := time.Now()

	// INIT: resume or fresh
	runID := uuid.New()
	startPage := 1
	totalProcessed := 0

	if cp := o.checkpoints.Load(start); cp != nil {
		runID = cp.RunID
		startPage = cp.LastPage + 1
		totalProcessed = cp.TotalProcessed
		o.logf("resuming run %s from page %d (%d rows so far)", runID, startPage, totalProcessed)
	} else {
		if err := o.store.ClearStaging(ctx); err != nil {
			return o.fail(ctx, nil, fmt.Errorf("clear staging: %w", err))
		}
		o.logf("starting fresh run %s", runID)
	}

	run := &models.SyncRun{
		RunID:     runID,
		Source:    o.source,
		StartedAt: start,
		Status:    models.RunStatusRunning,
	}
	if o.runs != nil {
		if err := o.runs.CreateSyncRun(ctx, run); err != nil {
			o.logf("create run record failed: %v", err)
			o.runs = nil
		}
	}

	checkpoint := &models.SyncCheckpoint{
		RunID:          runID,
		LastPage:       startPage - 1,
		TotalProcessed: totalProcessed,
		StartTime:      start,
		LastUpdateTime: start,
	}

	// RUNNING
	o.state = StateRunning
	emptyStreak := 0
	page := startPage

pages:
	for page <= o.cfg.MaxPages && emptyStreak < o.cfg.MaxEmptyPages {
		waveSize := o.cfg.Concurrency
		if remaining := o.cfg.MaxPages - page + 1; waveSize > remaining {
			waveSize = remaining
		}

		results := o.fetchWave(ctx, page, waveSize)

		for _, res := range results {
			if res.err != nil {
				if errors.Is(res.err, ErrCircuitOpen) {
					return o.fail(ctx, run, fmt.Errorf("circuit breaker open at page %d", res.page))
				}
				if ctx.Err() != nil {
					return o.fail(ctx, run, ctx.Err())
				}
				o.logf("page %d failed after retries: %v", res.page, res.err)
				if o.metrics.APIErrors() > o.cfg.MaxAPIErrors {
					return o.fail(ctx, run, fmt.Errorf("api error ceiling exceeded (%d errors)", o.metrics.APIErrors()))
				}
				continue
			}

			o.metrics.AddPage()

			if len(res.raws) == 0 {
				emptyStreak++
				if emptyStreak >= o.cfg.MaxEmptyPages {
					o.logf("empty page streak of %d at page %d, stopping", emptyStreak, res.page)
					checkpoint.LastPage = res.page
					break pages
				}
				continue
			}
			emptyStreak = 0

			records := make([]*models.CachedCarRecord, 0, len(res.raws))
			dropped := 0
			for i := range res.raws {
				rec := o.transformer.Transform(&res.raws[i], start)
				if rec == nil {
					dropped++
					continue
				}
				records = append(records, rec)
			}
			o.metrics.AddRowsProcessed(len(res.raws))
			if dropped > 0 {
				o.metrics.AddRowsDropped(dropped)
				o.logf("page %d: dropped %d of %d records missing id/make/model", res.page, dropped, len(res.raws))
			}

			success, failed := o.upserter.Upsert(ctx, records)
			if failed > 0 {
				o.logf("page %d: %d rows failed to upsert", res.page, failed)
			}
			totalProcessed += success
			checkpoint.LastPage = res.page
		}

		checkpoint.TotalProcessed = totalProcessed
		checkpoint.LastUpdateTime = time.Now()
		o.checkpoints.Save(checkpoint)

		page += waveSize

		if (page-startPage)%10 < waveSize {
			snap := o.metrics.Snapshot(time.Now())
			o.logf("progress: page %d, %d rows, %.1f pages/s, %.1f rows/s, %d api errors",
				checkpoint.LastPage, totalProcessed, snap.PagesPerSec, snap.RowsPerSec, snap.APIErrors)
		}
	}

	// MERGING
	o.state = StateMerging
	merged, err := o.store.BulkMergeFromStaging(ctx)
	if err != nil {
		return o.fail(ctx, run, fmt.Errorf("merge phase: %w", err))
	}
	o.logf("merged %d rows from staging", merged)

	// FINALIZING
	o.state = StateFinalizing
	marked, err := o.store.MarkMissingInactive(ctx, runID)
	if err != nil {
		return o.fail(ctx, run, fmt.Errorf("finalize phase: %w", err))
	}
	o.logf("marked %d missing rows inactive", marked)
	if err := o.store.ClearStaging(ctx); err != nil {
		o.logf("clear staging after finalize failed: %v", err)
	}
	o.checkpoints.Clear()

	// DONE
	o.state = StateDone
	report := o.metrics.Report(time.Now())
	o.finishRun(ctx, run, models.RunStatusCompleted, "")
	o.logf("sync complete: %s", report)
	return report, nil
}

// fetchWave fetches up to waveSize consecutive pages concurrently, results
// ordered by page number. The gate bounds global in-flight work and the
// token bucket paces requests; the breaker wraps each fetch.
func (o *Orchestrator) fetchWave(ctx context.Context, firstPage, waveSize int) []pageResult {
	results := make([]pageResult, waveSize)
	var wg sync.WaitGroup

	for i := 0; i < waveSize; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := firstPage + i

			if !o.gate.Acquire(ctx) {
				results[i] = pageResult{page: p, err: ctx.Err()}
				return
			}
			defer o.gate.Release()

			if !o.bucket.Take(ctx) {
				results[i] = pageResult{page: p, err: ctx.Err()}
				return
			}

			var raws []models.RawListing
			err := o.breaker.Execute(ctx, func(ctx context.Context) error {
				var ferr error
				raws, ferr = o.fetcher.FetchPage(ctx, p)
				return ferr
			})
			results[i] = pageResult{page: p, raws: raws, err: err}
		}(i)
	}

	wg.Wait()
	return results
}

func (o *Orchestrator) fail(ctx context.Context, run *models.SyncRun, cause error) (Report, error) {
	o.state = StateFailed
	report := o.metrics.Report(time.Now())
	if run != nil {
		o.finishRun(ctx, run, models.RunStatusFailed, cause.Error())
	}
	o.logf("sync failed: %v (%s)", cause, report)
	return report, cause
}

func (o *Orchestrator) finishRun(ctx context.Context, run *models.SyncRun, status models.RunStatus, errMsg string) {
	if o.runs == nil {
		return
	}
	snap := o.metrics.Snapshot(time.Now())
	now := time.Now()
	run.FinishedAt = &now
	run.Status = status
	run.PagesFetched = snap.PagesFetched
	run.RowsProcessed = snap.RowsProcessed
	run.RowsUpserted = snap.RowsUpserted
	run.RowsDropped = snap.RowsDropped
	run.APIErrors = snap.APIErrors
	run.DBErrors = snap.DBErrors
	run.ErrorMessage = errMsg
	if err := o.runs.UpdateSyncRun(ctx, run); err != nil {
		o.logf("update run record failed: %v", err)
	}
}
