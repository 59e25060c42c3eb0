package sapsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/utils"
	"github.com/mmdatafocus/orders_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrUnknownJob = errors.New("unknown sync job")

// Worker runs queued sync runs and keeps their bookkeeping.
type Worker struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Sync   *workflow.ConfirmationSync
	Now    func() time.Time
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now()
	}
	return time.Now()
}

// Enqueue creates a queued run for job.
func (w *Worker) Enqueue(ctx context.Context, job string, triggeredBy string, parent *uint) (*models.IntegrationSyncRun, error) {
	if job == "" {
		job = models.SyncJobGoodsIssue
	}
	if job != models.SyncJobGoodsIssue && job != models.SyncJobDtrDtp {
		return nil, fmt.Errorf("%w: %s", ErrUnknownJob, job)
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	run := &models.IntegrationSyncRun{
		Job:           job,
		TriggeredBy:   triggeredBy,
		CorrelationId: correlationId,
		ParentRunId:   parent,
	}
	if err := models.CreateSyncRun(ctx, w.DB, run); err != nil {
		config.LogError(w.Logger, "worker.go", "Enqueue", "CreateSyncRun", job, err)
		return nil, err
	}
	return run, nil
}

// RunNow enqueues and processes a run in the caller's goroutine.
func (w *Worker) RunNow(ctx context.Context, job string, triggeredBy string) (*models.IntegrationSyncRun, error) {
	run, err := w.Enqueue(ctx, job, triggeredBy, nil)
	if err != nil {
		return nil, err
	}
	if err := w.ProcessRun(ctx, run.ID); err != nil {
		return run, err
	}
	return models.GetSyncRun(ctx, w.DB, run.ID)
}

// ProcessRun executes a queued run. Finished runs are left alone so that a
// redelivered message is harmless.
func (w *Worker) ProcessRun(ctx context.Context, runId uint) error {
	run, err := models.GetSyncRun(ctx, w.DB, runId)
	if err != nil {
		return err
	}
	switch run.Status {
	case models.SyncRunStatusSuccess, models.SyncRunStatusFailed, models.SyncRunStatusPartial:
		return nil
	}
	if run.CorrelationId != "" {
		ctx = utils.SetCorrelationIdInContext(ctx, run.CorrelationId)
	}
	if err := models.StartSyncRun(ctx, w.DB, run, w.now()); err != nil {
		return err
	}

	summary, runErr := w.runJob(ctx, run.Job)
	var syncErrors []models.IntegrationSyncError
	if summary != nil {
		run.RecordsSynced = summary.Applied
		syncErrors = skippedToSyncErrors(summary.Skipped)
		run.ErrorCount = len(syncErrors)
	}
	if runErr != nil && !errors.Is(runErr, workflow.ErrSyncInProgress) {
		syncErrors = append(syncErrors, models.IntegrationSyncError{
			EntityType: run.Job,
			ErrorCode:  syncErrorCode(runErr),
			Message:    runErr.Error(),
			Retryable:  true,
		})
		run.ErrorCount = len(syncErrors)
	}
	if err := models.RecordSyncErrors(ctx, w.DB, run.ID, syncErrors); err != nil {
		config.LogError(w.Logger, "worker.go", "ProcessRun", "RecordSyncErrors", run.ID, err)
	}

	var stats datatypes.JSON
	if summary != nil {
		stats, _ = json.Marshal(summary)
	}
	if err := models.FinishSyncRun(ctx, w.DB, run, runErr, stats, w.now()); err != nil {
		config.LogError(w.Logger, "worker.go", "ProcessRun", "FinishSyncRun", run.ID, err)
		return err
	}
	w.Logger.WithFields(logrus.Fields{
		"field":          "ProcessRun",
		"run_id":         run.ID,
		"job":            run.Job,
		"status":         run.Status,
		"records_synced": run.RecordsSynced,
		"error_count":    run.ErrorCount,
	}).Info("sync run finished")
	return runErr
}

func (w *Worker) runJob(ctx context.Context, job string) (*workflow.SyncSummary, error) {
	switch job {
	case models.SyncJobGoodsIssue:
		return w.Sync.ReconcileGoodsIssue(ctx)
	case models.SyncJobDtrDtp:
		return drainBatches(ctx, w.Sync.DtrDtpHandle)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownJob, job)
}

// drainBatches runs batch until it reports nothing left, adding up the
// summaries. Each batch commits on its own; a failing batch stops the run and
// the committed totals are returned with the error.
func drainBatches(ctx context.Context, batch func(context.Context) (*workflow.SyncSummary, error)) (*workflow.SyncSummary, error) {
	total := &workflow.SyncSummary{}
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		s, err := batch(ctx)
		if err != nil {
			return total, err
		}
		total.Fetched += s.Fetched
		total.Applied += s.Applied
		total.Unchanged += s.Unchanged
		total.Flagged += s.Flagged
		total.Skipped = append(total.Skipped, s.Skipped...)
		total.HasMore = s.HasMore
		if !s.HasMore || s.Applied == 0 {
			return total, nil
		}
	}
}

func syncErrorCode(err error) string {
	var syncErr *workflow.SyncError
	if errors.As(err, &syncErr) && syncErr.Stage == "fetch" {
		return models.SyncErrorFetchFailed
	}
	return models.SyncErrorApplyFailed
}

func skippedToSyncErrors(skipped []workflow.SkippedEvent) []models.IntegrationSyncError {
	out := make([]models.IntegrationSyncError, 0, len(skipped))
	for _, s := range skipped {
		payload, _ := json.Marshal(s.Event)
		out = append(out, models.IntegrationSyncError{
			EntityType:  "order_line",
			ExternalId:  s.Event.Key(),
			ErrorCode:   s.Reason,
			Message:     "no local domestic order line for goods issue",
			PayloadJSON: payload,
			Retryable:   true,
		})
	}
	return out
}
