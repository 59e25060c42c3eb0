package models

import (
	"context"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	IntegrationProviderSAP = "sap"
)

const (
	SyncJobGoodsIssue  = "goods_issue"
	SyncJobDtrDtp      = "dtr_dtp"
	SyncJobPruneDrafts = "prune_drafts"
)

const (
	SyncRunStatusQueued  = "queued"
	SyncRunStatusRunning = "running"
	SyncRunStatusSuccess = "success"
	SyncRunStatusFailed  = "failed"
	SyncRunStatusPartial = "partial"
)

const (
	SyncTriggeredManual = "manual"
	SyncTriggeredRetry  = "retry"
	SyncTriggeredSystem = "system"
)

const (
	SyncErrorLineNotFound = "line_not_found"
	SyncErrorFetchFailed  = "fetch_failed"
	SyncErrorApplyFailed  = "apply_failed"
)

type IntegrationSyncRun struct {
	ID            uint           `gorm:"primary_key" json:"id"`
	Provider      string         `gorm:"index;size:50;not null" json:"provider"`
	Job           string         `gorm:"index;size:50;not null" json:"job"`
	Status        string         `gorm:"size:20;not null" json:"status"`
	TriggeredBy   string         `gorm:"size:20" json:"triggered_by"`
	CorrelationId string         `gorm:"size:64;index" json:"correlation_id"`
	StatsJSON     datatypes.JSON `gorm:"type:json" json:"stats"`
	RecordsSynced int            `json:"records_synced"`
	ErrorCount    int            `json:"error_count"`
	ErrorMessage  string         `gorm:"type:text" json:"error_message"`
	ParentRunId   *uint          `gorm:"index" json:"parent_run_id"`
	StartedAt     *time.Time     `json:"started_at"`
	FinishedAt    *time.Time     `json:"finished_at"`
	DurationMs    int64          `json:"duration_ms"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

type IntegrationSyncError struct {
	ID          uint           `gorm:"primary_key" json:"id"`
	SyncRunId   uint           `gorm:"index;not null" json:"sync_run_id"`
	EntityType  string         `gorm:"size:50" json:"entity_type"`
	ExternalId  string         `gorm:"size:128" json:"external_id"`
	ErrorCode   string         `gorm:"size:64" json:"error_code"`
	Message     string         `gorm:"type:text" json:"message"`
	PayloadJSON datatypes.JSON `gorm:"type:json" json:"payload"`
	Retryable   bool           `gorm:"default:false" json:"retryable"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

func CreateSyncRun(ctx context.Context, db *gorm.DB, run *IntegrationSyncRun) error {
	if run.Provider == "" {
		run.Provider = IntegrationProviderSAP
	}
	if run.Status == "" {
		run.Status = SyncRunStatusQueued
	}
	return db.WithContext(ctx).Create(run).Error
}

func GetSyncRun(ctx context.Context, db *gorm.DB, id uint) (*IntegrationSyncRun, error) {
	var run IntegrationSyncRun
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func ListSyncRuns(ctx context.Context, db *gorm.DB, job string, limit int) ([]IntegrationSyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	q := db.WithContext(ctx).Where("provider = ?", IntegrationProviderSAP)
	if job != "" {
		q = q.Where("job = ?", job)
	}
	var runs []IntegrationSyncRun
	err := q.Order("id DESC").Limit(limit).Find(&runs).Error
	return runs, err
}

func ListSyncErrors(ctx context.Context, db *gorm.DB, runId uint) ([]IntegrationSyncError, error) {
	var errs []IntegrationSyncError
	err := db.WithContext(ctx).Where("sync_run_id = ?", runId).Order("id").Find(&errs).Error
	return errs, err
}

// StartSyncRun moves a queued run to running.
func StartSyncRun(ctx context.Context, db *gorm.DB, run *IntegrationSyncRun, at time.Time) error {
	run.Status = SyncRunStatusRunning
	run.StartedAt = &at
	return db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":     run.Status,
		"started_at": at,
	}).Error
}

// FinishSyncRun records the outcome of a run. Errors already written for
// the run decide between success and partial.
func FinishSyncRun(ctx context.Context, db *gorm.DB, run *IntegrationSyncRun, runErr error, stats datatypes.JSON, at time.Time) error {
	run.FinishedAt = &at
	if run.StartedAt != nil {
		run.DurationMs = at.Sub(*run.StartedAt).Milliseconds()
	}
	run.StatsJSON = stats
	switch {
	case runErr != nil:
		run.Status = SyncRunStatusFailed
		run.ErrorMessage = runErr.Error()
	case run.ErrorCount > 0:
		run.Status = SyncRunStatusPartial
	default:
		run.Status = SyncRunStatusSuccess
	}
	return db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":         run.Status,
		"finished_at":    at,
		"duration_ms":    run.DurationMs,
		"stats_json":     run.StatsJSON,
		"records_synced": run.RecordsSynced,
		"error_count":    run.ErrorCount,
		"error_message":  run.ErrorMessage,
	}).Error
}

func RecordSyncErrors(ctx context.Context, db *gorm.DB, runId uint, errs []IntegrationSyncError) error {
	if len(errs) == 0 {
		return nil
	}
	for i := range errs {
		errs[i].SyncRunId = runId
	}
	return db.WithContext(ctx).CreateInBatches(&errs, 100).Error
}
