package sapsync

import (
	"time"

	"github.com/mmdatafocus/orders_backend/models"
)

type TriggerSyncRequest struct {
	Job string `json:"job" validate:"omitempty,oneof=goods_issue dtr_dtp"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type SyncRunResponse struct {
	ID            uint    `json:"id"`
	Job           string  `json:"job"`
	Status        string  `json:"status"`
	StartedAt     *string `json:"startedAt"`
	FinishedAt    *string `json:"finishedAt"`
	DurationMs    int64   `json:"durationMs"`
	RecordsSynced int     `json:"recordsSynced"`
	ErrorCount    int     `json:"errorCount"`
	ErrorMessage  string  `json:"errorMessage,omitempty"`
	TriggeredBy   string  `json:"triggeredBy"`
	ParentRunId   *uint   `json:"parentRunId,omitempty"`
}

type SyncRunDetailResponse struct {
	SyncRunResponse
	Errors []SyncErrorResponse `json:"errors"`
}

type SyncErrorResponse struct {
	ID         uint   `json:"id"`
	EntityType string `json:"entityType"`
	ExternalId string `json:"externalId"`
	ErrorCode  string `json:"errorCode"`
	Message    string `json:"message"`
	Retryable  bool   `json:"retryable"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	RunId         uint   `json:"run_id"`
	Job           string `json:"job"`
	CorrelationId string `json:"correlation_id"`
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func mapRunToResponse(run models.IntegrationSyncRun) SyncRunResponse {
	return SyncRunResponse{
		ID:            run.ID,
		Job:           run.Job,
		Status:        run.Status,
		StartedAt:     formatTime(run.StartedAt),
		FinishedAt:    formatTime(run.FinishedAt),
		DurationMs:    run.DurationMs,
		RecordsSynced: run.RecordsSynced,
		ErrorCount:    run.ErrorCount,
		ErrorMessage:  run.ErrorMessage,
		TriggeredBy:   run.TriggeredBy,
		ParentRunId:   run.ParentRunId,
	}
}

func mapErrors(errorsList []models.IntegrationSyncError) []SyncErrorResponse {
	out := make([]SyncErrorResponse, 0, len(errorsList))
	for _, errItem := range errorsList {
		out = append(out, SyncErrorResponse{
			ID:         errItem.ID,
			EntityType: errItem.EntityType,
			ExternalId: errItem.ExternalId,
			ErrorCode:  errItem.ErrorCode,
			Message:    errItem.Message,
			Retryable:  errItem.Retryable,
		})
	}
	return out
}
