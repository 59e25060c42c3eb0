package sapsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/sapclient"
	"github.com/mmdatafocus/orders_backend/workflow"
	"github.com/sirupsen/logrus"
)

func testWorker() *Worker {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Worker{Logger: logger}
}

func TestMapRunToResponse(t *testing.T) {
	started := time.Date(2026, 3, 10, 8, 0, 0, 0, time.FixedZone("ict", 7*3600))
	parent := uint(3)
	resp := mapRunToResponse(models.IntegrationSyncRun{
		ID:            9,
		Job:           models.SyncJobGoodsIssue,
		Status:        models.SyncRunStatusPartial,
		StartedAt:     &started,
		RecordsSynced: 12,
		ErrorCount:    2,
		TriggeredBy:   models.SyncTriggeredRetry,
		ParentRunId:   &parent,
	})
	if resp.StartedAt == nil || *resp.StartedAt != "2026-03-10T01:00:00Z" {
		t.Fatalf("startedAt = %v", resp.StartedAt)
	}
	if resp.FinishedAt != nil {
		t.Fatalf("finishedAt should be nil")
	}
	if resp.Status != models.SyncRunStatusPartial || resp.ParentRunId == nil || *resp.ParentRunId != 3 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestSkippedToSyncErrors(t *testing.T) {
	got := skippedToSyncErrors([]workflow.SkippedEvent{{
		Event:  sapclient.GoodsIssueEvent{SalesOrder: "1100009", SalesOrderItem: "000010", Delivery: "80000001"},
		Reason: models.SyncErrorLineNotFound,
	}})
	if len(got) != 1 {
		t.Fatalf("len = %d", len(got))
	}
	e := got[0]
	if e.ExternalId != "1100009-10" || e.ErrorCode != models.SyncErrorLineNotFound || !e.Retryable {
		t.Fatalf("sync error %+v", e)
	}
	var payload map[string]any
	if err := json.Unmarshal(e.PayloadJSON, &payload); err != nil || payload["Delivery"] != "80000001" {
		t.Fatalf("payload %s: %v", e.PayloadJSON, err)
	}
}

func TestSyncErrorCode(t *testing.T) {
	if got := syncErrorCode(&workflow.SyncError{Stage: "fetch", Err: errors.New("502")}); got != models.SyncErrorFetchFailed {
		t.Fatalf("fetch stage = %s", got)
	}
	if got := syncErrorCode(&workflow.SyncError{Stage: "apply", Err: errors.New("deadlock")}); got != models.SyncErrorApplyFailed {
		t.Fatalf("apply stage = %s", got)
	}
	if got := syncErrorCode(errors.New("other")); got != models.SyncErrorApplyFailed {
		t.Fatalf("plain error = %s", got)
	}
}

func TestPubSubPushHandlerAcksMalformedMessages(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/pubsub/goods-issue", PubSubPushHandler(testWorker()))

	cases := []string{
		`not json`,
		`{"message":{"data":"bm90IGpzb24=","messageId":"1"}}`,
		`{"message":{"data":"eyJydW5faWQiOjB9","messageId":"2"}}`,
	}
	for _, body := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/pubsub/goods-issue", strings.NewReader(body))
		r.ServeHTTP(w, req)
		if w.Code != http.StatusNoContent {
			t.Fatalf("body %q: status = %d, want 204", body, w.Code)
		}
	}
}

func TestPubSubPushHandlerDisabled(t *testing.T) {
	t.Setenv("ENABLE_SAP_PUBSUB_PUSH_ENDPOINT", "false")
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/pubsub/goods-issue", PubSubPushHandler(testWorker()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pubsub/goods-issue", strings.NewReader(`{}`)))
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
}

func TestTriggerSyncHandlerRejectsUnknownJob(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/sync/goods-issue", TriggerSyncHandler(testWorker()))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/sync/goods-issue", strings.NewReader(`{"job":"invoices"}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestDrainBatchesRunsUntilNothingIsLeft(t *testing.T) {
	calls := 0
	total, err := drainBatches(context.Background(), func(ctx context.Context) (*workflow.SyncSummary, error) {
		calls++
		return &workflow.SyncSummary{Fetched: 2, Applied: 2, Flagged: 1, HasMore: calls < 3}, nil
	})
	if err != nil {
		t.Fatalf("drainBatches: %v", err)
	}
	if calls != 3 || total.Applied != 6 || total.Flagged != 3 || total.HasMore {
		t.Fatalf("calls=%d total=%+v", calls, total)
	}
}

func TestDrainBatchesStopsOnError(t *testing.T) {
	errBatch := errors.New("deadlock")
	calls := 0
	total, err := drainBatches(context.Background(), func(ctx context.Context) (*workflow.SyncSummary, error) {
		calls++
		if calls == 2 {
			return nil, errBatch
		}
		return &workflow.SyncSummary{Applied: 5, HasMore: true}, nil
	})
	if !errors.Is(err, errBatch) {
		t.Fatalf("err = %v, want %v", err, errBatch)
	}
	if total == nil || total.Applied != 5 {
		t.Fatalf("committed totals lost: %+v", total)
	}
}

func TestDrainBatchesStopsWhenABatchAppliesNothing(t *testing.T) {
	calls := 0
	_, err := drainBatches(context.Background(), func(ctx context.Context) (*workflow.SyncSummary, error) {
		calls++
		return &workflow.SyncSummary{HasMore: true}, nil
	})
	if err != nil || calls != 1 {
		t.Fatalf("calls=%d err=%v", calls, err)
	}
}
