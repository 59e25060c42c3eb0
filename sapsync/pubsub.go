package sapsync

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/utils"
	"github.com/mmdatafocus/orders_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const pushHandlerName = "sapsync.push"

func syncTopic() string {
	topicName := strings.TrimSpace(os.Getenv("GOODS_ISSUE_SYNC_TOPIC"))
	if topicName == "" {
		topicName = "order-goods-issue-sync"
	}
	return topicName
}

func PublishSyncRun(ctx context.Context, run *models.IntegrationSyncRun) error {
	payload := SyncPubSubPayload{
		RunId:         run.ID,
		Job:           run.Job,
		CorrelationId: run.CorrelationId,
	}
	_, err := config.PublishJSON(ctx, syncTopic(), payload, config.EnvBool("GOODS_ISSUE_SYNC_CREATE_TOPIC", false))
	return err
}

// dispatch hands a queued run to Pub/Sub, or runs it inline when publishing
// is not possible.
func dispatch(ctx context.Context, w *Worker, run *models.IntegrationSyncRun) {
	err := PublishSyncRun(ctx, run)
	if err == nil {
		return
	}
	w.Logger.WithFields(logrus.Fields{
		"field":  "dispatch",
		"run_id": run.ID,
	}).Warn("publish sync run failed; running inline: " + err.Error())
	go func(ctx context.Context) {
		_ = w.ProcessRun(ctx, run.ID)
	}(context.WithoutCancel(ctx))
}

// PubSubPushHandler processes a pushed sync run once per Pub/Sub message.
func PubSubPushHandler(w *Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !config.EnvBool("ENABLE_SAP_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(http.StatusNoContent)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			config.LogError(w.Logger, "pubsub.go", "PubSubPushHandler", "io.ReadAll", nil, err)
			c.Status(http.StatusNoContent)
			return
		}

		// byte slice unmarshalling handles base64 decoding.
		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			config.LogError(w.Logger, "pubsub.go", "PubSubPushHandler", "Unmarshal envelope", string(body), err)
			c.Status(http.StatusNoContent)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			config.LogError(w.Logger, "pubsub.go", "PubSubPushHandler", "Unmarshal payload", string(envelope.Message.Data), err)
			c.Status(http.StatusNoContent)
			return
		}
		if payload.RunId == 0 {
			w.Logger.WithFields(logrus.Fields{
				"field":      "PubSubPushHandler",
				"message_id": envelope.Message.ID,
			}).Warn("push message without run id; dropping")
			c.Status(http.StatusNoContent)
			return
		}

		ctx := c.Request.Context()
		correlationId := payload.CorrelationId
		if correlationId == "" {
			correlationId = envelope.Message.ID
		}
		ctx = utils.SetCorrelationIdInContext(ctx, correlationId)
		ctx = utils.SetUserNameInContext(ctx, "System")

		messageId := envelope.Message.ID
		if messageId == "" {
			messageId = "run:" + strings.TrimSpace(payload.Job)
		}
		var skip bool
		err = w.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var beginErr error
			skip, beginErr = workflow.BeginIdempotency(tx, pushHandlerName, messageId)
			return beginErr
		})
		if errors.Is(err, workflow.ErrIdempotencyInProgress) {
			c.Status(http.StatusConflict)
			return
		}
		if err != nil {
			config.LogError(w.Logger, "pubsub.go", "PubSubPushHandler", "BeginIdempotency", messageId, err)
			c.Status(http.StatusInternalServerError)
			return
		}
		if skip {
			c.Status(http.StatusNoContent)
			return
		}

		runErr := w.ProcessRun(ctx, payload.RunId)
		if runErr != nil {
			_ = workflow.MarkIdempotencyFailed(w.DB.WithContext(ctx), pushHandlerName, messageId, runErr)
			w.Logger.WithFields(logrus.Fields{
				"field":          "PubSubPushHandler",
				"run_id":         payload.RunId,
				"message_id":     envelope.Message.ID,
				"correlation_id": correlationId,
			}).Error("sync run failed: " + runErr.Error())
			// The run is recorded as failed; a retry is a new run.
			c.Status(http.StatusNoContent)
			return
		}
		if err := workflow.MarkIdempotencySucceeded(w.DB.WithContext(ctx), pushHandlerName, messageId); err != nil {
			config.LogError(w.Logger, "pubsub.go", "PubSubPushHandler", "MarkIdempotencySucceeded", messageId, err)
		}
		c.Status(http.StatusNoContent)
	}
}
