package sapsync

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/utils"
	"gorm.io/gorm"
)

func TriggerSyncHandler(w *Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TriggerSyncRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
				return
			}
		}
		if err := utils.ValidateStruct(req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		run, err := w.Enqueue(c.Request.Context(), req.Job, models.SyncTriggeredManual, nil)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		dispatch(c.Request.Context(), w, run)
		c.JSON(http.StatusAccepted, gin.H{"id": run.ID})
	}
}

func SyncHistoryHandler(w *Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := 20
		if v := strings.TrimSpace(c.Query("limit")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
				limit = n
			}
		}

		runs, err := models.ListSyncRuns(c.Request.Context(), w.DB, strings.TrimSpace(c.Query("job")), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		items := make([]SyncRunResponse, 0, len(runs))
		for _, run := range runs {
			items = append(items, mapRunToResponse(run))
		}
		c.JSON(http.StatusOK, SyncHistoryResponse{Items: items})
	}
}

func SyncRunDetailHandler(w *Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := loadRun(c, w)
		if !ok {
			return
		}
		errs, err := models.ListSyncErrors(c.Request.Context(), w.DB, run.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, SyncRunDetailResponse{
			SyncRunResponse: mapRunToResponse(*run),
			Errors:          mapErrors(errs),
		})
	}
}

func RetrySyncRunHandler(w *Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		run, ok := loadRun(c, w)
		if !ok {
			return
		}
		newRun, err := w.Enqueue(c.Request.Context(), run.Job, models.SyncTriggeredRetry, &run.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		dispatch(c.Request.Context(), w, newRun)
		c.JSON(http.StatusAccepted, gin.H{"id": newRun.ID})
	}
}

func loadRun(c *gin.Context, w *Worker) (*models.IntegrationSyncRun, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid run id"})
		return nil, false
	}
	run, err := models.GetSyncRun(c.Request.Context(), w.DB, uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return nil, false
	}
	return run, true
}
