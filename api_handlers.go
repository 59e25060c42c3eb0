package main

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/utils"
	"github.com/mmdatafocus/orders_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type api struct {
	db           *gorm.DB
	logger       *logrus.Logger
	orchestrator *workflow.AtpCtpOrchestrator
	now          func() time.Time
}

// writeError maps domain errors onto HTTP status codes.
func writeError(c *gin.Context, err error) {
	var validationErrs validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrs):
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation failed", "fields": utils.ProcessValidationErrors(err)})
	case errors.Is(err, models.ErrPlanningInFlight), errors.Is(err, workflow.ErrSyncInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrLineNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrInvalidOverdueDate),
		errors.Is(err, models.ErrInvalidRole),
		errors.Is(err, models.ErrLineCycle),
		errors.Is(err, workflow.ErrUnknownAttentionFlag):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

type attentionQuery struct {
	Role             string   `form:"role"`
	AttentionType    []string `form:"attention_type"`
	MatchExact       bool     `form:"match_exact"`
	Overdue1         *bool    `form:"overdue_1"`
	Overdue2         *bool    `form:"overdue_2"`
	ItemStatus       []string `form:"item_status"`
	ProductionStatus []string `form:"production_status"`
	Plant            []string `form:"plant"`
	SoldTo           []string `form:"sold_to"`
	RequestDate      string   `form:"request_date"`
	RequestDateFrom  string   `form:"request_date_from"`
	RequestDateTo    string   `form:"request_date_to"`
	ConfirmedDate    string   `form:"confirmed_date"`
	ConfirmedFrom    string   `form:"confirmed_date_from"`
	ConfirmedTo      string   `form:"confirmed_date_to"`
	After            string   `form:"after"`
	Limit            int      `form:"limit"`
}

func parseQueryDate(raw string) (*time.Time, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	d, err := models.ParseOverdueDate(raw)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// toFilter turns query parameters into a filter. A single request_date or
// confirmed_date is returned separately so the caller can run the lazy
// overdue markers for it.
func (q attentionQuery) toFilter() (models.AttentionFilter, []time.Time, error) {
	f := models.AttentionFilter{
		Role:             models.OrderType(strings.ToLower(strings.TrimSpace(q.Role))),
		AttentionTypes:   models.NormalizeFlagQuery(q.AttentionType),
		MatchExact:       q.MatchExact,
		Overdue1:         q.Overdue1,
		Overdue2:         q.Overdue2,
		ItemStatus:       q.ItemStatus,
		ProductionStatus: q.ProductionStatus,
		Plants:           q.Plant,
		SoldTo:           q.SoldTo,
		Limit:            q.Limit,
	}
	if f.Role == "" {
		f.Role = models.OrderTypeDomestic
	}
	if q.After != "" {
		after := q.After
		f.After = &after
	}
	for _, code := range f.AttentionTypes {
		if !models.IsAttentionFlag(code) {
			return f, nil, workflow.ErrUnknownAttentionFlag
		}
	}

	var lazy []time.Time
	var err error
	if f.RequestDateFrom, err = parseQueryDate(q.RequestDateFrom); err != nil {
		return f, nil, err
	}
	if f.RequestDateTo, err = parseQueryDate(q.RequestDateTo); err != nil {
		return f, nil, err
	}
	if f.ConfirmedDateFrom, err = parseQueryDate(q.ConfirmedFrom); err != nil {
		return f, nil, err
	}
	if f.ConfirmedDateTo, err = parseQueryDate(q.ConfirmedTo); err != nil {
		return f, nil, err
	}
	if d, err := parseQueryDate(q.RequestDate); err != nil {
		return f, nil, err
	} else if d != nil {
		f.RequestDateFrom, f.RequestDateTo = d, d
		lazy = append(lazy, *d)
	}
	if d, err := parseQueryDate(q.ConfirmedDate); err != nil {
		return f, nil, err
	} else if d != nil {
		f.ConfirmedDateFrom, f.ConfirmedDateTo = d, d
		lazy = append(lazy, *d)
	}
	return f, lazy, nil
}

func (a *api) attentionLinesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var q attentionQuery
		if err := c.ShouldBindQuery(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
			return
		}
		filter, lazyDates, err := q.toFilter()
		if err != nil {
			writeError(c, err)
			return
		}
		if err := utils.ValidateStruct(filter); err != nil {
			writeError(c, err)
			return
		}

		ctx := c.Request.Context()
		for _, d := range utils.UniqueSlice(lazyDates) {
			if err := models.MarkOverdueLazily(ctx, a.db, a.logger, d, a.now()); err != nil {
				writeError(c, err)
				return
			}
		}

		page, err := models.ListAttentionLines(ctx, a.db, filter)
		if err != nil {
			writeError(c, err)
			return
		}
		if page.TotalCount, err = models.CountAttentionLines(ctx, a.db, filter); err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

type flagsRequest struct {
	Flags []string `json:"flags" validate:"required,min=1,dive,required"`
}

func lineIdParam(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid line id"})
		return 0, false
	}
	return id, true
}

func (a *api) attentionFlagsHandler(remove bool) gin.HandlerFunc {
	mutate := workflow.AddAttentionFlags
	if remove {
		mutate = workflow.RemoveAttentionFlags
	}
	return func(c *gin.Context) {
		id, ok := lineIdParam(c)
		if !ok {
			return
		}
		var req flagsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			writeError(c, err)
			return
		}
		line, err := mutate(c.Request.Context(), a.db, a.logger, id, req.Flags)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": line.ID, "attention_type": line.AttentionType, "version": line.Version})
	}
}

type assignParentRequest struct {
	ParentId int `json:"parent_id" validate:"required,gt=0"`
}

func (a *api) assignParentHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := lineIdParam(c)
		if !ok {
			return
		}
		var req assignParentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			writeError(c, err)
			return
		}
		ctx := c.Request.Context()
		err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			line, err := models.GetOrderLine(ctx, tx, id)
			if err != nil {
				return err
			}
			return models.AssignParent(ctx, tx, line, req.ParentId)
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "parent_id": req.ParentId})
	}
}

type planRequestBody struct {
	Lines []workflow.LineRef `json:"lines" validate:"required,min=1,dive"`
}

func (a *api) requestPlanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req planRequestBody
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			writeError(c, err)
			return
		}
		result, err := a.orchestrator.RequestPlan(c.Request.Context(), req.Lines)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

type confirmPlanBody struct {
	Selections []workflow.PlanSelection `json:"selections" validate:"required,min=1"`
}

func (a *api) confirmPlanHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req confirmPlanBody
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			writeError(c, err)
			return
		}
		result, err := a.orchestrator.ConfirmPlan(c.Request.Context(), req.Selections)
		if err != nil {
			writeError(c, err)
			return
		}
		status := http.StatusOK
		if len(result.FailedLines) > 0 {
			status = http.StatusMultiStatus
		}
		c.JSON(status, result)
	}
}

type markOverdueBody struct {
	Date string `json:"date" validate:"required"`
	By   string `json:"by" validate:"required,oneof=request_date confirmed_date"`
}

func (a *api) markOverdueHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req markOverdueBody
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
			return
		}
		if err := utils.ValidateStruct(req); err != nil {
			writeError(c, err)
			return
		}
		date, err := models.ParseOverdueDate(req.Date)
		if err != nil {
			writeError(c, err)
			return
		}
		mark := models.MarkOverdueByRequestDate
		if req.By == "confirmed_date" {
			mark = models.MarkOverdueByConfirmedDate
		}
		n, err := mark(c.Request.Context(), a.db, date, a.now())
		if err != nil {
			config.LogError(a.logger, "api_handlers.go", "markOverdueHandler", req.By, req.Date, err)
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"date": date.Format("2006-01-02"), "by": req.By, "marked": n})
	}
}
