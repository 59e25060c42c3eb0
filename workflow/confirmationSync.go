package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/sapclient"
	"github.com/mmdatafocus/orders_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	goodsIssueLockKey = "lock:sync:goods_issue"
	goodsIssueLockTTL = 10 * time.Minute
	dtrDtpBatchSize   = 500
)

var ErrSyncInProgress = errors.New("goods issue sync already running")

// SyncError is a batch-fatal failure of a sync run. Nothing the run wrote
// inside its transaction is committed.
type SyncError struct {
	Stage string
	Err   error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("goods issue sync failed at %s: %v", e.Stage, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// SkippedEvent is an ERP event that matched no local domestic line.
type SkippedEvent struct {
	Event  sapclient.GoodsIssueEvent
	Reason string
}

// SyncSummary counts what a run did. HasMore is set when eligible lines were
// left for a following batch.
type SyncSummary struct {
	Fetched   int            `json:"fetched"`
	Applied   int            `json:"applied"`
	Unchanged int            `json:"unchanged"`
	Flagged   int            `json:"flagged"`
	HasMore   bool           `json:"has_more"`
	Skipped   []SkippedEvent `json:"-"`
}

func (s SyncSummary) SkippedCount() int { return len(s.Skipped) }

type ConfirmationSync struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	ERP    sapclient.Client
	Locker Locker
	// BatchSize caps the lines one DtrDtpHandle call evaluates.
	BatchSize int
}

func (s *ConfirmationSync) batchSize() int {
	if s.BatchSize > 0 {
		return s.BatchSize
	}
	return dtrDtpBatchSize
}

// ReconcileGoodsIssue applies every pending ERP goods-issue event to its
// domestic order line in one transaction.
func (s *ConfirmationSync) ReconcileGoodsIssue(ctx context.Context) (*SyncSummary, error) {
	ctx, span := tracer.Start(ctx, "ConfirmationSync.ReconcileGoodsIssue")
	defer span.End()

	unlock, err := obtainLock(ctx, s.Logger, s.Locker, goodsIssueLockKey, goodsIssueLockTTL, true, ErrSyncInProgress)
	if err != nil {
		return nil, err
	}
	defer unlock()

	events, err := s.ERP.GetGoodsIssueEvents(ctx)
	if err != nil {
		config.LogError(s.Logger, "confirmationSync.go", "ReconcileGoodsIssue", "GetGoodsIssueEvents", nil, err)
		span.SetStatus(codes.Error, err.Error())
		return nil, &SyncError{Stage: "fetch", Err: err}
	}
	events = latestEventPerLine(events)
	summary := &SyncSummary{Fetched: len(events)}
	span.SetAttributes(attribute.Int("sync.events", len(events)))

	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var changed []*models.OrderLine
		for _, ev := range events {
			line, err := models.FindLineForGoodsIssue(ctx, tx, ev.SalesOrder, ev.SalesOrderItem)
			if errors.Is(err, models.ErrLineNotFound) {
				s.Logger.WithFields(logrus.Fields{
					"field":    "ReconcileGoodsIssue",
					"order_no": ev.SalesOrder,
					"item_no":  ev.SalesOrderItem,
				}).Info("goods issue skipped: no local domestic line")
				summary.Skipped = append(summary.Skipped, SkippedEvent{Event: ev, Reason: models.SyncErrorLineNotFound})
				continue
			}
			if err != nil {
				config.LogError(s.Logger, "confirmationSync.go", "ReconcileGoodsIssue", "FindLineForGoodsIssue", ev, err)
				return err
			}
			before := line.AttentionType.Len()
			if !HandleOrderLine(line, ev) {
				summary.Unchanged++
				continue
			}
			if line.AttentionType.Len() > before {
				summary.Flagged++
				s.logFlagged(line)
			}
			changed = append(changed, line)
		}
		if err := models.SaveOrderLines(ctx, tx, changed); err != nil {
			config.LogError(s.Logger, "confirmationSync.go", "ReconcileGoodsIssue", "SaveOrderLines", len(changed), err)
			return err
		}
		summary.Applied = len(changed)
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &SyncError{Stage: "apply", Err: err}
	}

	s.Logger.WithFields(logrus.Fields{
		"field":     "ReconcileGoodsIssue",
		"fetched":   summary.Fetched,
		"applied":   summary.Applied,
		"unchanged": summary.Unchanged,
		"skipped":   summary.SkippedCount(),
		"flagged":   summary.Flagged,
	}).Info("goods issue sync finished")
	return summary, nil
}

// latestEventPerLine keeps the last event per (sales order, item), in
// first-seen order.
func latestEventPerLine(events []sapclient.GoodsIssueEvent) []sapclient.GoodsIssueEvent {
	index := make(map[string]int, len(events))
	out := make([]sapclient.GoodsIssueEvent, 0, len(events))
	for _, ev := range events {
		if i, ok := index[ev.Key()]; ok {
			out[i] = ev
			continue
		}
		index[ev.Key()] = len(out)
		out = append(out, ev)
	}
	return out
}

// HandleOrderLine writes one goods-issue event onto its line and re-evaluates
// DTR/DTP. It returns false when the line already reflects the event.
func HandleOrderLine(line *models.OrderLine, ev sapclient.GoodsIssueEvent) bool {
	if line.DtrDtpHandled && sameGoodsIssue(line, ev) {
		return false
	}
	line.Delivery = ev.Delivery
	line.GiStatus = ev.GiStatus
	line.ActualGiDate = ev.ActualGiDate
	applyDeliveryPerformance(line)
	return true
}

func sameGoodsIssue(line *models.OrderLine, ev sapclient.GoodsIssueEvent) bool {
	if line.Delivery != ev.Delivery || line.GiStatus != ev.GiStatus {
		return false
	}
	switch {
	case line.ActualGiDate == nil && ev.ActualGiDate == nil:
		return true
	case line.ActualGiDate == nil || ev.ActualGiDate == nil:
		return false
	}
	return utils.SameDate(*line.ActualGiDate, *ev.ActualGiDate)
}

func applyDeliveryPerformance(line *models.OrderLine) {
	kind := models.KindOf(models.OrderTypeDomestic)
	if line.Order != nil {
		kind = line.Order.Kind()
	}
	dtp, dtr := models.EvaluateDeliveryPerformance(models.DeliveryPerformanceInputFor(line, kind))
	line.Dtp = dtp
	line.Dtr = dtr
	line.DtrDtpHandled = true
	if models.BothNotPass(dtp, dtr) {
		models.AddFlags(line, []string{models.AttentionDeliveryStockDiff})
	}
	line.Touch()
}

func (s *ConfirmationSync) logFlagged(line *models.OrderLine) {
	def, _ := models.AttentionFlagDefinition(models.AttentionDeliveryStockDiff)
	s.Logger.WithFields(logrus.Fields{
		"field":    "deliveryPerformance",
		"line_id":  line.ID,
		"order_no": lineOrderNo(line),
		"item_no":  line.ItemNo,
		"flag":     def.Code,
		"category": def.Category,
		"severity": def.Severity,
	}).Warn("attention raised: " + def.Description)
}

// DtrDtpHandle evaluates one batch of unhandled lines whose goods-issue facts
// are already populated. Lines locked by a concurrent run are skipped.
// HasMore on the summary tells the caller to run another batch.
func (s *ConfirmationSync) DtrDtpHandle(ctx context.Context) (*SyncSummary, error) {
	ctx, span := tracer.Start(ctx, "ConfirmationSync.DtrDtpHandle")
	defer span.End()

	summary := &SyncSummary{}
	batch := s.batchSize()
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var lines []*models.OrderLine
		err := models.GoodsIssueLines(tx.Model(&models.OrderLine{})).
			Select("order_lines.*").
			Where("order_lines.dtr_dtp_handled = ?", false).
			Where("order_lines.gi_status IS NOT NULL AND order_lines.gi_status <> ''").
			Where("order_lines.actual_gi_date IS NOT NULL").
			Where("order_lines.delivery IS NOT NULL AND order_lines.delivery <> ''").
			Where("order_lines.original_request_date IS NOT NULL").
			Order("order_lines.id").
			Limit(batch + 1).
			Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Preload("Order").
			Find(&lines).Error
		if err != nil {
			config.LogError(s.Logger, "confirmationSync.go", "DtrDtpHandle", "Find eligible lines", nil, err)
			return err
		}
		if len(lines) > batch {
			summary.HasMore = true
			lines = lines[:batch]
		}
		summary.Fetched = len(lines)
		for _, line := range lines {
			applyDeliveryPerformance(line)
			if models.BothNotPass(line.Dtp, line.Dtr) {
				summary.Flagged++
				s.logFlagged(line)
			}
		}
		if err := models.SaveOrderLines(ctx, tx, lines); err != nil {
			config.LogError(s.Logger, "confirmationSync.go", "DtrDtpHandle", "SaveOrderLines", len(lines), err)
			return err
		}
		summary.Applied = len(lines)
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, &SyncError{Stage: "dtr_dtp", Err: err}
	}
	return summary, nil
}

// PruneStaleDraftLines deletes lines of a draft order whose item the ERP no
// longer holds. The order itself is kept.
func (s *ConfirmationSync) PruneStaleDraftLines(ctx context.Context, soNo string) (int64, error) {
	order, err := models.GetOrderBySoNo(ctx, s.DB, soNo)
	if err != nil {
		return 0, err
	}
	if order.Status != models.OrderStatusDraft {
		return 0, nil
	}
	items, err := s.ERP.GetOrderItems(ctx, soNo)
	if err != nil {
		config.LogError(s.Logger, "confirmationSync.go", "PruneStaleDraftLines", "GetOrderItems", soNo, err)
		return 0, err
	}
	keep := make([]string, 0, len(items))
	for _, it := range items {
		keep = append(keep, utils.TrimItemNo(it.SalesOrderItem))
	}

	var removed int64
	err = s.DB.WithContext(config.AsLineWriter(ctx)).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("order_id = ?", order.ID)
		if len(keep) > 0 {
			q = q.Where("item_no NOT IN ?", keep)
		}
		var stale []int
		if err := q.Model(&models.OrderLine{}).Pluck("id", &stale).Error; err != nil {
			return err
		}
		if len(stale) == 0 {
			return nil
		}
		if err := tx.Where("order_line_id IN ?", stale).Delete(&models.OrderLinePlanning{}).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", stale).Delete(&models.OrderLine{})
		removed = res.RowsAffected
		return res.Error
	})
	if err != nil {
		config.LogError(s.Logger, "confirmationSync.go", "PruneStaleDraftLines", "Delete stale lines", soNo, err)
		return 0, err
	}
	return removed, nil
}
