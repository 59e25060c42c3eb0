package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/iplanclient"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/utils"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
)

const (
	planLockTTL             = 2 * time.Minute
	defaultPlanCycleTimeout = 15 * time.Minute

	stageClaim   = "claim"
	stagePlan    = "planning"
	stageERP     = "erp"
	stagePersist = "persist"
)

type RequestPlanResult struct {
	Proposals        []LineProposal        `json:"proposals"`
	PlanningMessages []iplanclient.Message `json:"planning_messages"`
	FailedLines      []FailedLine          `json:"failed_lines"`
}

// ConfirmPlanResult reports every claimed line in exactly one of Confirmed,
// Rejected (all plan items rejected, line back to Unplanned) or FailedLines.
type ConfirmPlanResult struct {
	Confirmed        []LineRef             `json:"confirmed"`
	Rejected         []LineRef             `json:"rejected"`
	CreatedLines     []LineRef             `json:"created_lines"`
	PlanningMessages []iplanclient.Message `json:"planning_messages"`
	ErpOrderMessages []iplanclient.Message `json:"erp_order_messages"`
	ErpItemMessages  []iplanclient.Message `json:"erp_item_messages"`
	FailedLines      []FailedLine          `json:"failed_lines"`
}

// AtpCtpOrchestrator drives the request/confirm planning protocol per line.
// At most one cycle is in flight per line: a per-line Redis lock guards the
// claim and the persisted AtpCtpStatus guards the rest of the cycle.
type AtpCtpOrchestrator struct {
	DB      *gorm.DB
	Logger  *logrus.Logger
	Planner iplanclient.Client
	Locker  Locker
	Now     func() time.Time
	// CycleTimeout is how long an unanswered cycle blocks a new one.
	CycleTimeout time.Duration
}

func (o *AtpCtpOrchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

func (o *AtpCtpOrchestrator) cycleTimeout() time.Duration {
	if o.CycleTimeout > 0 {
		return o.CycleTimeout
	}
	return defaultPlanCycleTimeout
}

func planLockKey(key string) string {
	return "lock:atpctp:" + key
}

func failed(ref LineRef, stage string, err error) FailedLine {
	return FailedLine{OrderNo: ref.OrderNo, ItemNo: utils.TrimItemNo(ref.ItemNo), Stage: stage, Reason: err.Error()}
}

func failedLine(line *models.OrderLine, stage string, reason string) FailedLine {
	return FailedLine{OrderNo: lineOrderNo(line), ItemNo: utils.TrimItemNo(line.ItemNo), Stage: stage, Reason: reason}
}

func uniqueRefs(refs []LineRef) []LineRef {
	seen := make(map[string]bool, len(refs))
	out := make([]LineRef, 0, len(refs))
	for _, r := range refs {
		if seen[r.Key()] {
			continue
		}
		seen[r.Key()] = true
		out = append(out, r)
	}
	return out
}

// claimLines locks each line, runs begin on it and persists the new state.
// Lines that cannot be claimed are reported, the rest are returned.
func (o *AtpCtpOrchestrator) claimLines(ctx context.Context, refs []LineRef, begin func(*models.OrderLine) error) ([]*models.OrderLine, []FailedLine, func(), error) {
	var releases []release
	releaseAll := func() {
		for _, r := range releases {
			r()
		}
	}
	var failures []FailedLine
	var lockedRefs []LineRef
	for _, ref := range refs {
		unlock, err := obtainLock(ctx, o.Logger, o.Locker, planLockKey(ref.Key()), planLockTTL, true, models.ErrPlanningInFlight)
		if err != nil {
			failures = append(failures, failed(ref, stageClaim, err))
			continue
		}
		releases = append(releases, unlock)
		lockedRefs = append(lockedRefs, ref)
	}

	var claimed []*models.OrderLine
	err := o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, ref := range lockedRefs {
			line, err := models.FindOrderLine(ctx, tx, ref.OrderNo, ref.ItemNo, true)
			if errors.Is(err, models.ErrLineNotFound) {
				failures = append(failures, failed(ref, stageClaim, err))
				continue
			}
			if err != nil {
				return err
			}
			if err := begin(line); err != nil {
				failures = append(failures, failed(ref, stageClaim, err))
				continue
			}
			claimed = append(claimed, line)
		}
		return models.SaveOrderLines(ctx, tx, claimed)
	})
	if err != nil {
		releaseAll()
		config.LogError(o.Logger, "atpCtpOrchestrator.go", "claimLines", "Transaction", refs, err)
		return nil, nil, noRelease, err
	}
	return claimed, failures, releaseAll, nil
}

func (o *AtpCtpOrchestrator) saveLines(ctx context.Context, lines []*models.OrderLine) error {
	return o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return models.SaveOrderLines(ctx, tx, lines)
	})
}

// RequestPlan submits the current demand of the given lines to the planning
// engine and records the proposals.
func (o *AtpCtpOrchestrator) RequestPlan(ctx context.Context, refs []LineRef) (*RequestPlanResult, error) {
	ctx, span := tracer.Start(ctx, "AtpCtpOrchestrator.RequestPlan", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("atpctp.lines", len(refs)))

	now := o.now()
	prior := map[int]models.AtpCtpStatus{}
	lines, failures, unlock, err := o.claimLines(ctx, uniqueRefs(refs), func(l *models.OrderLine) error {
		status := l.AtpCtpStatus
		if err := l.BeginPlanRequest(now, o.cycleTimeout()); err != nil {
			return err
		}
		prior[l.ID] = status
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer unlock()

	result := &RequestPlanResult{FailedLines: failures}
	if len(lines) == 0 {
		return result, nil
	}

	resp, raw, err := o.Planner.RequestPlan(ctx, buildPlanRequest(lines))
	o.archive(ctx, "plan-request", lines, raw)
	if err != nil {
		config.LogError(o.Logger, "atpCtpOrchestrator.go", "RequestPlan", "Planner.RequestPlan", len(lines), err)
		for _, line := range lines {
			restoreAfterFailedRequest(line, prior[line.ID])
		}
		if saveErr := o.saveLines(ctx, lines); saveErr != nil {
			config.LogError(o.Logger, "atpCtpOrchestrator.go", "RequestPlan", "revert claimed lines", len(lines), saveErr)
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("request plan: %w", err)
	}
	result.PlanningMessages = resp.Messages

	itemsByKey := make(map[string][]iplanclient.PlanItem, len(resp.Lines))
	for _, rl := range resp.Lines {
		key := LineRef{OrderNo: rl.OrderNo, ItemNo: rl.ItemNo}.Key()
		itemsByKey[key] = append(itemsByKey[key], rl.Items...)
	}
	lineErrors := failedMessagesByLine(resp.Messages)

	for _, line := range lines {
		if msgs, bad := lineErrors[line.Key()]; bad {
			line.Planning.PlanResponse = raw
			restoreAfterFailedRequest(line, prior[line.ID])
			result.FailedLines = append(result.FailedLines, failedLine(line, stagePlan, msgs))
			continue
		}
		items := itemsByKey[line.Key()]
		applyProposal(line, items, raw)
		result.Proposals = append(result.Proposals, LineProposal{
			OrderNo: lineOrderNo(line),
			ItemNo:  utils.TrimItemNo(line.ItemNo),
			LineId:  line.ID,
			Items:   items,
		})
	}
	if err := o.saveLines(ctx, lines); err != nil {
		config.LogError(o.Logger, "atpCtpOrchestrator.go", "RequestPlan", "saveLines", len(lines), err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	return result, nil
}

// ConfirmPlan submits the operator's selections. ERP or planning failures
// leave the affected lines ConfirmFailed and are reported per line.
func (o *AtpCtpOrchestrator) ConfirmPlan(ctx context.Context, selections []PlanSelection) (*ConfirmPlanResult, error) {
	ctx, span := tracer.Start(ctx, "AtpCtpOrchestrator.ConfirmPlan", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("atpctp.lines", len(selections)))

	result := &ConfirmPlanResult{}
	byKey := make(map[string]PlanSelection, len(selections))
	var refs []LineRef
	for _, sel := range selections {
		if err := utils.ValidateStruct(sel); err != nil {
			result.FailedLines = append(result.FailedLines, failed(sel.LineRef, stageClaim, err))
			continue
		}
		if _, dup := byKey[sel.Key()]; !dup {
			refs = append(refs, sel.LineRef)
		}
		byKey[sel.Key()] = sel
	}

	now := o.now()
	lines, failures, unlock, err := o.claimLines(ctx, refs, func(l *models.OrderLine) error {
		if err := l.BeginPlanConfirm(now, o.cycleTimeout()); err != nil {
			return err
		}
		if sel := byKey[l.Key()]; sel.Params != nil {
			applyPlanningParams(l.Planning, *sel.Params)
		}
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer unlock()
	result.FailedLines = append(result.FailedLines, failures...)
	if len(lines) == 0 {
		return result, nil
	}

	resp, raw, err := o.Planner.ConfirmPlan(ctx, buildConfirmRequest(lines, byKey))
	o.archive(ctx, "plan-confirm", lines, raw)
	if err != nil {
		config.LogError(o.Logger, "atpCtpOrchestrator.go", "ConfirmPlan", "Planner.ConfirmPlan", len(lines), err)
		for _, line := range lines {
			line.Planning.ConfirmResponse = raw
			rejectLine(line, models.AtpCtpStatusConfirmFailed)
		}
		if saveErr := o.saveLines(ctx, lines); saveErr != nil {
			config.LogError(o.Logger, "atpCtpOrchestrator.go", "ConfirmPlan", "mark lines failed", len(lines), saveErr)
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("confirm plan: %w", err)
	}
	result.PlanningMessages = resp.Messages
	result.ErpOrderMessages = resp.SapOrderMessages
	result.ErpItemMessages = resp.SapItemMessages

	planErrors := failedMessagesByLine(resp.Messages)
	erpItemErrors := failedMessagesByLine(resp.SapItemMessages)
	erpOrderErrors := failedMessagesByOrder(resp.SapOrderMessages)

	var created []*models.OrderLine
	for _, line := range lines {
		if stage, reason, bad := confirmFailure(line, planErrors, erpItemErrors, erpOrderErrors); bad {
			line.Planning.ConfirmResponse = raw
			rejectLine(line, models.AtpCtpStatusConfirmFailed)
			result.FailedLines = append(result.FailedLines, failedLine(line, stage, reason))
			continue
		}
		created = append(created, applyConfirmedPlan(line, byKey[line.Key()].Items, raw)...)
		ref := LineRef{OrderNo: lineOrderNo(line), ItemNo: utils.TrimItemNo(line.ItemNo)}
		if line.AtpCtpStatus == models.AtpCtpStatusConfirmed {
			result.Confirmed = append(result.Confirmed, ref)
		} else {
			result.Rejected = append(result.Rejected, ref)
		}
	}

	err = o.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := models.SaveOrderLines(ctx, tx, lines); err != nil {
			return err
		}
		return o.createSplitLines(ctx, tx, created)
	})
	if err != nil {
		config.LogError(o.Logger, "atpCtpOrchestrator.go", "ConfirmPlan", "persist confirmation", len(lines), err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("%s: %w", stagePersist, err)
	}
	for _, nl := range created {
		result.CreatedLines = append(result.CreatedLines, LineRef{OrderNo: lineOrderNo(nl), ItemNo: nl.ItemNo})
	}
	return result, nil
}

func (o *AtpCtpOrchestrator) createSplitLines(ctx context.Context, tx *gorm.DB, lines []*models.OrderLine) error {
	next := map[int]int{}
	for _, nl := range lines {
		n, ok := next[nl.OrderId]
		if !ok {
			var err error
			if n, err = models.NextItemNo(ctx, tx, nl.OrderId); err != nil {
				return err
			}
		}
		nl.ItemNo = fmt.Sprintf("%d", n)
		next[nl.OrderId] = n + 10
		if nl.OriginalOrderLineId != nil {
			if err := models.AssignOriginalLine(ctx, tx, nl, *nl.OriginalOrderLineId); err != nil {
				return err
			}
		}
	}
	return models.CreateOrderLines(ctx, tx, lines)
}

func failedMessagesByLine(msgs []iplanclient.Message) map[string]string {
	out := map[string]string{}
	for _, m := range msgs {
		if !m.Failed() || strings.TrimSpace(m.ItemNo) == "" {
			continue
		}
		out[m.LineKey()] = joinReason(out[m.LineKey()], m.Text)
	}
	return out
}

func failedMessagesByOrder(msgs []iplanclient.Message) map[string]string {
	out := map[string]string{}
	for _, m := range msgs {
		if !m.Failed() {
			continue
		}
		key := strings.TrimSpace(m.OrderNo)
		out[key] = joinReason(out[key], m.Text)
	}
	return out
}

func joinReason(existing, text string) string {
	text = strings.TrimSpace(text)
	if existing == "" {
		return text
	}
	return existing + "; " + text
}

func confirmFailure(line *models.OrderLine, planErrors, erpItemErrors, erpOrderErrors map[string]string) (stage string, reason string, bad bool) {
	if r, ok := planErrors[line.Key()]; ok {
		return stagePlan, r, true
	}
	if r, ok := erpItemErrors[line.Key()]; ok {
		return stageERP, r, true
	}
	if r, ok := erpOrderErrors[lineOrderNo(line)]; ok {
		return stageERP, r, true
	}
	return "", "", false
}

func (o *AtpCtpOrchestrator) archive(ctx context.Context, kind string, lines []*models.OrderLine, raw []byte) {
	if len(raw) == 0 || len(lines) == 0 {
		return
	}
	name := utils.AuditObjectName(kind, lineOrderNo(lines[0]), o.now())
	if err := utils.ArchiveAuditPayload(ctx, name, raw); err != nil {
		o.Logger.WithFields(logrus.Fields{
			"field":  "archive",
			"object": name,
		}).Warn("audit archive failed: " + err.Error())
	}
}
