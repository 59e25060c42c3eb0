package workflow

import (
	"strings"
	"time"

	"github.com/mmdatafocus/orders_backend/iplanclient"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/utils"
	"github.com/shopspring/decimal"
)

type LineRef struct {
	OrderNo string `json:"order_no" validate:"required"`
	ItemNo  string `json:"item_no" validate:"required"`
}

func (r LineRef) Key() string {
	return strings.TrimSpace(r.OrderNo) + "-" + utils.TrimItemNo(r.ItemNo)
}

type FailedLine struct {
	OrderNo string `json:"order_no"`
	ItemNo  string `json:"item_no"`
	Stage   string `json:"stage"`
	Reason  string `json:"reason"`
}

type LineProposal struct {
	OrderNo string                 `json:"order_no"`
	ItemNo  string                 `json:"item_no"`
	LineId  int                    `json:"line_id"`
	Items   []iplanclient.PlanItem `json:"items"`
}

// SelectedPlanItem is a proposed plan item as edited by the operator.
type SelectedPlanItem struct {
	Action models.PlanAction `json:"action" validate:"required,oneof=accept split reject"`
	iplanclient.PlanItem
}

// PlanSelection is the operator's decision for one proposed line. Params,
// when set, replace the planning parameters stored on the line.
type PlanSelection struct {
	LineRef
	Params *iplanclient.PlanningParams `json:"params"`
	Items  []SelectedPlanItem          `json:"items" validate:"required,min=1,dive"`
}

func planningParamsOf(p *models.OrderLinePlanning) iplanclient.PlanningParams {
	if p == nil {
		p = models.NewOrderLinePlanning(0)
	}
	return iplanclient.PlanningParams{
		InquiryMethod:           p.InquiryMethod,
		TransportationMethod:    p.TransportationMethod,
		TypeOfDelivery:          p.TypeOfDelivery,
		FixSourceAssignment:     p.FixSourceAssignment,
		ConsignmentLocation:     p.ConsignmentLocation,
		SplitOrderItem:          p.SplitOrderItem,
		PartialDelivery:         p.PartialDelivery,
		UseInventory:            p.UseInventory,
		UseConsignmentInventory: p.UseConsignmentInventory,
		UseProjectedInventory:   p.UseProjectedInventory,
		UseProduction:           p.UseProduction,
		SingleSource:            p.SingleSource,
	}
}

func applyPlanningParams(p *models.OrderLinePlanning, params iplanclient.PlanningParams) {
	p.InquiryMethod = params.InquiryMethod
	p.TransportationMethod = params.TransportationMethod
	p.TypeOfDelivery = params.TypeOfDelivery
	p.FixSourceAssignment = params.FixSourceAssignment
	p.ConsignmentLocation = params.ConsignmentLocation
	p.SplitOrderItem = params.SplitOrderItem
	p.PartialDelivery = params.PartialDelivery
	p.UseInventory = params.UseInventory
	p.UseConsignmentInventory = params.UseConsignmentInventory
	p.UseProjectedInventory = params.UseProjectedInventory
	p.UseProduction = params.UseProduction
	p.SingleSource = params.SingleSource
}

func lineOrderNo(line *models.OrderLine) string {
	if line.Order == nil {
		return ""
	}
	return line.Order.SoNo
}

func lineDate(t *time.Time) iplanclient.Date {
	if t == nil {
		return iplanclient.Date{}
	}
	return iplanclient.NewDate(*t)
}

func buildPlanRequest(lines []*models.OrderLine) iplanclient.PlanRequest {
	req := iplanclient.PlanRequest{Lines: make([]iplanclient.PlanRequestLine, 0, len(lines))}
	for _, line := range lines {
		req.Lines = append(req.Lines, iplanclient.PlanRequestLine{
			OrderNo:        lineOrderNo(line),
			ItemNo:         utils.TrimItemNo(line.ItemNo),
			Material:       line.MaterialCode,
			Plant:          line.Plant,
			Unit:           line.SalesUnit,
			Quantity:       line.Quantity,
			RequestDate:    lineDate(line.RequestDate),
			PlanningParams: planningParamsOf(line.Planning),
		})
	}
	return req
}

func buildConfirmRequest(lines []*models.OrderLine, selections map[string]PlanSelection) iplanclient.ConfirmRequest {
	req := iplanclient.ConfirmRequest{Lines: make([]iplanclient.ConfirmRequestLine, 0, len(lines))}
	for _, line := range lines {
		sel := selections[line.Key()]
		items := make([]iplanclient.ConfirmItem, 0, len(sel.Items))
		for _, it := range sel.Items {
			items = append(items, iplanclient.ConfirmItem{Action: string(it.Action), PlanItem: it.PlanItem})
		}
		req.Lines = append(req.Lines, iplanclient.ConfirmRequestLine{
			OrderNo:        lineOrderNo(line),
			ItemNo:         utils.TrimItemNo(line.ItemNo),
			Quantity:       line.Quantity,
			RequestDate:    lineDate(line.RequestDate),
			Items:          items,
			PlanningParams: planningParamsOf(line.Planning),
		})
	}
	return req
}

// conflictingETD is true when a line that may not be delivered partially is
// proposed on more than one date.
func conflictingETD(line *models.OrderLine, items []iplanclient.PlanItem) bool {
	if line.Planning != nil && line.Planning.PartialDelivery {
		return false
	}
	var first *time.Time
	for _, it := range items {
		if it.Date.IsZero() {
			continue
		}
		d := it.Date.Time
		if first == nil {
			first = &d
			continue
		}
		if !utils.SameDate(*first, d) {
			return true
		}
	}
	return false
}

// applyProposal records a plan response on a Requested line.
func applyProposal(line *models.OrderLine, items []iplanclient.PlanItem, raw []byte) {
	line.Planning.PlanResponse = raw
	line.AtpCtpStatus = models.AtpCtpStatusProposed
	if conflictingETD(line, items) {
		models.AddFlags(line, []string{models.AttentionConflictingETD})
	} else {
		models.RemoveFlags(line, []string{models.AttentionConflictingETD})
	}
	line.Touch()
}

// rejectLine returns the line to Unplanned after the planning engine or the
// ERP refused it.
func rejectLine(line *models.OrderLine, status models.AtpCtpStatus) {
	line.AtpCtpStatus = status
	if line.Planning != nil {
		line.Planning.ReAtpRequired = true
	}
	models.AddFlags(line, []string{models.AttentionPlanRejected})
	line.Touch()
}

// restoreAfterFailedRequest returns a line whose plan request failed to the
// status it held before the cycle. A line that came in from a stale in-flight
// cycle falls back to Unplanned.
func restoreAfterFailedRequest(line *models.OrderLine, prior models.AtpCtpStatus) {
	if prior == "" || prior.InFlight() {
		prior = models.AtpCtpStatusUnplanned
	}
	rejectLine(line, prior)
}

func setItemStatus(line *models.OrderLine, status models.ItemStatus) {
	line.ItemStatusEn = status.En
	line.ItemStatusTh = status.Th
}

func itemStatusFor(requested, assigned decimal.Decimal) models.ItemStatus {
	switch {
	case assigned.IsPositive() && assigned.GreaterThanOrEqual(requested):
		return models.ItemStatusFullCommitted
	case assigned.IsPositive():
		return models.ItemStatusPartialCommitted
	}
	return models.ItemStatusNotCommitted
}

// applyConfirmedPlan writes a successful confirmation onto line. The first
// accepted item and every further accept item stay on the line; each
// further split item becomes a new line returned to the caller.
func applyConfirmedPlan(line *models.OrderLine, items []SelectedPlanItem, raw []byte) []*models.OrderLine {
	if line.Planning == nil {
		line.Planning = models.NewOrderLinePlanning(line.ID)
	}
	line.Planning.ConfirmResponse = raw

	var kept []iplanclient.PlanItem
	var splits []iplanclient.PlanItem
	for _, it := range items {
		switch it.Action {
		case models.PlanActionAccept:
			kept = append(kept, it.PlanItem)
		case models.PlanActionSplit:
			if len(kept) == 0 {
				kept = append(kept, it.PlanItem)
			} else {
				splits = append(splits, it.PlanItem)
			}
		}
	}

	if len(kept) == 0 {
		line.AssignedQuantity = decimal.Zero
		line.ConfirmQuantity = decimal.Zero
		line.NonConfirmQuantity = line.Quantity
		line.Planning.PlanConfirmQuantity = decimal.Zero
		line.Planning.PlanConfirmDate = nil
		setItemStatus(line, models.ItemStatusNotCommitted)
		rejectLine(line, models.AtpCtpStatusUnplanned)
		return nil
	}

	var newLines []*models.OrderLine
	for _, it := range splits {
		nl := splitOffLine(line, it)
		line.Quantity = decimal.Max(line.Quantity.Sub(nl.Quantity), decimal.Zero)
		newLines = append(newLines, nl)
	}

	assigned := decimal.Zero
	var confirmed time.Time
	for _, it := range kept {
		assigned = assigned.Add(it.Quantity)
		if it.Date.After(confirmed) {
			confirmed = it.Date.Time
		}
	}
	line.AssignedQuantity = assigned
	line.ConfirmQuantity = assigned
	line.NonConfirmQuantity = decimal.Max(line.Quantity.Sub(assigned), decimal.Zero)
	if !confirmed.IsZero() {
		line.ConfirmedDate = &confirmed
	}
	if plant := strings.TrimSpace(kept[0].Plant); plant != "" {
		line.Plant = plant
	}
	setItemStatus(line, itemStatusFor(line.Quantity, assigned))

	line.Planning.AtpCtp = kept[0].AtpCtp
	line.Planning.OnHandStock = kept[0].OnHandStock
	line.Planning.PlanConfirmQuantity = assigned
	line.Planning.PlanConfirmDate = line.ConfirmedDate
	line.Planning.ReAtpRequired = false

	line.AtpCtpStatus = models.AtpCtpStatusConfirmed
	applyConfirmFlags(line)
	line.Touch()
	return newLines
}

func applyConfirmFlags(line *models.OrderLine) {
	models.RemoveFlags(line, []string{models.AttentionPlanRejected})
	if line.ConfirmedDate != nil && line.RequestDate != nil && !utils.SameDate(*line.ConfirmedDate, *line.RequestDate) {
		models.AddFlags(line, []string{models.AttentionConfirmDateDiff})
	} else {
		models.RemoveFlags(line, []string{models.AttentionConfirmDateDiff})
	}
	if line.AssignedQuantity.LessThan(line.Quantity) {
		models.AddFlags(line, []string{models.AttentionConfirmQtyDiff})
	} else {
		models.RemoveFlags(line, []string{models.AttentionConfirmQtyDiff})
	}
}

func splitOffLine(source *models.OrderLine, it iplanclient.PlanItem) *models.OrderLine {
	plant := strings.TrimSpace(it.Plant)
	if plant == "" {
		plant = source.Plant
	}
	var confirmed *time.Time
	if !it.Date.IsZero() {
		d := it.Date.Time
		confirmed = &d
	}
	nl := &models.OrderLine{
		OrderId:             source.OrderId,
		Order:               source.Order,
		MaterialCode:        source.MaterialCode,
		Plant:               plant,
		SalesUnit:           source.SalesUnit,
		ParentId:            source.ParentId,
		Quantity:            it.Quantity,
		RequestDate:         source.RequestDate,
		OriginalRequestDate: source.OriginalRequestDate,
		ConfirmedDate:       confirmed,
		AssignedQuantity:    it.Quantity,
		ConfirmQuantity:     it.Quantity,
		NonConfirmQuantity:  decimal.Zero,
		ProductionStatus:    source.ProductionStatus,
		AtpCtpStatus:        models.AtpCtpStatusConfirmed,
		AttentionType:       models.AttentionSet{},
	}
	setItemStatus(nl, itemStatusFor(nl.Quantity, nl.AssignedQuantity))

	planning := models.NewOrderLinePlanning(0)
	if source.Planning != nil {
		p := *source.Planning
		p.ID = 0
		p.OrderLineId = 0
		p.PlanResponse = nil
		p.CreatedAt = time.Time{}
		p.UpdatedAt = time.Time{}
		planning = &p
	}
	planning.AtpCtp = it.AtpCtp
	planning.OnHandStock = it.OnHandStock
	planning.PlanConfirmQuantity = it.Quantity
	planning.PlanConfirmDate = confirmed
	planning.ReAtpRequired = false
	planning.CycleStartedAt = nil
	nl.Planning = planning

	if source.ID != 0 {
		id := source.ID
		nl.OriginalOrderLineId = &id
	}
	applyConfirmFlags(nl)
	return nl
}
