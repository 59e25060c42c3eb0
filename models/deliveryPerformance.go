package models

import (
	"strings"
	"time"

	"github.com/mmdatafocus/orders_backend/utils"
)

type DeliveryPerformanceInput struct {
	Kind                OrderKind
	GiDate              *time.Time
	GiStatus            string
	ConfirmedDate       *time.Time
	OriginalRequestDate *time.Time
	Remark              string
}

// DeliveryPerformanceInputFor collects the evaluator inputs from a line.
func DeliveryPerformanceInputFor(line *OrderLine, kind OrderKind) DeliveryPerformanceInput {
	return DeliveryPerformanceInput{
		Kind:                kind,
		GiDate:              line.ActualGiDate,
		GiStatus:            line.GiStatus,
		ConfirmedDate:       line.ConfirmedDate,
		OriginalRequestDate: line.OriginalRequestDate,
		Remark:              line.Remark,
	}
}

// EvaluateDeliveryPerformance returns the (dtp, dtr) verdicts of a goods issue.
//
// A GI on the confirmed date, or one day before it, passes DTP. DTR only
// passes inside the same window around the original request date when there
// is no remark, or outside it when the remark is C4; in both cases DTP must
// also pass.
func EvaluateDeliveryPerformance(in DeliveryPerformanceInput) (dtp string, dtr string) {
	if in.Kind != nil && !in.Kind.EvaluatesDeliveryPerformance() {
		return VerdictNone, VerdictNone
	}
	if in.GiDate == nil {
		if strings.TrimSpace(in.GiStatus) == GiStatusCancelled {
			return VerdictCancelledGI, VerdictCancelledGI
		}
		return VerdictNone, VerdictNone
	}

	dtp, dtr = VerdictNotPass, VerdictNotPass
	giDate := utils.DateOnly(*in.GiDate)
	remark := strings.TrimSpace(in.Remark)

	if in.ConfirmedDate != nil && onTimeWindow(giDate, *in.ConfirmedDate) {
		dtp = VerdictPass
	}

	if in.OriginalRequestDate != nil && onTimeWindow(giDate, *in.OriginalRequestDate) {
		if remark == "" && dtp == VerdictPass {
			dtr = VerdictPass
		}
		return dtp, dtr
	}
	if remark == RemarkC4 && dtp == VerdictPass {
		dtr = VerdictPass
	}
	return dtp, dtr
}

// onTimeWindow is true for a GI on target or one day before it.
func onTimeWindow(giDate time.Time, target time.Time) bool {
	target = utils.DateOnly(target)
	return giDate.Equal(target) || giDate.Equal(target.AddDate(0, 0, -1))
}

// BothNotPass reports the stock-difference condition raised as flag C3.
func BothNotPass(dtp, dtr string) bool {
	return dtp == VerdictNotPass && dtr == VerdictNotPass
}
