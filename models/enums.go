package models

import (
	"database/sql/driver"
	"fmt"
)

type OrderType string

const (
	OrderTypeDomestic OrderType = "domestic"
	OrderTypeExport   OrderType = "export"
	OrderTypeCustomer OrderType = "customer"
)

func (t OrderType) IsValid() bool {
	switch t {
	case OrderTypeDomestic, OrderTypeExport, OrderTypeCustomer:
		return true
	}
	return false
}

type OrderStatus string

const (
	OrderStatusDraft            OrderStatus = "Draft"
	OrderStatusReceived         OrderStatus = "Received Order"
	OrderStatusPartialCommitted OrderStatus = "Partial Committed Order"
	OrderStatusFullCommitted    OrderStatus = "Full Committed Order"
	OrderStatusPartialDelivery  OrderStatus = "Partial Delivery"
	OrderStatusCompleted        OrderStatus = "Completed Delivery"
	OrderStatusCancelled        OrderStatus = "Cancelled"
)

// DTR/DTP verdicts. VerdictCancelledGI is a single space on purpose: it tells
// a cancelled goods issue apart from a line that was never evaluated.
const (
	VerdictPass        = "Pass"
	VerdictNotPass     = "Not Pass"
	VerdictNone        = ""
	VerdictCancelledGI = " "
)

const (
	GiStatusCancelled = "A"
	RemarkC4          = "C4"
)

// AtpCtpStatus is the per-line state of one ATP/CTP orchestration cycle.
type AtpCtpStatus string

const (
	AtpCtpStatusUnplanned     AtpCtpStatus = "Unplanned"
	AtpCtpStatusRequested     AtpCtpStatus = "Requested"
	AtpCtpStatusProposed      AtpCtpStatus = "Proposed"
	AtpCtpStatusConfirming    AtpCtpStatus = "Confirming"
	AtpCtpStatusConfirmed     AtpCtpStatus = "Confirmed"
	AtpCtpStatusConfirmFailed AtpCtpStatus = "ConfirmFailed"
)

// InFlight reports whether a cycle is waiting on the planning engine.
func (s AtpCtpStatus) InFlight() bool {
	return s == AtpCtpStatusRequested || s == AtpCtpStatusConfirming
}

// CanRequest reports whether a fresh Requested cycle may start from s.
func (s AtpCtpStatus) CanRequest() bool {
	return !s.InFlight()
}

func (s AtpCtpStatus) Value() (driver.Value, error) {
	if s == "" {
		return string(AtpCtpStatusUnplanned), nil
	}
	return string(s), nil
}

func (s *AtpCtpStatus) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = AtpCtpStatusUnplanned
	case []byte:
		*s = AtpCtpStatus(v)
	case string:
		*s = AtpCtpStatus(v)
	default:
		return fmt.Errorf("cannot scan %T into AtpCtpStatus", value)
	}
	if *s == "" {
		*s = AtpCtpStatusUnplanned
	}
	return nil
}

type PlanAction string

const (
	PlanActionAccept PlanAction = "accept"
	PlanActionSplit  PlanAction = "split"
	PlanActionReject PlanAction = "reject"
)

const (
	PlanTypeATP = "ATP"
	PlanTypeCTP = "CTP"
)

// ItemStatus pairs the English and Thai labels shown for a line.
type ItemStatus struct {
	En string
	Th string
}

var (
	ItemStatusFullCommitted    = ItemStatus{En: "Full Committed Order", Th: "ยืนยันสินค้าครบจำนวน"}
	ItemStatusPartialCommitted = ItemStatus{En: "Partial Committed Order", Th: "ยืนยันสินค้าบางส่วน"}
	ItemStatusNotCommitted     = ItemStatus{En: "Not Committed", Th: "ยังไม่ยืนยันสินค้า"}
	ItemStatusCompleteDelivery = ItemStatus{En: "Complete Delivery", Th: "ส่งสินค้าครบแล้ว"}
)
