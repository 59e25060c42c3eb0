package models

import "github.com/mmdatafocus/orders_backend/config"

// OrderKind carries the per-type rules that reconciliation would otherwise
// branch on everywhere. Select it once per order with KindOf.
type OrderKind interface {
	Type() OrderType
	// EvaluatesDeliveryPerformance is false when DTR/DTP do not apply.
	EvaluatesDeliveryPerformance() bool
	// ReconcilesGoodsIssue reports whether ERP goods-issue events are matched to its lines.
	ReconcilesGoodsIssue() bool
	// DistributionChannels is the channel code set used by the attention view role filter.
	DistributionChannels() []string
}

type domesticKind struct{}

func (domesticKind) Type() OrderType                    { return OrderTypeDomestic }
func (domesticKind) EvaluatesDeliveryPerformance() bool { return true }
func (domesticKind) ReconcilesGoodsIssue() bool         { return true }
func (domesticKind) DistributionChannels() []string     { return config.DomesticDistributionChannels() }

type exportKind struct{}

func (exportKind) Type() OrderType                    { return OrderTypeExport }
func (exportKind) EvaluatesDeliveryPerformance() bool { return false }
func (exportKind) ReconcilesGoodsIssue() bool         { return false }
func (exportKind) DistributionChannels() []string     { return config.ExportDistributionChannels() }

type customerKind struct{}

func (customerKind) Type() OrderType                    { return OrderTypeCustomer }
func (customerKind) EvaluatesDeliveryPerformance() bool { return true }
func (customerKind) ReconcilesGoodsIssue() bool         { return false }
func (customerKind) DistributionChannels() []string     { return config.DomesticDistributionChannels() }

var orderTypes = []OrderType{OrderTypeDomestic, OrderTypeExport, OrderTypeCustomer}

// GoodsIssueOrderTypes lists the order types whose lines take ERP goods-issue events.
func GoodsIssueOrderTypes() []string {
	var out []string
	for _, t := range orderTypes {
		if KindOf(t).ReconcilesGoodsIssue() {
			out = append(out, string(t))
		}
	}
	return out
}

// KindOf maps an order type to its rules. Unknown types get the domestic rules.
func KindOf(t OrderType) OrderKind {
	switch t {
	case OrderTypeExport:
		return exportKind{}
	case OrderTypeCustomer:
		return customerKind{}
	default:
		return domesticKind{}
	}
}
