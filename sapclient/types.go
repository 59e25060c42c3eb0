package sapclient

import (
	"strings"
	"time"

	"github.com/mmdatafocus/orders_backend/utils"
	"github.com/shopspring/decimal"
)

const sapDateLayout = "02.01.2006"

// GoodsIssueEvent is one goods-issue posting for a sales order item.
type GoodsIssueEvent struct {
	SalesOrder     string
	SalesOrderItem string
	Delivery       string
	ActualGiDate   *time.Time
	GiStatus       string
}

func (e GoodsIssueEvent) Key() string {
	return e.SalesOrder + "-" + utils.TrimItemNo(e.SalesOrderItem)
}

// OrderItem is an item of a sales order as the ERP currently holds it.
type OrderItem struct {
	SalesOrder     string
	SalesOrderItem string
	Material       string
	Plant          string
	Quantity       decimal.Decimal
	ConfirmQty     decimal.Decimal
	ConfirmStatus  string
}

type goodsIssueResponse struct {
	Results []goodsIssueRow `json:"results"`
}

type goodsIssueRow struct {
	SalesOrder     string `json:"SalesOrder"`
	SalesOrderItem string `json:"SalesOrderItem"`
	Delivery       string `json:"Delivery"`
	ActualGiDate   string `json:"ActualGiDate"`
	GiStatus       string `json:"GiStatus"`
}

type orderItemsResponse struct {
	Results []orderItemRow `json:"results"`
}

type orderItemRow struct {
	SalesOrder     string `json:"SalesOrder"`
	SalesOrderItem string `json:"SalesOrderItem"`
	Material       string `json:"Material"`
	Plant          string `json:"Plant"`
	Quantity       string `json:"OrderQuantity"`
	ConfirmQty     string `json:"ConfdDelivQtyInOrderQtyUnit"`
	ConfirmStatus  string `json:"ConfirmationStatus"`
}

// parseSapDate reads DD.MM.YYYY. Blank and all-zero dates mean "not set".
func parseSapDate(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "00.00.0000" {
		return nil, nil
	}
	d, err := utils.ParseDateLayouts(raw, sapDateLayout)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r goodsIssueRow) toEvent() (GoodsIssueEvent, error) {
	giDate, err := parseSapDate(r.ActualGiDate)
	if err != nil {
		return GoodsIssueEvent{}, err
	}
	return GoodsIssueEvent{
		SalesOrder:     strings.TrimSpace(r.SalesOrder),
		SalesOrderItem: strings.TrimSpace(r.SalesOrderItem),
		Delivery:       strings.TrimSpace(r.Delivery),
		ActualGiDate:   giDate,
		GiStatus:       strings.TrimSpace(r.GiStatus),
	}, nil
}

func (r orderItemRow) toItem() OrderItem {
	qty, _ := utils.ParseDecimal(r.Quantity)
	confirmQty, _ := utils.ParseDecimal(r.ConfirmQty)
	return OrderItem{
		SalesOrder:     strings.TrimSpace(r.SalesOrder),
		SalesOrderItem: strings.TrimSpace(r.SalesOrderItem),
		Material:       strings.TrimSpace(r.Material),
		Plant:          strings.TrimSpace(r.Plant),
		Quantity:       qty,
		ConfirmQty:     confirmQty,
		ConfirmStatus:  strings.TrimSpace(r.ConfirmStatus),
	}
}
