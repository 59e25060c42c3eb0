package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrLineNotFound     = errors.New("order line not found")
	ErrInvalidOrderType = errors.New("invalid order type")
)

type Order struct {
	ID                  int         `gorm:"primary_key" json:"id"`
	SoNo                string      `gorm:"size:20;index" json:"so_no"`
	PoNo                string      `gorm:"size:50;index" json:"po_no"`
	EoNo                string      `gorm:"size:50;index" json:"eo_no"`
	Type                OrderType   `gorm:"size:20;not null;index" json:"type" validate:"required,oneof=domestic export customer"`
	Status              OrderStatus `gorm:"size:50;not null" json:"status"`
	SoldToCode          string      `gorm:"size:20;index" json:"sold_to_code"`
	SalesOrganization   string      `gorm:"size:10" json:"sales_organization"`
	DistributionChannel string      `gorm:"size:4;index" json:"distribution_channel"`
	Division            string      `gorm:"size:4" json:"division"`
	CreatedAt           time.Time   `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time   `gorm:"autoUpdateTime" json:"updated_at"`
	Lines               []OrderLine `gorm:"foreignKey:OrderId" json:"lines,omitempty"`
}

func (o Order) Kind() OrderKind {
	return KindOf(o.Type)
}

// OrderLine is the reconciliation unit. The DTR/DTP verdicts, attention
// flags, overdue markers and confirmed facts are written only by the
// reconciliation workflows.
type OrderLine struct {
	ID                  int    `gorm:"primary_key" json:"id"`
	OrderId             int    `gorm:"index;not null" json:"order_id"`
	Order               *Order `gorm:"foreignKey:OrderId" json:"order,omitempty"`
	ItemNo              string `gorm:"size:10;index;not null" json:"item_no"`
	MaterialCode        string `gorm:"size:40" json:"material_code"`
	Plant               string `gorm:"size:10;index" json:"plant"`
	SalesUnit           string `gorm:"size:10" json:"sales_unit"`
	OriginalOrderLineId *int   `gorm:"index" json:"original_order_line_id"`
	ParentId            *int   `gorm:"index" json:"parent_id"`

	Quantity            decimal.Decimal `gorm:"type:decimal(20,3);default:0" json:"quantity"`
	RequestDate         *time.Time      `gorm:"type:date;index" json:"request_date"`
	OriginalRequestDate *time.Time      `gorm:"type:date" json:"original_request_date"`

	ConfirmedDate      *time.Time      `gorm:"type:date;index" json:"confirmed_date"`
	AssignedQuantity   decimal.Decimal `gorm:"type:decimal(20,3);default:0" json:"assigned_quantity"`
	ConfirmQuantity    decimal.Decimal `gorm:"type:decimal(20,3);default:0" json:"confirm_quantity"`
	NonConfirmQuantity decimal.Decimal `gorm:"type:decimal(20,3);default:0" json:"non_confirm_quantity"`
	SapConfirmQty      decimal.Decimal `gorm:"type:decimal(20,3);default:0" json:"sap_confirm_qty"`
	SapConfirmStatus   string          `gorm:"size:20" json:"sap_confirm_status"`

	Delivery     string     `gorm:"size:20" json:"delivery"`
	ActualGiDate *time.Time `gorm:"type:date" json:"actual_gi_date"`
	GiStatus     string     `gorm:"size:2" json:"gi_status"`

	Dtr              string       `gorm:"size:10" json:"dtr"`
	Dtp              string       `gorm:"size:10" json:"dtp"`
	AttentionType    AttentionSet `gorm:"type:varchar(255)" json:"attention_type"`
	Overdue1         bool         `gorm:"column:overdue_1;index" json:"overdue_1"`
	Overdue2         bool         `gorm:"column:overdue_2;index" json:"overdue_2"`
	DtrDtpHandled    bool         `gorm:"index" json:"dtr_dtp_handled"`
	ItemStatusEn     string       `gorm:"size:50;index" json:"item_status_en"`
	ItemStatusTh     string       `gorm:"size:100" json:"item_status_th"`
	ProductionStatus string       `gorm:"size:50;index" json:"production_status"`
	AtpCtpStatus     AtpCtpStatus `gorm:"size:20;index" json:"atp_ctp_status"`
	Remark           string       `gorm:"size:255" json:"remark"`

	// Version is bumped on every reconciliation write.
	Version   int                `gorm:"not null;default:0" json:"version"`
	Planning  *OrderLinePlanning `gorm:"foreignKey:OrderLineId;constraint:OnDelete:CASCADE" json:"planning,omitempty"`
	CreatedAt time.Time          `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time          `gorm:"autoUpdateTime" json:"updated_at"`
}

// OrderLinePlanning is the ATP/CTP working set of one order line.
type OrderLinePlanning struct {
	ID                      int             `gorm:"primary_key" json:"id"`
	OrderLineId             int             `gorm:"uniqueIndex;not null" json:"order_line_id"`
	InquiryMethod           string          `gorm:"size:30" json:"inquiry_method"`
	TransportationMethod    string          `gorm:"size:30" json:"transportation_method"`
	TypeOfDelivery          string          `gorm:"size:30" json:"type_of_delivery"`
	FixSourceAssignment     string          `gorm:"size:30" json:"fix_source_assignment"`
	SplitOrderItem          bool            `json:"split_order_item"`
	PartialDelivery         bool            `json:"partial_delivery"`
	ConsignmentLocation     string          `gorm:"size:30" json:"consignment_location"`
	OnHandStock             bool            `json:"on_hand_stock"`
	UseInventory            bool            `json:"use_inventory"`
	UseConsignmentInventory bool            `json:"use_consignment_inventory"`
	UseProjectedInventory   bool            `json:"use_projected_inventory"`
	UseProduction           bool            `json:"use_production"`
	SingleSource            bool            `json:"single_source"`
	ReAtpRequired           bool            `json:"re_atp_required"`
	AtpCtp                  string          `gorm:"size:10" json:"atp_ctp"`
	PlanConfirmQuantity     decimal.Decimal `gorm:"type:decimal(20,3);default:0" json:"plan_confirm_quantity"`
	PlanConfirmDate         *time.Time      `gorm:"type:date" json:"plan_confirm_date"`
	PlanResponse            datatypes.JSON  `gorm:"type:json" json:"plan_response"`
	ConfirmResponse         datatypes.JSON  `gorm:"type:json" json:"confirm_response"`
	CycleStartedAt          *time.Time      `json:"cycle_started_at"`
	CreatedAt               time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt               time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewOrderLinePlanning returns the working set a line gets when it first
// enters planning.
func NewOrderLinePlanning(lineId int) *OrderLinePlanning {
	return &OrderLinePlanning{
		OrderLineId:           lineId,
		InquiryMethod:         "Domestic",
		TypeOfDelivery:        "Arrival",
		FixSourceAssignment:   "",
		UseInventory:          true,
		UseProjectedInventory: true,
		UseProduction:         true,
		PartialDelivery:       true,
	}
}

func (l OrderLine) Key() string {
	so := ""
	if l.Order != nil {
		so = l.Order.SoNo
	}
	return fmt.Sprintf("%s-%s", so, utils.TrimItemNo(l.ItemNo))
}

// Touch marks a reconciliation write.
func (l *OrderLine) Touch() {
	l.Version++
}

// CreateOrder inserts an order with its lines. Lines get AtpCtpStatus
// Unplanned and OriginalRequestDate defaults to RequestDate.
func CreateOrder(ctx context.Context, db *gorm.DB, order *Order) error {
	if !order.Type.IsValid() {
		return ErrInvalidOrderType
	}
	if order.Status == "" {
		order.Status = OrderStatusReceived
	}
	for i := range order.Lines {
		line := &order.Lines[i]
		if line.AtpCtpStatus == "" {
			line.AtpCtpStatus = AtpCtpStatusUnplanned
		}
		if line.OriginalRequestDate == nil && line.RequestDate != nil {
			d := *line.RequestDate
			line.OriginalRequestDate = &d
		}
		line.ItemNo = utils.TrimItemNo(line.ItemNo)
	}
	return db.WithContext(config.AsLineWriter(ctx)).Create(order).Error
}

func GetOrderBySoNo(ctx context.Context, db *gorm.DB, soNo string) (*Order, error) {
	var order Order
	if err := db.WithContext(ctx).Where("so_no = ?", soNo).Take(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

// FindOrderLine looks a line up by order number (so_no) and item number,
// accepting both the padded ERP form and the local form of the item number.
func FindOrderLine(ctx context.Context, db *gorm.DB, orderNo string, itemNo string, lock bool) (*OrderLine, error) {
	q := db.WithContext(ctx).
		Joins("JOIN orders ON orders.id = order_lines.order_id").
		Where("orders.so_no = ?", orderNo).
		Where("order_lines.item_no IN ?", itemNoForms(itemNo))
	if lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var line OrderLine
	if err := q.Take(&line).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLineNotFound
		}
		return nil, err
	}
	if err := loadLineRelations(ctx, db, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

// GoodsIssueLines scopes db to lines of orders whose kind reconciles ERP
// goods issues.
func GoodsIssueLines(db *gorm.DB) *gorm.DB {
	return db.Joins("JOIN orders ON orders.id = order_lines.order_id").
		Where("orders.type IN ?", GoodsIssueOrderTypes())
}

// FindLineForGoodsIssue matches an ERP goods-issue event to a local line,
// locking it for the current transaction.
func FindLineForGoodsIssue(ctx context.Context, tx *gorm.DB, salesOrder string, salesOrderItem string) (*OrderLine, error) {
	var line OrderLine
	err := GoodsIssueLines(tx.WithContext(ctx).Model(&OrderLine{})).
		Where("orders.so_no = ?", salesOrder).
		Where("order_lines.item_no IN ?", itemNoForms(salesOrderItem)).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Take(&line).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLineNotFound
		}
		return nil, err
	}
	if err := loadLineRelations(ctx, tx, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func GetOrderLine(ctx context.Context, db *gorm.DB, id int) (*OrderLine, error) {
	var line OrderLine
	if err := db.WithContext(ctx).Where("id = ?", id).Take(&line).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLineNotFound
		}
		return nil, err
	}
	if err := loadLineRelations(ctx, db, &line); err != nil {
		return nil, err
	}
	return &line, nil
}

func loadLineRelations(ctx context.Context, db *gorm.DB, line *OrderLine) error {
	var order Order
	if err := db.WithContext(ctx).Where("id = ?", line.OrderId).Take(&order).Error; err != nil {
		return err
	}
	line.Order = &order

	var planning OrderLinePlanning
	err := db.WithContext(ctx).Where("order_line_id = ?", line.ID).Take(&planning).Error
	if err == nil {
		line.Planning = &planning
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	return nil
}

// SaveOrderLines writes reconciled lines (and their planning state) as one
// batch. Associations other than planning are left untouched.
func SaveOrderLines(ctx context.Context, tx *gorm.DB, lines []*OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	ctx = config.AsLineWriter(ctx)
	if err := tx.WithContext(ctx).Omit(clause.Associations).Save(&lines).Error; err != nil {
		return err
	}
	var plannings []*OrderLinePlanning
	for _, l := range lines {
		if l.Planning != nil {
			l.Planning.OrderLineId = l.ID
			plannings = append(plannings, l.Planning)
		}
	}
	if len(plannings) > 0 {
		if err := tx.WithContext(ctx).Save(&plannings).Error; err != nil {
			return err
		}
	}
	return nil
}

// NextItemNo returns the next free item number of an order in steps of 10.
func NextItemNo(ctx context.Context, tx *gorm.DB, orderId int) (int, error) {
	var itemNos []string
	if err := tx.WithContext(ctx).Model(&OrderLine{}).
		Where("order_id = ?", orderId).
		Pluck("item_no", &itemNos).Error; err != nil {
		return 0, err
	}
	return nextItemNo(itemNos), nil
}

func nextItemNo(itemNos []string) int {
	highest := 0
	for _, raw := range itemNos {
		var n int
		if _, err := fmt.Sscanf(utils.TrimItemNo(raw), "%d", &n); err == nil && n > highest {
			highest = n
		}
	}
	return (highest/10 + 1) * 10
}

func itemNoForms(itemNo string) []string {
	return utils.UniqueSlice([]string{utils.TrimItemNo(itemNo), utils.PadItemNo(itemNo), itemNo})
}

// CreateOrderLines inserts new lines of existing orders together with their
// planning state.
func CreateOrderLines(ctx context.Context, tx *gorm.DB, lines []*OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	return tx.WithContext(config.AsLineWriter(ctx)).Omit("Order").Create(&lines).Error
}
