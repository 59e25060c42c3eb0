package iplanclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/orders_backend/utils"
	"github.com/shopspring/decimal"
)

const requestDateLayout = "02/01/2006"

// Date is a calendar date. It is sent as DD/MM/YYYY and read back from
// either RFC 3339 or DD/MM/YYYY.
type Date struct {
	time.Time
}

func NewDate(t time.Time) Date { return Date{utils.DateOnly(t)} }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(d.Format(requestDateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*d = Date{}
		return nil
	}
	var raw string
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*d = Date{}
		return nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		*d = Date{utils.DateOnly(t)}
		return nil
	}
	t, err := utils.ParseDateLayouts(raw, requestDateLayout, "2006-01-02")
	if err != nil {
		return fmt.Errorf("iplan date: %w", err)
	}
	*d = Date{t}
	return nil
}

// PlanningParams are the usage flags and preferences a line is planned with.
type PlanningParams struct {
	InquiryMethod           string `json:"inquiryMethod"`
	TransportationMethod    string `json:"transportationMethod"`
	TypeOfDelivery          string `json:"typeOfDelivery"`
	FixSourceAssignment     string `json:"fixSourceAssignment"`
	ConsignmentLocation     string `json:"consignmentLocation"`
	SplitOrderItem          bool   `json:"splitOrderItem"`
	PartialDelivery         bool   `json:"partialDelivery"`
	UseInventory            bool   `json:"useInventory"`
	UseConsignmentInventory bool   `json:"useConsignmentInventory"`
	UseProjectedInventory   bool   `json:"useProjectedInventory"`
	UseProduction           bool   `json:"useProduction"`
	SingleSource            bool   `json:"singleSource"`
}

type PlanRequest struct {
	Lines []PlanRequestLine `json:"lines"`
}

type PlanRequestLine struct {
	OrderNo     string          `json:"orderNo"`
	ItemNo      string          `json:"itemNo"`
	Material    string          `json:"material"`
	Plant       string          `json:"plant"`
	Unit        string          `json:"unit"`
	Quantity    decimal.Decimal `json:"quantity"`
	RequestDate Date            `json:"requestDate"`
	PlanningParams
}

type PlanResponse struct {
	Lines    []PlanResponseLine `json:"lines"`
	Messages []Message          `json:"messages"`
}

type PlanResponseLine struct {
	OrderNo string     `json:"orderNo"`
	ItemNo  string     `json:"itemNo"`
	Items   []PlanItem `json:"items"`
}

// PlanItem is one proposed source/date for (part of) a line.
type PlanItem struct {
	AtpCtp       string          `json:"atpCtp"`
	Quantity     decimal.Decimal `json:"quantity"`
	Date         Date            `json:"date"`
	Plant        string          `json:"plant"`
	BlockCode    string          `json:"blockCode"`
	RunCode      string          `json:"runCode"`
	PaperMachine string          `json:"paperMachine"`
	OnHandStock  bool            `json:"onHandStock"`
}

type ConfirmRequest struct {
	Lines []ConfirmRequestLine `json:"lines"`
}

type ConfirmRequestLine struct {
	OrderNo     string          `json:"orderNo"`
	ItemNo      string          `json:"itemNo"`
	Quantity    decimal.Decimal `json:"quantity"`
	RequestDate Date            `json:"requestDate"`
	Items       []ConfirmItem   `json:"items"`
	PlanningParams
}

type ConfirmItem struct {
	Action string `json:"action"`
	PlanItem
}

type ConfirmResponse struct {
	Messages         []Message `json:"messages"`
	SapOrderMessages []Message `json:"sapOrderMessages"`
	SapItemMessages  []Message `json:"sapItemMessages"`
}

// Message is a line- or header-level message from the planning engine or
// the ERP. Types E and A are failures.
type Message struct {
	OrderNo string `json:"orderNo"`
	ItemNo  string `json:"itemNo"`
	Type    string `json:"type"`
	Text    string `json:"message"`
}

func (m Message) Failed() bool {
	switch strings.ToUpper(strings.TrimSpace(m.Type)) {
	case "E", "A":
		return true
	}
	return false
}

func (m Message) LineKey() string {
	return m.OrderNo + "-" + utils.TrimItemNo(m.ItemNo)
}
