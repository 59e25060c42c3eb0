package workflow

import (
	"testing"
	"time"

	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/sapclient"
)

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func domesticLine() *models.OrderLine {
	return &models.OrderLine{
		ID:                  1,
		ItemNo:              "10",
		Order:               &models.Order{SoNo: "1100001", Type: models.OrderTypeDomestic},
		ConfirmedDate:       date("2026-03-10"),
		OriginalRequestDate: date("2026-03-10"),
	}
}

func TestHandleOrderLineOnTime(t *testing.T) {
	line := domesticLine()
	changed := HandleOrderLine(line, sapclient.GoodsIssueEvent{
		SalesOrder: "1100001", SalesOrderItem: "000010",
		Delivery: "80000001", GiStatus: "C", ActualGiDate: date("2026-03-09"),
	})
	if !changed {
		t.Fatalf("want change")
	}
	if line.Dtp != models.VerdictPass || line.Dtr != models.VerdictPass {
		t.Fatalf("got dtp=%q dtr=%q", line.Dtp, line.Dtr)
	}
	if !line.DtrDtpHandled || line.Delivery != "80000001" || line.Version != 1 {
		t.Fatalf("line not updated: %+v", line)
	}
	if line.AttentionType.Has(models.AttentionDeliveryStockDiff) {
		t.Fatalf("C3 raised on a passing line")
	}
}

func TestHandleOrderLineLateRaisesStockDiff(t *testing.T) {
	line := domesticLine()
	line.AttentionType = models.ParseAttentionSet("R1")
	HandleOrderLine(line, sapclient.GoodsIssueEvent{
		Delivery: "80000001", GiStatus: "C", ActualGiDate: date("2026-03-15"),
	})
	if line.Dtp != models.VerdictNotPass || line.Dtr != models.VerdictNotPass {
		t.Fatalf("got dtp=%q dtr=%q", line.Dtp, line.Dtr)
	}
	if got := line.AttentionType.String(); got != "C3, R1" {
		t.Fatalf("attention = %q", got)
	}
}

func TestHandleOrderLineCancelledGoodsIssue(t *testing.T) {
	line := domesticLine()
	HandleOrderLine(line, sapclient.GoodsIssueEvent{Delivery: "80000001", GiStatus: "A"})
	if line.Dtp != models.VerdictCancelledGI || line.Dtr != models.VerdictCancelledGI {
		t.Fatalf("got dtp=%q dtr=%q", line.Dtp, line.Dtr)
	}
	if line.AttentionType.Len() != 0 {
		t.Fatalf("cancelled GI raised %q", line.AttentionType.String())
	}
}

func TestHandleOrderLineSkipsRepeatedEvent(t *testing.T) {
	line := domesticLine()
	ev := sapclient.GoodsIssueEvent{Delivery: "80000001", GiStatus: "C", ActualGiDate: date("2026-03-10")}
	if !HandleOrderLine(line, ev) {
		t.Fatalf("first event should apply")
	}
	if HandleOrderLine(line, ev) {
		t.Fatalf("repeated event should be a no-op")
	}
	if line.Version != 1 {
		t.Fatalf("version = %d, want 1", line.Version)
	}

	ev.ActualGiDate = date("2026-03-11")
	if !HandleOrderLine(line, ev) {
		t.Fatalf("a new GI date must be applied")
	}
}

func TestLatestEventPerLine(t *testing.T) {
	events := []sapclient.GoodsIssueEvent{
		{SalesOrder: "A", SalesOrderItem: "000010", Delivery: "d1"},
		{SalesOrder: "B", SalesOrderItem: "10", Delivery: "d2"},
		{SalesOrder: "A", SalesOrderItem: "10", Delivery: "d3"},
	}
	got := latestEventPerLine(events)
	if len(got) != 2 {
		t.Fatalf("len = %d, want 2", len(got))
	}
	if got[0].SalesOrder != "A" || got[0].Delivery != "d3" {
		t.Fatalf("first = %+v, want the later A event", got[0])
	}
	if got[1].Delivery != "d2" {
		t.Fatalf("second = %+v", got[1])
	}
}
