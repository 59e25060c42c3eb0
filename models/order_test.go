package models

import (
	"reflect"
	"strings"
	"testing"

	"gorm.io/gorm"
)

func TestNextItemNo(t *testing.T) {
	cases := []struct {
		itemNos []string
		want    int
	}{
		{nil, 10},
		{[]string{"10"}, 20},
		{[]string{"000010", "000020"}, 30},
		{[]string{"10", "15"}, 20},
		{[]string{"10", "abc", "40"}, 50},
	}
	for _, tc := range cases {
		if got := nextItemNo(tc.itemNos); got != tc.want {
			t.Fatalf("nextItemNo(%v) = %d, want %d", tc.itemNos, got, tc.want)
		}
	}
}

func TestItemNoForms(t *testing.T) {
	got := itemNoForms("000010")
	want := []string{"10", "000010"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestOrderLineKey(t *testing.T) {
	line := OrderLine{ItemNo: "000020", Order: &Order{SoNo: "1100001"}}
	if got := line.Key(); got != "1100001-20" {
		t.Fatalf("Key = %q", got)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(OrderTypeExport).EvaluatesDeliveryPerformance() {
		t.Fatalf("export lines are not evaluated")
	}
	if !KindOf(OrderTypeDomestic).ReconcilesGoodsIssue() {
		t.Fatalf("domestic lines reconcile goods issues")
	}
	if KindOf(OrderTypeCustomer).ReconcilesGoodsIssue() {
		t.Fatalf("customer lines do not reconcile goods issues")
	}
	if KindOf("").Type() != OrderTypeDomestic {
		t.Fatalf("unknown types fall back to domestic")
	}
}

func TestGoodsIssueOrderTypes(t *testing.T) {
	if got, want := GoodsIssueOrderTypes(), []string{"domestic"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestGoodsIssueLinesFiltersByOrderKind(t *testing.T) {
	sql := dryRunDB(t).ToSQL(func(tx *gorm.DB) *gorm.DB {
		var lines []OrderLine
		return GoodsIssueLines(tx.Model(&OrderLine{})).Find(&lines)
	})
	if !strings.Contains(sql, "orders.type IN ('domestic')") {
		t.Fatalf("kind filter missing: %s", sql)
	}
	if strings.Contains(sql, "export") || strings.Contains(sql, "customer") {
		t.Fatalf("non reconciling kinds leaked in: %s", sql)
	}
}
