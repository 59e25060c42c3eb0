package models

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"testing"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(mysql.New(mysql.Config{
		DSN:                       "user:pw@tcp(127.0.0.1:3306)/orders?parseTime=true",
		SkipInitializeWithVersion: true,
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("open dry-run db: %v", err)
	}
	return db
}

func attentionSQL(t *testing.T, f AttentionFilter) string {
	t.Helper()
	db := dryRunDB(t)
	var qErr error
	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		q, err := attentionQuery(tx, f)
		if err != nil {
			qErr = err
			return tx
		}
		var lines []OrderLine
		return q.Find(&lines)
	})
	if qErr != nil {
		t.Fatalf("attentionQuery: %v", qErr)
	}
	return sql
}

func TestAttentionQueryRoleFilter(t *testing.T) {
	t.Setenv("DOMESTIC_DISTRIBUTION_CHANNELS", "10,20")
	t.Setenv("EXPORT_DISTRIBUTION_CHANNELS", "30")

	sql := attentionSQL(t, AttentionFilter{Role: OrderTypeDomestic})
	if !strings.Contains(sql, "orders.distribution_channel IN ('10','20')") {
		t.Fatalf("domestic filter missing: %s", sql)
	}
	sql = attentionSQL(t, AttentionFilter{Role: OrderTypeExport})
	if !strings.Contains(sql, "orders.distribution_channel IN ('30')") {
		t.Fatalf("export filter missing: %s", sql)
	}
}

func TestAttentionQueryRejectsUnknownRole(t *testing.T) {
	for _, role := range []OrderType{"", OrderTypeCustomer, "planner"} {
		if _, err := attentionQuery(dryRunDB(t), AttentionFilter{Role: role}); !errors.Is(err, ErrInvalidRole) {
			t.Fatalf("role %q: err = %v, want ErrInvalidRole", role, err)
		}
	}
}

func TestAttentionQueryFlagMatching(t *testing.T) {
	sql := attentionSQL(t, AttentionFilter{Role: OrderTypeDomestic, AttentionTypes: []string{"R2", "R1", "bogus"}})
	if !strings.Contains(sql, "'%, R1, %'") || !strings.Contains(sql, "'%, R2, %'") {
		t.Fatalf("contains match missing: %s", sql)
	}
	if strings.Contains(sql, "bogus") {
		t.Fatalf("unknown flag leaked into query: %s", sql)
	}

	sql = attentionSQL(t, AttentionFilter{Role: OrderTypeDomestic, AttentionTypes: []string{"R2", "R1"}, MatchExact: true})
	if !strings.Contains(sql, "order_lines.attention_type = 'R1, R2'") {
		t.Fatalf("exact match missing: %s", sql)
	}
}

func TestAttentionQueryOptionalFilters(t *testing.T) {
	yes := true
	after := EncodeCursor(strconv.Itoa(41))
	sql := attentionSQL(t, AttentionFilter{
		Role:       OrderTypeDomestic,
		Overdue1:   &yes,
		Plants:     []string{"P100"},
		SoldTo:     []string{"C001"},
		ItemStatus: []string{"Not Committed"},
		After:      &after,
	})
	for _, frag := range []string{
		"order_lines.overdue_1 = true",
		"order_lines.plant IN ('P100')",
		"orders.sold_to_code IN ('C001')",
		"order_lines.item_status_en IN ('Not Committed')",
		"order_lines.id > 41",
	} {
		if !strings.Contains(sql, frag) {
			t.Fatalf("missing %q in %s", frag, sql)
		}
	}
	where := sql[strings.Index(sql, "WHERE"):]
	if strings.Contains(where, "overdue_2") {
		t.Fatalf("unset overdue_2 filter applied: %s", where)
	}
}

func TestAttentionQueryIssuesNoWrites(t *testing.T) {
	sql := strings.ToUpper(attentionSQL(t, AttentionFilter{Role: OrderTypeExport}))
	if !strings.HasPrefix(sql, "SELECT") {
		t.Fatalf("attention query is not a select: %s", sql)
	}
}

func TestAttentionPageSize(t *testing.T) {
	cases := map[int]int{0: 50, -3: 50, 20: 20, 500: 500, 10000: 500}
	for limit, want := range cases {
		if got := (AttentionFilter{Limit: limit}).pageSize(); got != want {
			t.Fatalf("pageSize(%d) = %d, want %d", limit, got, want)
		}
	}
}

func TestNormalizeFlagQuery(t *testing.T) {
	got := NormalizeFlagQuery([]string{"R1,R2", " R3 ", ""})
	if want := []string{"R1", "R2", "R3"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
