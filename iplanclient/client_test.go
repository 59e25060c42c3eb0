package iplanclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestDateMarshalsAsDayMonthYear(t *testing.T) {
	b, err := json.Marshal(NewDate(time.Date(2024, 3, 5, 15, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatal(err)
	}
	if string(b) != `"05/03/2024"` {
		t.Fatalf("got %s", b)
	}
}

func TestDateUnmarshal(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	cases := []string{`"05/03/2024"`, `"2024-03-05T00:00:00Z"`, `"2024-03-05"`}
	for _, in := range cases {
		var d Date
		if err := json.Unmarshal([]byte(in), &d); err != nil {
			t.Fatalf("%s: %v", in, err)
		}
		if !d.Equal(want) {
			t.Fatalf("%s: got %v", in, d.Time)
		}
	}

	var empty Date
	if err := json.Unmarshal([]byte(`""`), &empty); err != nil || !empty.IsZero() {
		t.Fatalf("empty date: %v %v", empty, err)
	}
	if err := json.Unmarshal([]byte(`"5th March"`), &empty); err == nil {
		t.Fatal("expected error")
	}
}

func TestMessageFailed(t *testing.T) {
	cases := map[string]bool{"E": true, "a": true, "S": false, "W": false, "": false}
	for typ, want := range cases {
		if got := (Message{Type: typ}).Failed(); got != want {
			t.Errorf("type %q: got %v", typ, got)
		}
	}
}

func TestRequestPlan(t *testing.T) {
	var got PlanRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/atp-ctp/request" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `"requestDate":"10/04/2024"`) {
			t.Errorf("request date not DD/MM/YYYY: %s", body)
		}
		json.Unmarshal(body, &got)
		w.Write([]byte(`{"lines":[{"orderNo":"1000123","itemNo":"10","items":[
			{"atpCtp":"ATP","quantity":6,"date":"2024-04-10T00:00:00Z","plant":"1010","onHandStock":true},
			{"atpCtp":"CTP","quantity":"4","date":"15/04/2024","plant":"1020","paperMachine":"PM2"}
		]}],"messages":[]}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, "k", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, raw, err := c.RequestPlan(context.Background(), PlanRequest{Lines: []PlanRequestLine{{
		OrderNo:     "1000123",
		ItemNo:      "10",
		Quantity:    decimal.NewFromInt(10),
		RequestDate: NewDate(time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)),
	}}})
	if err != nil {
		t.Fatal(err)
	}
	if len(raw) == 0 {
		t.Fatal("raw body missing")
	}
	if got.Lines[0].OrderNo != "1000123" {
		t.Fatalf("server saw %+v", got)
	}
	items := resp.Lines[0].Items
	if len(items) != 2 {
		t.Fatalf("got %d plan items", len(items))
	}
	if !items[1].Date.Equal(time.Date(2024, 4, 15, 0, 0, 0, 0, time.UTC)) || !items[1].Quantity.Equal(decimal.NewFromInt(4)) {
		t.Fatalf("second item parsed as %+v", items[1])
	}
}

func TestConfirmPlanErrorKeepsRawBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"engine down"}`))
	}))
	defer srv.Close()

	c, _ := New(srv.URL, "", nil)
	_, raw, err := c.ConfirmPlan(context.Background(), ConfirmRequest{})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(string(raw), "engine down") {
		t.Fatalf("raw = %s", raw)
	}
}
