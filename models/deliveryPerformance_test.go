package models

import (
	"testing"
	"time"
)

func day(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestEvaluateDeliveryPerformance(t *testing.T) {
	cases := []struct {
		name    string
		in      DeliveryPerformanceInput
		wantDtp string
		wantDtr string
	}{
		{
			name: "on confirmed and request date",
			in: DeliveryPerformanceInput{
				GiDate:              day("2026-03-10"),
				ConfirmedDate:       day("2026-03-10"),
				OriginalRequestDate: day("2026-03-10"),
			},
			wantDtp: VerdictPass,
			wantDtr: VerdictPass,
		},
		{
			name: "one day early passes",
			in: DeliveryPerformanceInput{
				GiDate:              day("2026-03-09"),
				ConfirmedDate:       day("2026-03-10"),
				OriginalRequestDate: day("2026-03-10"),
			},
			wantDtp: VerdictPass,
			wantDtr: VerdictPass,
		},
		{
			name: "two days early fails both",
			in: DeliveryPerformanceInput{
				GiDate:              day("2026-03-08"),
				ConfirmedDate:       day("2026-03-10"),
				OriginalRequestDate: day("2026-03-10"),
			},
			wantDtp: VerdictNotPass,
			wantDtr: VerdictNotPass,
		},
		{
			name: "one day late fails",
			in: DeliveryPerformanceInput{
				GiDate:              day("2026-03-11"),
				ConfirmedDate:       day("2026-03-10"),
				OriginalRequestDate: day("2026-03-10"),
			},
			wantDtp: VerdictNotPass,
			wantDtr: VerdictNotPass,
		},
		{
			name: "confirmed moved away from request date",
			in: DeliveryPerformanceInput{
				GiDate:              day("2026-03-20"),
				ConfirmedDate:       day("2026-03-20"),
				OriginalRequestDate: day("2026-03-10"),
			},
			wantDtp: VerdictPass,
			wantDtr: VerdictNotPass,
		},
		{
			name: "C4 remark passes DTR outside the request window",
			in: DeliveryPerformanceInput{
				GiDate:              day("2026-03-20"),
				ConfirmedDate:       day("2026-03-20"),
				OriginalRequestDate: day("2026-03-10"),
				Remark:              "C4",
			},
			wantDtp: VerdictPass,
			wantDtr: VerdictPass,
		},
		{
			name: "remark inside the request window fails DTR",
			in: DeliveryPerformanceInput{
				GiDate:              day("2026-03-10"),
				ConfirmedDate:       day("2026-03-10"),
				OriginalRequestDate: day("2026-03-10"),
				Remark:              "C4",
			},
			wantDtp: VerdictPass,
			wantDtr: VerdictNotPass,
		},
		{
			name: "C4 cannot rescue a failed DTP",
			in: DeliveryPerformanceInput{
				GiDate:              day("2026-03-25"),
				ConfirmedDate:       day("2026-03-20"),
				OriginalRequestDate: day("2026-03-10"),
				Remark:              "C4",
			},
			wantDtp: VerdictNotPass,
			wantDtr: VerdictNotPass,
		},
		{
			name:    "cancelled goods issue",
			in:      DeliveryPerformanceInput{GiStatus: "A"},
			wantDtp: VerdictCancelledGI,
			wantDtr: VerdictCancelledGI,
		},
		{
			name:    "no goods issue",
			in:      DeliveryPerformanceInput{GiStatus: "B"},
			wantDtp: VerdictNone,
			wantDtr: VerdictNone,
		},
		{
			name: "missing confirmed date fails DTP",
			in: DeliveryPerformanceInput{
				GiDate:              day("2026-03-10"),
				OriginalRequestDate: day("2026-03-10"),
			},
			wantDtp: VerdictNotPass,
			wantDtr: VerdictNotPass,
		},
		{
			name: "export lines are not evaluated",
			in: DeliveryPerformanceInput{
				Kind:                KindOf(OrderTypeExport),
				GiDate:              day("2026-03-10"),
				ConfirmedDate:       day("2026-03-10"),
				OriginalRequestDate: day("2026-03-10"),
			},
			wantDtp: VerdictNone,
			wantDtr: VerdictNone,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dtp, dtr := EvaluateDeliveryPerformance(tc.in)
			if dtp != tc.wantDtp || dtr != tc.wantDtr {
				t.Fatalf("got (%q, %q), want (%q, %q)", dtp, dtr, tc.wantDtp, tc.wantDtr)
			}
		})
	}
}

func TestCancelledVerdictIsDistinctFromNone(t *testing.T) {
	if VerdictCancelledGI == VerdictNone {
		t.Fatalf("cancelled verdict must differ from the unevaluated verdict")
	}
}

func TestBothNotPass(t *testing.T) {
	if !BothNotPass(VerdictNotPass, VerdictNotPass) {
		t.Fatalf("want true for two failures")
	}
	if BothNotPass(VerdictPass, VerdictNotPass) || BothNotPass(VerdictCancelledGI, VerdictCancelledGI) {
		t.Fatalf("want false")
	}
}
