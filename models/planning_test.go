package models

import (
	"errors"
	"testing"
	"time"
)

func TestBeginPlanRequest(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute)
	old := now.Add(-time.Hour)

	cases := []struct {
		name    string
		status  AtpCtpStatus
		started *time.Time
		wantErr error
	}{
		{"unplanned", AtpCtpStatusUnplanned, nil, nil},
		{"proposed can be re-requested", AtpCtpStatusProposed, &recent, nil},
		{"confirm failed", AtpCtpStatusConfirmFailed, nil, nil},
		{"requested in flight", AtpCtpStatusRequested, &recent, ErrPlanningInFlight},
		{"confirming in flight", AtpCtpStatusConfirming, &recent, ErrPlanningInFlight},
		{"stale request is taken over", AtpCtpStatusRequested, &old, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line := &OrderLine{ID: 7, AtpCtpStatus: tc.status}
			if tc.started != nil {
				line.Planning = &OrderLinePlanning{OrderLineId: 7, CycleStartedAt: tc.started}
			}
			err := line.BeginPlanRequest(now, 15*time.Minute)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if err != nil {
				if line.Version != 0 {
					t.Fatalf("rejected transition bumped version")
				}
				return
			}
			if line.AtpCtpStatus != AtpCtpStatusRequested {
				t.Fatalf("status = %s", line.AtpCtpStatus)
			}
			if line.Planning == nil || !line.Planning.CycleStartedAt.Equal(now) {
				t.Fatalf("cycle start not recorded")
			}
			if line.Version != 1 {
				t.Fatalf("version = %d, want 1", line.Version)
			}
		})
	}
}

func TestBeginPlanRequestCreatesDefaultPlanning(t *testing.T) {
	line := &OrderLine{ID: 3}
	if err := line.BeginPlanRequest(time.Now(), time.Minute); err != nil {
		t.Fatalf("BeginPlanRequest: %v", err)
	}
	p := line.Planning
	if p.OrderLineId != 3 || !p.PartialDelivery || !p.UseInventory || p.InquiryMethod != "Domestic" {
		t.Fatalf("unexpected defaults %+v", p)
	}
}

func TestBeginPlanConfirm(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	recent := now.Add(-time.Minute)
	cases := []struct {
		name    string
		status  AtpCtpStatus
		wantErr error
	}{
		{"proposed", AtpCtpStatusProposed, nil},
		{"requested", AtpCtpStatusRequested, ErrPlanningInFlight},
		{"confirming", AtpCtpStatusConfirming, ErrPlanningInFlight},
		{"unplanned", AtpCtpStatusUnplanned, ErrPlanNotProposed},
		{"confirmed", AtpCtpStatusConfirmed, ErrPlanNotProposed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			line := &OrderLine{
				AtpCtpStatus: tc.status,
				Planning:     &OrderLinePlanning{CycleStartedAt: &recent},
			}
			err := line.BeginPlanConfirm(now, 15*time.Minute)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("err = %v, want %v", err, tc.wantErr)
			}
			if err == nil && line.AtpCtpStatus != AtpCtpStatusConfirming {
				t.Fatalf("status = %s", line.AtpCtpStatus)
			}
		})
	}
}

func TestAtpCtpStatusScanDefaultsToUnplanned(t *testing.T) {
	var s AtpCtpStatus
	if err := s.Scan(nil); err != nil || s != AtpCtpStatusUnplanned {
		t.Fatalf("Scan(nil) = %q, %v", s, err)
	}
	if err := s.Scan([]byte("")); err != nil || s != AtpCtpStatusUnplanned {
		t.Fatalf("Scan(empty) = %q, %v", s, err)
	}
	v, _ := AtpCtpStatus("").Value()
	if v != string(AtpCtpStatusUnplanned) {
		t.Fatalf("Value(empty) = %v", v)
	}
}
