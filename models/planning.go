package models

import (
	"errors"
	"time"
)

var (
	ErrPlanningInFlight = errors.New("atp/ctp cycle already in flight for line")
	ErrPlanNotProposed  = errors.New("line has no proposed plan to confirm")
)

// BeginPlanRequest moves the line into Requested. A cycle still in flight
// blocks a new one until it is older than staleAfter.
func (l *OrderLine) BeginPlanRequest(now time.Time, staleAfter time.Duration) error {
	if l.AtpCtpStatus.InFlight() && !l.planCycleStale(now, staleAfter) {
		return ErrPlanningInFlight
	}
	if l.Planning == nil {
		l.Planning = NewOrderLinePlanning(l.ID)
	}
	l.AtpCtpStatus = AtpCtpStatusRequested
	l.Planning.CycleStartedAt = &now
	l.Touch()
	return nil
}

// BeginPlanConfirm moves a Proposed line into Confirming.
func (l *OrderLine) BeginPlanConfirm(now time.Time, staleAfter time.Duration) error {
	switch {
	case l.AtpCtpStatus == AtpCtpStatusProposed:
	case l.AtpCtpStatus.InFlight() && !l.planCycleStale(now, staleAfter):
		return ErrPlanningInFlight
	default:
		return ErrPlanNotProposed
	}
	if l.Planning == nil {
		l.Planning = NewOrderLinePlanning(l.ID)
	}
	l.AtpCtpStatus = AtpCtpStatusConfirming
	l.Planning.CycleStartedAt = &now
	l.Touch()
	return nil
}

func (l *OrderLine) planCycleStale(now time.Time, staleAfter time.Duration) bool {
	if staleAfter <= 0 || l.Planning == nil || l.Planning.CycleStartedAt == nil {
		return staleAfter > 0
	}
	return now.Sub(*l.Planning.CycleStartedAt) > staleAfter
}
