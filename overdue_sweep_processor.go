package main

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/workflow"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const overdueSweepLockKey = "lock:overdue:sweep"

// OverdueSweepProcessor periodically marks every line whose request or
// confirmed date has passed. One instance sweeps at a time.
type OverdueSweepProcessor struct {
	DB       *gorm.DB
	Logger   *logrus.Logger
	Locker   workflow.Locker
	WorkerID string
	Interval time.Duration
	Now      func() time.Time
}

func NewOverdueSweepProcessor(db *gorm.DB, logger *logrus.Logger, locker workflow.Locker) *OverdueSweepProcessor {
	return &OverdueSweepProcessor{
		DB:       db,
		Logger:   logger,
		Locker:   locker,
		WorkerID: "sweep-" + uuid.NewString(),
		Interval: config.OverdueSweepInterval(),
		Now:      time.Now,
	}
}

func (p *OverdueSweepProcessor) Run(ctx context.Context) {
	if p == nil || p.DB == nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		p.sweepOnce(ctx)
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.Interval):
		}
	}
}

func (p *OverdueSweepProcessor) sweepOnce(ctx context.Context) {
	if p.Locker != nil {
		lock, err := p.Locker.Obtain(ctx, overdueSweepLockKey, p.Interval, nil)
		if err != nil {
			// Another instance holds it, or Redis is down; either way skip this tick.
			return
		}
		defer func() { _ = lock.Release(context.WithoutCancel(ctx)) }()
	}

	requestMarked, confirmedMarked, err := models.MarkOverdueBefore(ctx, p.DB, p.Now())
	if err != nil {
		config.LogError(p.Logger, "overdue_sweep_processor.go", "sweepOnce", "MarkOverdueBefore", p.WorkerID, err)
		return
	}
	if requestMarked > 0 || confirmedMarked > 0 {
		p.Logger.WithFields(logrus.Fields{
			"field":            "OverdueSweepProcessor",
			"worker_id":        p.WorkerID,
			"overdue_1_marked": requestMarked,
			"overdue_2_marked": confirmedMarked,
		}).Info("overdue sweep marked lines")
	}
}
