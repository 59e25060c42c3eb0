package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/utils"
	"gorm.io/gorm"
)

var ErrInvalidOverdueDate = errors.New("invalid overdue date")

type overdueColumn struct {
	dateColumn string
	flagColumn string
}

var (
	overdueByRequestDate   = overdueColumn{dateColumn: "request_date", flagColumn: "overdue_1"}
	overdueByConfirmedDate = overdueColumn{dateColumn: "confirmed_date", flagColumn: "overdue_2"}
)

// ParseOverdueDate accepts "2006-01-02" and "02/01/2006".
func ParseOverdueDate(raw string) (time.Time, error) {
	d, err := utils.ParseDateLayouts(raw, "2006-01-02", "02/01/2006")
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrInvalidOverdueDate, err)
	}
	return d, nil
}

// BusinessToday is the calendar date of now in the business timezone.
func BusinessToday(now time.Time) time.Time {
	return utils.ConvertToDate(now, config.BusinessLocation())
}

// IsOverdue reports whether date has passed as of today.
func IsOverdue(date time.Time, today time.Time) bool {
	return utils.DateOnly(today).After(utils.DateOnly(date))
}

// MarkOverdueByRequestDate sets overdue_1 on every line whose request_date
// equals date, once today is past it. It never clears the flag.
func MarkOverdueByRequestDate(ctx context.Context, db *gorm.DB, date time.Time, now time.Time) (int64, error) {
	return markOverdue(ctx, db, overdueByRequestDate, date, now)
}

// MarkOverdueByConfirmedDate is the confirmed_date / overdue_2 counterpart.
func MarkOverdueByConfirmedDate(ctx context.Context, db *gorm.DB, date time.Time, now time.Time) (int64, error) {
	return markOverdue(ctx, db, overdueByConfirmedDate, date, now)
}

func markOverdue(ctx context.Context, db *gorm.DB, col overdueColumn, date time.Time, now time.Time) (int64, error) {
	date = utils.DateOnly(date)
	if !IsOverdue(date, BusinessToday(now)) {
		return 0, nil
	}
	res := db.WithContext(config.AsLineWriter(ctx)).
		Model(&OrderLine{}).
		Where(col.dateColumn+" = ?", date).
		Where(col.flagColumn+" = ?", false).
		Updates(map[string]interface{}{
			col.flagColumn: true,
			"version":      gorm.Expr("version + 1"),
		})
	return res.RowsAffected, res.Error
}

// MarkOverdueBefore is the sweep form: every unflagged line whose request or
// confirmed date lies before today is marked.
func MarkOverdueBefore(ctx context.Context, db *gorm.DB, now time.Time) (requestMarked int64, confirmedMarked int64, err error) {
	today := BusinessToday(now)
	for _, col := range []overdueColumn{overdueByRequestDate, overdueByConfirmedDate} {
		res := db.WithContext(config.AsLineWriter(ctx)).
			Model(&OrderLine{}).
			Where(col.dateColumn+" IS NOT NULL AND "+col.dateColumn+" < ?", today).
			Where(col.flagColumn+" = ?", false).
			Updates(map[string]interface{}{
				col.flagColumn: true,
				"version":      gorm.Expr("version + 1"),
			})
		if res.Error != nil {
			return requestMarked, confirmedMarked, res.Error
		}
		if col == overdueByRequestDate {
			requestMarked = res.RowsAffected
		} else {
			confirmedMarked = res.RowsAffected
		}
	}
	return requestMarked, confirmedMarked, nil
}

func overdueMarkKey(col overdueColumn, date time.Time, today time.Time) string {
	return fmt.Sprintf("overdue:%s:%s:%s", col.flagColumn, date.Format("2006-01-02"), today.Format("2006-01-02"))
}

// MarkOverdueLazily runs the request- and confirmed-date markers for date at
// most once per business day, remembering completed runs in Redis.
func MarkOverdueLazily(ctx context.Context, db *gorm.DB, logger *logrus.Logger, date time.Time, now time.Time) error {
	date = utils.DateOnly(date)
	today := BusinessToday(now)
	if !IsOverdue(date, today) {
		return nil
	}
	markers := []struct {
		col  overdueColumn
		mark func(context.Context, *gorm.DB, time.Time, time.Time) (int64, error)
	}{
		{overdueByRequestDate, MarkOverdueByRequestDate},
		{overdueByConfirmedDate, MarkOverdueByConfirmedDate},
	}
	for _, m := range markers {
		key := overdueMarkKey(m.col, date, today)
		if _, done, err := config.GetRedisValue(ctx, key); err == nil && done {
			continue
		}
		n, err := m.mark(ctx, db, date, now)
		if err != nil {
			config.LogError(logger, "overdue.go", "MarkOverdueLazily", m.col.flagColumn, date, err)
			return err
		}
		if n > 0 {
			logger.WithFields(logrus.Fields{
				"field":  "MarkOverdueLazily",
				"column": m.col.flagColumn,
				"date":   date.Format("2006-01-02"),
				"marked": n,
			}).Info("lines marked overdue")
		}
		if err := config.SetRedisValue(ctx, key, "1", 26*time.Hour); err != nil {
			logger.WithFields(logrus.Fields{"field": "MarkOverdueLazily", "key": key}).Warn("cache overdue mark failed: " + err.Error())
		}
	}
	return nil
}
