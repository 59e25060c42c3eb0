package models

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"gorm.io/gorm"
)

var ErrInvalidRole = errors.New("invalid attention view role")

const (
	defaultAttentionPageSize = 50
	maxAttentionPageSize     = 500
)

// AttentionFilter narrows the attention view. Nil pointers and empty slices
// leave the corresponding dimension unfiltered.
type AttentionFilter struct {
	Role OrderType `json:"role" form:"role" validate:"required,oneof=domestic export"`

	AttentionTypes []string `json:"attention_types" form:"attention_type"`
	// MatchExact compares the whole canonical flag string instead of
	// requiring each listed flag to be present.
	MatchExact bool `json:"match_exact" form:"match_exact"`

	Overdue1         *bool    `json:"overdue_1" form:"overdue_1"`
	Overdue2         *bool    `json:"overdue_2" form:"overdue_2"`
	ItemStatus       []string `json:"item_status" form:"item_status"`
	ProductionStatus []string `json:"production_status" form:"production_status"`
	Plants           []string `json:"plants" form:"plant"`
	SoldTo           []string `json:"sold_to" form:"sold_to"`

	RequestDateFrom   *time.Time `json:"request_date_from"`
	RequestDateTo     *time.Time `json:"request_date_to"`
	ConfirmedDateFrom *time.Time `json:"confirmed_date_from"`
	ConfirmedDateTo   *time.Time `json:"confirmed_date_to"`

	After *string `json:"after" form:"after"`
	Limit int     `json:"limit" form:"limit"`
}

type AttentionPage struct {
	Lines []*OrderLine `json:"lines"`
	// Flags describes category and severity of every flag on Lines.
	Flags      []AttentionFlagDef `json:"flags"`
	TotalCount int64              `json:"total_count"`
	PageInfo   PageInfo           `json:"page_info"`
}

// attentionQuery composes the filter onto db. It only reads.
func attentionQuery(db *gorm.DB, f AttentionFilter) (*gorm.DB, error) {
	if f.Role != OrderTypeDomestic && f.Role != OrderTypeExport {
		return nil, ErrInvalidRole
	}
	q := db.Model(&OrderLine{}).
		Joins("JOIN orders ON orders.id = order_lines.order_id").
		Where("orders.distribution_channel IN ?", KindOf(f.Role).DistributionChannels())

	if flags := (AttentionSet{}).With(f.AttentionTypes...); flags.Len() > 0 {
		if f.MatchExact {
			q = q.Where("order_lines.attention_type = ?", flags.String())
		} else {
			for _, code := range flags.Codes() {
				q = q.Where("CONCAT(', ', order_lines.attention_type, ', ') LIKE ?", "%, "+code+", %")
			}
		}
	}
	if f.Overdue1 != nil {
		q = q.Where("order_lines.overdue_1 = ?", *f.Overdue1)
	}
	if f.Overdue2 != nil {
		q = q.Where("order_lines.overdue_2 = ?", *f.Overdue2)
	}
	if len(f.ItemStatus) > 0 {
		q = q.Where("order_lines.item_status_en IN ?", f.ItemStatus)
	}
	if len(f.ProductionStatus) > 0 {
		q = q.Where("order_lines.production_status IN ?", f.ProductionStatus)
	}
	if len(f.Plants) > 0 {
		q = q.Where("order_lines.plant IN ?", f.Plants)
	}
	if len(f.SoldTo) > 0 {
		q = q.Where("orders.sold_to_code IN ?", f.SoldTo)
	}
	if f.RequestDateFrom != nil {
		q = q.Where("order_lines.request_date >= ?", *f.RequestDateFrom)
	}
	if f.RequestDateTo != nil {
		q = q.Where("order_lines.request_date <= ?", *f.RequestDateTo)
	}
	if f.ConfirmedDateFrom != nil {
		q = q.Where("order_lines.confirmed_date >= ?", *f.ConfirmedDateFrom)
	}
	if f.ConfirmedDateTo != nil {
		q = q.Where("order_lines.confirmed_date <= ?", *f.ConfirmedDateTo)
	}
	if f.After != nil && *f.After != "" {
		decoded, err := DecodeCursor(f.After)
		if err != nil {
			return nil, err
		}
		afterId, err := strconv.Atoi(decoded)
		if err != nil {
			return nil, err
		}
		q = q.Where("order_lines.id > ?", afterId)
	}
	return q, nil
}

func (f AttentionFilter) pageSize() int {
	switch {
	case f.Limit <= 0:
		return defaultAttentionPageSize
	case f.Limit > maxAttentionPageSize:
		return maxAttentionPageSize
	}
	return f.Limit
}

// ListAttentionLines returns one page of lines with their order header and
// planning state, ordered by line id.
func ListAttentionLines(ctx context.Context, db *gorm.DB, f AttentionFilter) (*AttentionPage, error) {
	q, err := attentionQuery(db.WithContext(ctx), f)
	if err != nil {
		return nil, err
	}
	limit := f.pageSize()
	var lines []*OrderLine
	err = q.Select("order_lines.*").
		Preload("Order").
		Preload("Planning").
		Order("order_lines.id").
		Limit(limit + 1).
		Find(&lines).Error
	if err != nil {
		return nil, err
	}

	hasNext := len(lines) > limit
	if hasNext {
		lines = lines[:limit]
	}
	present := AttentionSet{}
	for _, l := range lines {
		for code := range l.AttentionType {
			present[code] = struct{}{}
		}
	}
	page := &AttentionPage{Lines: lines, Flags: present.Definitions(), PageInfo: PageInfo{HasNextPage: &hasNext}}
	if len(lines) > 0 {
		page.PageInfo.StartCursor = EncodeCursor(strconv.Itoa(lines[0].ID))
		page.PageInfo.EndCursor = EncodeCursor(strconv.Itoa(lines[len(lines)-1].ID))
	}
	return page, nil
}

// CountAttentionLines counts lines matching f, ignoring the page cursor.
func CountAttentionLines(ctx context.Context, db *gorm.DB, f AttentionFilter) (int64, error) {
	f.After = nil
	q, err := attentionQuery(db.WithContext(ctx), f)
	if err != nil {
		return 0, err
	}
	var n int64
	err = q.Count(&n).Error
	return n, err
}

// NormalizeFlagQuery splits repeated or comma-separated flag parameters.
func NormalizeFlagQuery(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
