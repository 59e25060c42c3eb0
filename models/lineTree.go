package models

import (
	"context"
	"errors"
	"fmt"

	"github.com/mmdatafocus/orders_backend/config"
	"gorm.io/gorm"
)

var ErrLineCycle = errors.New("order line reference would create a cycle")

// maxLineDepth bounds the walk when the stored chain is already corrupt.
const maxLineDepth = 64

// checkNoCycle walks from start following next and fails if it reaches self.
func checkNoCycle(self int, start int, next func(id int) (*int, error)) error {
	if self == start {
		return ErrLineCycle
	}
	seen := map[int]bool{self: true}
	cur := start
	for depth := 0; depth < maxLineDepth; depth++ {
		if seen[cur] {
			return ErrLineCycle
		}
		seen[cur] = true
		up, err := next(cur)
		if err != nil {
			return err
		}
		if up == nil {
			return nil
		}
		cur = *up
	}
	return fmt.Errorf("%w: chain deeper than %d", ErrLineCycle, maxLineDepth)
}

// AssignParent links a BOM sub-line to its parent line.
func AssignParent(ctx context.Context, tx *gorm.DB, line *OrderLine, parentId int) error {
	if err := checkNoCycle(line.ID, parentId, lineRefLookup(ctx, tx, "parent_id")); err != nil {
		return err
	}
	line.ParentId = &parentId
	return tx.WithContext(config.AsLineWriter(ctx)).Model(&OrderLine{}).
		Where("id = ?", line.ID).
		Update("parent_id", parentId).Error
}

// AssignOriginalLine links a split line to the line it was split from.
func AssignOriginalLine(ctx context.Context, tx *gorm.DB, line *OrderLine, originalId int) error {
	if line.ID != 0 {
		if err := checkNoCycle(line.ID, originalId, lineRefLookup(ctx, tx, "original_order_line_id")); err != nil {
			return err
		}
	}
	line.OriginalOrderLineId = &originalId
	if line.ID == 0 {
		return nil
	}
	return tx.WithContext(config.AsLineWriter(ctx)).Model(&OrderLine{}).
		Where("id = ?", line.ID).
		Update("original_order_line_id", originalId).Error
}

func lineRefLookup(ctx context.Context, tx *gorm.DB, column string) func(id int) (*int, error) {
	return func(id int) (*int, error) {
		var ref struct {
			Ref *int
		}
		err := tx.WithContext(ctx).Model(&OrderLine{}).
			Select(column+" AS ref").
			Where("id = ?", id).
			Take(&ref).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrLineNotFound
		}
		if err != nil {
			return nil, err
		}
		return ref.Ref, nil
	}
}
