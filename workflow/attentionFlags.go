package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mmdatafocus/orders_backend/config"
	"github.com/mmdatafocus/orders_backend/models"
	"github.com/mmdatafocus/orders_backend/utils"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUnknownAttentionFlag = errors.New("unknown attention flag")

// AddAttentionFlags adds flags to the line's attention set under a row lock.
func AddAttentionFlags(ctx context.Context, db *gorm.DB, logger *logrus.Logger, lineId int, flags []string) (*models.OrderLine, error) {
	return mutateAttentionFlags(ctx, db, logger, lineId, flags, models.AddFlags)
}

// RemoveAttentionFlags removes flags from the line's attention set under a row lock.
func RemoveAttentionFlags(ctx context.Context, db *gorm.DB, logger *logrus.Logger, lineId int, flags []string) (*models.OrderLine, error) {
	return mutateAttentionFlags(ctx, db, logger, lineId, flags, models.RemoveFlags)
}

func mutateAttentionFlags(ctx context.Context, db *gorm.DB, logger *logrus.Logger, lineId int, flags []string, apply func(*models.OrderLine, []string)) (*models.OrderLine, error) {
	if err := validateAttentionFlags(flags); err != nil {
		return nil, err
	}
	var line models.OrderLine
	changed := false
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", lineId).Take(&line).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return models.ErrLineNotFound
			}
			return err
		}
		before := line.AttentionType
		apply(&line, flags)
		if line.AttentionType.Equal(before) {
			return nil
		}
		line.Touch()
		changed = true
		return tx.WithContext(config.AsLineWriter(ctx)).Model(&line).
			Updates(map[string]interface{}{
				"attention_type": line.AttentionType,
				"version":        line.Version,
			}).Error
	})
	if err != nil {
		if !errors.Is(err, models.ErrLineNotFound) {
			config.LogError(logger, "attentionFlags.go", "mutateAttentionFlags", "Update attention_type", map[string]any{"line_id": lineId, "flags": flags}, err)
		}
		return nil, err
	}
	if changed {
		user, _ := utils.GetUserNameFromContext(ctx)
		logger.WithFields(logrus.Fields{
			"field":   "mutateAttentionFlags",
			"line_id": lineId,
			"flags":   flags,
			"user":    user,
		}).Info("attention flags updated: " + line.AttentionType.String())
	}
	return &line, nil
}

func validateAttentionFlags(flags []string) error {
	var unknown []string
	for _, f := range flags {
		if !models.IsAttentionFlag(f) {
			unknown = append(unknown, f)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("%w: %s", ErrUnknownAttentionFlag, strings.Join(unknown, ", "))
	}
	return nil
}
