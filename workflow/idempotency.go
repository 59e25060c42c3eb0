package workflow

import (
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/mmdatafocus/orders_backend/models"
	"gorm.io/gorm"
)

var ErrIdempotencyInProgress = errors.New("idempotency in progress")

const idempotencyStaleAfter = 5 * time.Minute

func isDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	return false
}

// BeginIdempotency inserts STARTED. If SUCCEEDED exists, returns (true, nil) meaning "skip safely".
func BeginIdempotency(tx *gorm.DB, handlerName, messageId string) (skip bool, err error) {
	key := models.IdempotencyKey{
		HandlerName: handlerName,
		MessageId:   messageId,
		Status:      models.IdempotencyStatusStarted,
	}
	if err := tx.Create(&key).Error; err == nil {
		return false, nil
	} else if !isDuplicateKeyErr(err) {
		return false, err
	}

	var existing models.IdempotencyKey
	if err := tx.Where("handler_name = ? AND message_id = ?", handlerName, messageId).
		First(&existing).Error; err != nil {
		return false, err
	}

	switch existing.Status {
	case models.IdempotencyStatusSucceeded:
		return true, nil
	case models.IdempotencyStatusStarted:
		// A live worker holds it; Pub/Sub retries later. A stale one is taken over.
		if time.Since(existing.UpdatedAt) < idempotencyStaleAfter {
			return false, ErrIdempotencyInProgress
		}
	}
	return false, tx.Model(&models.IdempotencyKey{}).
		Where("id = ?", existing.ID).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusStarted, "last_error": nil}).Error
}

func MarkIdempotencySucceeded(tx *gorm.DB, handlerName, messageId string) error {
	return tx.Model(&models.IdempotencyKey{}).
		Where("handler_name = ? AND message_id = ?", handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusSucceeded, "last_error": nil}).Error
}

func MarkIdempotencyFailed(tx *gorm.DB, handlerName, messageId string, err error) error {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return tx.Model(&models.IdempotencyKey{}).
		Where("handler_name = ? AND message_id = ?", handlerName, messageId).
		Updates(map[string]interface{}{"status": models.IdempotencyStatusFailed, "last_error": &msg}).Error
}
