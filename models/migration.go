package models

import (
	"log"

	"github.com/mmdatafocus/orders_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Order{}, &OrderLine{}, &OrderLinePlanning{},
		&IntegrationSyncRun{}, &IntegrationSyncError{},
		&IdempotencyKey{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
