package database

import (
	"log"

	"opsconsole/internal/model"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// NewConnection initializes a new connection pool using GORM. Only the data
// this console owns is migrated here: operator accounts, session tokens, the
// share trail, and the action audit. Orders live in the ERP and are never
// persisted locally.
func NewConnection(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	err = db.AutoMigrate(
		&model.User{},
		&model.RefreshToken{},
		&model.ShareLog{},
		&model.ActionAudit{},
	)
	if err != nil {
		log.Println("WARNING: Failed to auto-migrate models:", err)
	}

	return db, nil
}
