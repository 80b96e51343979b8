// Package database initializes the relational and key-value stores.
package database

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"questionnaire-agent-go/internal/model"
	"questionnaire-agent-go/pkg/log"
)

// OpenMySQL connects to MySQL, configures the connection pool and migrates
// the schema. The returned handle is injected into the repositories and
// closed on shutdown via CloseMySQL.
func OpenMySQL(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(
		&model.Document{},
		&model.DocumentChunk{},
		&model.Project{},
		&model.Question{},
		&model.Answer{},
		&model.Job{},
	); err != nil {
		return nil, err
	}

	log.Info("MySQL database connected successfully")
	return db, nil
}

// CloseMySQL closes the underlying connection pool.
func CloseMySQL(db *gorm.DB) {
	sqlDB, err := db.DB()
	if err != nil {
		log.Error("failed to get sql.DB for close", err)
		return
	}
	_ = sqlDB.Close()
}
