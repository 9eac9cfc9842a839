// Package store persists an audit trail of processing runs in MySQL.
// The store is optional; a nil *Store is a no-op.
package store

import (
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// ProcessRun is one CSV upload processed by the service.
type ProcessRun struct {
	ID                string    `gorm:"column:id;primaryKey;size:36"`
	Country           string    `gorm:"column:country;size:8"`
	Company           string    `gorm:"column:company;size:64"`
	EmployeeCount     int       `gorm:"column:employee_count"`
	GeneratedPaystubs int       `gorm:"column:generated_paystubs"`
	EmailsSent        int       `gorm:"column:emails_sent"`
	ErrorCount        int       `gorm:"column:error_count"`
	CreatedAt         time.Time `gorm:"column:created_at"`
}

func (ProcessRun) TableName() string { return "process_runs" }

// PaystubRecord is one generated paystub within a run.
type PaystubRecord struct {
	ID           uint      `gorm:"column:id;primaryKey;autoIncrement"`
	RunID        string    `gorm:"column:run_id;index;size:36"`
	EmployeeName string    `gorm:"column:employee_name;size:128"`
	Email        string    `gorm:"column:email;size:128"`
	File         string    `gorm:"column:file;size:256"`
	EmailStatus  string    `gorm:"column:email_status;size:16"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

func (PaystubRecord) TableName() string { return "paystub_records" }

// Store wraps the MySQL connection.
type Store struct {
	db *gorm.DB
}

// Open connects to MySQL and migrates the audit tables. An empty DSN
// returns a nil store, which disables auditing.
func Open(dsn string) (*Store, error) {
	if dsn == "" {
		return nil, nil
	}
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&ProcessRun{}, &PaystubRecord{}); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// RecordRun writes the run header and its paystub records in one
// transaction. No-op on a nil store.
func (s *Store) RecordRun(run ProcessRun, records []PaystubRecord) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		for i := range records {
			records[i].RunID = run.ID
		}
		if len(records) > 0 {
			if err := tx.Create(&records).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// Enabled reports whether auditing is active.
func (s *Store) Enabled() bool {
	return s != nil && s.db != nil
}
