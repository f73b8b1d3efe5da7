package repository

import (
	"github.com/ManuelReschke/BarberFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type manualReportRepository struct {
	db *gorm.DB
}

// NewManualReportRepository creates a new manual payment report repository instance
func NewManualReportRepository(db *gorm.DB) ManualReportRepository {
	return &manualReportRepository{db: db}
}

// Create inserts a new report
func (r *manualReportRepository) Create(report *models.ManualPaymentReport) error {
	return r.db.Create(report).Error
}

// GetByID retrieves a report, optionally locking the row
func (r *manualReportRepository) GetByID(id uint, forUpdate bool) (*models.ManualPaymentReport, error) {
	q := r.db
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var report models.ManualPaymentReport
	if err := q.First(&report, id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// Save persists all fields of the report
func (r *manualReportRepository) Save(report *models.ManualPaymentReport) error {
	return r.db.Save(report).Error
}

// List returns reports, newest first. An empty status lists all reports.
func (r *manualReportRepository) List(status string, offset, limit int) ([]models.ManualPaymentReport, error) {
	var reports []models.ManualPaymentReport
	q := r.db.Model(&models.ManualPaymentReport{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("created_at DESC, id DESC").Offset(offset).Limit(limit).Find(&reports).Error
	return reports, err
}

// Count counts reports with the given status, or all reports when status is empty
func (r *manualReportRepository) Count(status string) (int64, error) {
	var count int64
	q := r.db.Model(&models.ManualPaymentReport{})
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Count(&count).Error
	return count, err
}
