package moderation

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/angelmondragon/atelier-backend/pkg/pagination"
)

// Repository persists reports, disputes and reads contracts.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a moderation repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx.WithContext(ctx)
	}
	return r.db.WithContext(ctx)
}

func (r *Repository) CreateReport(ctx context.Context, tx *gorm.DB, report *models.Report) error {
	return r.conn(ctx, tx).Create(report).Error
}

func (r *Repository) FindReport(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Report, error) {
	var report models.Report
	if err := r.conn(ctx, tx).First(&report, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &report, nil
}

// CloseReport moves an open report to its terminal status. It reports false
// when the report was no longer open.
func (r *Repository) CloseReport(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) (bool, error) {
	res := r.conn(ctx, tx).
		Model(&models.Report{}).
		Where("id = ? AND status = ?", id, enums.ReportStatusOpen).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}

// ListReports pages through reports in the given status, oldest first so the
// queue drains in filing order.
func (r *Repository) ListReports(ctx context.Context, status enums.ReportStatus, params pagination.Params) (pagination.Page[models.Report], error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return pagination.Page[models.Report]{}, err
	}
	query := r.conn(ctx, nil).Where("status = ?", status)
	if cursor != nil {
		query = query.Where("(created_at > ?) OR (created_at = ? AND id > ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.Key)
	}
	var rows []models.Report
	if err := query.Order("created_at ASC").Order("id ASC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error; err != nil {
		return pagination.Page[models.Report]{}, err
	}
	return pagination.Trim(rows, params.Limit, func(rep models.Report) pagination.Cursor {
		return pagination.Cursor{CreatedAt: rep.CreatedAt, Key: rep.ID.String()}
	}), nil
}

func (r *Repository) FindContract(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Contract, error) {
	var contract models.Contract
	if err := r.conn(ctx, tx).First(&contract, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &contract, nil
}

func (r *Repository) CreateDispute(ctx context.Context, tx *gorm.DB, dispute *models.Dispute) error {
	return r.conn(ctx, tx).Create(dispute).Error
}

func (r *Repository) FindDispute(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	if err := r.conn(ctx, tx).First(&dispute, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &dispute, nil
}

// FindUnresolvedDispute returns the contract's open or under-review dispute.
func (r *Repository) FindUnresolvedDispute(ctx context.Context, tx *gorm.DB, contractID uuid.UUID) (*models.Dispute, error) {
	var dispute models.Dispute
	err := r.conn(ctx, tx).
		Where("contract_id = ? AND status <> ?", contractID, enums.DisputeStatusResolved).
		First(&dispute).Error
	if err != nil {
		return nil, err
	}
	return &dispute, nil
}

// AdvanceDispute applies updates only while the dispute is still in from.
func (r *Repository) AdvanceDispute(ctx context.Context, tx *gorm.DB, id uuid.UUID, from enums.DisputeStatus, updates map[string]any) (bool, error) {
	res := r.conn(ctx, tx).
		Model(&models.Dispute{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	return res.RowsAffected == 1, res.Error
}
