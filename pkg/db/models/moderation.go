package models

import (
	"time"

	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Report is a user-filed complaint about a post, comment or user.
type Report struct {
	Base
	ReporterUID    string                 `gorm:"column:reporter_uid;type:text;not null"`
	TargetType     enums.ReportTargetType `gorm:"column:target_type;type:text;not null"`
	TargetID       string                 `gorm:"column:target_id;type:text;not null"`
	TargetOwnerUID string                 `gorm:"column:target_owner_uid;type:text;not null"`
	ReasonCode     string                 `gorm:"column:reason_code;type:text;not null"`
	Message        string                 `gorm:"column:message;type:text;not null;default:''"`
	Status         enums.ReportStatus     `gorm:"column:status;type:text;not null;index:idx_reports_status"`
	Sanction       *enums.Sanction        `gorm:"column:sanction;type:text"`
	ResolutionNote *string                `gorm:"column:resolution_note;type:text"`
	ResolvedBy     *string                `gorm:"column:resolved_by;type:text"`
	ResolvedAt     *time.Time             `gorm:"column:resolved_at"`
	CreatedAt      time.Time              `gorm:"column:created_at;autoCreateTime"`
}

// Contract is the marketplace agreement a dispute is scoped to. Contracts are
// written by the marketplace flows; moderation only reads them.
type Contract struct {
	Base
	ArtistUID  string          `gorm:"column:artist_uid;type:text;not null"`
	CreatorUID string          `gorm:"column:creator_uid;type:text;not null"`
	Amount     decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency   string          `gorm:"column:currency;type:text;not null;default:'USD'"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// Dispute is a contract-scoped complaint resolved by an admin.
type Dispute struct {
	Base
	ContractID   uuid.UUID             `gorm:"column:contract_id;type:uuid;not null;index:idx_disputes_contract;uniqueIndex:idx_disputes_open_contract,where:status <> 'resolved'"`
	ArtistUID    string                `gorm:"column:artist_uid;type:text;not null"`
	CreatorUID   string                `gorm:"column:creator_uid;type:text;not null"`
	OpenedBy     string                `gorm:"column:opened_by;type:text;not null"`
	Status       enums.DisputeStatus   `gorm:"column:status;type:text;not null"`
	ReasonCode   string                `gorm:"column:reason_code;type:text;not null"`
	Outcome      *enums.DisputeOutcome `gorm:"column:outcome;type:text"`
	RefundAmount *decimal.Decimal      `gorm:"column:refund_amount;type:numeric(12,2)"`
	DecisionNote *string               `gorm:"column:decision_note;type:text"`
	ResolvedBy   *string               `gorm:"column:resolved_by;type:text"`
	ResolvedAt   *time.Time            `gorm:"column:resolved_at"`
	CreatedAt    time.Time             `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time             `gorm:"column:updated_at;autoUpdateTime"`
}
