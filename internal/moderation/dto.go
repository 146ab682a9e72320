package moderation

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
)

// CreateReportInput is the payload for filing a report.
type CreateReportInput struct {
	TargetType string `json:"targetType" validate:"required,oneof=post comment user"`
	TargetID   string `json:"targetId" validate:"required"`
	ReasonCode string `json:"reasonCode" validate:"required,max=64"`
	Message    string `json:"message" validate:"max=2000"`
}

// ResolveReportInput carries the admin decision on a report.
type ResolveReportInput struct {
	Sanction string `json:"sanction" validate:"omitempty,oneof=none block takedown"`
	Note     string `json:"note" validate:"max=2000"`
}

// OpenDisputeInput is the payload for opening a contract dispute.
type OpenDisputeInput struct {
	ContractID uuid.UUID `json:"contractId" validate:"required"`
	ReasonCode string    `json:"reasonCode" validate:"required,max=64"`
}

// ResolveDisputeInput is the terminal decision on a dispute. RefundAmount is
// a decimal string in the contract currency. BlockBy names the party whose
// block edge is written against the other side.
type ResolveDisputeInput struct {
	Outcome      string `json:"outcome" validate:"required,oneof=refund_creator release_artist split"`
	RefundAmount string `json:"refundAmount"`
	Note         string `json:"note" validate:"max=2000"`
	BlockBy      string `json:"blockBy" validate:"omitempty,oneof=none artist creator"`
}

// ReportDTO is a report as shown to admins.
type ReportDTO struct {
	ID             uuid.UUID              `json:"id"`
	ReporterUID    string                 `json:"reporter_uid"`
	TargetType     enums.ReportTargetType `json:"target_type"`
	TargetID       string                 `json:"target_id"`
	TargetOwnerUID string                 `json:"target_owner_uid"`
	ReasonCode     string                 `json:"reason_code"`
	Message        string                 `json:"message"`
	Status         enums.ReportStatus     `json:"status"`
	Sanction       *enums.Sanction        `json:"sanction,omitempty"`
	ResolutionNote *string                `json:"resolution_note,omitempty"`
	ResolvedBy     *string                `json:"resolved_by,omitempty"`
	ResolvedAt     *time.Time             `json:"resolved_at,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// DisputeDTO is a dispute as shown to its parties and admins.
type DisputeDTO struct {
	ID           uuid.UUID             `json:"id"`
	ContractID   uuid.UUID             `json:"contract_id"`
	ArtistUID    string                `json:"artist_uid"`
	CreatorUID   string                `json:"creator_uid"`
	OpenedBy     string                `json:"opened_by"`
	Status       enums.DisputeStatus   `json:"status"`
	ReasonCode   string                `json:"reason_code"`
	Outcome      *enums.DisputeOutcome `json:"outcome,omitempty"`
	RefundAmount *decimal.Decimal      `json:"refund_amount,omitempty"`
	DecisionNote *string               `json:"decision_note,omitempty"`
	ResolvedAt   *time.Time            `json:"resolved_at,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
}

func reportFromModel(r *models.Report) ReportDTO {
	return ReportDTO{
		ID:             r.ID,
		ReporterUID:    r.ReporterUID,
		TargetType:     r.TargetType,
		TargetID:       r.TargetID,
		TargetOwnerUID: r.TargetOwnerUID,
		ReasonCode:     r.ReasonCode,
		Message:        r.Message,
		Status:         r.Status,
		Sanction:       r.Sanction,
		ResolutionNote: r.ResolutionNote,
		ResolvedBy:     r.ResolvedBy,
		ResolvedAt:     r.ResolvedAt,
		CreatedAt:      r.CreatedAt,
	}
}

func disputeFromModel(d *models.Dispute) DisputeDTO {
	return DisputeDTO{
		ID:           d.ID,
		ContractID:   d.ContractID,
		ArtistUID:    d.ArtistUID,
		CreatorUID:   d.CreatorUID,
		OpenedBy:     d.OpenedBy,
		Status:       d.Status,
		ReasonCode:   d.ReasonCode,
		Outcome:      d.Outcome,
		RefundAmount: d.RefundAmount,
		DecisionNote: d.DecisionNote,
		ResolvedAt:   d.ResolvedAt,
		CreatedAt:    d.CreatedAt,
	}
}
