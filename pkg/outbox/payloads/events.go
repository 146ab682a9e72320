package payloads

import (
	"time"

	"github.com/angelmondragon/atelier-backend/pkg/enums"
	"github.com/shopspring/decimal"
)

// BlockEvent is emitted when a block edge is created or removed.
type BlockEvent struct {
	BlockerUID string `json:"blocker_uid"`
	BlockedUID string `json:"blocked_uid"`
	// Source is "user" for self-service blocks and "moderation" for sanctions.
	Source string `json:"source"`
}

// FollowEvent covers the follow request lifecycle and unfollows.
type FollowEvent struct {
	RequestID string                    `json:"request_id,omitempty"`
	FromUID   string                    `json:"from_uid"`
	ToUID     string                    `json:"to_uid"`
	Status    enums.FollowRequestStatus `json:"status,omitempty"`
}

// TakedownEvent is emitted when a post or comment is soft deleted.
type TakedownEvent struct {
	ContentID string    `json:"content_id"`
	AuthorUID string    `json:"author_uid"`
	DeletedBy string    `json:"deleted_by"`
	DeletedAt time.Time `json:"deleted_at"`
}

// ReportFiledEvent is emitted when a user files a report.
type ReportFiledEvent struct {
	ReportID   string                 `json:"report_id"`
	TargetType enums.ReportTargetType `json:"target_type"`
	TargetID   string                 `json:"target_id"`
	ReasonCode string                 `json:"reason_code"`
}

// ReportResolvedEvent summarises an admin decision on a report.
type ReportResolvedEvent struct {
	ReportID string             `json:"report_id"`
	Status   enums.ReportStatus `json:"status"`
	Sanction enums.Sanction     `json:"sanction"`
}

// DisputeOpenedEvent is emitted when a contract party opens a dispute.
type DisputeOpenedEvent struct {
	DisputeID  string `json:"dispute_id"`
	ContractID string `json:"contract_id"`
	OpenedBy   string `json:"opened_by"`
	ReasonCode string `json:"reason_code"`
}

// DisputeResolvedEvent hands the money decision to the payment collaborator.
type DisputeResolvedEvent struct {
	DisputeID    string               `json:"dispute_id"`
	ContractID   string               `json:"contract_id"`
	ArtistUID    string               `json:"artist_uid"`
	CreatorUID   string               `json:"creator_uid"`
	Outcome      enums.DisputeOutcome `json:"outcome"`
	RefundAmount decimal.Decimal      `json:"refund_amount"`
	Currency     string               `json:"currency"`
	BlockBy      enums.DisputeParty   `json:"block_by"`
}

// VerificationEvent tracks creator verification requests and decisions.
type VerificationEvent struct {
	RequestID string                   `json:"request_id"`
	UID       string                   `json:"uid"`
	Status    enums.VerificationStatus `json:"status"`
}
