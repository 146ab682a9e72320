package enums

import "fmt"

// ReportStatus is the lifecycle of a report.
type ReportStatus string

const (
	ReportStatusOpen      ReportStatus = "open"
	ReportStatusResolved  ReportStatus = "resolved"
	ReportStatusDismissed ReportStatus = "dismissed"
)

var validReportStatuses = []ReportStatus{
	ReportStatusOpen,
	ReportStatusResolved,
	ReportStatusDismissed,
}

func (s ReportStatus) IsValid() bool {
	for _, candidate := range validReportStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseReportStatus converts raw input into a ReportStatus.
func ParseReportStatus(value string) (ReportStatus, error) {
	for _, candidate := range validReportStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid report status %q", value)
}

// ReportTargetType names what a report points at.
type ReportTargetType string

const (
	ReportTargetPost    ReportTargetType = "post"
	ReportTargetComment ReportTargetType = "comment"
	ReportTargetUser    ReportTargetType = "user"
)

var validReportTargetTypes = []ReportTargetType{
	ReportTargetPost,
	ReportTargetComment,
	ReportTargetUser,
}

func (t ReportTargetType) IsValid() bool {
	for _, candidate := range validReportTargetTypes {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseReportTargetType converts raw input into a ReportTargetType.
func ParseReportTargetType(value string) (ReportTargetType, error) {
	for _, candidate := range validReportTargetTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid report target type %q", value)
}

// Sanction is the optional side effect applied when a report is resolved.
type Sanction string

const (
	SanctionNone     Sanction = "none"
	SanctionBlock    Sanction = "block"
	SanctionTakedown Sanction = "takedown"
)

// ParseSanction converts raw input into a Sanction; empty means none.
func ParseSanction(value string) (Sanction, error) {
	switch Sanction(value) {
	case "":
		return SanctionNone, nil
	case SanctionNone, SanctionBlock, SanctionTakedown:
		return Sanction(value), nil
	}
	return "", fmt.Errorf("invalid sanction %q", value)
}

// DisputeStatus is the lifecycle of a contract dispute.
type DisputeStatus string

const (
	DisputeStatusOpen        DisputeStatus = "open"
	DisputeStatusUnderReview DisputeStatus = "under_review"
	DisputeStatusResolved    DisputeStatus = "resolved"
)

var validDisputeStatuses = []DisputeStatus{
	DisputeStatusOpen,
	DisputeStatusUnderReview,
	DisputeStatusResolved,
}

func (s DisputeStatus) IsValid() bool {
	for _, candidate := range validDisputeStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseDisputeStatus converts raw input into a DisputeStatus.
func ParseDisputeStatus(value string) (DisputeStatus, error) {
	for _, candidate := range validDisputeStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid dispute status %q", value)
}

// CanTransition reports whether an admin may move a dispute from s to next.
func (s DisputeStatus) CanTransition(next DisputeStatus) bool {
	switch s {
	case DisputeStatusOpen:
		return next == DisputeStatusUnderReview
	case DisputeStatusUnderReview:
		return next == DisputeStatusResolved
	}
	return false
}

// DisputeOutcome is the terminal money decision attached to a resolved dispute.
type DisputeOutcome string

const (
	DisputeOutcomeRefundCreator DisputeOutcome = "refund_creator"
	DisputeOutcomeReleaseArtist DisputeOutcome = "release_artist"
	DisputeOutcomeSplit         DisputeOutcome = "split"
)

// ParseDisputeOutcome converts raw input into a DisputeOutcome.
func ParseDisputeOutcome(value string) (DisputeOutcome, error) {
	switch DisputeOutcome(value) {
	case DisputeOutcomeRefundCreator, DisputeOutcomeReleaseArtist, DisputeOutcomeSplit:
		return DisputeOutcome(value), nil
	}
	return "", fmt.Errorf("invalid dispute outcome %q", value)
}

// DisputeParty selects which side of a contract a sanction targets.
type DisputeParty string

const (
	DisputePartyNone    DisputeParty = "none"
	DisputePartyArtist  DisputeParty = "artist"
	DisputePartyCreator DisputeParty = "creator"
)

// ParseDisputeParty converts raw input into a DisputeParty; empty means none.
func ParseDisputeParty(value string) (DisputeParty, error) {
	switch DisputeParty(value) {
	case "":
		return DisputePartyNone, nil
	case DisputePartyNone, DisputePartyArtist, DisputePartyCreator:
		return DisputeParty(value), nil
	}
	return "", fmt.Errorf("invalid dispute party %q", value)
}
