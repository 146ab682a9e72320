package enums

import "fmt"

// FollowRequestStatus is the lifecycle of a follow request.
type FollowRequestStatus string

const (
	FollowRequestPending  FollowRequestStatus = "pending"
	FollowRequestApproved FollowRequestStatus = "approved"
	FollowRequestRejected FollowRequestStatus = "rejected"
)

var validFollowRequestStatuses = []FollowRequestStatus{
	FollowRequestPending,
	FollowRequestApproved,
	FollowRequestRejected,
}

func (s FollowRequestStatus) IsValid() bool {
	for _, candidate := range validFollowRequestStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseFollowRequestStatus converts raw input into a FollowRequestStatus.
func ParseFollowRequestStatus(value string) (FollowRequestStatus, error) {
	for _, candidate := range validFollowRequestStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid follow request status %q", value)
}

// FollowDecision is the target's answer to a pending request.
type FollowDecision string

const (
	FollowDecisionApprove FollowDecision = "approve"
	FollowDecisionReject  FollowDecision = "reject"
)

// ParseFollowDecision converts raw input into a FollowDecision.
func ParseFollowDecision(value string) (FollowDecision, error) {
	switch FollowDecision(value) {
	case FollowDecisionApprove, FollowDecisionReject:
		return FollowDecision(value), nil
	}
	return "", fmt.Errorf("invalid follow decision %q", value)
}

// Status maps the decision onto the request status it produces.
func (d FollowDecision) Status() FollowRequestStatus {
	if d == FollowDecisionApprove {
		return FollowRequestApproved
	}
	return FollowRequestRejected
}
