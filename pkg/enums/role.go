package enums

import "fmt"

// Role is the account role held by a user.
type Role string

const (
	RoleUnassigned Role = "unassigned"
	RoleArtist     Role = "artist"
	RoleCreator    Role = "creator"
	RoleAdmin      Role = "admin"
)

var validRoles = []Role{
	RoleUnassigned,
	RoleArtist,
	RoleCreator,
	RoleAdmin,
}

// String returns the literal string for the role.
func (r Role) String() string {
	return string(r)
}

// IsValid reports whether the role is known.
func (r Role) IsValid() bool {
	for _, candidate := range validRoles {
		if candidate == r {
			return true
		}
	}
	return false
}

// IsAssigned reports whether the user has picked a role.
func (r Role) IsAssigned() bool {
	return r.IsValid() && r != RoleUnassigned
}

// IsAdmin reports whether the role carries operator privileges.
func (r Role) IsAdmin() bool {
	return r == RoleAdmin
}

// IsSelfSelectable reports whether a user may pick the role for themselves.
func (r Role) IsSelfSelectable() bool {
	return r == RoleArtist || r == RoleCreator
}

// CanSelfTransition reports whether a user holding r may switch to next on their own.
// Only the first pick out of unassigned is allowed.
func (r Role) CanSelfTransition(next Role) bool {
	return r == RoleUnassigned && next.IsSelfSelectable()
}

// CanAdminAssign reports whether an operator may move a user to next.
func (r Role) CanAdminAssign(next Role) bool {
	return next.IsAssigned()
}

// ParseRole converts raw input into a Role.
func ParseRole(value string) (Role, error) {
	for _, candidate := range validRoles {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid role %q", value)
}

// VerificationStatus tracks creator verification on the user record.
type VerificationStatus string

const (
	VerificationNone     VerificationStatus = "none"
	VerificationPending  VerificationStatus = "pending"
	VerificationApproved VerificationStatus = "approved"
	VerificationRejected VerificationStatus = "rejected"
)

var validVerificationStatuses = []VerificationStatus{
	VerificationNone,
	VerificationPending,
	VerificationApproved,
	VerificationRejected,
}

func (v VerificationStatus) IsValid() bool {
	for _, candidate := range validVerificationStatuses {
		if candidate == v {
			return true
		}
	}
	return false
}

// ParseVerificationStatus converts raw input into a VerificationStatus.
func ParseVerificationStatus(value string) (VerificationStatus, error) {
	for _, candidate := range validVerificationStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid verification status %q", value)
}

// VerificationDecision is the admin verdict on a verification request.
type VerificationDecision string

const (
	VerificationDecisionApprove VerificationDecision = "approve"
	VerificationDecisionReject  VerificationDecision = "reject"
)

// ParseVerificationDecision converts raw input into a VerificationDecision.
func ParseVerificationDecision(value string) (VerificationDecision, error) {
	switch VerificationDecision(value) {
	case VerificationDecisionApprove, VerificationDecisionReject:
		return VerificationDecision(value), nil
	}
	return "", fmt.Errorf("invalid verification decision %q", value)
}
