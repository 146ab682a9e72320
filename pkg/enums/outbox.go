package enums

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateUser          OutboxAggregateType = "user"
	AggregateFollowRequest OutboxAggregateType = "follow_request"
	AggregatePost          OutboxAggregateType = "post"
	AggregateComment       OutboxAggregateType = "comment"
	AggregateReport        OutboxAggregateType = "report"
	AggregateDispute       OutboxAggregateType = "dispute"
	AggregateVerification  OutboxAggregateType = "creator_verification"
)

func (a OutboxAggregateType) IsValid() bool {
	switch a {
	case AggregateUser, AggregateFollowRequest, AggregatePost, AggregateComment,
		AggregateReport, AggregateDispute, AggregateVerification:
		return true
	}
	return false
}

// OutboxEventType names the social change carried by an outbox row.
type OutboxEventType string

const (
	EventUserBlocked                  OutboxEventType = "user_blocked"
	EventUserUnblocked                OutboxEventType = "user_unblocked"
	EventFollowRequested              OutboxEventType = "follow_requested"
	EventFollowApproved               OutboxEventType = "follow_approved"
	EventFollowRejected               OutboxEventType = "follow_rejected"
	EventUserUnfollowed               OutboxEventType = "user_unfollowed"
	EventPostTakenDown                OutboxEventType = "post_taken_down"
	EventCommentTakenDown             OutboxEventType = "comment_taken_down"
	EventReportFiled                  OutboxEventType = "report_filed"
	EventReportResolved               OutboxEventType = "report_resolved"
	EventDisputeOpened                OutboxEventType = "dispute_opened"
	EventDisputeResolved              OutboxEventType = "dispute_resolved"
	EventCreatorVerificationDecided   OutboxEventType = "creator_verification_decided"
	EventCreatorVerificationRequested OutboxEventType = "creator_verification_requested"
)

// eventAggregates fixes which aggregate each event type is keyed by.
var eventAggregates = map[OutboxEventType]OutboxAggregateType{
	EventUserBlocked:                  AggregateUser,
	EventUserUnblocked:                AggregateUser,
	EventUserUnfollowed:               AggregateUser,
	EventFollowRequested:              AggregateFollowRequest,
	EventFollowApproved:               AggregateFollowRequest,
	EventFollowRejected:               AggregateFollowRequest,
	EventPostTakenDown:                AggregatePost,
	EventCommentTakenDown:             AggregateComment,
	EventReportFiled:                  AggregateReport,
	EventReportResolved:               AggregateReport,
	EventDisputeOpened:                AggregateDispute,
	EventDisputeResolved:              AggregateDispute,
	EventCreatorVerificationRequested: AggregateVerification,
	EventCreatorVerificationDecided:   AggregateVerification,
}

func (e OutboxEventType) IsValid() bool {
	_, ok := eventAggregates[e]
	return ok
}

// Aggregate returns the aggregate type rows of this event must carry, or ""
// for an unknown event type.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	return eventAggregates[e]
}

// OutboxEventTypes lists every known event type.
func OutboxEventTypes() []OutboxEventType {
	out := make([]OutboxEventType, 0, len(eventAggregates))
	for e := range eventAggregates {
		out = append(out, e)
	}
	return out
}
