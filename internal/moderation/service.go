package moderation

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/internal/gate"
	"github.com/angelmondragon/atelier-backend/internal/graph"
	"github.com/angelmondragon/atelier-backend/pkg/db"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
	"github.com/angelmondragon/atelier-backend/pkg/outbox"
	"github.com/angelmondragon/atelier-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/atelier-backend/pkg/pagination"
	"github.com/angelmondragon/atelier-backend/pkg/tracing"
)

type identityStore interface {
	FindByUID(ctx context.Context, tx *gorm.DB, uid string) (*models.User, error)
}

type interactionGate interface {
	Check(ctx context.Context, tx *gorm.DB, req gate.Request) (gate.Result, error)
}

type contentStore interface {
	FindPost(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Post, error)
	FindComment(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.Comment, error)
}

// takedowns and blocker are the content and graph primitives sanctions go
// through; moderation never writes those tables itself.
type takedowns interface {
	TakedownPostTx(ctx context.Context, tx *gorm.DB, actor *outbox.Actor, postID uuid.UUID) error
	TakedownCommentTx(ctx context.Context, tx *gorm.DB, actor *outbox.Actor, commentID uuid.UUID) error
}

type blocker interface {
	BlockTx(ctx context.Context, tx *gorm.DB, actor *outbox.Actor, blockerUID, targetUID, source string) error
}

// Service is the report and dispute pipeline.
type Service interface {
	CreateReport(ctx context.Context, reporterUID string, input CreateReportInput) (ReportDTO, error)
	ResolveReport(ctx context.Context, adminUID string, reportID uuid.UUID, input ResolveReportInput) (ReportDTO, error)
	DismissReport(ctx context.Context, adminUID string, reportID uuid.UUID, note string) (ReportDTO, error)
	ListReports(ctx context.Context, adminUID, status string, params pagination.Params) (pagination.Page[ReportDTO], error)

	OpenDispute(ctx context.Context, partyUID string, input OpenDisputeInput) (DisputeDTO, error)
	GetDispute(ctx context.Context, uid string, disputeID uuid.UUID) (DisputeDTO, error)
	StartDisputeReview(ctx context.Context, adminUID string, disputeID uuid.UUID) (DisputeDTO, error)
	ResolveDispute(ctx context.Context, adminUID string, disputeID uuid.UUID, input ResolveDisputeInput) (DisputeDTO, error)
}

// ServiceParams groups dependencies for the moderation service.
type ServiceParams struct {
	Repo       *Repository
	Identities identityStore
	Gate       interactionGate
	Content    contentStore
	Takedowns  takedowns
	Graph      blocker
	Tx         db.Txer
	Outbox     outbox.Emitter
	Logger     *logger.Logger
}

type service struct {
	repo       *Repository
	identities identityStore
	gate       interactionGate
	content    contentStore
	takedowns  takedowns
	graph      blocker
	tx         db.Txer
	outbox     outbox.Emitter
	logg       *logger.Logger
}

// NewService builds a moderation service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "moderation repo is required")
	case params.Identities == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "identity store is required")
	case params.Gate == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "interaction gate is required")
	case params.Content == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "content store is required")
	case params.Takedowns == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "takedown primitive is required")
	case params.Graph == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "block primitive is required")
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner is required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter is required")
	}
	return &service{
		repo:       params.Repo,
		identities: params.Identities,
		gate:       params.Gate,
		content:    params.Content,
		takedowns:  params.Takedowns,
		graph:      params.Graph,
		tx:         params.Tx,
		outbox:     params.Outbox,
		logg:       params.Logger,
	}, nil
}

func startOp(ctx context.Context, op string) (context.Context, trace.Span) {
	ctx = db.WithOperation(ctx, "moderation."+op)
	return tracing.Start(ctx, "moderation", op)
}

// CreateReport files a report against a post, comment or user. Reports are
// accepted across a block.
func (s *service) CreateReport(ctx context.Context, reporterUID string, input CreateReportInput) (dto ReportDTO, err error) {
	ctx, span := startOp(ctx, "create_report")
	defer func() { tracing.End(span, err) }()

	targetType, parseErr := enums.ParseReportTargetType(strings.TrimSpace(input.TargetType))
	if parseErr != nil {
		return ReportDTO{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, parseErr.Error())
	}
	targetID := strings.TrimSpace(input.TargetID)
	reason := strings.TrimSpace(input.ReasonCode)
	if targetID == "" || reason == "" {
		return ReportDTO{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, "targetId and reasonCode are required")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.gate.Check(ctx, tx, gate.Request{Action: gate.ActionReport, ActorUID: reporterUID})
		if err != nil {
			return err
		}
		ownerUID, err := s.targetOwner(ctx, tx, targetType, targetID)
		if err != nil {
			return err
		}
		if ownerUID == reporterUID {
			return pkgerrors.New(pkgerrors.CodeInvalidArgument, "cannot report yourself")
		}

		report := &models.Report{
			ReporterUID:    reporterUID,
			TargetType:     targetType,
			TargetID:       targetID,
			TargetOwnerUID: ownerUID,
			ReasonCode:     reason,
			Message:        strings.TrimSpace(input.Message),
			Status:         enums.ReportStatusOpen,
		}
		if err := s.repo.CreateReport(ctx, tx, report); err != nil {
			return err
		}
		dto = reportFromModel(report)
		return s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventReportFiled,
			AggregateType: enums.AggregateReport,
			AggregateID:   report.ID.String(),
			Actor:         &outbox.Actor{UID: reporterUID, Role: string(res.Actor.Role)},
			Data:          payloads.ReportFiledEvent{ReportID: report.ID.String(), TargetType: targetType, TargetID: targetID, ReasonCode: reason},
		})
	})
	if err != nil {
		return ReportDTO{}, mapStoreErr(err, "report")
	}
	return dto, nil
}

func (s *service) targetOwner(ctx context.Context, tx *gorm.DB, targetType enums.ReportTargetType, targetID string) (string, error) {
	if targetType == enums.ReportTargetUser {
		user, err := s.identities.FindByUID(ctx, tx, targetID)
		if err != nil {
			return "", mapStoreErr(err, "reported user")
		}
		return user.UID, nil
	}

	id, err := uuid.Parse(targetID)
	if err != nil {
		return "", pkgerrors.New(pkgerrors.CodeNotFound, "reported content not found")
	}
	if targetType == enums.ReportTargetPost {
		post, err := s.content.FindPost(ctx, tx, id)
		if err != nil {
			return "", mapStoreErr(err, "reported post")
		}
		return post.AuthorUID, nil
	}
	comment, err := s.content.FindComment(ctx, tx, id)
	if err != nil {
		return "", mapStoreErr(err, "reported comment")
	}
	return comment.AuthorUID, nil
}

// ResolveReport closes an open report and applies the sanction through the
// graph and content primitives.
func (s *service) ResolveReport(ctx context.Context, adminUID string, reportID uuid.UUID, input ResolveReportInput) (dto ReportDTO, err error) {
	ctx, span := startOp(ctx, "resolve_report")
	defer func() { tracing.End(span, err) }()

	sanction, parseErr := enums.ParseSanction(strings.TrimSpace(input.Sanction))
	if parseErr != nil {
		return ReportDTO{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, parseErr.Error())
	}
	return s.closeReport(ctx, adminUID, reportID, enums.ReportStatusResolved, sanction, input.Note)
}

func (s *service) DismissReport(ctx context.Context, adminUID string, reportID uuid.UUID, note string) (dto ReportDTO, err error) {
	ctx, span := startOp(ctx, "dismiss_report")
	defer func() { tracing.End(span, err) }()

	return s.closeReport(ctx, adminUID, reportID, enums.ReportStatusDismissed, enums.SanctionNone, note)
}

func (s *service) closeReport(ctx context.Context, adminUID string, reportID uuid.UUID, status enums.ReportStatus, sanction enums.Sanction, note string) (ReportDTO, error) {
	var dto ReportDTO
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		admin, err := s.requireAdmin(ctx, tx, adminUID)
		if err != nil {
			return err
		}
		report, err := s.repo.FindReport(ctx, tx, reportID)
		if err != nil {
			return mapStoreErr(err, "report")
		}
		if report.Status != enums.ReportStatusOpen {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "report is already "+string(report.Status))
		}

		actor := &outbox.Actor{UID: admin.UID, Role: string(admin.Role)}
		if err := s.applySanction(ctx, tx, actor, report, sanction); err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"status":      status,
			"sanction":    sanction,
			"resolved_by": admin.UID,
			"resolved_at": now,
		}
		if note = strings.TrimSpace(note); note != "" {
			updates["resolution_note"] = note
		}
		closed, err := s.repo.CloseReport(ctx, tx, report.ID, updates)
		if err != nil {
			return err
		}
		if !closed {
			return db.ErrRetryable
		}

		report.Status = status
		report.Sanction = &sanction
		report.ResolvedBy = &admin.UID
		report.ResolvedAt = &now
		if note != "" {
			report.ResolutionNote = &note
		}
		dto = reportFromModel(report)

		return s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventReportResolved,
			AggregateType: enums.AggregateReport,
			AggregateID:   report.ID.String(),
			Actor:         actor,
			Data:          payloads.ReportResolvedEvent{ReportID: report.ID.String(), Status: status, Sanction: sanction},
		})
	})
	if err != nil {
		return ReportDTO{}, mapStoreErr(err, "report")
	}

	s.logResolution(ctx, "report", dto.ID, map[string]any{"status": status, "sanction": sanction, "admin_uid": adminUID})
	return dto, nil
}

func (s *service) applySanction(ctx context.Context, tx *gorm.DB, actor *outbox.Actor, report *models.Report, sanction enums.Sanction) error {
	switch sanction {
	case enums.SanctionBlock:
		return s.graph.BlockTx(ctx, tx, actor, report.ReporterUID, report.TargetOwnerUID, graph.SourceModeration)
	case enums.SanctionTakedown:
		id, err := uuid.Parse(report.TargetID)
		switch {
		case report.TargetType == enums.ReportTargetUser:
			return pkgerrors.New(pkgerrors.CodeInvalidArgument, "takedown applies to posts and comments only")
		case err != nil:
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "report target id is not a uuid")
		case report.TargetType == enums.ReportTargetPost:
			return s.takedowns.TakedownPostTx(ctx, tx, actor, id)
		default:
			return s.takedowns.TakedownCommentTx(ctx, tx, actor, id)
		}
	}
	return nil
}

func (s *service) ListReports(ctx context.Context, adminUID, status string, params pagination.Params) (pagination.Page[ReportDTO], error) {
	if _, err := s.requireAdmin(ctx, nil, adminUID); err != nil {
		return pagination.Page[ReportDTO]{}, mapStoreErr(err, "admin")
	}
	filter := enums.ReportStatusOpen
	if status = strings.TrimSpace(status); status != "" {
		parsed, err := enums.ParseReportStatus(status)
		if err != nil {
			return pagination.Page[ReportDTO]{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, err.Error())
		}
		filter = parsed
	}
	page, err := s.repo.ListReports(ctx, filter, params)
	if err != nil {
		return pagination.Page[ReportDTO]{}, mapStoreErr(err, "reports")
	}
	items := make([]ReportDTO, 0, len(page.Items))
	for i := range page.Items {
		items = append(items, reportFromModel(&page.Items[i]))
	}
	return pagination.Page[ReportDTO]{Items: items, NextCursor: page.NextCursor}, nil
}

// OpenDispute lets either contract party open one dispute at a time per contract.
func (s *service) OpenDispute(ctx context.Context, partyUID string, input OpenDisputeInput) (dto DisputeDTO, err error) {
	ctx, span := startOp(ctx, "open_dispute")
	defer func() { tracing.End(span, err) }()

	reason := strings.TrimSpace(input.ReasonCode)
	if input.ContractID == uuid.Nil || reason == "" {
		return DisputeDTO{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, "contractId and reasonCode are required")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.gate.Check(ctx, tx, gate.Request{Action: gate.ActionDispute, ActorUID: partyUID})
		if err != nil {
			return err
		}
		contract, err := s.repo.FindContract(ctx, tx, input.ContractID)
		if err != nil {
			return mapStoreErr(err, "contract")
		}
		if partyUID != contract.ArtistUID && partyUID != contract.CreatorUID {
			return pkgerrors.New(pkgerrors.CodePermissionDenied, "only contract parties can open a dispute")
		}
		if _, err := s.repo.FindUnresolvedDispute(ctx, tx, contract.ID); err == nil {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "contract already has an unresolved dispute")
		} else if !db.IsNotFound(err) {
			return err
		}

		dispute := &models.Dispute{
			ContractID: contract.ID,
			ArtistUID:  contract.ArtistUID,
			CreatorUID: contract.CreatorUID,
			OpenedBy:   partyUID,
			Status:     enums.DisputeStatusOpen,
			ReasonCode: reason,
		}
		if err := s.repo.CreateDispute(ctx, tx, dispute); err != nil {
			if db.IsUniqueViolation(err, "") {
				return db.ErrRetryable
			}
			return err
		}
		dto = disputeFromModel(dispute)
		return s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventDisputeOpened,
			AggregateType: enums.AggregateDispute,
			AggregateID:   dispute.ID.String(),
			Actor:         &outbox.Actor{UID: partyUID, Role: string(res.Actor.Role)},
			Data:          payloads.DisputeOpenedEvent{DisputeID: dispute.ID.String(), ContractID: contract.ID.String(), OpenedBy: partyUID, ReasonCode: reason},
		})
	})
	if err != nil {
		return DisputeDTO{}, mapStoreErr(err, "dispute")
	}
	return dto, nil
}

// GetDispute is visible to the contract parties and admins.
func (s *service) GetDispute(ctx context.Context, uid string, disputeID uuid.UUID) (DisputeDTO, error) {
	dispute, err := s.repo.FindDispute(ctx, nil, disputeID)
	if err != nil {
		return DisputeDTO{}, mapStoreErr(err, "dispute")
	}
	if uid != dispute.ArtistUID && uid != dispute.CreatorUID {
		if _, err := s.requireAdmin(ctx, nil, uid); err != nil {
			return DisputeDTO{}, mapStoreErr(err, "dispute")
		}
	}
	return disputeFromModel(dispute), nil
}

func (s *service) StartDisputeReview(ctx context.Context, adminUID string, disputeID uuid.UUID) (dto DisputeDTO, err error) {
	ctx, span := startOp(ctx, "start_dispute_review")
	defer func() { tracing.End(span, err) }()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.requireAdmin(ctx, tx, adminUID); err != nil {
			return err
		}
		dispute, err := s.repo.FindDispute(ctx, tx, disputeID)
		if err != nil {
			return mapStoreErr(err, "dispute")
		}
		if !dispute.Status.CanTransition(enums.DisputeStatusUnderReview) {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "dispute is "+string(dispute.Status))
		}
		moved, err := s.repo.AdvanceDispute(ctx, tx, dispute.ID, dispute.Status, map[string]any{"status": enums.DisputeStatusUnderReview})
		if err != nil {
			return err
		}
		if !moved {
			return db.ErrRetryable
		}
		dispute.Status = enums.DisputeStatusUnderReview
		dto = disputeFromModel(dispute)
		return nil
	})
	if err != nil {
		return DisputeDTO{}, mapStoreErr(err, "dispute")
	}
	return dto, nil
}

// ResolveDispute records the terminal money decision, hands it to the
// payment side through the outbox and applies an optional block sanction.
func (s *service) ResolveDispute(ctx context.Context, adminUID string, disputeID uuid.UUID, input ResolveDisputeInput) (dto DisputeDTO, err error) {
	ctx, span := startOp(ctx, "resolve_dispute")
	defer func() { tracing.End(span, err) }()

	outcome, parseErr := enums.ParseDisputeOutcome(strings.TrimSpace(input.Outcome))
	if parseErr != nil {
		return DisputeDTO{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, parseErr.Error())
	}
	blockBy, parseErr := enums.ParseDisputeParty(strings.TrimSpace(input.BlockBy))
	if parseErr != nil {
		return DisputeDTO{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, parseErr.Error())
	}
	var requested *decimal.Decimal
	if raw := strings.TrimSpace(input.RefundAmount); raw != "" {
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return DisputeDTO{}, pkgerrors.Wrap(pkgerrors.CodeInvalidArgument, err, "refundAmount is not a decimal")
		}
		requested = &amount
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		admin, err := s.requireAdmin(ctx, tx, adminUID)
		if err != nil {
			return err
		}
		dispute, err := s.repo.FindDispute(ctx, tx, disputeID)
		if err != nil {
			return mapStoreErr(err, "dispute")
		}
		if !dispute.Status.CanTransition(enums.DisputeStatusResolved) {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "dispute must be under review to resolve")
		}
		contract, err := s.repo.FindContract(ctx, tx, dispute.ContractID)
		if err != nil {
			return mapStoreErr(err, "contract")
		}
		refund, err := refundFor(outcome, requested, contract.Amount)
		if err != nil {
			return err
		}

		actor := &outbox.Actor{UID: admin.UID, Role: string(admin.Role)}
		switch blockBy {
		case enums.DisputePartyArtist:
			err = s.graph.BlockTx(ctx, tx, actor, dispute.ArtistUID, dispute.CreatorUID, graph.SourceModeration)
		case enums.DisputePartyCreator:
			err = s.graph.BlockTx(ctx, tx, actor, dispute.CreatorUID, dispute.ArtistUID, graph.SourceModeration)
		}
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := map[string]any{
			"status":        enums.DisputeStatusResolved,
			"outcome":       outcome,
			"refund_amount": refund,
			"resolved_by":   admin.UID,
			"resolved_at":   now,
		}
		note := strings.TrimSpace(input.Note)
		if note != "" {
			updates["decision_note"] = note
		}
		moved, err := s.repo.AdvanceDispute(ctx, tx, dispute.ID, enums.DisputeStatusUnderReview, updates)
		if err != nil {
			return err
		}
		if !moved {
			return db.ErrRetryable
		}

		dispute.Status = enums.DisputeStatusResolved
		dispute.Outcome = &outcome
		dispute.RefundAmount = &refund
		dispute.ResolvedBy = &admin.UID
		dispute.ResolvedAt = &now
		if note != "" {
			dispute.DecisionNote = &note
		}
		dto = disputeFromModel(dispute)

		return s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventDisputeResolved,
			AggregateType: enums.AggregateDispute,
			AggregateID:   dispute.ID.String(),
			Actor:         actor,
			Data: payloads.DisputeResolvedEvent{
				DisputeID:    dispute.ID.String(),
				ContractID:   contract.ID.String(),
				ArtistUID:    dispute.ArtistUID,
				CreatorUID:   dispute.CreatorUID,
				Outcome:      outcome,
				RefundAmount: refund,
				Currency:     contract.Currency,
				BlockBy:      blockBy,
			},
		})
	})
	if err != nil {
		return DisputeDTO{}, mapStoreErr(err, "dispute")
	}

	s.logResolution(ctx, "dispute", dto.ID, map[string]any{
		"outcome":       outcome,
		"refund_amount": dto.RefundAmount.String(),
		"block_by":      blockBy,
		"admin_uid":     adminUID,
	})
	return dto, nil
}

// refundFor applies the outcome rules: release_artist refunds nothing,
// refund_creator defaults to the full amount and split must be strictly
// between zero and the contract amount.
func refundFor(outcome enums.DisputeOutcome, requested *decimal.Decimal, amount decimal.Decimal) (decimal.Decimal, error) {
	switch outcome {
	case enums.DisputeOutcomeReleaseArtist:
		if requested != nil && !requested.IsZero() {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeInvalidArgument, "release_artist carries no refund")
		}
		return decimal.Zero, nil
	case enums.DisputeOutcomeRefundCreator:
		if requested == nil {
			return amount, nil
		}
		if !requested.IsPositive() || requested.GreaterThan(amount) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeInvalidArgument, "refund must be positive and at most the contract amount")
		}
		return *requested, nil
	default:
		if requested == nil || !requested.IsPositive() || !requested.LessThan(amount) {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeInvalidArgument, "split refund must be between zero and the contract amount")
		}
		return *requested, nil
	}
}

func (s *service) requireAdmin(ctx context.Context, tx *gorm.DB, uid string) (*models.User, error) {
	user, err := s.identities.FindByUID(ctx, tx, uid)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodePermissionDenied, "admin role required")
		}
		return nil, err
	}
	if !user.Role.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodePermissionDenied, "admin role required")
	}
	return user, nil
}

// logResolution runs once the resolving transaction has committed.
func (s *service) logResolution(ctx context.Context, kind string, id uuid.UUID, fields map[string]any) {
	if s.logg == nil {
		return
	}
	fields["kind"] = kind
	fields["id"] = id.String()
	s.logg.Info(s.logg.WithFields(ctx, fields), "moderation resolution")
}

func mapStoreErr(err error, entity string) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	if db.IsNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, entity+" not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, entity+" store failure")
}
