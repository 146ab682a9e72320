package graph

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/internal/counters"
	"github.com/angelmondragon/atelier-backend/internal/gate"
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

// Block sources recorded on user_blocked events.
const (
	SourceUser       = "user"
	SourceModeration = "moderation"
)

type identityStore interface {
	FindByUID(ctx context.Context, tx *gorm.DB, uid string) (*models.User, error)
	FindProfile(ctx context.Context, tx *gorm.DB, uid string) (*models.PublicProfile, error)
}

type interactionGate interface {
	Check(ctx context.Context, tx *gorm.DB, req gate.Request) (gate.Result, error)
	CheckPair(ctx context.Context, tx *gorm.DB, action gate.Action, a, b string) error
}

type counterMaintainer interface {
	Adjust(ctx context.Context, tx *gorm.DB, counter counters.Counter, key any, delta int64) (int64, error)
}

// Service is the relationship graph.
type Service interface {
	Block(ctx context.Context, blockerUID, targetUID string) error
	Unblock(ctx context.Context, blockerUID, targetUID string) error
	IsBlockedPair(ctx context.Context, a, b string) (bool, error)
	RequestFollow(ctx context.Context, fromUID, toUID string) (enums.FollowRequestStatus, error)
	DecideFollowRequest(ctx context.Context, toUID, fromUID string, decision string) error
	Unfollow(ctx context.Context, fromUID, toUID string) error
	ListBlocked(ctx context.Context, uid string, params pagination.Params) (pagination.Page[BlockedDTO], error)
	ListPendingRequests(ctx context.Context, uid string, params pagination.Params) (pagination.Page[FollowRequestDTO], error)
	ListFollowers(ctx context.Context, uid string, params pagination.Params) (pagination.Page[FollowerDTO], error)

	// BlockTx is the block primitive on a caller-owned transaction. Moderation
	// sanctions go through it so they sever follows exactly like a user block.
	BlockTx(ctx context.Context, tx *gorm.DB, actor *outbox.Actor, blockerUID, targetUID, source string) error
}

// ServiceParams groups dependencies for the graph service.
type ServiceParams struct {
	Repo       *Repository
	Identities identityStore
	Gate       interactionGate
	Counters   counterMaintainer
	Tx         db.Txer
	Outbox     outbox.Emitter
	Logger     *logger.Logger
}

type service struct {
	repo       *Repository
	identities identityStore
	gate       interactionGate
	counters   counterMaintainer
	tx         db.Txer
	outbox     outbox.Emitter
	logg       *logger.Logger
}

// NewService builds a graph service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Repo == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "graph repo is required")
	case params.Identities == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "identity store is required")
	case params.Gate == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "interaction gate is required")
	case params.Counters == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "counter maintainer is required")
	case params.Tx == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner is required")
	case params.Outbox == nil:
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter is required")
	}
	return &service{
		repo:       params.Repo,
		identities: params.Identities,
		gate:       params.Gate,
		counters:   params.Counters,
		tx:         params.Tx,
		outbox:     params.Outbox,
		logg:       params.Logger,
	}, nil
}

func startOp(ctx context.Context, op string) (context.Context, trace.Span) {
	ctx = db.WithOperation(ctx, "graph."+op)
	return tracing.Start(ctx, "graph", op)
}

func normalizePair(a, b string) (string, string, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeUnauthenticated, "authentication required")
	}
	if b == "" {
		return "", "", pkgerrors.New(pkgerrors.CodeInvalidArgument, "target uid is required")
	}
	return a, b, nil
}

func (s *service) Block(ctx context.Context, blockerUID, targetUID string) (err error) {
	ctx, span := startOp(ctx, "block")
	defer func() { tracing.End(span, err) }()

	blockerUID, targetUID, err = normalizePair(blockerUID, targetUID)
	if err != nil {
		return err
	}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.BlockTx(ctx, tx, &outbox.Actor{UID: blockerUID}, blockerUID, targetUID, SourceUser)
	})
	return mapStoreErr(err, "user")
}

// BlockTx writes blocker's edge and severs follow state in both directions.
// Blocking an already blocked user is a successful no-op.
func (s *service) BlockTx(ctx context.Context, tx *gorm.DB, actor *outbox.Actor, blockerUID, targetUID, source string) error {
	if blockerUID == targetUID {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "cannot block yourself")
	}
	if _, err := s.identities.FindByUID(ctx, tx, targetUID); err != nil {
		return mapStoreErr(err, "user")
	}

	created, err := s.repo.InsertBlock(ctx, tx, blockerUID, targetUID)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}

	for _, dir := range [][2]string{{blockerUID, targetUID}, {targetUID, blockerUID}} {
		removed, err := s.repo.DeleteFollowEdge(ctx, tx, dir[0], dir[1])
		if err != nil {
			return err
		}
		if removed {
			if _, err := s.counters.Adjust(ctx, tx, counters.FollowerCount, dir[1], -1); err != nil {
				return err
			}
		}
	}
	if err := s.repo.DeletePairRequests(ctx, tx, blockerUID, targetUID); err != nil {
		return err
	}

	return s.outbox.Emit(ctx, tx, outbox.Event{
		EventType:     enums.EventUserBlocked,
		AggregateType: enums.AggregateUser,
		AggregateID:   blockerUID,
		Actor:         actor,
		Data:          payloads.BlockEvent{BlockerUID: blockerUID, BlockedUID: targetUID, Source: source},
	})
}

// Unblock removes only the caller's own edge; a block written by the other
// side keeps the pair blocked.
func (s *service) Unblock(ctx context.Context, blockerUID, targetUID string) (err error) {
	ctx, span := startOp(ctx, "unblock")
	defer func() { tracing.End(span, err) }()

	blockerUID, targetUID, err = normalizePair(blockerUID, targetUID)
	if err != nil {
		return err
	}
	if blockerUID == targetUID {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "cannot unblock yourself")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		removed, err := s.repo.DeleteBlock(ctx, tx, blockerUID, targetUID)
		if err != nil || !removed {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventUserUnblocked,
			AggregateType: enums.AggregateUser,
			AggregateID:   blockerUID,
			Actor:         &outbox.Actor{UID: blockerUID},
			Data:          payloads.BlockEvent{BlockerUID: blockerUID, BlockedUID: targetUID, Source: SourceUser},
		})
	})
	return mapStoreErr(err, "block")
}

func (s *service) IsBlockedPair(ctx context.Context, a, b string) (bool, error) {
	blocked, err := s.repo.IsBlockedPair(ctx, nil, a, b)
	if err != nil {
		return false, mapStoreErr(err, "block")
	}
	return blocked, nil
}

// RequestFollow auto-approves for public accounts and leaves a pending
// request for private ones. Repeating the call reports the current state.
func (s *service) RequestFollow(ctx context.Context, fromUID, toUID string) (status enums.FollowRequestStatus, err error) {
	ctx, span := startOp(ctx, "request_follow")
	defer func() { tracing.End(span, err) }()

	fromUID, toUID, err = normalizePair(fromUID, toUID)
	if err != nil {
		return "", err
	}
	if fromUID == toUID {
		return "", pkgerrors.New(pkgerrors.CodeInvalidArgument, "cannot follow yourself")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		res, err := s.gate.Check(ctx, tx, gate.Request{Action: gate.ActionFollow, ActorUID: fromUID, CounterpartUID: toUID})
		if err != nil {
			return err
		}

		following, err := s.repo.IsFollowing(ctx, tx, fromUID, toUID)
		if err != nil {
			return err
		}
		if following {
			status = enums.FollowRequestApproved
			return nil
		}

		profile, err := s.identities.FindProfile(ctx, tx, toUID)
		if err != nil {
			return err
		}

		open, err := s.repo.FindOpenRequest(ctx, tx, fromUID, toUID)
		switch {
		case err == nil && open.Status == enums.FollowRequestPending && profile.IsPrivateAccount:
			status = enums.FollowRequestPending
			return nil
		case err == nil && open.Status == enums.FollowRequestPending:
			// the account went public while the request waited
			status = enums.FollowRequestApproved
			return s.approveOpen(ctx, tx, open, fromUID, toUID, &outbox.Actor{UID: fromUID, Role: string(res.Actor.Role)})
		case err == nil:
			// approved request whose edge is gone: restore the edge
			status = enums.FollowRequestApproved
			return s.promote(ctx, tx, fromUID, toUID)
		case !db.IsNotFound(err):
			return err
		}

		req := &models.FollowRequest{FromUID: fromUID, ToUID: toUID, Status: enums.FollowRequestPending}
		if !profile.IsPrivateAccount {
			now := time.Now().UTC()
			req.Status = enums.FollowRequestApproved
			req.DecidedAt = &now
		}
		created, err := s.repo.CreateRequest(ctx, tx, req)
		if err != nil {
			return err
		}
		if !created {
			return db.ErrRetryable
		}
		if req.Status == enums.FollowRequestApproved {
			if err := s.promote(ctx, tx, fromUID, toUID); err != nil {
				return err
			}
		}
		status = req.Status

		return s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventFollowRequested,
			AggregateType: enums.AggregateFollowRequest,
			AggregateID:   req.ID.String(),
			Actor:         &outbox.Actor{UID: fromUID, Role: string(res.Actor.Role)},
			Data:          payloads.FollowEvent{RequestID: req.ID.String(), FromUID: fromUID, ToUID: toUID, Status: req.Status},
		})
	})
	if err != nil {
		return "", mapStoreErr(err, "user")
	}
	return status, nil
}

// promote creates the follow edge and bumps the followee's count when the
// edge is new.
func (s *service) promote(ctx context.Context, tx *gorm.DB, fromUID, toUID string) error {
	created, err := s.repo.InsertFollowEdge(ctx, tx, fromUID, toUID)
	if err != nil {
		return err
	}
	if !created {
		return nil
	}
	_, err = s.counters.Adjust(ctx, tx, counters.FollowerCount, toUID, 1)
	return err
}

// approveOpen settles a pending request as approved and creates the edge.
func (s *service) approveOpen(ctx context.Context, tx *gorm.DB, req *models.FollowRequest, fromUID, toUID string, actor *outbox.Actor) error {
	changed, err := s.repo.DecideRequest(ctx, tx, req, enums.FollowRequestApproved, time.Now().UTC())
	if err != nil {
		return err
	}
	if !changed {
		return db.ErrRetryable
	}
	if err := s.promote(ctx, tx, fromUID, toUID); err != nil {
		return err
	}
	return s.outbox.Emit(ctx, tx, outbox.Event{
		EventType:     enums.EventFollowApproved,
		AggregateType: enums.AggregateFollowRequest,
		AggregateID:   req.ID.String(),
		Actor:         actor,
		Data:          payloads.FollowEvent{RequestID: req.ID.String(), FromUID: fromUID, ToUID: toUID, Status: req.Status},
	})
}

// DecideFollowRequest lets the target approve or reject a pending request.
func (s *service) DecideFollowRequest(ctx context.Context, toUID, fromUID string, raw string) (err error) {
	ctx, span := startOp(ctx, "decide_follow_request")
	defer func() { tracing.End(span, err) }()

	toUID, fromUID, err = normalizePair(toUID, fromUID)
	if err != nil {
		return err
	}
	decision, parseErr := enums.ParseFollowDecision(strings.TrimSpace(raw))
	if parseErr != nil {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, parseErr.Error())
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		// a block deletes the pair's requests, so check it before the lookup
		if decision == enums.FollowDecisionApprove {
			if err := s.gate.CheckPair(ctx, tx, gate.ActionDecideFollow, toUID, fromUID); err != nil {
				return err
			}
		}

		req, err := s.repo.FindOpenRequest(ctx, tx, fromUID, toUID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "follow request not found")
			}
			return err
		}
		if req.Status != enums.FollowRequestPending {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "follow request already decided")
		}

		event := enums.EventFollowRejected
		if decision == enums.FollowDecisionApprove {
			event = enums.EventFollowApproved
		}

		changed, err := s.repo.DecideRequest(ctx, tx, req, decision.Status(), time.Now().UTC())
		if err != nil {
			return err
		}
		if !changed {
			return db.ErrRetryable
		}
		if decision == enums.FollowDecisionApprove {
			if err := s.promote(ctx, tx, fromUID, toUID); err != nil {
				return err
			}
		}

		return s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     event,
			AggregateType: enums.AggregateFollowRequest,
			AggregateID:   req.ID.String(),
			Actor:         &outbox.Actor{UID: toUID},
			Data:          payloads.FollowEvent{RequestID: req.ID.String(), FromUID: fromUID, ToUID: toUID, Status: req.Status},
		})
	})
	return mapStoreErr(err, "follow request")
}

// Unfollow drops the edge and any open request so the pair can start over.
func (s *service) Unfollow(ctx context.Context, fromUID, toUID string) (err error) {
	ctx, span := startOp(ctx, "unfollow")
	defer func() { tracing.End(span, err) }()

	fromUID, toUID, err = normalizePair(fromUID, toUID)
	if err != nil {
		return err
	}
	if fromUID == toUID {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "cannot unfollow yourself")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		removed, err := s.repo.DeleteFollowEdge(ctx, tx, fromUID, toUID)
		if err != nil {
			return err
		}
		if removed {
			if _, err := s.counters.Adjust(ctx, tx, counters.FollowerCount, toUID, -1); err != nil {
				return err
			}
		}
		cleared, err := s.repo.DeleteOpenRequests(ctx, tx, fromUID, toUID)
		if err != nil {
			return err
		}
		if !removed && cleared == 0 {
			return nil
		}
		return s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventUserUnfollowed,
			AggregateType: enums.AggregateUser,
			AggregateID:   fromUID,
			Actor:         &outbox.Actor{UID: fromUID},
			Data:          payloads.FollowEvent{FromUID: fromUID, ToUID: toUID},
		})
	})
	return mapStoreErr(err, "follow")
}

func (s *service) ListBlocked(ctx context.Context, uid string, params pagination.Params) (pagination.Page[BlockedDTO], error) {
	page, err := s.repo.ListBlocked(ctx, uid, params)
	if err != nil {
		return pagination.Page[BlockedDTO]{}, mapStoreErr(err, "relationships")
	}
	items := make([]BlockedDTO, 0, len(page.Items))
	for _, e := range page.Items {
		items = append(items, BlockedDTO{UID: e.BlockedUID, BlockedAt: e.CreatedAt})
	}
	return pagination.Page[BlockedDTO]{Items: items, NextCursor: page.NextCursor}, nil
}

func (s *service) ListPendingRequests(ctx context.Context, uid string, params pagination.Params) (pagination.Page[FollowRequestDTO], error) {
	page, err := s.repo.ListPendingRequests(ctx, uid, params)
	if err != nil {
		return pagination.Page[FollowRequestDTO]{}, mapStoreErr(err, "relationships")
	}
	items := make([]FollowRequestDTO, 0, len(page.Items))
	for _, r := range page.Items {
		items = append(items, FollowRequestDTO{ID: r.ID, FromUID: r.FromUID, ToUID: r.ToUID, Status: r.Status, CreatedAt: r.CreatedAt})
	}
	return pagination.Page[FollowRequestDTO]{Items: items, NextCursor: page.NextCursor}, nil
}

// ListFollowers pages through uid's follow edges as stored.
func (s *service) ListFollowers(ctx context.Context, uid string, params pagination.Params) (pagination.Page[FollowerDTO], error) {
	page, err := s.repo.ListFollowers(ctx, uid, params)
	if err != nil {
		return pagination.Page[FollowerDTO]{}, mapStoreErr(err, "relationships")
	}
	items := make([]FollowerDTO, 0, len(page.Items))
	for _, e := range page.Items {
		items = append(items, FollowerDTO{UID: e.FollowerUID, FollowedAt: e.CreatedAt})
	}
	return pagination.Page[FollowerDTO]{Items: items, NextCursor: page.NextCursor}, nil
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
