package messages

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/internal/gate"
	"github.com/angelmondragon/atelier-backend/pkg/db"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/pagination"
	"github.com/angelmondragon/atelier-backend/pkg/tracing"
)

const maxBodyLength = 4000

type interactionGate interface {
	Check(ctx context.Context, tx *gorm.DB, req gate.Request) (gate.Result, error)
}

// SendInput is the createMessage payload.
type SendInput struct {
	RecipientUID string `json:"recipientUid" validate:"required,uid"`
	Body         string `json:"body" validate:"required,notblank,max=4000"`
}

// MessageDTO is a message as returned to either participant.
type MessageDTO struct {
	ID           uuid.UUID `json:"id"`
	SenderUID    string    `json:"sender_uid"`
	RecipientUID string    `json:"recipient_uid"`
	Body         string    `json:"body"`
	CreatedAt    time.Time `json:"created_at"`
}

// Service sends and lists direct messages.
type Service interface {
	CreateMessage(ctx context.Context, senderUID string, input SendInput) (*MessageDTO, error)
	ListThread(ctx context.Context, uid, otherUID string, params pagination.Params) (pagination.Page[MessageDTO], error)
}

type service struct {
	repo *Repository
	gate interactionGate
	tx   db.Txer
}

// NewService builds a messages service.
func NewService(repo *Repository, g interactionGate, tx db.Txer) (Service, error) {
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "messages repo is required")
	}
	if g == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "interaction gate is required")
	}
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner is required")
	}
	return &service{repo: repo, gate: g, tx: tx}, nil
}

// CreateMessage is gated on the recipient: standing, existence and the
// symmetric block check all run in the insert's transaction.
func (s *service) CreateMessage(ctx context.Context, senderUID string, input SendInput) (dto *MessageDTO, err error) {
	ctx, span := tracing.Start(db.WithOperation(ctx, "messages.create"), "messages", "create")
	defer func() { tracing.End(span, err) }()

	recipient := strings.TrimSpace(input.RecipientUID)
	body := strings.TrimSpace(input.Body)
	switch {
	case recipient == "":
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "recipientUid is required")
	case recipient == senderUID:
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "cannot message yourself")
	case body == "":
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "message body is required")
	case len(body) > maxBodyLength:
		return nil, pkgerrors.New(pkgerrors.CodeInvalidArgument, "message body is too long")
	}

	msg := &models.Message{SenderUID: senderUID, RecipientUID: recipient, Body: body}
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.gate.Check(ctx, tx, gate.Request{Action: gate.ActionMessage, ActorUID: senderUID, CounterpartUID: recipient}); err != nil {
			return err
		}
		return s.repo.Create(ctx, tx, msg)
	})
	if err != nil {
		if pkgerrors.As(err) != nil {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "store message")
	}
	return toDTO(*msg), nil
}

// ListThread returns history to either participant, including across a
// block; only new messages are refused.
func (s *service) ListThread(ctx context.Context, uid, otherUID string, params pagination.Params) (pagination.Page[MessageDTO], error) {
	otherUID = strings.TrimSpace(otherUID)
	if otherUID == "" {
		return pagination.Page[MessageDTO]{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, "other uid is required")
	}
	page, err := s.repo.ListThread(ctx, uid, otherUID, params)
	if err != nil {
		if pkgerrors.As(err) != nil {
			return pagination.Page[MessageDTO]{}, err
		}
		return pagination.Page[MessageDTO]{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list messages")
	}
	items := make([]MessageDTO, 0, len(page.Items))
	for _, m := range page.Items {
		items = append(items, *toDTO(m))
	}
	return pagination.Page[MessageDTO]{Items: items, NextCursor: page.NextCursor}, nil
}

func toDTO(m models.Message) *MessageDTO {
	return &MessageDTO{
		ID:           m.ID,
		SenderUID:    m.SenderUID,
		RecipientUID: m.RecipientUID,
		Body:         m.Body,
		CreatedAt:    m.CreatedAt,
	}
}
