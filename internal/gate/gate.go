// Package gate is the shared precondition every social mutation passes
// before it writes anything.
package gate

import (
	"context"

	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/pkg/db"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
	"github.com/angelmondragon/atelier-backend/pkg/visibility"
)

// Action names the gated operation for logs and metrics.
type Action string

const (
	ActionPost           Action = "post"
	ActionComment        Action = "comment"
	ActionLike           Action = "like"
	ActionFollow         Action = "follow"
	ActionDecideFollow   Action = "decide_follow"
	ActionMessage        Action = "message"
	ActionMediaUpload    Action = "media_upload"
	ActionMediaFetch     Action = "media_fetch"
	ActionReport         Action = "report"
	ActionDispute        Action = "dispute"
	ActionUploadEvidence Action = "upload_evidence"
)

// requiresStanding reports whether the actor must be email verified and hold
// an assigned role. Verification evidence is the one write an unassigned
// account may make.
func (a Action) requiresStanding() bool {
	return a != ActionUploadEvidence
}

const (
	reasonUnverified = "UNVERIFIED"
	reasonNoRole     = "ROLE_UNASSIGNED"
)

// Identities loads users inside the caller's transaction.
type Identities interface {
	FindByUID(ctx context.Context, tx *gorm.DB, uid string) (*models.User, error)
}

// Relations answers graph questions inside the caller's transaction.
type Relations interface {
	IsBlockedPair(ctx context.Context, tx *gorm.DB, a, b string) (bool, error)
	IsFollowing(ctx context.Context, tx *gorm.DB, followerUID, followeeUID string) (bool, error)
}

// DenialRecorder counts gate denials.
type DenialRecorder interface {
	GateDenied(action, reason string)
}

// Params groups the gate dependencies.
type Params struct {
	Identities Identities
	Relations  Relations
	Denials    DenialRecorder
	Logger     *logger.Logger
}

// Gate runs the interaction preconditions.
type Gate struct {
	identities Identities
	relations  Relations
	denials    DenialRecorder
	logg       *logger.Logger
}

// New validates the dependencies and builds a Gate.
func New(params Params) (*Gate, error) {
	if params.Identities == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "identities store is required")
	}
	if params.Relations == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "relations store is required")
	}
	return &Gate{
		identities: params.Identities,
		relations:  params.Relations,
		denials:    params.Denials,
		logg:       params.Logger,
	}, nil
}

// Request describes one gated action. CounterpartUID and Content are optional.
type Request struct {
	Action         Action
	ActorUID       string
	CounterpartUID string
	Content        *visibility.Content
}

// Result carries what the gate loaded so callers do not read it twice.
type Result struct {
	Actor       *models.User
	Counterpart *models.User
}

// Check runs, in order: actor standing, counterpart resolution, the symmetric
// block check and, for content-scoped actions, the visibility resolver. It
// must be called with the same tx that performs the action's writes.
func (g *Gate) Check(ctx context.Context, tx *gorm.DB, req Request) (Result, error) {
	actor, err := g.loadUser(ctx, tx, req.ActorUID, "actor")
	if err != nil {
		return Result{}, err
	}
	if req.Action.requiresStanding() {
		if !actor.EmailVerified {
			return Result{}, g.deny(ctx, req, reasonUnverified,
				pkgerrors.New(pkgerrors.CodePermissionDenied, "email address is not verified"))
		}
		if !actor.Role.IsAssigned() {
			return Result{}, g.deny(ctx, req, reasonNoRole,
				pkgerrors.New(pkgerrors.CodePermissionDenied, "choose a role before interacting"))
		}
	}

	result := Result{Actor: actor}

	counterpartUID := req.CounterpartUID
	if counterpartUID == "" && req.Content != nil {
		counterpartUID = req.Content.AuthorUID
	}
	if counterpartUID == "" || counterpartUID == actor.UID {
		if req.Content != nil {
			if err := g.checkContent(ctx, tx, req, actor); err != nil {
				return Result{}, err
			}
		}
		return result, nil
	}

	if req.CounterpartUID != "" {
		counterpart, err := g.loadUser(ctx, tx, counterpartUID, "user")
		if err != nil {
			return Result{}, err
		}
		result.Counterpart = counterpart
	}

	if err := g.CheckPair(ctx, tx, req.Action, actor.UID, counterpartUID); err != nil {
		return Result{}, err
	}

	if req.Content != nil {
		if err := g.checkContent(ctx, tx, req, actor); err != nil {
			return Result{}, err
		}
	}
	return result, nil
}

// CheckPair is the block step on its own, for actions whose actor standing is
// already established.
func (g *Gate) CheckPair(ctx context.Context, tx *gorm.DB, action Action, a, b string) error {
	if a == "" || b == "" || a == b {
		return nil
	}
	blocked, err := g.relations.IsBlockedPair(ctx, tx, a, b)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check block state")
	}
	if blocked {
		return g.deny(ctx, Request{Action: action, ActorUID: a, CounterpartUID: b}, pkgerrors.ReasonBlocked, pkgerrors.Blocked(""))
	}
	return nil
}

// Writes never get the admin read bypass: deleted or hidden content stays
// out of reach for every actor. The viewer is built without IsAdmin on
// purpose, so an admin who can read another user's private or deleted post
// through Read still cannot comment on it or like it. Moderation acts on
// such content through the takedown and block primitives instead.
func (g *Gate) checkContent(ctx context.Context, tx *gorm.DB, req Request, actor *models.User) error {
	viewer := visibility.Viewer{UID: actor.UID}
	rel, err := g.relationship(ctx, tx, viewer, *req.Content)
	if err != nil {
		return err
	}
	decision := visibility.Resolve(viewer, *req.Content, rel)
	if decision.Visible {
		return nil
	}
	return g.deny(ctx, req, decision.Reason, decision.Err())
}

// Read resolves visibility for a read. Admin viewers keep their bypass here.
func (g *Gate) Read(ctx context.Context, tx *gorm.DB, viewer visibility.Viewer, content visibility.Content) (visibility.Decision, error) {
	rel, err := g.relationship(ctx, tx, viewer, content)
	if err != nil {
		return visibility.Decision{}, err
	}
	return visibility.Resolve(viewer, content, rel), nil
}

func (g *Gate) relationship(ctx context.Context, tx *gorm.DB, viewer visibility.Viewer, content visibility.Content) (visibility.Relationship, error) {
	var rel visibility.Relationship
	if viewer.IsAnonymous() || viewer.UID == content.AuthorUID {
		return rel, nil
	}
	blocked, err := g.relations.IsBlockedPair(ctx, tx, viewer.UID, content.AuthorUID)
	if err != nil {
		return rel, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check block state")
	}
	rel.Blocked = blocked
	if !blocked && content.Visibility == enums.VisibilityFollowers {
		follows, err := g.relations.IsFollowing(ctx, tx, viewer.UID, content.AuthorUID)
		if err != nil {
			return rel, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check follow state")
		}
		rel.FollowsAuthor = follows
	}
	return rel, nil
}

func (g *Gate) loadUser(ctx context.Context, tx *gorm.DB, uid, label string) (*models.User, error) {
	if uid == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "authentication required")
	}
	user, err := g.identities.FindByUID(ctx, tx, uid)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, label+" not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load "+label)
	}
	return user, nil
}

func (g *Gate) deny(ctx context.Context, req Request, reason string, err error) error {
	if g.denials != nil {
		g.denials.GateDenied(string(req.Action), reason)
	}
	if g.logg != nil {
		logCtx := g.logg.WithFields(ctx, map[string]any{
			"action":      string(req.Action),
			"reason":      reason,
			"actor_uid":   req.ActorUID,
			"counterpart": req.CounterpartUID,
		})
		g.logg.Info(logCtx, "interaction denied")
	}
	return err
}
