package users

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/angelmondragon/atelier-backend/pkg/db"
	"github.com/angelmondragon/atelier-backend/pkg/db/models"
	"github.com/angelmondragon/atelier-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/atelier-backend/pkg/errors"
	"github.com/angelmondragon/atelier-backend/pkg/logger"
	"github.com/angelmondragon/atelier-backend/pkg/outbox"
	"github.com/angelmondragon/atelier-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/atelier-backend/pkg/tracing"
	"github.com/angelmondragon/atelier-backend/pkg/visibility"
)

const maxEvidencePaths = 10

var (
	handlePattern   = regexp.MustCompile(`^[a-z0-9_.]{3,30}$`)
	handleSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)
)

type blockChecker interface {
	IsBlockedPair(ctx context.Context, tx *gorm.DB, a, b string) (bool, error)
}

// Service is the identity and role store.
type Service interface {
	EnsureUser(ctx context.Context, uid string, emailVerified bool) (UserDTO, error)
	GetUser(ctx context.Context, uid string) (UserDTO, error)
	SetInitialRole(ctx context.Context, uid string, role string) error
	AdminAssignRole(ctx context.Context, adminUID, targetUID string, role string) error
	RequestCreatorVerification(ctx context.Context, uid string, evidencePaths []string, notes *string) (VerificationDTO, error)
	DecideCreatorVerification(ctx context.Context, adminUID string, requestID uuid.UUID, decision string) (VerificationDTO, error)
	ListPendingVerifications(ctx context.Context, adminUID string, limit int) ([]VerificationDTO, error)
	GetProfile(ctx context.Context, viewer visibility.Viewer, uid string) (ProfileDTO, error)
	UpdateProfile(ctx context.Context, uid string, input UpdateProfileInput) (ProfileDTO, error)
}

// ServiceParams groups dependencies for the users service.
type ServiceParams struct {
	Repo   *Repository
	Tx     db.Txer
	Outbox outbox.Emitter
	Blocks blockChecker
	Logger *logger.Logger
}

type service struct {
	repo   *Repository
	tx     db.Txer
	outbox outbox.Emitter
	blocks blockChecker
	logg   *logger.Logger
}

// NewService builds a users service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "users repo is required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner is required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter is required")
	}
	if params.Blocks == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "block checker is required")
	}
	return &service{
		repo:   params.Repo,
		tx:     params.Tx,
		outbox: params.Outbox,
		blocks: params.Blocks,
		logg:   params.Logger,
	}, nil
}

func startOp(ctx context.Context, op string) (context.Context, trace.Span) {
	ctx = db.WithOperation(ctx, "users."+op)
	return tracing.Start(ctx, "users", op)
}

// EnsureUser is the first-login trigger: it creates the user and its profile
// when absent and keeps email verification in sync.
func (s *service) EnsureUser(ctx context.Context, uid string, emailVerified bool) (dto UserDTO, err error) {
	ctx, span := startOp(ctx, "ensure_user")
	defer func() { tracing.End(span, err) }()

	uid = strings.TrimSpace(uid)
	if uid == "" {
		return UserDTO{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, "uid is required")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		existing, err := s.repo.FindByUID(ctx, tx, uid)
		if err == nil {
			if existing.EmailVerified != emailVerified {
				if err := s.repo.UpdateEmailVerified(ctx, tx, uid, emailVerified); err != nil {
					return err
				}
				existing.EmailVerified = emailVerified
			}
			dto = FromModel(existing)
			return nil
		}
		if !db.IsNotFound(err) {
			return err
		}

		user := &models.User{
			UID:                uid,
			Role:               enums.RoleUnassigned,
			EmailVerified:      emailVerified,
			VerificationStatus: enums.VerificationNone,
		}
		created, err := s.repo.CreateIfAbsent(ctx, tx, user)
		if err != nil {
			return err
		}
		if !created {
			return db.ErrRetryable
		}

		handle, err := s.availableHandle(ctx, tx, uid)
		if err != nil {
			return err
		}
		if err := s.repo.CreateProfile(ctx, tx, &models.PublicProfile{UID: uid, Handle: handle}); err != nil {
			if db.IsUniqueViolation(err, "idx_public_profiles_handle") {
				return db.ErrRetryable
			}
			return err
		}
		dto = FromModel(user)
		return nil
	})
	if err != nil {
		return UserDTO{}, mapStoreErr(err, "ensure user")
	}
	return dto, nil
}

func (s *service) availableHandle(ctx context.Context, tx *gorm.DB, uid string) (string, error) {
	base := handleSanitizer.ReplaceAllString(strings.ToLower(uid), "")
	if len(base) > 16 {
		base = base[:16]
	}
	candidate := "user_" + base
	taken, err := s.repo.HandleTaken(ctx, tx, candidate, uid)
	if err != nil {
		return "", err
	}
	if !taken {
		return candidate, nil
	}
	sum := sha1.Sum([]byte(uid))
	return candidate + "_" + hex.EncodeToString(sum[:])[:6], nil
}

func (s *service) GetUser(ctx context.Context, uid string) (UserDTO, error) {
	user, err := s.repo.FindByUID(ctx, nil, uid)
	if err != nil {
		return UserDTO{}, mapStoreErr(err, "user")
	}
	return FromModel(user), nil
}

// SetInitialRole lets a user leave unassigned exactly once.
func (s *service) SetInitialRole(ctx context.Context, uid string, raw string) (err error) {
	ctx, span := startOp(ctx, "set_initial_role")
	defer func() { tracing.End(span, err) }()

	role, parseErr := enums.ParseRole(strings.TrimSpace(raw))
	if parseErr != nil || !role.IsSelfSelectable() {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, "role must be artist or creator")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := s.repo.FindByUID(ctx, tx, uid)
		if err != nil {
			return err
		}
		if !user.Role.CanSelfTransition(role) {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "role already set")
		}
		changed, err := s.repo.UpdateRoleFrom(ctx, tx, uid, enums.RoleUnassigned, role)
		if err != nil {
			return err
		}
		if !changed {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "role already set")
		}
		return nil
	})
	return mapStoreErr(err, "user")
}

// AdminAssignRole is the privileged operator path for role changes.
func (s *service) AdminAssignRole(ctx context.Context, adminUID, targetUID string, raw string) (err error) {
	ctx, span := startOp(ctx, "admin_assign_role")
	defer func() { tracing.End(span, err) }()

	role, parseErr := enums.ParseRole(strings.TrimSpace(raw))
	if parseErr != nil {
		return pkgerrors.New(pkgerrors.CodeInvalidArgument, parseErr.Error())
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.requireAdmin(ctx, tx, adminUID); err != nil {
			return err
		}
		target, err := s.repo.FindByUID(ctx, tx, targetUID)
		if err != nil {
			return err
		}
		if !target.Role.CanAdminAssign(role) {
			return pkgerrors.New(pkgerrors.CodeInvalidArgument, "role cannot be assigned")
		}
		if target.Role == role {
			return nil
		}
		changed, err := s.repo.UpdateRoleFrom(ctx, tx, targetUID, target.Role, role)
		if err != nil {
			return err
		}
		if !changed {
			return db.ErrRetryable
		}
		return nil
	})
	if err != nil {
		return mapStoreErr(err, "user")
	}
	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{"admin_uid": adminUID, "target_uid": targetUID, "role": role})
		s.logg.Info(logCtx, "role assigned by admin")
	}
	return nil
}

// RequestCreatorVerification files a pending verification request. It is the
// one write an account without a role or verified email may perform.
func (s *service) RequestCreatorVerification(ctx context.Context, uid string, evidencePaths []string, notes *string) (dto VerificationDTO, err error) {
	ctx, span := startOp(ctx, "request_creator_verification")
	defer func() { tracing.End(span, err) }()

	paths := cleanPaths(evidencePaths)
	if len(paths) == 0 {
		return VerificationDTO{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, "at least one evidence path is required")
	}
	if len(paths) > maxEvidencePaths {
		return VerificationDTO{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, "too many evidence paths")
	}
	if notes != nil {
		trimmed := strings.TrimSpace(*notes)
		if trimmed == "" {
			notes = nil
		} else {
			notes = &trimmed
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		user, err := s.repo.FindByUID(ctx, tx, uid)
		if err != nil {
			return err
		}
		if user.VerificationStatus == enums.VerificationApproved {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "already verified")
		}
		if _, err := s.repo.FindPendingVerification(ctx, tx, uid); err == nil {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "a verification request is already pending")
		} else if !db.IsNotFound(err) {
			return err
		}

		request := &models.CreatorVerification{
			UID:           uid,
			EvidencePaths: models.StringList(paths),
			Notes:         notes,
			Status:        enums.VerificationPending,
		}
		if err := s.repo.CreateVerification(ctx, tx, request); err != nil {
			if db.IsUniqueViolation(err, "idx_creator_verifications_pending") {
				return db.ErrRetryable
			}
			return err
		}
		if err := s.repo.UpdateVerificationStatus(ctx, tx, uid, enums.VerificationPending); err != nil {
			return err
		}
		dto = verificationFromModel(request)
		return s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventCreatorVerificationRequested,
			AggregateType: enums.AggregateVerification,
			AggregateID:   request.ID.String(),
			Actor:         &outbox.Actor{UID: uid, Role: string(user.Role)},
			Data:          payloads.VerificationEvent{RequestID: request.ID.String(), UID: uid, Status: enums.VerificationPending},
		})
	})
	if err != nil {
		return VerificationDTO{}, mapStoreErr(err, "user")
	}
	return dto, nil
}

func cleanPaths(paths []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		trimmed := strings.TrimSpace(p)
		if trimmed == "" {
			continue
		}
		if _, dup := seen[trimmed]; dup {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// DecideCreatorVerification approves or rejects a pending request.
func (s *service) DecideCreatorVerification(ctx context.Context, adminUID string, requestID uuid.UUID, raw string) (dto VerificationDTO, err error) {
	ctx, span := startOp(ctx, "decide_creator_verification")
	defer func() { tracing.End(span, err) }()

	decision, parseErr := enums.ParseVerificationDecision(strings.TrimSpace(raw))
	if parseErr != nil {
		return VerificationDTO{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, parseErr.Error())
	}
	status := enums.VerificationRejected
	if decision == enums.VerificationDecisionApprove {
		status = enums.VerificationApproved
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		admin, err := s.requireAdmin(ctx, tx, adminUID)
		if err != nil {
			return err
		}
		request, err := s.repo.FindVerification(ctx, tx, requestID)
		if err != nil {
			return err
		}
		if request.Status != enums.VerificationPending {
			return pkgerrors.New(pkgerrors.CodeFailedPrecondition, "verification request is not pending")
		}
		now := time.Now().UTC()
		changed, err := s.repo.DecideVerification(ctx, tx, requestID, status, admin.UID, now)
		if err != nil {
			return err
		}
		if !changed {
			return db.ErrRetryable
		}
		if err := s.repo.UpdateVerificationStatus(ctx, tx, request.UID, status); err != nil {
			return err
		}
		request.Status = status
		request.DecidedBy = &admin.UID
		request.DecidedAt = &now
		dto = verificationFromModel(request)
		return s.outbox.Emit(ctx, tx, outbox.Event{
			EventType:     enums.EventCreatorVerificationDecided,
			AggregateType: enums.AggregateVerification,
			AggregateID:   request.ID.String(),
			Actor:         &outbox.Actor{UID: admin.UID, Role: string(admin.Role)},
			Data:          payloads.VerificationEvent{RequestID: request.ID.String(), UID: request.UID, Status: status},
		})
	})
	if err != nil {
		return VerificationDTO{}, mapStoreErr(err, "verification request")
	}
	return dto, nil
}

func (s *service) ListPendingVerifications(ctx context.Context, adminUID string, limit int) ([]VerificationDTO, error) {
	if _, err := s.requireAdmin(ctx, nil, adminUID); err != nil {
		return nil, mapStoreErr(err, "user")
	}
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	rows, err := s.repo.ListVerifications(ctx, enums.VerificationPending, limit)
	if err != nil {
		return nil, mapStoreErr(err, "verification requests")
	}
	out := make([]VerificationDTO, 0, len(rows))
	for i := range rows {
		out = append(out, verificationFromModel(&rows[i]))
	}
	return out, nil
}

// GetProfile hides the profile from the other side of a block.
func (s *service) GetProfile(ctx context.Context, viewer visibility.Viewer, uid string) (ProfileDTO, error) {
	profile, err := s.repo.FindProfile(ctx, nil, uid)
	if err != nil {
		return ProfileDTO{}, mapStoreErr(err, "profile")
	}
	if !viewer.IsAnonymous() && !viewer.IsAdmin && viewer.UID != uid {
		blocked, err := s.blocks.IsBlockedPair(ctx, nil, viewer.UID, uid)
		if err != nil {
			return ProfileDTO{}, mapStoreErr(err, "profile")
		}
		if blocked {
			return ProfileDTO{}, pkgerrors.New(pkgerrors.CodeNotFound, "profile not found")
		}
	}
	return profileFromModel(profile), nil
}

func (s *service) UpdateProfile(ctx context.Context, uid string, input UpdateProfileInput) (dto ProfileDTO, err error) {
	ctx, span := startOp(ctx, "update_profile")
	defer func() { tracing.End(span, err) }()

	updates := map[string]any{}
	var handle string
	if input.Handle != nil {
		handle = strings.ToLower(strings.TrimSpace(*input.Handle))
		if !handlePattern.MatchString(handle) {
			return ProfileDTO{}, pkgerrors.New(pkgerrors.CodeInvalidArgument, "handle must be 3-30 characters of a-z, 0-9, '_' or '.'")
		}
		updates["handle"] = handle
	}
	if input.DisplayName != nil {
		updates["display_name"] = strings.TrimSpace(*input.DisplayName)
	}
	if input.Bio != nil {
		updates["bio"] = strings.TrimSpace(*input.Bio)
	}
	if input.IsPrivateAccount != nil {
		updates["is_private_account"] = *input.IsPrivateAccount
	}
	if input.AvatarAssetID != nil {
		if trimmed := strings.TrimSpace(*input.AvatarAssetID); trimmed != "" {
			updates["avatar_asset_id"] = trimmed
		} else {
			updates["avatar_asset_id"] = nil
		}
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if _, err := s.repo.FindProfile(ctx, tx, uid); err != nil {
			return err
		}
		if handle != "" {
			taken, err := s.repo.HandleTaken(ctx, tx, handle, uid)
			if err != nil {
				return err
			}
			if taken {
				return pkgerrors.New(pkgerrors.CodeAlreadyExists, "handle is taken")
			}
		}
		if err := s.repo.UpdateProfile(ctx, tx, uid, updates); err != nil {
			if db.IsUniqueViolation(err, "idx_public_profiles_handle") {
				return pkgerrors.New(pkgerrors.CodeAlreadyExists, "handle is taken")
			}
			return err
		}
		profile, err := s.repo.FindProfile(ctx, tx, uid)
		if err != nil {
			return err
		}
		dto = profileFromModel(profile)
		return nil
	})
	if err != nil {
		return ProfileDTO{}, mapStoreErr(err, "profile")
	}
	return dto, nil
}

func (s *service) requireAdmin(ctx context.Context, tx *gorm.DB, uid string) (*models.User, error) {
	user, err := s.repo.FindByUID(ctx, tx, uid)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodePermissionDenied, "admin role required")
		}
		return nil, err
	}
	if user.Role != enums.RoleAdmin {
		return nil, pkgerrors.New(pkgerrors.CodePermissionDenied, "admin role required")
	}
	return user, nil
}

// mapStoreErr passes typed errors through and classifies raw store errors.
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
	return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load "+entity)
}
