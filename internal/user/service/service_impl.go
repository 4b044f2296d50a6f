package service

import (
	"context"
	"database/sql"
	"net/mail"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditdomain "github.com/smallbiznis/nodeboss/internal/audit/domain"
	"github.com/smallbiznis/nodeboss/internal/auth/password"
	"github.com/smallbiznis/nodeboss/internal/clock"
	"github.com/smallbiznis/nodeboss/internal/orgcontext"
	"github.com/smallbiznis/nodeboss/internal/user/domain"
	"github.com/smallbiznis/nodeboss/pkg/db"
	"github.com/smallbiznis/nodeboss/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	minPasswordLength = 8
	maxCodeAttempts   = 5
)

var hundred = decimal.NewFromInt(100)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Repo     domain.Repository
	AuditSvc auditdomain.Service `optional:"true"`
	Clock    clock.Clock         `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	repo     domain.Repository
	auditSvc auditdomain.Service
	clock    clock.Clock
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("user.service"),
		genID:    p.GenID,
		repo:     p.Repo,
		auditSvc: p.AuditSvc,
		clock:    clk,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, domain.ErrInvalidName
	}
	email, err := normalizeEmail(req.Email)
	if err != nil {
		return nil, domain.ErrInvalidEmail
	}

	role := domain.RoleUser
	if strings.TrimSpace(req.Role) != "" {
		parsed, ok := domain.ParseRole(req.Role)
		if !ok {
			return nil, domain.ErrInvalidRole
		}
		role = parsed
	}

	var passwordHash *string
	if req.Password != "" {
		if len(strings.TrimSpace(req.Password)) < minPasswordLength {
			return nil, domain.ErrInvalidPassword
		}
		hashed, err := password.Hash(req.Password)
		if err != nil {
			return nil, err
		}
		passwordHash = &hashed
	}

	var referredBy *snowflake.ID
	if code := strings.TrimSpace(req.ReferrerCode); code != "" {
		referrer, err := s.repo.FindByReferralCode(ctx, s.db, orgID, code)
		if err != nil {
			return nil, err
		}
		if referrer == nil {
			return nil, domain.ErrReferrerNotFound
		}
		referredBy = &referrer.ID
	}

	existing, err := s.repo.FindByEmail(ctx, s.db, orgID, email)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrEmailTaken
	}

	now := s.clock.Now().UTC()
	user := &domain.User{
		ID:                 s.genID.Generate(),
		OrgID:              orgID,
		Name:               name,
		Email:              email,
		Role:               role,
		ReferredBy:         referredBy,
		OverridePercentage: decimal.Zero,
		PasswordHash:       passwordHash,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	// The email check above races with concurrent signups, so a unique
	// violation on email still maps to ErrEmailTaken. Code collisions retry.
	for attempt := 1; ; attempt++ {
		user.ReferralCode = domain.NewReferralCode(name)
		err := s.repo.Insert(ctx, s.db, user)
		if err == nil {
			break
		}
		switch {
		case db.DuplicateKeyOn(err, "email"):
			return nil, domain.ErrEmailTaken
		case db.DuplicateKeyOn(err, "referral_code") && attempt < maxCodeAttempts:
			continue
		default:
			return nil, err
		}
	}

	s.log.Info("user created",
		zap.String("user_id", user.ID.String()),
		zap.String("role", string(role)),
		zap.Bool("has_referrer", referredBy != nil),
	)
	return user, nil
}

func (s *Service) GetByID(ctx context.Context, id string) (*domain.User, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	userID, err := parseID(id)
	if err != nil {
		return nil, domain.ErrInvalidUser
	}
	user, err := s.repo.FindByID(ctx, s.db, orgID, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}
	return user, nil
}

func (s *Service) List(ctx context.Context, req domain.ListUserRequest) (domain.ListUserResponse, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return domain.ListUserResponse{}, domain.ErrInvalidOrganization
	}
	if _, err := pagination.CursorID(req.PageToken); err != nil {
		return domain.ListUserResponse{}, domain.ErrInvalidPageToken
	}

	filter := domain.ListFilter{OrgID: orgID, IsBigBoss: req.IsBigBoss, Page: req.Pagination}
	if strings.TrimSpace(req.Role) != "" {
		role, ok := domain.ParseRole(req.Role)
		if !ok {
			return domain.ListUserResponse{}, domain.ErrInvalidRole
		}
		filter.Role = role
	}
	if strings.TrimSpace(req.ReferredBy) != "" {
		referredBy, err := parseID(req.ReferredBy)
		if err != nil {
			return domain.ListUserResponse{}, domain.ErrInvalidUser
		}
		filter.ReferredBy = &referredBy
	}

	items, err := s.repo.List(ctx, s.db, filter)
	if err != nil {
		return domain.ListUserResponse{}, err
	}

	pageSize := int32(pagination.NormalizePageSize(req.PageSize))
	pageInfo := pagination.BuildCursorPageInfo(items, pageSize, func(u *domain.User) string {
		return pagination.IDToken(u.ID)
	})
	items = pagination.Trim(items, pageSize)

	users := make([]domain.User, 0, len(items))
	for _, item := range items {
		users = append(users, *item)
	}
	return domain.ListUserResponse{PageInfo: *pageInfo, Users: users}, nil
}

// SetReferrer moves userID under referrerID. The move is refused when the
// referrer already sits below userID, which would close a loop.
func (s *Service) SetReferrer(ctx context.Context, userID string, referrerID string) (*domain.User, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	uid, err := parseID(userID)
	if err != nil {
		return nil, domain.ErrInvalidUser
	}
	rid, err := parseID(referrerID)
	if err != nil {
		return nil, domain.ErrInvalidUser
	}
	if uid == rid {
		return nil, domain.ErrReferralCycle
	}

	var (
		updated  *domain.User
		previous *snowflake.ID
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.repo.FindByID(ctx, tx, orgID, uid)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrNotFound
		}
		referrer, err := s.repo.FindByID(ctx, tx, orgID, rid)
		if err != nil {
			return err
		}
		if referrer == nil {
			return domain.ErrReferrerNotFound
		}

		if err := s.ensureNotDescendant(ctx, tx, orgID, referrer, uid); err != nil {
			return err
		}

		previous = user.ReferredBy
		now := s.clock.Now().UTC()
		if _, err := s.repo.UpdateReferrer(ctx, tx, orgID, uid, &rid, now); err != nil {
			return err
		}
		user.ReferredBy = &rid
		user.UpdatedAt = now
		updated = user
		return nil
	}, s.writeTxOptions())
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{"referred_by": rid.String()}
	if previous != nil {
		metadata["previous_referred_by"] = previous.String()
	}
	s.audit(ctx, orgID, auditdomain.ActionUserReferrerChanged, uid, metadata)
	return updated, nil
}

func (s *Service) SetBigBoss(ctx context.Context, userID string, req domain.SetBigBossRequest) (*domain.User, error) {
	orgID, ok := orgcontext.OrgIDFromContext(ctx)
	if !ok {
		return nil, domain.ErrInvalidOrganization
	}
	uid, err := parseID(userID)
	if err != nil {
		return nil, domain.ErrInvalidUser
	}

	pct := req.OverridePercentage
	if req.Enabled {
		if !pct.IsPositive() || pct.GreaterThan(hundred) {
			return nil, domain.ErrInvalidPercentage
		}
	} else {
		pct = decimal.Zero
	}

	user, err := s.repo.FindByID(ctx, s.db, orgID, uid)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrNotFound
	}

	now := s.clock.Now().UTC()
	if _, err := s.repo.UpdateBigBoss(ctx, s.db, orgID, uid, req.Enabled, pct, now); err != nil {
		return nil, err
	}

	s.audit(ctx, orgID, auditdomain.ActionUserBigBossChanged, uid, map[string]any{
		"previous_is_big_boss":         user.IsBigBoss,
		"previous_override_percentage": user.OverridePercentage.String(),
		"is_big_boss":                  req.Enabled,
		"override_percentage":          pct.String(),
	})

	user.IsBigBoss = req.Enabled
	user.OverridePercentage = pct
	user.UpdatedAt = now
	return user, nil
}

func (s *Service) Ancestors(ctx context.Context, conn *gorm.DB, orgID, userID snowflake.ID, limit int) ([]domain.User, error) {
	if conn == nil {
		conn = s.db
	}
	if limit <= 0 {
		return nil, nil
	}

	start, err := s.repo.FindByID(ctx, conn, orgID, userID)
	if err != nil {
		return nil, err
	}
	if start == nil {
		return nil, domain.ErrNotFound
	}

	visited := map[snowflake.ID]struct{}{userID: {}}
	chain := make([]domain.User, 0, limit)
	next := start.ReferredBy
	for next != nil && len(chain) < limit {
		if _, seen := visited[*next]; seen {
			return chain, domain.ErrReferralCycle
		}
		visited[*next] = struct{}{}

		ancestor, err := s.repo.FindByID(ctx, conn, orgID, *next)
		if err != nil {
			return nil, err
		}
		if ancestor == nil {
			break
		}
		chain = append(chain, *ancestor)
		next = ancestor.ReferredBy
	}
	return chain, nil
}

func (s *Service) ensureNotDescendant(ctx context.Context, tx *gorm.DB, orgID snowflake.ID, from *domain.User, target snowflake.ID) error {
	visited := map[snowflake.ID]struct{}{}
	current := from
	for current != nil {
		if current.ID == target {
			return domain.ErrReferralCycle
		}
		if _, seen := visited[current.ID]; seen {
			return domain.ErrReferralCycle
		}
		visited[current.ID] = struct{}{}
		if current.ReferredBy == nil {
			return nil
		}
		next, err := s.repo.FindByID(ctx, tx, orgID, *current.ReferredBy)
		if err != nil {
			return err
		}
		current = next
	}
	return nil
}

// writeTxOptions serializes hierarchy edits where the driver supports it so
// two concurrent moves cannot close a loop between them.
func (s *Service) writeTxOptions() *sql.TxOptions {
	if db.SupportsIsolation(s.db) {
		return &sql.TxOptions{Isolation: sql.LevelSerializable}
	}
	return nil
}

func (s *Service) audit(ctx context.Context, orgID snowflake.ID, action string, userID snowflake.ID, metadata map[string]any) {
	if s.auditSvc == nil {
		return
	}
	entry := auditdomain.Entry{
		OrgID:      orgID,
		Action:     action,
		TargetType: auditdomain.TargetUser,
		TargetID:   userID.String(),
		Metadata:   metadata,
	}
	if err := s.auditSvc.Record(ctx, entry); err != nil {
		s.log.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", err
	}
	return strings.ToLower(addr.Address), nil
}

func parseID(raw string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	if id == 0 {
		return 0, domain.ErrInvalidUser
	}
	return id, nil
}
