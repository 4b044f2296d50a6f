package authorization

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	gormadapter "github.com/casbin/gorm-adapter/v3"
	auditdomain "github.com/smallbiznis/nodeboss/internal/audit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:embed model.conf
var modelText string

const (
	ObjectUser         = "user"
	ObjectReferralLink = "referral_link"
	ObjectSale         = "sale"
	ObjectCommission   = "commission"
	ObjectReport       = "report"
	ObjectAuditLog     = "audit_log"
)

const (
	ActionUserCreate      = "user.create"
	ActionUserView        = "user.view"
	ActionUserSetReferrer = "user.set_referrer"
	ActionUserSetBigBoss  = "user.set_big_boss"

	ActionReferralLinkCreate  = "referral_link.create"
	ActionReferralLinkView    = "referral_link.view"
	ActionReferralLinkUpdate  = "referral_link.update"
	ActionReferralLinkViewAll = "referral_link.view_all"

	ActionSaleCreate   = "sale.create"
	ActionSaleView     = "sale.view"
	ActionSaleComplete = "sale.complete"

	ActionCommissionView    = "commission.view"
	ActionCommissionViewAll = "commission.view_all"
	ActionCommissionAdjust  = "commission.adjust"

	ActionReportView    = "report.view"
	ActionReportViewAll = "report.view_all"

	ActionAuditLogView = "audit_log.view"
)

var allActions = []string{
	ActionUserCreate,
	ActionUserView,
	ActionUserSetReferrer,
	ActionUserSetBigBoss,
	ActionReferralLinkCreate,
	ActionReferralLinkView,
	ActionReferralLinkUpdate,
	ActionReferralLinkViewAll,
	ActionSaleCreate,
	ActionSaleView,
	ActionSaleComplete,
	ActionCommissionView,
	ActionCommissionViewAll,
	ActionCommissionAdjust,
	ActionReportView,
	ActionReportViewAll,
	ActionAuditLogView,
}

// rolePolicies lists the actions each role may take. Actions ending in
// view_all widen a read from the caller's own rows to the whole tenant.
var rolePolicies = map[string][]string{
	RoleOrganization: {
		ActionUserCreate,
		ActionUserView,
		ActionUserSetReferrer,
		ActionUserSetBigBoss,
		ActionReferralLinkCreate,
		ActionReferralLinkView,
		ActionReferralLinkUpdate,
		ActionReferralLinkViewAll,
		ActionSaleCreate,
		ActionSaleView,
		ActionCommissionView,
		ActionCommissionViewAll,
		ActionReportView,
		ActionReportViewAll,
		ActionAuditLogView,
	},
	RoleUser: {
		ActionReferralLinkCreate,
		ActionReferralLinkView,
		ActionCommissionView,
		ActionReportView,
	},
	RoleSystem: {
		ActionReferralLinkView,
		ActionReferralLinkViewAll,
		ActionSaleCreate,
		ActionSaleView,
		ActionSaleComplete,
		ActionCommissionView,
		ActionCommissionViewAll,
	},
}

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
	AuditSvc auditdomain.Service `optional:"true"`
}

type ServiceImpl struct {
	db       *gorm.DB
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
	auditSvc auditdomain.Service
}

func NewEnforcer(db *gorm.DB) (*casbin.SyncedEnforcer, error) {
	adapter, err := gormadapter.NewAdapterByDB(db)
	if err != nil {
		return nil, err
	}
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, err
	}
	enforcer.EnableAutoSave(true)
	enforcer.EnableAutoBuildRoleLinks(true)
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	enforcer.BuildRoleLinks()
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		db:       p.DB,
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
		auditSvc: p.AuditSvc,
	}
}

// Allowed reports whether the role grants the action without touching
// per-user grouping rules.
func (s *ServiceImpl) Allowed(role string, object string, action string) bool {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return false
	}
	subject := roleSubject(role)
	allowed, err := s.enforcer.Enforce(subject, "*", strings.TrimSpace(object), strings.TrimSpace(action))
	if err != nil {
		s.log.Warn("enforce failed", zap.String("role", role), zap.Error(err))
		return false
	}
	return allowed
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, orgID string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ErrInvalidActor
	}
	orgID = strings.TrimSpace(orgID)
	if orgID == "" {
		return ErrInvalidOrganization
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	subject, roleName, actorType, actorID, err := s.resolveActor(ctx, actor, orgID)
	if err != nil {
		s.auditDecision(ctx, auditdomain.ActionAuthorizationDenied, actorType, actorID, orgID, object, action)
		return err
	}

	domain := fmt.Sprintf("org:%s", orgID)
	if err := s.ensureGrouping(subject, roleName, domain); err != nil {
		return err
	}

	allowed, err := s.enforcer.Enforce(subject, domain, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.auditDecision(ctx, auditdomain.ActionAuthorizationDenied, actorType, actorID, orgID, object, action)
		return ErrForbidden
	}

	if shouldAuditGrant(action) {
		s.auditDecision(ctx, auditdomain.ActionAuthorizationGranted, actorType, actorID, orgID, object, action)
	}
	return nil
}

func (s *ServiceImpl) resolveActor(ctx context.Context, actor string, orgID string) (string, string, string, *string, error) {
	if actor == SystemActor {
		return actor, roleSubject(RoleSystem), "system", nil, nil
	}
	if strings.HasPrefix(actor, "user:") {
		userID, err := snowflake.ParseString(strings.TrimPrefix(actor, "user:"))
		if err != nil || userID == 0 {
			return "", "", "", nil, ErrInvalidActor
		}
		userIDStr := userID.String()
		parsedOrgID, err := snowflake.ParseString(orgID)
		if err != nil || parsedOrgID == 0 {
			return actor, "", "user", &userIDStr, ErrInvalidOrganization
		}
		role, err := s.roleForUser(ctx, parsedOrgID, userID)
		if err != nil {
			return actor, "", "user", &userIDStr, err
		}
		return actor, roleSubject(role), "user", &userIDStr, nil
	}
	return "", "", "", nil, ErrInvalidActor
}

func (s *ServiceImpl) roleForUser(ctx context.Context, orgID snowflake.ID, userID snowflake.ID) (string, error) {
	var row struct {
		Role string `gorm:"column:role"`
	}
	if err := s.db.WithContext(ctx).Raw(
		`SELECT role
		 FROM users
		 WHERE org_id = ? AND id = ?
		 LIMIT 1`,
		orgID,
		userID,
	).Scan(&row).Error; err != nil {
		return "", err
	}

	role := strings.ToLower(strings.TrimSpace(row.Role))
	if role == "" {
		return "", ErrForbidden
	}
	return role, nil
}

// ensureGrouping keeps exactly one role link per subject and domain so a
// role change in the users table takes effect on the next request.
func (s *ServiceImpl) ensureGrouping(subject string, roleName string, domain string) error {
	existing, err := s.enforcer.GetFilteredGroupingPolicy(0, subject, "", domain)
	if err != nil {
		return err
	}
	for _, rule := range existing {
		if len(rule) < 2 {
			continue
		}
		if rule[1] != roleName {
			params := make([]interface{}, 0, len(rule))
			for _, value := range rule {
				params = append(params, value)
			}
			_, _ = s.enforcer.RemoveGroupingPolicy(params...)
		}
	}

	has, err := s.enforcer.HasGroupingPolicy(subject, roleName, domain)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	_, err = s.enforcer.AddGroupingPolicy(subject, roleName, domain)
	return err
}

func (s *ServiceImpl) auditDecision(ctx context.Context, auditAction string, actorType string, actorID *string, orgID string, object string, action string) {
	if s.auditSvc == nil {
		return
	}
	parsedOrgID, err := snowflake.ParseString(orgID)
	if err != nil || parsedOrgID == 0 {
		return
	}
	entry := auditdomain.Entry{
		OrgID:      parsedOrgID,
		ActorType:  auditdomain.ActorType(actorType),
		Action:     auditAction,
		TargetType: auditdomain.TargetAuthorization,
		TargetID:   object + ":" + action,
		Metadata: map[string]any{
			"object":  object,
			"action":  action,
			"actor":   actorType,
			"subject": actorSubject(actorType, actorID),
		},
	}
	if actorID != nil {
		entry.ActorID = *actorID
	}
	_ = s.auditSvc.Record(ctx, entry)
}

func roleSubject(role string) string {
	return "role:" + strings.ToLower(strings.TrimSpace(role))
}

func actorSubject(actorType string, actorID *string) string {
	switch actorType {
	case "system":
		return "system"
	case "user":
		if actorID != nil && strings.TrimSpace(*actorID) != "" {
			return fmt.Sprintf("user:%s", strings.TrimSpace(*actorID))
		}
	}
	return ""
}

func shouldAuditGrant(action string) bool {
	switch action {
	case ActionCommissionAdjust, ActionUserSetBigBoss:
		return true
	default:
		return false
	}
}

func objectOf(action string) string {
	object, _, _ := strings.Cut(action, ".")
	return object
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := make([][]string, 0, len(allActions)*2)
	for _, action := range allActions {
		policies = append(policies, []string{roleSubject(RoleAdmin), objectOf(action), action})
	}
	for role, actions := range rolePolicies {
		for _, action := range actions {
			policies = append(policies, []string{roleSubject(role), objectOf(action), action})
		}
	}

	for _, policy := range policies {
		if len(policy) < 3 {
			continue
		}
		has, err := enforcer.HasPolicy(policy)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		if _, err := enforcer.AddPolicy(policy); err != nil {
			return err
		}
	}
	return nil
}
