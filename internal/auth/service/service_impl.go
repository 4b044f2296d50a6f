package service

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/nodeboss/internal/auth/domain"
	"github.com/smallbiznis/nodeboss/internal/auth/password"
	"github.com/smallbiznis/nodeboss/internal/auth/token"
	"github.com/smallbiznis/nodeboss/internal/clock"
	"github.com/smallbiznis/nodeboss/internal/config"
	userdomain "github.com/smallbiznis/nodeboss/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	UserRepo userdomain.Repository
	Clock    clock.Clock `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	userRepo userdomain.Repository
	issuer   *token.Issuer
	clock    clock.Clock
}

func New(p Params) (domain.Service, error) {
	issuer, err := token.NewIssuer(p.Cfg.AuthJWTSecret, p.Cfg.AuthTokenTTL, p.Clock)
	if err != nil {
		return nil, err
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.SystemClock{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("auth.service"),
		userRepo: p.UserRepo,
		issuer:   issuer,
		clock:    clk,
	}, nil
}

func (s *Service) Login(ctx context.Context, req domain.LoginRequest) (*domain.LoginResult, error) {
	orgID, err := snowflake.ParseString(strings.TrimSpace(req.OrgID))
	if err != nil || orgID == 0 {
		return nil, domain.ErrInvalidCredentials
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || req.Password == "" {
		return nil, domain.ErrInvalidCredentials
	}

	user, err := s.userRepo.FindByEmail(ctx, s.db, orgID, email)
	if err != nil {
		return nil, err
	}
	if user == nil || user.PasswordHash == nil || !password.Verify(req.Password, *user.PasswordHash) {
		s.log.Info("login rejected", zap.String("org_id", orgID.String()))
		return nil, domain.ErrInvalidCredentials
	}
	if password.NeedsRehash(*user.PasswordHash) {
		s.upgradeHash(ctx, user, req.Password)
	}

	raw, expiresAt, err := s.issuer.Issue(user.ID.String(), orgID.String(), string(user.Role))
	if err != nil {
		return nil, err
	}
	return &domain.LoginResult{
		AccessToken: raw,
		TokenType:   "Bearer",
		ExpiresAt:   expiresAt,
		UserID:      user.ID.String(),
		OrgID:       orgID.String(),
		Role:        string(user.Role),
	}, nil
}

// upgradeHash re-hashes a verified password at the current cost. Failure
// only delays the upgrade to the next login.
func (s *Service) upgradeHash(ctx context.Context, user *userdomain.User, plain string) {
	hashed, err := password.Hash(plain)
	if err == nil {
		err = s.userRepo.UpdatePasswordHash(ctx, s.db, user.OrgID, user.ID, hashed, s.clock.Now().UTC())
	}
	if err != nil {
		s.log.Warn("password rehash failed",
			zap.String("org_id", user.OrgID.String()),
			zap.String("user_id", user.ID.String()),
			zap.Error(err),
		)
		return
	}
	s.log.Info("password hash upgraded", zap.String("user_id", user.ID.String()))
}

// Authenticate validates the token and re-reads the user so a deleted
// account or a role change takes effect before the token expires.
func (s *Service) Authenticate(ctx context.Context, rawToken string) (*token.Claims, error) {
	claims, err := s.issuer.Parse(rawToken)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	orgID, err := snowflake.ParseString(claims.OrgID)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}
	userID, err := snowflake.ParseString(claims.UserID)
	if err != nil {
		return nil, domain.ErrUnauthorized
	}

	user, err := s.userRepo.FindByID(ctx, s.db, orgID, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUnauthorized
	}
	claims.Role = string(user.Role)
	return claims, nil
}
