package seed

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/nodeboss/internal/auth/password"
	ledgerservice "github.com/smallbiznis/nodeboss/internal/ledger/service"
	orgrepo "github.com/smallbiznis/nodeboss/internal/organization/repository"
	orgservice "github.com/smallbiznis/nodeboss/internal/organization/service"
	userdomain "github.com/smallbiznis/nodeboss/internal/user/domain"
	userrepo "github.com/smallbiznis/nodeboss/internal/user/repository"
	"github.com/smallbiznis/nodeboss/pkg/db"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultOrgName    = "Default Organization"
	defaultAdminName  = "Administrator"
	maxCodeCollisions = 5
)

// Options controls first-boot bootstrap. The admin is only created when both
// email and password are set.
type Options struct {
	OrgName       string
	AdminEmail    string
	AdminPassword string
}

// Bootstrap ensures the default organization, its chart of accounts and the
// bootstrap admin exist. It is safe to run on every start.
func Bootstrap(conn *gorm.DB, opts Options) error {
	if conn == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}
	ctx := context.Background()
	log := zap.NewNop()

	name := strings.TrimSpace(opts.OrgName)
	if name == "" {
		name = defaultOrgName
	}
	orgs := orgservice.NewService(orgservice.Params{
		DB: conn, Log: log, Repo: orgrepo.NewRepository(conn), GenID: node,
	})
	org, err := orgs.EnsureDefault(ctx, name)
	if err != nil {
		return err
	}

	ledger := ledgerservice.NewService(ledgerservice.Params{DB: conn, Log: log, GenID: node})
	return conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ledger.EnsureAccounts(ctx, tx, org.ID); err != nil {
			return err
		}
		return ensureAdmin(ctx, tx, node, org.ID, opts)
	})
}

func ensureAdmin(ctx context.Context, tx *gorm.DB, node *snowflake.Node, orgID snowflake.ID, opts Options) error {
	email := strings.ToLower(strings.TrimSpace(opts.AdminEmail))
	if email == "" || opts.AdminPassword == "" {
		return nil
	}

	users := userrepo.Provide()
	existing, err := users.FindByEmail(ctx, tx, orgID, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}

	hashed, err := password.Hash(opts.AdminPassword)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	admin := &userdomain.User{
		ID:                 node.Generate(),
		OrgID:              orgID,
		Name:               defaultAdminName,
		Email:              email,
		Role:               userdomain.RoleAdmin,
		OverridePercentage: decimal.Zero,
		PasswordHash:       &hashed,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	for attempt := 0; attempt < maxCodeCollisions; attempt++ {
		admin.ReferralCode = userdomain.NewReferralCode(admin.Name)
		err = users.Insert(ctx, tx, admin)
		if err == nil || !db.DuplicateKeyOn(err, "referral_code") {
			return err
		}
	}
	return err
}
