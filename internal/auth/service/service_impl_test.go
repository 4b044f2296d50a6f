package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smallbiznis/nodeboss/internal/auth/domain"
	"github.com/smallbiznis/nodeboss/internal/auth/password"
	"github.com/smallbiznis/nodeboss/internal/auth/service"
	"github.com/smallbiznis/nodeboss/internal/config"
	"github.com/smallbiznis/nodeboss/internal/orgcontext"
	userdomain "github.com/smallbiznis/nodeboss/internal/user/domain"
	userrepo "github.com/smallbiznis/nodeboss/internal/user/repository"
	userservice "github.com/smallbiznis/nodeboss/internal/user/service"
	"github.com/smallbiznis/nodeboss/pkg/db/dbtest"
	"go.uber.org/zap"
)

func TestLoginIssuesTokenThatAuthenticates(t *testing.T) {
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), orgID)

	users := userservice.New(userservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: userrepo.Provide()})
	created, err := users.Create(ctx, userdomain.CreateUserRequest{
		Name:     "Org Admin",
		Email:    "org@example.com",
		Role:     "organization",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	svc, err := service.New(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Cfg:      config.Config{AuthJWTSecret: "secret", AuthTokenTTL: time.Hour},
		UserRepo: userrepo.Provide(),
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.Login(ctx, domain.LoginRequest{OrgID: orgID.String(), Email: "org@example.com", Password: "wrong-horse"}); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	result, err := svc.Login(ctx, domain.LoginRequest{OrgID: orgID.String(), Email: "ORG@example.com", Password: "correct-horse"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if result.Role != "organization" || result.UserID != created.ID.String() {
		t.Fatalf("unexpected login result %+v", result)
	}

	claims, err := svc.Authenticate(ctx, result.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if claims.OrgID != orgID.String() {
		t.Fatalf("expected org %s, got %s", orgID, claims.OrgID)
	}

	if _, err := svc.Authenticate(ctx, "garbage"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestLoginUpgradesWeakPasswordHash(t *testing.T) {
	db := dbtest.Open(t)
	node := dbtest.Node(t)
	orgID := node.Generate()
	ctx := orgcontext.WithOrgID(context.Background(), orgID)
	repo := userrepo.Provide()

	users := userservice.New(userservice.Params{DB: db, Log: zap.NewNop(), GenID: node, Repo: repo})
	created, err := users.Create(ctx, userdomain.CreateUserRequest{
		Name:     "Seller",
		Email:    "seller@example.com",
		Role:     "organization",
		Password: "correct-horse",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}

	weak, err := password.HashWithParams("correct-horse", password.Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 16})
	if err != nil {
		t.Fatalf("hash weak: %v", err)
	}
	if err := repo.UpdatePasswordHash(ctx, db, orgID, created.ID, weak, time.Now().UTC()); err != nil {
		t.Fatalf("store weak hash: %v", err)
	}

	svc, err := service.New(service.Params{
		DB:       db,
		Log:      zap.NewNop(),
		Cfg:      config.Config{AuthJWTSecret: "secret", AuthTokenTTL: time.Hour},
		UserRepo: repo,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if _, err := svc.Login(ctx, domain.LoginRequest{OrgID: orgID.String(), Email: "seller@example.com", Password: "correct-horse"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	stored, err := repo.FindByID(ctx, db, orgID, created.ID)
	if err != nil || stored == nil || stored.PasswordHash == nil {
		t.Fatalf("reload user: %v", err)
	}
	if *stored.PasswordHash == weak || password.NeedsRehash(*stored.PasswordHash) {
		t.Fatalf("expected the hash to be upgraded, got %q", *stored.PasswordHash)
	}
	if !password.Verify("correct-horse", *stored.PasswordHash) {
		t.Fatalf("upgraded hash must still verify")
	}
}
