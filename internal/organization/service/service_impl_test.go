package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/smallbiznis/nodeboss/internal/organization/domain"
	"github.com/smallbiznis/nodeboss/internal/organization/repository"
	"github.com/smallbiznis/nodeboss/internal/organization/service"
	"github.com/smallbiznis/nodeboss/pkg/db/dbtest"
	"go.uber.org/zap"
)

func newService(t *testing.T) domain.Service {
	t.Helper()
	db := dbtest.Open(t)
	return service.NewService(service.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repository.NewRepository(db),
		GenID: dbtest.Node(t),
	})
}

func TestEnsureDefaultIsIdempotent(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	first, err := svc.EnsureDefault(ctx, "Acme Holdings")
	if err != nil {
		t.Fatalf("ensure default: %v", err)
	}
	if first.Slug != "acme-holdings" || !first.IsDefault {
		t.Fatalf("unexpected org: %+v", first)
	}

	second, err := svc.EnsureDefault(ctx, "Something Else")
	if err != nil {
		t.Fatalf("ensure default again: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected same default org, got %s and %s", first.ID, second.ID)
	}
}

func TestCreateRejectsDuplicateSlug(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "North Star"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := svc.Create(ctx, domain.CreateOrganizationRequest{Name: "north  star"})
	if !errors.Is(err, domain.ErrSlugTaken) {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}
}

func TestGetByIDValidatesInput(t *testing.T) {
	svc := newService(t)
	ctx := context.Background()

	if _, err := svc.GetByID(ctx, "nope"); !errors.Is(err, domain.ErrInvalidOrganization) {
		t.Fatalf("expected ErrInvalidOrganization, got %v", err)
	}
	if _, err := svc.GetByID(ctx, "12345"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
