package webhook

import (
	"github.com/smallbiznis/nodeboss/internal/webhook/repository"
	"github.com/smallbiznis/nodeboss/internal/webhook/service"
	"go.uber.org/fx"
)

var Module = fx.Module("webhook.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
