package reporting

import (
	"github.com/smallbiznis/nodeboss/internal/reporting/repository"
	"github.com/smallbiznis/nodeboss/internal/reporting/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reporting.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
